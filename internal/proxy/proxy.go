// Package proxy implements the Completion Proxy: one generic implementation
// parameterized by a providers.Descriptor, serving both buffered and streamed
// chat completions against OpenAI-compatible upstreams.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"sirchat/internal/core"
	"sirchat/internal/llmclient"
	"sirchat/internal/observability"
	"sirchat/internal/providers"
)

// ErrMissingCredential marks the fail-fast error returned before any upstream call.
var ErrMissingCredential = errors.New("missing provider credential")

const (
	// DefaultCompletionTimeout bounds a buffered completion when Options leaves it unset.
	DefaultCompletionTimeout = 120 * time.Second
	// DefaultStreamIdleTimeout aborts a silent stream when Options leaves it unset.
	DefaultStreamIdleTimeout = 60 * time.Second

	completionsEndpoint = "/chat/completions"
)

// Options tunes a Proxy.
type Options struct {
	CompletionTimeout time.Duration
	StreamIdleTimeout time.Duration
	// HTTPClient replaces the tuned default clients, mainly for tests
	HTTPClient *http.Client
}

// Proxy forwards chat requests to the provider described by its descriptor.
// It holds no per-request state and is safe for concurrent use.
type Proxy struct {
	desc              providers.Descriptor
	client            *llmclient.Client
	completionTimeout time.Duration
	idleTimeout       time.Duration
}

var _ core.Completer = (*Proxy)(nil)

// New creates a Proxy for desc.
func New(desc providers.Descriptor, opts Options) *Proxy {
	p := &Proxy{
		desc:              desc,
		completionTimeout: opts.CompletionTimeout,
		idleTimeout:       opts.StreamIdleTimeout,
	}
	if p.completionTimeout <= 0 {
		p.completionTimeout = DefaultCompletionTimeout
	}
	if p.idleTimeout <= 0 {
		p.idleTimeout = DefaultStreamIdleTimeout
	}

	cfg := llmclient.Config{ProviderName: desc.Name, BaseURL: desc.BaseURL}
	if opts.HTTPClient != nil {
		p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, cfg, p.setHeaders)
	} else {
		p.client = llmclient.New(cfg, p.setHeaders)
	}
	return p
}

// Name returns the provider name.
func (p *Proxy) Name() string {
	return p.desc.Name
}

// StreamingEnabled reports whether the provider route honors the stream flag.
func (p *Proxy) StreamingEnabled() bool {
	return p.desc.Streaming
}

// Descriptor returns the descriptor the proxy was built from.
func (p *Proxy) Descriptor() providers.Descriptor {
	return p.desc
}

// setHeaders applies the headers shared by every upstream call.
func (p *Proxy) setHeaders(req *http.Request) {
	if p.desc.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.desc.Organization)
	}
	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
}

// prepare resolves the credential and validates the request. The credential
// is checked first so a keyless request never reaches validation or the network.
func (p *Proxy) prepare(req *core.ChatRequest) (string, *core.ProviderError) {
	key, ok := p.desc.ResolveCredential(req.APIKey)
	if !ok {
		pErr := core.NewInvalidRequestError(p.desc.MissingKeyMessage, ErrMissingCredential)
		pErr.Provider = p.desc.Name
		return "", pErr
	}
	if err := req.Validate(); err != nil {
		pErr := core.NewInvalidRequestError(err.Error(), err)
		pErr.Provider = p.desc.Name
		return "", pErr
	}
	return key, nil
}

// Complete runs a buffered completion and returns the generated text.
// The call is bounded by the completion timeout; errors are *core.ProviderError
// values whose Message is safe to show to the caller.
func (p *Proxy) Complete(ctx context.Context, req *core.ChatRequest) (string, error) {
	start := time.Now()

	key, pErr := p.prepare(req)
	if pErr != nil {
		p.record(observability.ModeBuffered, pErr.HTTPStatusCode(), start)
		return "", pErr
	}

	ctx, cancel := context.WithTimeout(ctx, p.completionTimeout)
	defer cancel()

	resp, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: completionsEndpoint,
		Body:     p.desc.UpstreamRequest(req, false),
		Headers:  authHeaders(key),
	})
	if err != nil {
		return "", p.fail(ctx, observability.ModeBuffered, start, err)
	}

	choice := gjson.GetBytes(resp.Body, "choices.0")
	if !gjson.ValidBytes(resp.Body) || !choice.Exists() {
		err := core.NewProviderError(p.desc.Name, http.StatusBadGateway, "upstream response contained no choices", nil)
		return "", p.fail(ctx, observability.ModeBuffered, start, err)
	}

	p.record(observability.ModeBuffered, http.StatusOK, start)
	return choice.Get("message.content").String(), nil
}

// OpenStream starts a streamed completion. The returned stream is bound to
// ctx: cancelling ctx releases the upstream connection.
func (p *Proxy) OpenStream(ctx context.Context, req *core.ChatRequest) (core.DeltaStream, error) {
	start := time.Now()

	key, pErr := p.prepare(req)
	if pErr != nil {
		p.record(observability.ModeStream, pErr.HTTPStatusCode(), start)
		return nil, pErr
	}

	ctx, cancel := context.WithCancel(ctx)
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: completionsEndpoint,
		Body:     p.desc.UpstreamRequest(req, true),
		Headers:  authHeaders(key),
	})
	if err != nil {
		cancel()
		return nil, p.fail(ctx, observability.ModeStream, start, err)
	}

	s := newStream(ctx, cancel, body, p.idleTimeout, p.desc.Name)
	s.normalize = p.desc.NormalizeError
	s.onClose = func(err error) {
		if err == nil {
			p.record(observability.ModeStream, http.StatusOK, start)
			return
		}
		pErr := core.AsProviderError(p.desc.Name, err)
		if pErr.StatusCode != statusClientClosedRequest {
			slog.Warn("upstream stream failed",
				"provider", p.desc.Name,
				"status", pErr.StatusCode,
				"error", pErr.RawMessage,
				"request_id", core.GetRequestID(ctx),
			)
		}
		p.record(observability.ModeStream, pErr.HTTPStatusCode(), start)
	}
	return s, nil
}

// fail normalizes an upstream error, logs the raw form and records it.
func (p *Proxy) fail(ctx context.Context, mode string, start time.Time, err error) *core.ProviderError {
	pErr := p.desc.NormalizeError(err)
	slog.Warn("upstream completion failed",
		"provider", p.desc.Name,
		"mode", mode,
		"status", pErr.StatusCode,
		"error", pErr.RawMessage,
		"request_id", core.GetRequestID(ctx),
	)
	p.record(mode, pErr.StatusCode, start)
	return pErr
}

func (p *Proxy) record(mode string, status int, start time.Time) {
	observability.RecordCompletion(p.desc.Name, mode, status, time.Since(start))
}

func authHeaders(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}
