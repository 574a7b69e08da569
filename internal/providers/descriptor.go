// Package providers describes the upstream LLM providers the Completion Proxy
// can address. Each provider is a Descriptor value; there is no per-provider
// proxy code.
package providers

import (
	"fmt"
	"strings"

	"sirchat/internal/core"
)

// CredentialRule says where the upstream API key may come from.
type CredentialRule int

const (
	// CallerKeyRequired accepts only the key supplied in the request body.
	CallerKeyRequired CredentialRule = iota
	// CallerKeyOrServerKey falls back to the server-side key from configuration.
	CallerKeyOrServerKey
)

func (r CredentialRule) String() string {
	switch r {
	case CallerKeyRequired:
		return "caller_key_required"
	case CallerKeyOrServerKey:
		return "caller_key_or_server_key"
	default:
		return "unknown"
	}
}

// Descriptor parameterizes the generic proxy for one provider.
type Descriptor struct {
	// Name is the route segment under /api/chat/ and the metrics label
	Name string
	// Aliases are additional route segments served by the same descriptor
	Aliases []string

	BaseURL      string
	Organization string

	DefaultModel       string
	DefaultTemperature float64
	// DefaultMaxTokens is the cap for models missing from TokenCaps
	DefaultMaxTokens int
	TokenCaps        map[string]int

	Credential CredentialRule
	// ServerKey is only consulted when Credential is CallerKeyOrServerKey
	ServerKey string
	// MissingKeyMessage is returned with a 400 when no credential resolves
	MissingKeyMessage string

	// ErrorPatterns are evaluated top to bottom, first match wins
	ErrorPatterns []ErrorPattern

	// Streaming reports whether the route honors the caller's stream flag
	Streaming bool
}

// Validate checks the fields the proxy cannot work without.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor name is required")
	}
	if d.BaseURL == "" {
		return fmt.Errorf("%s: base URL is required", d.Name)
	}
	if d.DefaultModel == "" {
		return fmt.Errorf("%s: default model is required", d.Name)
	}
	if d.DefaultMaxTokens <= 0 {
		return fmt.Errorf("%s: default max tokens must be positive", d.Name)
	}
	if d.MissingKeyMessage == "" {
		return fmt.Errorf("%s: missing key message is required", d.Name)
	}
	return nil
}

// ResolveCredential returns the key to send upstream, or false when none applies.
func (d Descriptor) ResolveCredential(callerKey string) (string, bool) {
	if key := strings.TrimSpace(callerKey); key != "" {
		return key, true
	}
	if d.Credential == CallerKeyOrServerKey && d.ServerKey != "" {
		return d.ServerKey, true
	}
	return "", false
}

// ResolveModel falls back to the provider default for an empty model.
func (d Descriptor) ResolveModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return d.DefaultModel
}

// ResolveTemperature falls back to the provider default when unset.
// An explicit 0 is honored.
func (d Descriptor) ResolveTemperature(temperature *float64) float64 {
	if temperature != nil {
		return *temperature
	}
	return d.DefaultTemperature
}

// ResolveMaxTokens returns the output token cap for model. A caller budget
// can only lower the cap.
func (d Descriptor) ResolveMaxTokens(model string, requested *int) int {
	limit, ok := d.TokenCaps[model]
	if !ok || limit <= 0 {
		limit = d.DefaultMaxTokens
	}
	if requested != nil && *requested > 0 && *requested < limit {
		return *requested
	}
	return limit
}

// UpstreamRequest builds the OpenAI-compatible body for req.
func (d Descriptor) UpstreamRequest(req *core.ChatRequest, stream bool) *core.UpstreamChatRequest {
	model := d.ResolveModel(req.ChatSettings.Model)
	temperature := d.ResolveTemperature(req.ChatSettings.Temperature)
	return &core.UpstreamChatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: &temperature,
		MaxTokens:   d.ResolveMaxTokens(model, req.ChatSettings.MaxTokens),
		Stream:      stream,
	}
}

// Routes returns the name followed by any aliases.
func (d Descriptor) Routes() []string {
	routes := make([]string, 0, 1+len(d.Aliases))
	routes = append(routes, d.Name)
	return append(routes, d.Aliases...)
}
