package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sirchat/internal/core"
	"sirchat/internal/providers/groq"
)

func streamRequest() *core.ChatRequest {
	req := userRequest("gsk-test")
	req.Stream = true
	return req
}

func TestOpenStream_ForwardsDeltasInOrder(t *testing.T) {
	chunks := []string{"Hel", "lo", " world"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeCall(t, r)
		assert.True(t, call.Body.Stream)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		// role-only frame first, as OpenAI-compatible APIs send it
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
		for i, c := range chunks {
			_, _ = io.WriteString(w, sseFrame(t, c))
			flusher.Flush()
			time.Sleep(time.Duration(i*5) * time.Millisecond)
		}
		_, _ = io.WriteString(w, ": keep-alive\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := New(groqDescriptor(server.URL), Options{})

	s, err := p.OpenStream(context.Background(), streamRequest())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	deltas, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, chunks, deltas)
	assert.Equal(t, "Hello world", strings.Join(deltas, ""))

	// further reads keep reporting the end
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenStream_EndsOnEOFWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sseFrame(t, "only"))
	}))
	defer server.Close()

	s, err := New(groqDescriptor(server.URL), Options{}).OpenStream(context.Background(), streamRequest())
	require.NoError(t, err)

	deltas, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, deltas)
}

func TestOpenStream_UpstreamRejectsBeforeStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid API Key"}}`)
	}))
	defer server.Close()

	_, err := New(groqDescriptor(server.URL), Options{}).OpenStream(context.Background(), streamRequest())

	var pErr *core.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, http.StatusUnauthorized, pErr.HTTPStatusCode())
	assert.Equal(t, groq.IncorrectKeyMessage, pErr.ToJSON().Message)
}

func TestOpenStream_ErrorFrameMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sseFrame(t, "partial"))
		_, _ = io.WriteString(w, `data: {"error":{"message":"model overloaded"}}`+"\n\n")
	}))
	defer server.Close()

	s, err := New(groqDescriptor(server.URL), Options{}).OpenStream(context.Background(), streamRequest())
	require.NoError(t, err)

	deltas, err := drain(t, s)
	assert.Equal(t, []string{"partial"}, deltas)

	var pErr *core.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "model overloaded", pErr.ToJSON().Message)
}

func TestOpenStream_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sseFrame(t, "first"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	p := New(groqDescriptor(server.URL), Options{StreamIdleTimeout: 50 * time.Millisecond})
	s, err := p.OpenStream(context.Background(), streamRequest())
	require.NoError(t, err)

	d, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", d)

	_, err = s.Next()
	var pErr *core.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, http.StatusGatewayTimeout, pErr.HTTPStatusCode())
}

func TestOpenStream_ClientDisconnectReleasesUpstream(t *testing.T) {
	upstreamGone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sseFrame(t, "Hel"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(upstreamGone)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(groqDescriptor(server.URL), Options{})

	s, err := p.OpenStream(ctx, streamRequest())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	d, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "Hel", d)

	cancel()

	_, err = s.Next()
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case <-upstreamGone:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not cancelled after client disconnect")
	}
}

// pipeTransport hands out a response whose body is fed by the test.
type pipeTransport struct {
	body *trackedBody
}

func (p *pipeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       p.body,
		Request:    req,
	}, nil
}

type trackedBody struct {
	*io.PipeReader
	closed atomic.Bool
	once   sync.Once
}

func (b *trackedBody) Close() error {
	b.once.Do(func() { b.closed.Store(true) })
	return b.PipeReader.Close()
}

func TestStream_CancelStopsProcessingBlockedRead(t *testing.T) {
	pr, pw := io.Pipe()
	body := &trackedBody{PipeReader: pr}
	client := &http.Client{Transport: &pipeTransport{body: body}}

	ctx, cancel := context.WithCancel(context.Background())
	p := New(groqDescriptor("http://upstream.invalid"), Options{HTTPClient: client})

	s, err := p.OpenStream(ctx, streamRequest())
	require.NoError(t, err)

	go func() {
		_, _ = io.WriteString(pw, sseFrame(t, "one"))
	}()
	d, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", d)

	// Next blocks on the pipe until cancellation closes the body.
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next()
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancellation")
	}
	assert.True(t, body.closed.Load(), "upstream body should be closed")

	// the upstream can no longer deliver chunks
	_, err = io.WriteString(pw, sseFrame(t, "two"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	_, err = s.Next()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	body := io.NopCloser(bytes.NewBufferString(""))
	ctx, cancel := context.WithCancel(context.Background())
	var closes atomic.Int32

	s := newStream(ctx, cancel, body, time.Second, "test")
	s.onClose = func(err error) {
		closes.Add(1)
		var pErr *core.ProviderError
		if assert.True(t, errors.As(err, &pErr)) {
			assert.Equal(t, statusClientClosedRequest, pErr.StatusCode)
		}
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), closes.Load())
	assert.Error(t, ctx.Err())
}

func TestStream_ParseLine(t *testing.T) {
	s := &Stream{provider: "test"}

	tests := []struct {
		name      string
		line      string
		wantDelta string
		wantDone  bool
		wantErr   bool
	}{
		{name: "content", line: `data: {"choices":[{"delta":{"content":"hi"}}]}`, wantDelta: "hi"},
		{name: "no space after colon", line: `data:{"choices":[{"delta":{"content":"x"}}]}`, wantDelta: "x"},
		{name: "role frame", line: `data: {"choices":[{"delta":{"role":"assistant"}}]}`},
		{name: "finish frame", line: `data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`},
		{name: "comment", line: `: ping`},
		{name: "event name", line: `event: message`},
		{name: "done", line: `data: [DONE]`, wantDone: true},
		{name: "malformed", line: `data: {nope`, wantErr: true},
		{name: "error object", line: `data: {"error":{"message":"boom"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, done, err := s.parseLine([]byte(tt.line + "\n"))
			assert.Equal(t, tt.wantDelta, delta)
			assert.Equal(t, tt.wantDone, done)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}
