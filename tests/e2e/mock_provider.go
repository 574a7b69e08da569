//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockLLMServer simulates an OpenAI-compatible chat completions upstream.
type MockLLMServer struct {
	server        *httptest.Server
	mu            sync.Mutex
	requests      []RecordedRequest
	responseDelay time.Duration
	failNext      bool
	failWithCode  int
	failMessage   string
}

// RecordedRequest stores information about a received request.
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

type upstreamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type upstreamRequest struct {
	Model       string            `json:"model"`
	Messages    []upstreamMessage `json:"messages"`
	Temperature *float64          `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	Stream      bool              `json:"stream"`
}

// NewMockLLMServer creates a new mock LLM server.
func NewMockLLMServer() *MockLLMServer {
	m := &MockLLMServer{}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(body))

		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})

		if m.failNext {
			m.failNext = false
			code := m.failWithCode
			msg := m.failMessage
			m.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_, _ = fmt.Fprintf(w, `{"error": {"message": %q, "type": "api_error"}}`, msg)
			return
		}

		delay := m.responseDelay
		m.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		m.handleRequest(w, r, body)
	}))

	return m
}

func (m *MockLLMServer) handleRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	if r.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Missing API key", "type": "invalid_request_error"}}`))
		return
	}
	if r.URL.Path != "/chat/completions" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"message": "Not found", "type": "invalid_request_error"}}`))
		return
	}

	var req upstreamRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid request body", "type": "invalid_request_error"}}`))
		return
	}

	if req.Stream {
		m.handleStreamingResponse(w, req)
		return
	}

	response := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   req.Model,
		"created": time.Now().Unix(),
		"choices": []map[string]any{{
			"index":         0,
			"message":       upstreamMessage{Role: "assistant", Content: generateMockResponse(req)},
			"finish_reason": "stop",
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (m *MockLLMServer) handleStreamingResponse(w http.ResponseWriter, req upstreamRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}

	chunks := splitIntoChunks(generateMockResponse(req), 5)
	for i, chunk := range chunks {
		choice := map[string]any{
			"index":         0,
			"delta":         map[string]string{"content": chunk},
			"finish_reason": nil,
		}
		if i == len(chunks)-1 {
			choice["finish_reason"] = "stop"
		}
		data, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-test-stream",
			"object":  "chat.completion.chunk",
			"choices": []map[string]any{choice},
		})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		time.Sleep(5 * time.Millisecond)
	}

	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// generateMockResponse echoes the last user message so tests can assert on it.
func generateMockResponse(req upstreamRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return "Echo: " + req.Messages[i].Content
		}
	}
	return "Hello from mock"
}

func splitIntoChunks(s string, n int) []string {
	if n <= 0 || len(s) <= n {
		return []string{s}
	}
	var chunks []string
	for len(s) > n {
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// FailNext makes the next request fail with the given status and message.
func (m *MockLLMServer) FailNext(code int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
	m.failWithCode = code
	m.failMessage = message
}

// SetDelay delays every response.
func (m *MockLLMServer) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseDelay = d
}

// LastRequest returns the most recent request, decoded.
func (m *MockLLMServer) LastRequest() (RecordedRequest, upstreamRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, upstreamRequest{}, false
	}
	rec := m.requests[len(m.requests)-1]
	var req upstreamRequest
	_ = json.Unmarshal(rec.Body, &req)
	return rec, req, true
}

// RequestCount returns how many requests reached the upstream.
func (m *MockLLMServer) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// URL returns the base URL of the mock server.
func (m *MockLLMServer) URL() string {
	return strings.TrimRight(m.server.URL, "/")
}

// Close shuts down the mock server.
func (m *MockLLMServer) Close() {
	m.server.Close()
}
