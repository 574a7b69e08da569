//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const healthPath = "/health"

// noRedirectClient surfaces gate redirects instead of following them.
var noRedirectClient = &http.Client{
	Timeout: 10 * time.Second,
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	ChatSettings map[string]any `json:"chatSettings,omitempty"`
	Messages     []chatMessage  `json:"messages"`
	APIKey       string         `json:"apiKey,omitempty"`
	Stream       bool           `json:"stream,omitempty"`
}

func userMessage(content string) []chatMessage {
	return []chatMessage{{Role: "user", Content: content}}
}

// sendChat posts payload to /api/chat/<route>.
func sendChat(t *testing.T, route string, payload any) *http.Response {
	t.Helper()
	return sendJSONRequest(t, http.MethodPost, gatewayURL+"/api/chat/"+route, payload, "")
}

// sendJSONRequest sends a JSON request, optionally as a signed-in user.
func sendJSONRequest(t *testing.T, method, url string, payload any, userID string) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: userID})
	}

	resp, err := noRedirectClient.Do(req)
	require.NoError(t, err)
	return resp
}

// getPage requests a page as the given user ("" for anonymous).
func getPage(t *testing.T, path, userID string) *http.Response {
	t.Helper()
	return sendJSONRequest(t, http.MethodGet, gatewayURL+path, nil, userID)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// closeBody is a helper to close response body in defer statements.
func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
