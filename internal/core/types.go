package core

import (
	"fmt"
	"strings"
)

// Message roles accepted from callers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatSettings is the settings bundle sent by the chat UI and the widget.
type ChatSettings struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

// ChatRequest represents the incoming chat completion request
type ChatRequest struct {
	ChatSettings ChatSettings `json:"chatSettings"`
	Messages     []Message    `json:"messages"`
	APIKey       string       `json:"apiKey,omitempty"`
	Stream       bool         `json:"stream,omitempty"`
}

// Message represents a single message in the chat
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role is one of user, assistant or system.
func ValidRole(role string) bool {
	switch strings.ToLower(role) {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Validate checks the message list. Settings are resolved later against the
// provider defaults and need no validation here.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must contain at least one message")
	}
	for i, m := range r.Messages {
		if !ValidRole(m.Role) {
			return fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
	}
	return nil
}

// UpstreamChatRequest is the OpenAI-compatible body sent to a provider.
type UpstreamChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// CompletionResponse is the buffered success envelope.
type CompletionResponse struct {
	Response string `json:"response"`
}

// ErrorEnvelope is the uniform error body of every proxy route.
type ErrorEnvelope struct {
	Message string `json:"message"`
}
