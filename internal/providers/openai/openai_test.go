package openai

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sirchat/internal/core"
	"sirchat/internal/providers"
)

func TestNew(t *testing.T) {
	d := New(providers.ProviderConfig{Type: "openai", Organization: "org-1"})
	require.NoError(t, d.Validate())

	assert.Equal(t, "openai", d.Name)
	assert.Equal(t, []string{"openai", "wordpress"}, d.Routes())
	assert.Equal(t, defaultBaseURL, d.BaseURL)
	assert.Equal(t, "org-1", d.Organization)
	assert.False(t, d.Streaming)
	assert.Equal(t, "gpt-4o", d.ResolveModel(""))
}

func TestCredentialFallback(t *testing.T) {
	withServer := New(providers.ProviderConfig{APIKey: "sk-server"})
	key, ok := withServer.ResolveCredential("")
	require.True(t, ok)
	assert.Equal(t, "sk-server", key)

	key, ok = withServer.ResolveCredential("sk-caller")
	require.True(t, ok)
	assert.Equal(t, "sk-caller", key)

	withoutServer := New(providers.ProviderConfig{})
	_, ok = withoutServer.ResolveCredential("")
	assert.False(t, ok)
	assert.Equal(t, MissingKeyMessage, withoutServer.MissingKeyMessage)
}

func TestTokenCaps(t *testing.T) {
	d := New(providers.ProviderConfig{})
	assert.Equal(t, 4096, d.ResolveMaxTokens("gpt-4o", nil))
	assert.Equal(t, 16384, d.ResolveMaxTokens("gpt-4o-mini", nil))
	assert.Equal(t, 4096, d.ResolveMaxTokens("some-future-model", nil))
}

func TestErrorMessages(t *testing.T) {
	d := New(providers.ProviderConfig{})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		want       string
	}{
		{
			name:       "incorrect key text",
			err:        core.NewProviderError("openai", http.StatusUnauthorized, "Incorrect API key provided: sk-abc***", nil),
			wantStatus: http.StatusUnauthorized,
			want:       IncorrectKeyMessage,
		},
		{
			name:       "key not found text",
			err:        core.NewProviderError("openai", http.StatusBadRequest, "API key not found", nil),
			wantStatus: http.StatusBadRequest,
			want:       KeyNotFoundMessage,
		},
		{
			name:       "bare 401",
			err:        core.NewProviderError("openai", http.StatusUnauthorized, "Unauthorized", nil),
			wantStatus: http.StatusUnauthorized,
			want:       IncorrectKeyMessage,
		},
		{
			name:       "other faults pass through",
			err:        core.NewProviderError("openai", http.StatusNotFound, "The model `gpt-9` does not exist", nil),
			wantStatus: http.StatusNotFound,
			want:       "The model `gpt-9` does not exist",
		},
		{
			name:       "transport fault",
			err:        errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusInternalServerError,
			want:       "dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.NormalizeError(tt.err)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.Equal(t, tt.want, got.Message)
		})
	}
}
