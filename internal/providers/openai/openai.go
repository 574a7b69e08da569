// Package openai describes the OpenAI chat completion API as used by the
// WordPress plugin route.
package openai

import (
	"net/http"

	"sirchat/internal/providers"
)

// Registration provides factory registration for the OpenAI provider.
var Registration = providers.Registration{
	Type: "openai",
	New:  New,
}

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o"
	defaultTemperature = 1.0
	defaultMaxTokens   = 4096

	// MissingKeyMessage is returned when neither the caller nor the server has a key.
	MissingKeyMessage = "OpenAI API Key not found. Please set it in your WordPress settings or environment variables."
	// KeyNotFoundMessage replaces upstream "api key not found" faults.
	KeyNotFoundMessage = "OpenAI API Key not found. Please set it in your WordPress settings."
	// IncorrectKeyMessage is returned when OpenAI rejects the key.
	IncorrectKeyMessage = "OpenAI API Key is incorrect. Please fix it in your WordPress settings."
)

var tokenCaps = map[string]int{
	"gpt-4o":               4096,
	"gpt-4o-mini":          16384,
	"gpt-4-vision-preview": 4096,
	"gpt-4-turbo":          4096,
	"gpt-4-turbo-preview":  4096,
	"gpt-3.5-turbo":        4096,
}

// New returns the OpenAI descriptor. The route is also reachable as
// /api/chat/wordpress and never streams.
func New(cfg providers.ProviderConfig) providers.Descriptor {
	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return providers.Descriptor{
		Name:               "openai",
		Aliases:            []string{"wordpress"},
		BaseURL:            baseURL,
		Organization:       cfg.Organization,
		DefaultModel:       defaultModel,
		DefaultTemperature: defaultTemperature,
		DefaultMaxTokens:   defaultMaxTokens,
		TokenCaps:          tokenCaps,
		Credential:         providers.CallerKeyOrServerKey,
		ServerKey:          cfg.APIKey,
		MissingKeyMessage:  MissingKeyMessage,
		ErrorPatterns: []providers.ErrorPattern{
			{Contains: "api key not found", Message: KeyNotFoundMessage},
			{Contains: "incorrect api key", Message: IncorrectKeyMessage},
			{Status: http.StatusUnauthorized, Message: IncorrectKeyMessage},
		},
		Streaming: false,
	}
}
