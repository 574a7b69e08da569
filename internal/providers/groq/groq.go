// Package groq describes the Groq chat completion API.
package groq

import (
	"net/http"

	"sirchat/internal/providers"
)

// Registration provides factory registration for the Groq provider.
var Registration = providers.Registration{
	Type: "groq",
	New:  New,
}

const (
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultModel       = "meta-llama/llama-4-maverick-17b-128e-instruct"
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096

	// MissingKeyMessage is returned when the caller sends no API key.
	MissingKeyMessage = "Groq API Key not found. Please set it in your WordPress settings."
	// IncorrectKeyMessage is returned when Groq rejects the key.
	IncorrectKeyMessage = "Groq API Key is incorrect. Please fix it in your WordPress settings."
)

// tokenCaps are the output limits for the models the UI offers.
var tokenCaps = map[string]int{
	"meta-llama/llama-4-maverick-17b-128e-instruct": 8192,
	"meta-llama/llama-4-scout-17b-16e-instruct":     8192,
	"llama-3.3-70b-versatile":                       32768,
	"llama-3.1-8b-instant":                          8192,
	"llama3-8b-8192":                                8192,
	"llama3-70b-8192":                               8192,
	"mixtral-8x7b-32768":                            4096,
	"gemma-7b-it":                                   8192,
	"gemma2-9b-it":                                  8192,
}

// New returns the Groq descriptor. Groq only ever uses the caller's key;
// any server key in cfg is ignored.
func New(cfg providers.ProviderConfig) providers.Descriptor {
	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return providers.Descriptor{
		Name:               "groq",
		BaseURL:            baseURL,
		DefaultModel:       defaultModel,
		DefaultTemperature: defaultTemperature,
		DefaultMaxTokens:   defaultMaxTokens,
		TokenCaps:          tokenCaps,
		Credential:         providers.CallerKeyRequired,
		MissingKeyMessage:  MissingKeyMessage,
		ErrorPatterns: []providers.ErrorPattern{
			{Contains: "api key not found", Message: MissingKeyMessage},
			{Status: http.StatusUnauthorized, Message: IncorrectKeyMessage},
		},
		Streaming: true,
	}
}
