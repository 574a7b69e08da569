package providers

import (
	"strings"

	"sirchat/internal/core"
)

// ErrorPattern rewrites an upstream fault into a fixed remediation message.
// A zero Status matches any status; an empty Contains matches any text.
type ErrorPattern struct {
	Status   int
	Contains string
	Message  string
}

// Matches reports whether the pattern applies to status and raw message.
// Text comparison is case-insensitive.
func (p ErrorPattern) Matches(status int, raw string) bool {
	if p.Status == 0 && p.Contains == "" {
		return false
	}
	if p.Status != 0 && p.Status != status {
		return false
	}
	if p.Contains != "" && !strings.Contains(strings.ToLower(raw), strings.ToLower(p.Contains)) {
		return false
	}
	return true
}

// NormalizeError converts any upstream fault into a ProviderError whose
// Message is either a remediation string from the first matching pattern or
// the raw upstream message. The upstream status is kept (500 when absent).
func (d Descriptor) NormalizeError(err error) *core.ProviderError {
	if err == nil {
		return nil
	}
	src := core.AsProviderError(d.Name, err)
	out := *src
	out.StatusCode = src.HTTPStatusCode()
	if out.RawMessage == "" {
		out.RawMessage = src.Message
	}
	if out.RawMessage == "" {
		out.RawMessage = core.DefaultErrorMessage
	}
	out.Message = out.RawMessage

	for _, p := range d.ErrorPatterns {
		if p.Matches(out.StatusCode, out.RawMessage) {
			out.Message = p.Message
			break
		}
	}
	return &out
}
