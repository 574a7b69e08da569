// Package auth resolves the caller's session from request cookies.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrSessionBackend is returned when the session could not be verified
// because the auth backend failed. Callers must not treat it as "no session".
var ErrSessionBackend = errors.New("session backend unavailable")

// Session is an authenticated caller.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// SessionStore resolves sessions. Implementations must be safe for concurrent use.
type SessionStore interface {
	// GetSession returns the caller's session, or nil when there is none.
	// The returned cookies must be written to the response regardless of the
	// outcome: they carry refreshed tokens or clear a dead session.
	GetSession(ctx context.Context, r *http.Request) (*Session, []*http.Cookie, error)
}
