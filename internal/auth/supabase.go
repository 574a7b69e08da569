package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sirchat/internal/httpclient"
)

// expirySkew refreshes tokens slightly before they actually expire.
const expirySkew = 10 * time.Second

// SupabaseConfig configures a SupabaseStore.
type SupabaseConfig struct {
	URL     string
	AnonKey string
	// JWTSecret enables local HS256 verification. Without it every request
	// is verified against the auth server.
	JWTSecret string
	// CookieName overrides the name derived from URL.
	CookieName string
	HTTPClient *http.Client
	Now        func() time.Time
}

// SupabaseStore reads Supabase auth cookies and refreshes expired sessions.
type SupabaseStore struct {
	baseURL    string
	anonKey    string
	cookieName string
	verifier   *tokenVerifier
	client     *http.Client
	now        func() time.Time
}

// NewSupabaseStore validates cfg and returns a ready store.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("supabase anon key is required")
	}

	name := cfg.CookieName
	if name == "" {
		derived, err := CookieName(cfg.URL)
		if err != nil {
			return nil, err
		}
		name = derived
	}

	client := cfg.HTTPClient
	if client == nil {
		hc := httpclient.DefaultConfig()
		hc.Timeout = 10 * time.Second
		client = httpclient.NewHTTPClient(&hc)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &SupabaseStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		cookieName: name,
		client:     client,
		now:        now,
	}
	if cfg.JWTSecret != "" {
		s.verifier = newTokenVerifier(cfg.JWTSecret, now)
	}
	return s, nil
}

// CookieName returns the session cookie name in use.
func (s *SupabaseStore) CookieName() string {
	return s.cookieName
}

// GetSession implements SessionStore.
func (s *SupabaseStore) GetSession(ctx context.Context, r *http.Request) (*Session, []*http.Cookie, error) {
	value, present := readCookieValue(r, s.cookieName)
	if value == "" {
		return nil, nil, nil
	}

	stored, err := decodeSession(value)
	if err != nil {
		slog.Debug("discarding unreadable session cookie", "error", err)
		return nil, clearCookies(present), nil
	}

	if stored.AccessToken != "" {
		sess, status, err := s.verify(ctx, stored)
		switch status {
		case tokenValid:
			return sess, nil, nil
		case tokenBackendError:
			return nil, nil, err
		case tokenInvalid:
			return nil, clearCookies(present), nil
		}
	}

	// expired, or only a refresh token left
	if stored.RefreshToken == "" {
		return nil, clearCookies(present), nil
	}
	refreshed, err := s.refresh(ctx, stored.RefreshToken)
	if err != nil {
		if errors.Is(err, errRefreshRejected) {
			return nil, clearCookies(present), nil
		}
		return nil, nil, err
	}

	sess := s.toSession(refreshed)
	if sess.UserID == "" && s.verifier != nil {
		if claims, err := s.verifier.verify(refreshed.AccessToken); err == nil {
			sess.UserID = claims.Subject
		}
	}
	if sess.UserID == "" {
		return nil, nil, fmt.Errorf("%w: refreshed session has no user", ErrSessionBackend)
	}

	encoded, err := encodeSession(refreshed)
	if err != nil {
		return nil, nil, err
	}
	return sess, sessionCookies(s.cookieName, encoded, present), nil
}

type tokenStatus int

const (
	tokenValid tokenStatus = iota
	tokenExpired
	tokenInvalid
	tokenBackendError
)

func (s *SupabaseStore) verify(ctx context.Context, stored *storedSession) (*Session, tokenStatus, error) {
	if s.verifier != nil {
		claims, err := s.verifier.verify(stored.AccessToken)
		switch {
		case err == nil:
			sess := s.toSession(stored)
			sess.UserID = claims.Subject
			if claims.Email != "" {
				sess.Email = claims.Email
			}
			if claims.ExpiresAt != nil {
				sess.ExpiresAt = claims.ExpiresAt.Time
			}
			return sess, tokenValid, nil
		case errors.Is(err, errTokenExpired):
			return nil, tokenExpired, nil
		default:
			slog.Debug("rejecting session token", "error", err)
			return nil, tokenInvalid, nil
		}
	}

	if stored.ExpiresAt > 0 && !s.now().Add(expirySkew).Before(time.Unix(stored.ExpiresAt, 0)) {
		return nil, tokenExpired, nil
	}

	user, err := s.fetchUser(ctx, stored.AccessToken)
	switch {
	case err == nil:
		sess := s.toSession(stored)
		sess.UserID = user.ID
		sess.Email = user.Email
		return sess, tokenValid, nil
	case errors.Is(err, errRefreshRejected):
		// the server no longer accepts the token; a refresh may still succeed
		return nil, tokenExpired, nil
	default:
		return nil, tokenBackendError, err
	}
}

var errRefreshRejected = errors.New("auth server rejected credentials")

func (s *SupabaseStore) fetchUser(ctx context.Context, accessToken string) (*storedUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var user storedUser
	if err := s.do(req, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user response without id", ErrSessionBackend)
	}
	return &user, nil
}

func (s *SupabaseStore) refresh(ctx context.Context, refreshToken string) (*storedSession, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/auth/v1/token?grant_type=refresh_token", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var refreshed storedSession
	if err := s.do(req, &refreshed); err != nil {
		return nil, err
	}
	if refreshed.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response without access token", ErrSessionBackend)
	}
	if refreshed.ExpiresAt == 0 && refreshed.ExpiresIn > 0 {
		refreshed.ExpiresAt = s.now().Add(time.Duration(refreshed.ExpiresIn) * time.Second).Unix()
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = refreshToken
	}
	return &refreshed, nil
}

// do sends req to the auth server. 400, 401 and 403 map to
// errRefreshRejected; anything else unexpected is a backend fault.
func (s *SupabaseStore) do(req *http.Request, out any) error {
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrSessionBackend, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrSessionBackend, err)
		}
		return nil
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return errRefreshRejected
	default:
		return fmt.Errorf("%w: auth server returned %d", ErrSessionBackend, resp.StatusCode)
	}
}

func (s *SupabaseStore) toSession(stored *storedSession) *Session {
	sess := &Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
	}
	if stored.User != nil {
		sess.UserID = stored.User.ID
		sess.Email = stored.User.Email
	}
	if stored.ExpiresAt > 0 {
		sess.ExpiresAt = time.Unix(stored.ExpiresAt, 0)
	}
	return sess
}
