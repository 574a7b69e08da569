package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	base64Prefix = "base64-"
	// maxChunkSize matches the browser client so both sides agree on chunk boundaries
	maxChunkSize = 3180
	// cookieMaxAge is the 400 day ceiling browsers enforce
	cookieMaxAge = 400 * 24 * 60 * 60
)

// storedSession is the JSON persisted in the auth cookie.
type storedSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type,omitempty"`
	ExpiresIn    int64       `json:"expires_in,omitempty"`
	ExpiresAt    int64       `json:"expires_at,omitempty"`
	User         *storedUser `json:"user,omitempty"`
}

type storedUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// CookieName derives the auth cookie name from the Supabase project URL the
// way the browser client does: sb-<first host label>-auth-token.
func CookieName(supabaseURL string) (string, error) {
	u, err := url.Parse(supabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid supabase URL: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("invalid supabase URL %q: missing host", supabaseURL)
	}
	ref, _, _ := strings.Cut(host, ".")
	return "sb-" + ref + "-auth-token", nil
}

// readCookieValue joins the session cookie, which is either a single cookie
// or chunks named <name>.0 .. <name>.n. It returns the names of all cookies
// that belong to the session so they can be cleared.
func readCookieValue(r *http.Request, name string) (value string, present []string) {
	chunks := make(map[int]string)
	for _, c := range r.Cookies() {
		switch {
		case c.Name == name:
			value = c.Value
			present = append(present, c.Name)
		case strings.HasPrefix(c.Name, name+"."):
			idx, err := strconv.Atoi(strings.TrimPrefix(c.Name, name+"."))
			if err != nil || idx < 0 {
				continue
			}
			chunks[idx] = c.Value
			present = append(present, c.Name)
		}
	}
	if value != "" || len(chunks) == 0 {
		return value, present
	}

	var b strings.Builder
	for i := 0; ; i++ {
		part, ok := chunks[i]
		if !ok {
			break
		}
		b.WriteString(part)
	}
	sort.Strings(present)
	return b.String(), present
}

// decodeSession parses a cookie value in any of the formats the browser
// client has written: base64url JSON, URL-escaped JSON or plain JSON.
func decodeSession(value string) (*storedSession, error) {
	raw := value
	if strings.HasPrefix(raw, base64Prefix) {
		enc := strings.TrimPrefix(raw, base64Prefix)
		data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(enc, "="))
		if err != nil {
			return nil, fmt.Errorf("decode session cookie: %w", err)
		}
		raw = string(data)
	} else if strings.Contains(raw, "%") {
		unescaped, err := url.QueryUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("unescape session cookie: %w", err)
		}
		raw = unescaped
	}

	raw = strings.TrimSpace(raw)
	var s storedSession
	if strings.HasPrefix(raw, "[") {
		// legacy array form: [access_token, refresh_token, ...]
		var parts []any
		if err := json.Unmarshal([]byte(raw), &parts); err != nil {
			return nil, fmt.Errorf("parse session cookie: %w", err)
		}
		if len(parts) >= 2 {
			s.AccessToken, _ = parts[0].(string)
			s.RefreshToken, _ = parts[1].(string)
		}
	} else if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse session cookie: %w", err)
	}

	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil, fmt.Errorf("session cookie carries no tokens")
	}
	return &s, nil
}

// encodeSession is the inverse of decodeSession in the base64url format.
func encodeSession(s *storedSession) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return base64Prefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// sessionCookies splits value into cookies and expires any stale names from
// the previous layout.
func sessionCookies(name, value string, present []string) []*http.Cookie {
	var out []*http.Cookie
	written := make(map[string]bool)

	if len(value) <= maxChunkSize {
		out = append(out, newCookie(name, value, cookieMaxAge))
		written[name] = true
	} else {
		for i := 0; len(value) > 0; i++ {
			n := min(maxChunkSize, len(value))
			chunkName := name + "." + strconv.Itoa(i)
			out = append(out, newCookie(chunkName, value[:n], cookieMaxAge))
			written[chunkName] = true
			value = value[n:]
		}
	}

	for _, p := range present {
		if !written[p] {
			out = append(out, newCookie(p, "", -1))
		}
	}
	return out
}

// clearCookies expires every cookie belonging to the session.
func clearCookies(present []string) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(present))
	for _, p := range present {
		out = append(out, newCookie(p, "", -1))
	}
	return out
}

func newCookie(name, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.Expires = time.Unix(0, 0)
	}
	return c
}
