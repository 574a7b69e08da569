package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sirchat/internal/auth"
	"sirchat/internal/httpclient"
)

// SupabaseLookup queries the workspaces table through the PostgREST API
// as the signed-in user, so row level security applies.
type SupabaseLookup struct {
	baseURL string
	anonKey string
	client  *http.Client
}

// NewSupabaseLookup returns a lookup against the project at baseURL.
func NewSupabaseLookup(baseURL, anonKey string, client *http.Client) (*SupabaseLookup, error) {
	if baseURL == "" || anonKey == "" {
		return nil, errors.New("supabase workspace lookup requires URL and anon key")
	}
	if client == nil {
		hc := httpclient.DefaultConfig()
		hc.Timeout = 10 * time.Second
		client = httpclient.NewHTTPClient(&hc)
	}
	return &SupabaseLookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  client,
	}, nil
}

func (l *SupabaseLookup) HomeWorkspaceID(ctx context.Context, sess *auth.Session) (string, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("user_id", "eq."+sess.UserID)
	q.Set("is_home", "eq.true")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/rest/v1/workspaces?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build workspace request: %w", err)
	}
	req.Header.Set("apikey", l.anonKey)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query home workspace: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read workspace response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		return "", fmt.Errorf("query home workspace: status %d: %s", resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("query home workspace: invalid JSON response")
	}

	id := gjson.GetBytes(body, "0.id").String()
	if id == "" {
		return "", ErrNotFound
	}
	return id, nil
}
