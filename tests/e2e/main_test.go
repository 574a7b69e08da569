//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sirchat/config"
	"sirchat/internal/app"
	"sirchat/internal/auth"
	"sirchat/internal/providers"
	"sirchat/internal/providers/groq"
	"sirchat/internal/providers/openai"
)

const (
	sessionCookie = "e2e-session"
	serverAPIKey  = "sk-server-key"
)

var (
	mockLLM    *MockLLMServer
	gatewayURL string
	sqlitePath string
)

// cookieSessions treats the e2e-session cookie value as the user id.
type cookieSessions struct{}

func (cookieSessions) GetSession(ctx context.Context, r *http.Request) (*auth.Session, []*http.Cookie, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, nil, nil
	}
	return &auth.Session{UserID: c.Value, AccessToken: "token-" + c.Value}, nil, nil
}

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	mockLLM = NewMockLLMServer()
	defer mockLLM.Close()

	dir, err := os.MkdirTemp("", "sirchat-e2e")
	if err != nil {
		log.Printf("failed to create temp dir: %v", err)
		return 1
	}
	defer os.RemoveAll(dir)
	sqlitePath = filepath.Join(dir, "e2e.db")

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", BodySizeLimit: "1M"},
		Providers: map[string]config.RawProviderConfig{
			"groq":   {Type: "groq", BaseURL: mockLLM.URL()},
			"openai": {Type: "openai", BaseURL: mockLLM.URL(), APIKey: serverAPIKey},
		},
		Proxy: config.ProxyConfig{
			CompletionTimeout: 2 * time.Second,
			StreamIdleTimeout: 2 * time.Second,
		},
		Workspace: config.WorkspaceConfig{Backend: "sqlite"},
		Storage: config.StorageConfig{
			Type:   "sqlite",
			SQLite: config.SQLiteConfig{Path: sqlitePath},
		},
		Cache:   config.CacheConfig{Type: "local", TTL: time.Minute},
		Metrics: config.MetricsConfig{Enabled: true, Endpoint: "/metrics"},
	}

	factory := providers.NewProviderFactory()
	factory.Add(groq.Registration)
	factory.Add(openai.Registration)

	application, err := app.New(context.Background(), app.Config{
		AppConfig: &config.LoadResult{Config: cfg},
		Factory:   factory,
		Sessions:  cookieSessions{},
	})
	if err != nil {
		log.Printf("failed to create app: %v", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Shutdown(ctx); err != nil {
			fmt.Println("shutdown:", err)
		}
	}()

	srv := httptest.NewServer(application.Handler())
	defer srv.Close()
	gatewayURL = srv.URL

	return m.Run()
}
