package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sirchat/internal/auth"
)

func TestRequestIDMiddleware(t *testing.T) {
	srv := New(nil)

	t.Run("generates request ID when missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if got == "" {
			t.Fatal("expected X-Request-ID in response header, got empty")
		}
		// Validate UUID format (8-4-4-4-12 hex digits)
		if len(got) != 36 {
			t.Errorf("expected UUID (36 chars), got %q (%d chars)", got, len(got))
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "my-custom-id")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		respID := rec.Header().Get("X-Request-ID")
		if respID != "my-custom-id" {
			t.Errorf("expected response header X-Request-ID to be %q, got %q", "my-custom-id", respID)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	tests := []struct {
		name          string
		config        *Config
		requestPath   string
		expectMetrics bool
	}{
		{
			name:          "metrics enabled - default endpoint accessible",
			config:        &Config{MetricsEnabled: true, MetricsEndpoint: "/metrics"},
			requestPath:   "/metrics",
			expectMetrics: true,
		},
		{
			name:          "metrics enabled - empty endpoint defaults to /metrics",
			config:        &Config{MetricsEnabled: true},
			requestPath:   "/metrics",
			expectMetrics: true,
		},
		{
			name:        "metrics disabled - path falls through to pages",
			config:      &Config{MetricsEnabled: false, MetricsEndpoint: "/metrics"},
			requestPath: "/metrics",
		},
		{
			name:        "nil config - metrics disabled by default",
			config:      nil,
			requestPath: "/metrics",
		},
		{
			name:          "custom metrics endpoint path",
			config:        &Config{MetricsEnabled: true, MetricsEndpoint: "/custom-metrics"},
			requestPath:   "/custom-metrics",
			expectMetrics: true,
		},
		{
			name:        "custom endpoint - default path is a page",
			config:      &Config{MetricsEnabled: true, MetricsEndpoint: "/custom-metrics"},
			requestPath: "/metrics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(tt.config)

			req := httptest.NewRequest(http.MethodGet, tt.requestPath, nil)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			hasMetrics := strings.Contains(rec.Body.String(), "go_goroutines")
			if hasMetrics != tt.expectMetrics {
				t.Errorf("expected metrics=%v, body: %.200s", tt.expectMetrics, rec.Body.String())
			}
		})
	}
}

func TestMetricsEndpointReturnsPrometheusFormat(t *testing.T) {
	srv := New(&Config{MetricsEnabled: true})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	contentType := rec.Header().Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/plain") {
		t.Errorf("expected text/plain content type, got %q", contentType)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("expected Prometheus exposition format with HELP and TYPE lines")
	}
}

func TestPlaceholderPage(t *testing.T) {
	srv := New(nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/ws-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "WEB_ROOT") {
		t.Errorf("unexpected placeholder body: %s", rec.Body.String())
	}
}

func writeWebRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":       "<html>app</html>",
		"static/app.js":    "console.log('app')",
		"login/index.html": "<html>login</html>",
	}
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestSPAHandler(t *testing.T) {
	srv := New(&Config{WebRoot: writeWebRoot(t)})

	tests := []struct {
		path     string
		wantBody string
	}{
		{path: "/", wantBody: "<html>app</html>"},
		{path: "/static/app.js", wantBody: "console.log('app')"},
		{path: "/chat/ws-1", wantBody: "<html>app</html>"},
		{path: "/index.html", wantBody: "<html>app</html>"},
		{path: "/login", wantBody: "<html>app</html>"},
		{path: "/../../etc/passwd", wantBody: "<html>app</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200 for %s, got %d", tt.path, rec.Code)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestPagesBehindGate(t *testing.T) {
	srv := New(&Config{Sessions: &staticSessions{}, WebRoot: writeWebRoot(t)})

	t.Run("protected page redirects to login", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/chat/ws-1", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("expected 307, got %d", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != "/login?redirectTo=%2Fchat%2Fws-1" {
			t.Errorf("unexpected Location %q", got)
		}
	})

	t.Run("assets are served without a session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/static/app.js", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 for asset, got %d", rec.Code)
		}
	})

	t.Run("health bypasses the gate", func(t *testing.T) {
		srv := New(&Config{Sessions: &staticSessions{err: auth.ErrSessionBackend}})
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 for health, got %d", rec.Code)
		}
	})
}
