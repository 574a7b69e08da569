// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the sirchat server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"sirchat/config"
	"sirchat/internal/auth"
	"sirchat/internal/cache"
	"sirchat/internal/core"
	"sirchat/internal/finetune"
	"sirchat/internal/providers"
	"sirchat/internal/proxy"
	"sirchat/internal/server"
	"sirchat/internal/workspace"
)

// App represents the main application with all its dependencies.
type App struct {
	config   *config.Config
	registry *providers.Registry
	training *finetune.Result
	cache    cache.Cache
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// Factory provides the registered provider builders.
	Factory *providers.ProviderFactory

	// Sessions replaces the Supabase session store, mainly for tests.
	Sessions auth.SessionStore

	// UpstreamClient replaces the HTTP client used for provider calls.
	UpstreamClient *http.Client
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("factory is required")
	}

	appCfg := cfg.AppConfig.Config
	app := &App{config: appCfg}

	registry, err := cfg.Factory.Build(providers.ResolveProviders(appCfg.Providers))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	if registry.Len() == 0 {
		return nil, fmt.Errorf("at least one provider must be configured")
	}
	app.registry = registry

	completers := buildCompleters(registry, proxy.Options{
		CompletionTimeout: appCfg.Proxy.CompletionTimeout,
		StreamIdleTimeout: appCfg.Proxy.StreamIdleTimeout,
		HTTPClient:        cfg.UpstreamClient,
	})

	sessions := cfg.Sessions
	if sessions == nil && appCfg.Auth.SupabaseURL != "" {
		store, err := auth.NewSupabaseStore(auth.SupabaseConfig{
			URL:        appCfg.Auth.SupabaseURL,
			AnonKey:    appCfg.Auth.SupabaseAnonKey,
			JWTSecret:  appCfg.Auth.JWTSecret,
			CookieName: appCfg.Auth.CookieName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize session store: %w", err)
		}
		sessions = store
	}
	if sessions == nil && !appCfg.Auth.GateDisabled {
		return nil, fmt.Errorf("SUPABASE_URL is required; set GATE_DISABLED=true to serve every page without a session")
	}

	training, err := finetune.New(ctx, appCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize training data storage: %w", err)
	}
	app.training = training

	var lookup workspace.Lookup
	if sessions != nil {
		lookup, err = app.buildWorkspaceLookup(ctx)
		if err != nil {
			closeErr := app.closeResources()
			if closeErr != nil {
				return nil, fmt.Errorf("failed to initialize workspace lookup: %w (also: close error: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to initialize workspace lookup: %w", err)
		}
	}

	app.logStartupInfo(sessions != nil, completers)

	app.server = server.New(&server.Config{
		Completers:         completers,
		Sessions:           sessions,
		Workspaces:         lookup,
		TrainingData:       training.Store,
		MetricsEnabled:     appCfg.Metrics.Enabled,
		MetricsEndpoint:    appCfg.Metrics.Endpoint,
		BodySizeLimit:      appCfg.Server.BodySizeLimit,
		WebRoot:            appCfg.Server.WebRoot,
		CORSAllowedOrigins: appCfg.Server.CORSAllowedOrigins,
		RateLimitRPS:       appCfg.Server.RateLimitRPS,
	})

	return app, nil
}

// buildCompleters creates one proxy per descriptor and maps every route
// segment (name and aliases) to it.
func buildCompleters(registry *providers.Registry, opts proxy.Options) map[string]core.Completer {
	completers := make(map[string]core.Completer)
	for _, desc := range registry.Descriptors() {
		p := proxy.New(desc, opts)
		for _, route := range desc.Routes() {
			completers[route] = p
		}
	}
	return completers
}

func (a *App) buildWorkspaceLookup(ctx context.Context) (workspace.Lookup, error) {
	cfg := a.config
	lookup, err := workspace.New(ctx, workspace.Config{
		Backend:         cfg.Workspace.Backend,
		Storage:         a.training.Storage,
		SupabaseURL:     cfg.Auth.SupabaseURL,
		SupabaseAnonKey: cfg.Auth.SupabaseAnonKey,
	})
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cache.Config{
		Type:     cfg.Cache.Type,
		TTL:      cfg.Cache.TTL,
		RedisURL: cfg.Cache.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.cache = c
	return workspace.NewCached(lookup, c), nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, then the workspace cache, then storage.
// It is idempotent and returns every close failure joined.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) closeResources() error {
	var errs []error
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Error("cache close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}
	if a.training != nil {
		if err := a.training.Close(); err != nil {
			slog.Error("training data close error", "error", err)
			errs = append(errs, fmt.Errorf("training data close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(gateEnabled bool, completers map[string]core.Completer) {
	cfg := a.config

	if gateEnabled {
		slog.Info("request gate enabled", "workspace_backend", cfg.Workspace.Backend, "cache", cfg.Cache.Type)
	} else {
		slog.Warn("request gate disabled by GATE_DISABLED, every page is public")
	}

	routes := make([]string, 0, len(completers))
	for route := range completers {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	slog.Info("chat routes registered", "routes", routes)

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type)
	if cfg.Server.RateLimitRPS > 0 {
		slog.Info("chat rate limit enabled", "rps", cfg.Server.RateLimitRPS)
	}
}
