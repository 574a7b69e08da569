package server

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"sirchat/internal/auth"
	"sirchat/internal/core"
	"sirchat/internal/finetune"
	"sirchat/internal/workspace"
)

// DefaultBodySizeLimit applies when Config.BodySizeLimit is empty.
const DefaultBodySizeLimit = "4M"

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	// Completers maps each chat route segment (provider name or alias) to its proxy
	Completers map[string]core.Completer
	Sessions   auth.SessionStore
	// Workspaces may be nil; the landing page then never redirects
	Workspaces workspace.Lookup
	// TrainingData may be nil; the fine-tune routes then answer 503
	TrainingData finetune.Store

	MetricsEnabled     bool
	MetricsEndpoint    string // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit      string // echo BodyLimit syntax (default: 4M)
	WebRoot            string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
}

// New creates a new HTTP server
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(cfg.Completers, cfg.Sessions, cfg.TrainingData)

	metricsPath := resolveMetricsPath(cfg.MetricsEndpoint)

	// Global middleware stack (order matters)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := core.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				slog.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	bodySizeLimit := cfg.BodySizeLimit
	if bodySizeLimit == "" {
		bodySizeLimit = DefaultBodySizeLimit
	}
	e.Use(middleware.BodyLimit(bodySizeLimit))

	if cfg.Sessions != nil {
		e.Use(Gate(GateConfig{
			Sessions:         cfg.Sessions,
			Workspaces:       cfg.Workspaces,
			ExcludedPrefixes: append(DefaultExcludedPrefixes(), metricsPath),
		}))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	// Chat routes, reachable from the embeddable widget on other origins
	chat := e.Group("/api/chat")
	if len(cfg.CORSAllowedOrigins) > 0 {
		chat.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSAllowedOrigins,
			AllowMethods: []string{http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
		// group middleware only runs on registered routes, preflights included
		chat.OPTIONS("/:provider", func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		})
	}
	if cfg.RateLimitRPS > 0 {
		chat.Use(rateLimiter(cfg.RateLimitRPS))
	}
	chat.POST("/:provider", handler.ChatCompletion)

	// Training data
	e.POST("/api/fine-tune", handler.CreateTrainingData)
	e.GET("/api/fine-tune", handler.ListTrainingData)
	e.DELETE("/api/fine-tune", handler.DeleteTrainingData)

	// Pages
	pages := placeholderPage
	if cfg.WebRoot != "" {
		pages = spaHandler(cfg.WebRoot)
	}
	e.GET("/*", pages)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// resolveMetricsPath normalizes the configured path. Paths that would shadow
// the API namespace fall back to /metrics.
func resolveMetricsPath(endpoint string) string {
	const fallback = "/metrics"
	if endpoint == "" {
		return fallback
	}
	p := path.Clean("/" + endpoint)
	if p == "/" || p == "/api" || strings.HasPrefix(p, "/api/") || p == "/health" {
		return fallback
	}
	return p
}

func rateLimiter(rps float64) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     int(math.Max(1, math.Ceil(rps))),
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, core.ErrorEnvelope{Message: "unable to identify client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, core.ErrorEnvelope{Message: "Too many requests. Please slow down."})
		},
	})
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
