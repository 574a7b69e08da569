package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"sirchat/internal/auth"
	"sirchat/internal/core"
	"sirchat/internal/observability"
	"sirchat/internal/workspace"
)

// Gate decisions, also used as the metrics label.
const (
	decisionExcluded          = "excluded"
	decisionSessionError      = "session_error"
	decisionPublicRedirect    = "public_redirect"
	decisionPublicPass        = "public_pass"
	decisionRootRedirect      = "root_redirect"
	decisionLoginRedirect     = "login_redirect"
	decisionWorkspaceRedirect = "workspace_redirect"
	decisionLandingPass       = "landing_pass"
	decisionPass              = "pass"
)

const sessionContextKey = "session"

// sessionErrorMessage is returned when the session backend cannot be reached.
const sessionErrorMessage = "Unable to verify your session. Please try again."

// GateConfig configures the Gate middleware.
type GateConfig struct {
	Sessions   auth.SessionStore
	Workspaces workspace.Lookup

	// LoginPath defaults to /login
	LoginPath string
	// LandingPath defaults to /chat
	LandingPath string
	// PublicPaths default to login, signup and password reset
	PublicPaths []string
	// ExcludedPrefixes bypass the gate without a session lookup
	ExcludedPrefixes []string
}

// DefaultExcludedPrefixes are the asset and API paths the gate never inspects.
func DefaultExcludedPrefixes() []string {
	return []string{"/api/", "/static/", "/_next/static/", "/_next/image", "/favicon.ico", "/health"}
}

// Gate decides per request whether to pass, redirect to login, or redirect
// to the user's home workspace. A session backend fault fails closed with
// 401. Cookies returned by the session store are written on every branch.
func Gate(cfg GateConfig) echo.MiddlewareFunc {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = "/chat"
	}
	if cfg.PublicPaths == nil {
		cfg.PublicPaths = []string{cfg.LoginPath, "/signup", "/reset-password"}
	}
	if cfg.ExcludedPrefixes == nil {
		cfg.ExcludedPrefixes = DefaultExcludedPrefixes()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p := req.URL.Path

			if isExcluded(p, cfg.ExcludedPrefixes) {
				observability.RecordGateDecision(decisionExcluded)
				return next(c)
			}

			sess, cookies, err := cfg.Sessions.GetSession(req.Context(), req)
			for _, ck := range cookies {
				c.SetCookie(ck)
			}
			if err != nil {
				observability.RecordGateDecision(decisionSessionError)
				slog.Error("session lookup failed", "path", p, "error", err,
					"request_id", core.GetRequestID(req.Context()))
				return c.JSON(http.StatusUnauthorized, core.ErrorEnvelope{Message: sessionErrorMessage})
			}
			if sess != nil {
				c.Set(sessionContextKey, sess)
				c.SetRequest(req.WithContext(core.WithUserID(req.Context(), sess.UserID)))
			}

			switch {
			case matchesPath(p, cfg.PublicPaths):
				if sess != nil {
					return redirect(c, decisionPublicRedirect, cfg.LandingPath)
				}
				observability.RecordGateDecision(decisionPublicPass)
				return next(c)

			case p == "/":
				if sess != nil {
					return redirect(c, decisionRootRedirect, cfg.LandingPath)
				}
				return redirect(c, decisionRootRedirect, cfg.LoginPath)

			case sess == nil:
				target := cfg.LoginPath + "?redirectTo=" + url.QueryEscape(req.URL.RequestURI())
				return redirect(c, decisionLoginRedirect, target)

			case strings.TrimSuffix(p, "/") == cfg.LandingPath:
				if id := homeWorkspace(c, cfg.Workspaces, sess); id != "" {
					return redirect(c, decisionWorkspaceRedirect, cfg.LandingPath+"/"+url.PathEscape(id))
				}
				observability.RecordGateDecision(decisionLandingPass)
				return next(c)

			default:
				observability.RecordGateDecision(decisionPass)
				return next(c)
			}
		}
	}
}

// homeWorkspace returns "" when there is no lookup, no home workspace, or
// the lookup failed. Failures are logged and never fail the request.
func homeWorkspace(c echo.Context, lookup workspace.Lookup, sess *auth.Session) string {
	if lookup == nil {
		return ""
	}
	ctx := c.Request().Context()
	id, err := lookup.HomeWorkspaceID(ctx, sess)
	switch {
	case err == nil:
		return id
	case errors.Is(err, workspace.ErrNotFound):
		slog.Debug("user has no home workspace", "user_id", sess.UserID)
	default:
		slog.Warn("home workspace lookup failed", "user_id", sess.UserID, "error", err,
			"request_id", core.GetRequestID(ctx))
	}
	return ""
}

func redirect(c echo.Context, decision, target string) error {
	observability.RecordGateDecision(decision)
	return c.Redirect(http.StatusTemporaryRedirect, target)
}

// SessionFromContext returns the session the gate attached, if any.
func SessionFromContext(c echo.Context) *auth.Session {
	sess, _ := c.Get(sessionContextKey).(*auth.Session)
	return sess
}

func isExcluded(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
				return true
			}
			continue
		}
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

func matchesPath(p string, paths []string) bool {
	trimmed := p
	if len(trimmed) > 1 {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	for _, candidate := range paths {
		if trimmed == candidate {
			return true
		}
	}
	return false
}
