// Package server provides the HTTP surface: the request gate, the chat
// completion routes, the training data routes and the page fallback.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"sirchat/internal/auth"
	"sirchat/internal/core"
	"sirchat/internal/finetune"
)

// Handler holds the HTTP handlers
type Handler struct {
	completers map[string]core.Completer
	sessions   auth.SessionStore
	training   finetune.Store
}

// NewHandler creates a handler. Route keys are matched case-insensitively.
func NewHandler(completers map[string]core.Completer, sessions auth.SessionStore, training finetune.Store) *Handler {
	normalized := make(map[string]core.Completer, len(completers))
	for route, c := range completers {
		normalized[strings.ToLower(route)] = c
	}
	return &Handler{
		completers: normalized,
		sessions:   sessions,
		training:   training,
	}
}

// ChatCompletion handles POST /api/chat/:provider
func (h *Handler) ChatCompletion(c echo.Context) error {
	completer, ok := h.completers[strings.ToLower(c.Param("provider"))]
	if !ok {
		return c.JSON(http.StatusNotFound, core.ErrorEnvelope{Message: "Unknown chat provider: " + c.Param("provider")})
	}

	// the body is JSON whatever the Content-Type header says
	var req core.ChatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			// body limit hit on a request without Content-Length
			return httpErr
		}
		return handleError(c, core.NewInvalidRequestError("Invalid request body", err))
	}

	ctx := c.Request().Context()
	if req.Stream && completer.StreamingEnabled() {
		return h.streamCompletion(c, ctx, completer, &req)
	}

	text, err := completer.Complete(ctx, &req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, core.CompletionResponse{Response: text})
}

// streamCompletion forwards deltas as plain text, flushing after each one.
// Errors before the first delta produce the JSON envelope; after that the
// status line is gone and the stream just ends.
func (h *Handler) streamCompletion(c echo.Context, ctx context.Context, completer core.Completer, req *core.ChatRequest) error {
	stream, err := completer.OpenStream(ctx, req)
	if err != nil {
		return handleError(c, err)
	}
	defer func() {
		_ = stream.Close() //nolint:errcheck
	}()

	first, err := stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		if ctx.Err() != nil {
			return nil
		}
		return handleError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	if errors.Is(err, io.EOF) {
		return nil
	}

	delta := first
	for {
		if _, werr := io.WriteString(res, delta); werr != nil {
			// the client is gone; Close releases the upstream
			return nil
		}
		res.Flush()

		delta, err = stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				slog.Warn("stream ended with error", "provider", completer.Name(), "error", err,
					"request_id", core.GetRequestID(ctx))
			}
			return nil
		}
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleError writes the uniform {"message": ...} envelope.
func handleError(c echo.Context, err error) error {
	var providerErr *core.ProviderError
	if errors.As(err, &providerErr) {
		return c.JSON(providerErr.HTTPStatusCode(), providerErr.ToJSON())
	}

	slog.Error("unexpected handler error", "error", err, "request_id", core.GetRequestID(c.Request().Context()))
	return c.JSON(http.StatusInternalServerError, core.ErrorEnvelope{Message: core.DefaultErrorMessage})
}
