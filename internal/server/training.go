package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"sirchat/internal/auth"
	"sirchat/internal/core"
	"sirchat/internal/finetune"
)

// The gate skips /api/, so these handlers resolve the session themselves.
func (h *Handler) requireSession(c echo.Context) (*auth.Session, bool) {
	if sess := SessionFromContext(c); sess != nil {
		return sess, true
	}
	if h.sessions == nil {
		return nil, false
	}

	sess, cookies, err := h.sessions.GetSession(c.Request().Context(), c.Request())
	for _, ck := range cookies {
		c.SetCookie(ck)
	}
	if err != nil {
		slog.Error("session lookup failed", "error", err, "request_id", core.GetRequestID(c.Request().Context()))
		return nil, false
	}
	return sess, sess != nil
}

func (h *Handler) trainingPreflight(c echo.Context) (*auth.Session, error) {
	if h.training == nil {
		return nil, c.String(http.StatusServiceUnavailable, "Training data storage is not configured")
	}
	sess, ok := h.requireSession(c)
	if !ok {
		return nil, c.String(http.StatusUnauthorized, "Unauthorized")
	}
	return sess, nil
}

// CreateTrainingData handles POST /api/fine-tune
func (h *Handler) CreateTrainingData(c echo.Context) error {
	sess, err := h.trainingPreflight(c)
	if sess == nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil || !gjson.ValidBytes(body) {
		return c.String(http.StatusBadRequest, "Invalid input")
	}
	messages := gjson.GetBytes(body, "messages")
	modelID := gjson.GetBytes(body, "modelId")
	if !messages.IsArray() || modelID.Type != gjson.String || modelID.String() == "" {
		return c.String(http.StatusBadRequest, "Invalid input")
	}

	row := finetune.NewTrainingData(sess.UserID, json.RawMessage(messages.Raw), modelID.String())
	if err := h.training.Create(c.Request().Context(), row); err != nil {
		slog.Error("failed to save training data", "error", err, "user_id", sess.UserID)
		return c.String(http.StatusInternalServerError, "Error saving training data")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": row})
}

// ListTrainingData handles GET /api/fine-tune
func (h *Handler) ListTrainingData(c echo.Context) error {
	sess, err := h.trainingPreflight(c)
	if sess == nil {
		return err
	}

	rows, err := h.training.ListByUser(c.Request().Context(), sess.UserID)
	if err != nil {
		slog.Error("failed to list training data", "error", err, "user_id", sess.UserID)
		return c.String(http.StatusInternalServerError, "Error fetching training data")
	}
	return c.JSON(http.StatusOK, rows)
}

// DeleteTrainingData handles DELETE /api/fine-tune?id=
func (h *Handler) DeleteTrainingData(c echo.Context) error {
	sess, err := h.trainingPreflight(c)
	if sess == nil {
		return err
	}

	id := c.QueryParam("id")
	if id == "" {
		return c.String(http.StatusBadRequest, "Missing training data ID")
	}

	// deleting an unknown id succeeds; the caller only cares that it is gone
	if err := h.training.Delete(c.Request().Context(), sess.UserID, id); err != nil && !errors.Is(err, finetune.ErrNotFound) {
		slog.Error("failed to delete training data", "error", err, "user_id", sess.UserID, "id", id)
		return c.String(http.StatusInternalServerError, "Error deleting training data")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
