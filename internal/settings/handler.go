// Package settings provides HTTP handlers for user preference endpoints.
package settings

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/services"
)

// maxValueBytes bounds a stored preference value.
const maxValueBytes = 64 << 10

// SetRequest is the body of PUT /settings/{key}.
type SetRequest struct {
	Value string `json:"value"`
}

// Handler provides HTTP handlers for settings endpoints.
type Handler struct {
	settings services.SettingsRepository
	logger   *zap.Logger
}

// NewHandler creates a settings Handler.
func NewHandler(settings services.SettingsRepository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		settings: settings,
		logger:   logger,
	}
}

// RegisterRoutes registers settings routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/settings", h.handleList)
	mux.HandleFunc("GET /api/v1/settings/{key}", h.handleGet)
	mux.HandleFunc("PUT /api/v1/settings/{key}", h.handleSet)
	mux.HandleFunc("DELETE /api/v1/settings/{key}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.GetAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list settings", zap.Error(err))
		writeSettingsError(w, r, http.StatusInternalServerError, "failed to list settings")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	s, err := h.settings.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeSettingsError(w, r, http.StatusNotFound, "setting not found: "+key)
			return
		}
		h.logger.Error("failed to get setting", zap.String("key", key), zap.Error(err))
		writeSettingsError(w, r, http.StatusInternalServerError, "failed to get setting")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !services.ValidKey(key) {
		writeSettingsError(w, r, http.StatusBadRequest, "invalid setting key: "+key)
		return
	}

	var req SetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxValueBytes+1024)).Decode(&req); err != nil {
		writeSettingsError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Value) > maxValueBytes {
		writeSettingsError(w, r, http.StatusBadRequest, "setting value too large")
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		h.logger.Error("failed to save setting", zap.String("key", key), zap.Error(err))
		writeSettingsError(w, r, http.StatusInternalServerError, "failed to save setting")
		return
	}
	s, err := h.settings.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to read back setting", zap.String("key", key), zap.Error(err))
		writeSettingsError(w, r, http.StatusInternalServerError, "failed to read setting")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.settings.Delete(r.Context(), key); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeSettingsError(w, r, http.StatusNotFound, "setting not found: "+key)
			return
		}
		h.logger.Error("failed to delete setting", zap.String("key", key), zap.Error(err))
		writeSettingsError(w, r, http.StatusInternalServerError, "failed to delete setting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSettingsError writes an RFC 7807 problem response.
func writeSettingsError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":     "https://netdash.dev/problems/settings-error",
		"title":    http.StatusText(status),
		"status":   status,
		"detail":   detail,
		"instance": r.URL.Path,
	})
}
