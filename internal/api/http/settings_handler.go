// internal/api/http/settings_handler.go
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Dattelon/field-service-sub000/internal/domain"
	"github.com/Dattelon/field-service-sub000/internal/infra/postgres"
	"github.com/Dattelon/field-service-sub000/internal/settings"

	"github.com/go-playground/validator/v10"
)

// InvalidationPublisher fans an invalidation out to the other replicas.
type InvalidationPublisher interface {
	Publish(ctx context.Context) error
}

// SettingsHandler handles administrative writes to the runtime tunables.
// A write updates the store, drops the local cache and publishes an
// invalidation so every replica picks the change up before its TTL runs out.
type SettingsHandler struct {
	repo     domain.SettingsRepository
	cache    *settings.Cache
	bus      InvalidationPublisher
	logger   *slog.Logger
	validate *validator.Validate
}

// NewSettingsHandler creates the settings admin handler. bus may be nil when
// the invalidation bus is not configured; the TTL then bounds staleness.
func NewSettingsHandler(repo domain.SettingsRepository, cache *settings.Cache, bus InvalidationPublisher, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		logger:   logger.With("component", "settings-handler"),
		validate: validator.New(),
	}
}

// RegisterRoutes registers settings routes on the mux.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /settings/{key}", h.handlePut)
}

var knownKeys = map[string]bool{
	postgres.KeyTickSeconds:          true,
	postgres.KeySLASeconds:           true,
	postgres.KeyRounds:               true,
	postgres.KeyTopLogN:              true,
	postgres.KeyEscalateToAdminAfter: true,
	postgres.KeyMaxActiveOrders:      true,
}

func (h *SettingsHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !knownKeys[key] {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown setting key"})
		return
	}

	var req PutSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := h.repo.Put(r.Context(), key, req.Value); err != nil {
		h.logger.Error("settings write failed", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	h.cache.Invalidate()
	if h.bus != nil {
		if err := h.bus.Publish(r.Context()); err != nil {
			// Other replicas fall back to the TTL.
			h.logger.Error("invalidation publish failed", "key", key, "error", err)
		}
	}

	h.logger.Info("setting updated", "key", key, "value", req.Value)
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
