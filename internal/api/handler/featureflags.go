package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/internal/api/response"
	"github.com/trafficlens/trafficlens/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag admin endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service}
}

// ListFeatureFlags handles GET /v1/admin/flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.GetAllFlags(r.Context())

	items := make([]models.FlagResponse, 0, len(flags))
	for _, flag := range flags {
		item := models.FlagResponse{
			Key:   flag.Key,
			Value: flag.Value,
		}
		if !flag.UpdatedAt.IsZero() {
			ts := models.Timestamp(flag.UpdatedAt)
			item.UpdatedAt = &ts
		}
		items = append(items, item)
	}
	response.JSON(w, r, http.StatusOK, models.FlagListResponse{Items: items})
}

// UpsertFeatureFlag handles PUT /v1/admin/flags/{key} - set one flag.
func (h *FeatureFlagsHandler) UpsertFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		response.BadRequest(w, r, "flag key is required", nil)
		return
	}

	var body models.UpdateFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	flag := &featureflags.Flag{Key: key, Value: body.Value}
	if err := h.service.SetFlag(r.Context(), flag); err != nil {
		response.InternalError(w, r, "saving feature flag")
		return
	}
	response.JSON(w, r, http.StatusOK, models.FlagResponse{Key: key, Value: body.Value})
}

// InvalidateCache handles POST /v1/admin/flags/invalidate - drop the
// in-memory flag cache so the next read hits the repository.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
