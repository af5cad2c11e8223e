package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/internal/api/response"
	"github.com/trafficlens/trafficlens/internal/settings"
	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// ControlSender forwards operator commands onto the telemetry channel.
type ControlSender interface {
	Send(ctx context.Context, payload []byte) error
}

// SettingsHandler serves per-operator map settings, the audit trail and
// the intersection override pass-through.
type SettingsHandler struct {
	service *settings.Service
	control ControlSender
}

// NewSettingsHandler creates a new SettingsHandler. Control may be nil
// when no telemetry channel is connected; overrides then fail with 503.
func NewSettingsHandler(service *settings.Service, control ControlSender) *SettingsHandler {
	return &SettingsHandler{service: service, control: control}
}

// GetSettings handles GET /v1/settings - the caller's map settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	operatorID := GetUserID(r.Context())
	saved, err := h.service.Get(r.Context(), operatorID)
	if err != nil {
		response.InternalError(w, r, "loading map settings")
		return
	}
	response.JSON(w, r, http.StatusOK, toSettingsResponse(saved))
}

// UpdateSettings handles PUT /v1/settings - save the caller's map view.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	operatorID := GetUserID(r.Context())

	var body models.UpdateMapSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	updated := &settings.MapSettings{
		OperatorID:        operatorID,
		Zoom:              body.Zoom,
		ShowInternalLanes: body.ShowInternalLanes,
		ShowSignals:       body.ShowSignals,
		ShowEmergency:     body.ShowEmergency,
		CongestionPolicy:  body.CongestionPolicy,
	}
	if body.Center != nil {
		updated.Center = &geometry.Point{Lat: body.Center.Lat, Lng: body.Center.Lng}
	}

	if err := h.service.Update(r.Context(), operatorID, updated); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	response.JSON(w, r, http.StatusOK, toSettingsResponse(updated))
}

// ListAudit handles GET /v1/settings/audit?limit= - recent operator
// actions, newest first.
func (h *SettingsHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			response.BadRequest(w, r, "limit must be between 1 and 500", []models.FieldError{
				{Field: "limit", Message: "must be an integer between 1 and 500"},
			})
			return
		}
		limit = parsed
	}

	entries, err := h.service.AuditTrail(r.Context(), limit)
	if err != nil {
		response.InternalError(w, r, "loading audit trail")
		return
	}

	items := make([]models.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.AuditEntryResponse{
			ID:        e.ID,
			Actor:     e.Actor,
			Action:    e.Action,
			Detail:    e.Detail,
			CreatedAt: models.Timestamp(e.CreatedAt),
		})
	}
	response.JSON(w, r, http.StatusOK, models.AuditListResponse{Items: items})
}

// OverrideIntersection handles POST /v1/settings/override - forward an
// intersection override command to the simulation and audit it. The
// command body is pass-through; the simulation validates it.
func (h *SettingsHandler) OverrideIntersection(w http.ResponseWriter, r *http.Request) {
	var command map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&command); err != nil {
		response.BadRequest(w, r, "invalid command body", nil)
		return
	}
	if h.control == nil {
		response.ServiceUnavailable(w, r, "telemetry channel not connected")
		return
	}

	payload, err := json.Marshal(command)
	if err != nil {
		response.BadRequest(w, r, "command is not serializable", nil)
		return
	}
	if err := h.control.Send(r.Context(), payload); err != nil {
		response.ServiceUnavailable(w, r, "forwarding override command")
		return
	}

	h.service.RecordOverride(r.Context(), GetUserID(r.Context()), command)
	response.NoContent(w, r)
}

func toSettingsResponse(s *settings.MapSettings) models.MapSettingsResponse {
	resp := models.MapSettingsResponse{
		OperatorID:        s.OperatorID,
		Zoom:              s.Zoom,
		ShowInternalLanes: s.ShowInternalLanes,
		ShowSignals:       s.ShowSignals,
		ShowEmergency:     s.ShowEmergency,
		CongestionPolicy:  s.CongestionPolicy,
	}
	if s.Center != nil {
		p := toPoint(*s.Center)
		resp.Center = &p
	}
	if !s.UpdatedAt.IsZero() {
		ts := models.Timestamp(s.UpdatedAt)
		resp.UpdatedAt = &ts
	}
	return resp
}
