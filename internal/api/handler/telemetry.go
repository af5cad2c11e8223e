package handler

import (
	"net/http"

	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/internal/api/response"
	"github.com/trafficlens/trafficlens/internal/ingest"
)

// TelemetryHandler serves the live state: vehicles, signal phases and
// congestion classification.
type TelemetryHandler struct {
	pipeline *ingest.Service
}

// NewTelemetryHandler creates a new TelemetryHandler.
func NewTelemetryHandler(pipeline *ingest.Service) *TelemetryHandler {
	return &TelemetryHandler{pipeline: pipeline}
}

// ListVehicles handles GET /v1/telemetry/vehicles - live vehicle snapshot.
func (h *TelemetryHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := h.pipeline.Vehicles()
	items := make([]models.VehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		items = append(items, models.VehicleResponse{
			ID:        v.ID,
			Position:  toPoint(v.Position),
			Heading:   v.Heading,
			Speed:     v.Speed,
			Type:      v.Type,
			EdgeID:    v.EdgeID,
			LaneID:    v.LaneID,
			UpdatedAt: models.Timestamp(v.UpdatedAt),
		})
	}
	response.JSON(w, r, http.StatusOK, models.VehicleListResponse{
		Items: items,
		State: string(h.pipeline.ChannelState()),
	})
}

// ListSignals handles GET /v1/telemetry/signals - live signal phases.
func (h *TelemetryHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	signals := h.pipeline.Signals()
	items := make([]models.SignalStateResponse, 0, len(signals))
	for _, s := range signals {
		item := models.SignalStateResponse{
			ID:        s.ID,
			State:     s.State,
			Program:   s.Program,
			Phase:     s.Phase,
			UpdatedAt: models.Timestamp(s.UpdatedAt),
		}
		if s.Position != nil {
			p := toPoint(*s.Position)
			item.Position = &p
		}
		items = append(items, item)
	}
	response.JSON(w, r, http.StatusOK, models.SignalStateListResponse{
		Items: items,
		State: string(h.pipeline.ChannelState()),
	})
}

// GetCongestion handles GET /v1/telemetry/congestion - the latest
// classification under the flag-selected policy. A throttled run returns
// Throttled=true with no levels rather than an error.
func (h *TelemetryHandler) GetCongestion(w http.ResponseWriter, r *http.Request) {
	levels, policy, ran := h.pipeline.Classify(r.Context())

	resp := models.CongestionResponse{
		Policy:    policy,
		Levels:    map[string]string{},
		Throttled: !ran,
	}
	for edgeID, level := range levels {
		resp.Levels[edgeID] = string(level)
	}
	response.JSON(w, r, http.StatusOK, resp)
}
