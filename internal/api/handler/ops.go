// Package handler provides HTTP handlers for the TrafficLens API.
package handler

import (
	"net/http"
	"time"

	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/internal/api/response"
	"github.com/trafficlens/trafficlens/internal/ingest"
	"github.com/trafficlens/trafficlens/internal/resilience"
	"github.com/trafficlens/trafficlens/internal/stream"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	pipeline  *ingest.Service
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. Registry may be nil when no
// resilient clients are in play (replay mode).
func NewOpsHandler(version, buildTime string, pipeline *ingest.Service, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		pipeline:  pipeline,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Ready
// means a network model has been loaded; telemetry may still be down.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil || h.pipeline.Model() == nil {
		response.ServiceUnavailable(w, r, "network model not loaded")
		return
	}
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())

	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       now,
		Subsystems: h.subsystems(),
		Upstreams:  h.upstreams(),
	}

	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
			break
		}
	}
	for _, u := range status.Upstreams {
		if u.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusDegraded
			break
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems() []models.SubsystemStatus {
	subsystems := make([]models.SubsystemStatus, 0, 2)

	modelStatus := models.HealthStatusOK
	if h.pipeline == nil || h.pipeline.Model() == nil {
		modelStatus = models.HealthStatusFail
	}
	subsystems = append(subsystems, models.SubsystemStatus{
		Name:   "network-model",
		Status: modelStatus,
	})

	channelStatus := models.HealthStatusOK
	var detail *string
	if h.pipeline == nil || h.pipeline.ChannelState() != stream.StateConnected {
		channelStatus = models.HealthStatusDegraded
		d := "telemetry channel disconnected"
		detail = &d
	}
	subsystems = append(subsystems, models.SubsystemStatus{
		Name:   "telemetry-channel",
		Status: channelStatus,
		Detail: detail,
	})

	return subsystems
}

func (h *OpsHandler) upstreams() []models.UpstreamStatus {
	if h.registry == nil {
		return []models.UpstreamStatus{}
	}

	all := h.registry.AllHealth()
	upstreams := make([]models.UpstreamStatus, 0, len(all))
	for _, uh := range all {
		status := models.HealthStatusOK
		switch {
		case uh.IsUnhealthy():
			status = models.HealthStatusFail
		case uh.IsDegraded():
			status = models.HealthStatusDegraded
		}

		u := models.UpstreamStatus{
			Upstream: uh.Name,
			Status:   status,
		}
		if uh.LastSuccessAt != nil {
			ts := models.Timestamp(*uh.LastSuccessAt)
			u.LastSuccessAt = &ts
		}
		if uh.LastFailureAt != nil {
			ts := models.Timestamp(*uh.LastFailureAt)
			u.LastFailureAt = &ts
		}
		if uh.LastError != "" {
			msg := uh.LastError
			u.Message = &msg
		}
		upstreams = append(upstreams, u)
	}
	return upstreams
}
