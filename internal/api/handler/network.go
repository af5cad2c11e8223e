package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/internal/api/response"
	"github.com/trafficlens/trafficlens/internal/ingest"
	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// NetworkHandler serves the parsed road network: summary, aggregated
// edges, batched geometry and junction footprints.
type NetworkHandler struct {
	pipeline *ingest.Service
}

// NewNetworkHandler creates a new NetworkHandler.
func NewNetworkHandler(pipeline *ingest.Service) *NetworkHandler {
	return &NetworkHandler{pipeline: pipeline}
}

// GetNetwork handles GET /v1/network - model summary.
func (h *NetworkHandler) GetNetwork(w http.ResponseWriter, r *http.Request) {
	model := h.pipeline.Model()
	if model == nil {
		response.ServiceUnavailable(w, r, "network model not loaded")
		return
	}

	resp := models.NetworkResponse{
		LaneCount:     len(model.Lanes),
		EdgeCount:     len(h.pipeline.Edges(r.Context())),
		JunctionCount: len(model.JunctionPoints),
		SignalCount:   len(model.Signals),
	}
	if bounds, ok := model.DerivedBounds(); ok {
		box := toGeoBox(bounds)
		resp.Bounds = &box
	}
	if loadedAt := h.pipeline.LoadedAt(); !loadedAt.IsZero() {
		ts := models.Timestamp(loadedAt)
		resp.LoadedAt = &ts
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// ListEdges handles GET /v1/network/edges - aggregated through edges.
func (h *NetworkHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	if h.pipeline.Model() == nil {
		response.ServiceUnavailable(w, r, "network model not loaded")
		return
	}

	edges := h.pipeline.Edges(r.Context())
	items := make([]models.EdgeResponse, 0, len(edges))
	for _, edge := range edges {
		items = append(items, models.EdgeResponse{
			ID:         edge.ID,
			SpeedLimit: edge.SpeedLimit,
			Points:     toPoints(edge.Points),
		})
	}
	response.JSON(w, r, http.StatusOK, models.EdgeListResponse{Items: items})
}

// GetGeometry handles GET /v1/network/geometry - batched polylines,
// optionally clipped to ?minLat=&minLng=&maxLat=&maxLng=.
func (h *NetworkHandler) GetGeometry(w http.ResponseWriter, r *http.Request) {
	if h.pipeline.Model() == nil {
		response.ServiceUnavailable(w, r, "network model not loaded")
		return
	}

	bounds, fieldErrors := parseBoundsQuery(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid bounds query", fieldErrors)
		return
	}

	through, internal := h.pipeline.GeometryBatches(r.Context(), bounds)
	response.JSON(w, r, http.StatusOK, models.GeometryResponse{
		ThroughBatches:  toBatches(through),
		InternalBatches: toBatches(internal),
	})
}

// ListJunctions handles GET /v1/network/junctions - footprints and
// signal markers.
func (h *NetworkHandler) ListJunctions(w http.ResponseWriter, r *http.Request) {
	model := h.pipeline.Model()
	if model == nil {
		response.ServiceUnavailable(w, r, "network model not loaded")
		return
	}

	junctions := make([]models.JunctionResponse, 0, len(model.Junctions))
	for _, j := range model.Junctions {
		junctions = append(junctions, models.JunctionResponse{
			ID:      j.ID,
			Type:    j.Type,
			Polygon: toPoints(j.Polygon),
		})
	}
	signals := make([]models.SignalMarkerResponse, 0, len(model.Signals))
	for _, s := range model.Signals {
		signals = append(signals, models.SignalMarkerResponse{
			ID:        s.ID,
			ClusterID: s.ClusterID,
			Position:  toPoint(s.Position),
		})
	}

	response.JSON(w, r, http.StatusOK, models.JunctionListResponse{
		Junctions: junctions,
		Signals:   signals,
	})
}

// ReloadNetwork handles POST /v1/network/reload - drop the cached model
// and re-fetch the document. Operator role required.
func (h *NetworkHandler) ReloadNetwork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.pipeline.InvalidateCache(ctx); err != nil {
		response.InternalError(w, r, "invalidating network cache")
		return
	}
	if err := h.pipeline.LoadNetwork(ctx); err != nil {
		response.ServiceUnavailable(w, r, "reloading network document")
		return
	}

	model := h.pipeline.Model()
	ts := models.Timestamp(time.Now())
	response.JSON(w, r, http.StatusOK, models.NetworkResponse{
		LaneCount:   len(model.Lanes),
		EdgeCount:   len(h.pipeline.Edges(ctx)),
		SignalCount: len(model.Signals),
		LoadedAt:    &ts,
	})
}

// parseBoundsQuery reads an optional bounding box from the query string.
// All four parameters must be present together.
func parseBoundsQuery(r *http.Request) (*geometry.Bounds, []models.FieldError) {
	q := r.URL.Query()
	keys := []string{"minLat", "minLng", "maxLat", "maxLng"}

	present := 0
	for _, k := range keys {
		if q.Get(k) != "" {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}

	var fieldErrors []models.FieldError
	values := make(map[string]float64, len(keys))
	for _, k := range keys {
		raw := q.Get(k)
		if raw == "" {
			fieldErrors = append(fieldErrors, models.FieldError{Field: k, Message: "required with other bounds parameters"})
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: k, Message: "must be a number"})
			continue
		}
		values[k] = v
	}
	if len(fieldErrors) > 0 {
		return nil, fieldErrors
	}

	return &geometry.Bounds{
		MinX: values["minLng"],
		MinY: values["minLat"],
		MaxX: values["maxLng"],
		MaxY: values["maxLat"],
	}, nil
}
