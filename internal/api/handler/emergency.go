package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/internal/api/response"
	"github.com/trafficlens/trafficlens/internal/emergency"
	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// maxDevFrameBytes bounds synthetic frame bodies on the dev endpoints.
const maxDevFrameBytes = 1 << 20

// EmergencyHandler serves the emergency feed: tracked vehicles,
// dispatched routes, route requests and the synthetic dev injectors.
type EmergencyHandler struct {
	feed *emergency.FeedClient
}

// NewEmergencyHandler creates a new EmergencyHandler.
func NewEmergencyHandler(feed *emergency.FeedClient) *EmergencyHandler {
	return &EmergencyHandler{feed: feed}
}

// ListVehicles handles GET /v1/emergency/vehicles.
func (h *EmergencyHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := h.feed.Vehicles()
	items := make([]models.EmergencyVehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		items = append(items, models.EmergencyVehicleResponse{
			VehicleID:   v.VehicleID,
			Position:    toPoint(v.Position),
			Heading:     v.Heading,
			Speed:       v.Speed,
			VehicleType: v.VehicleType,
			State:       v.State,
			RouteID:     v.RouteID,
			LastUpdate:  models.Timestamp(v.LastUpdate),
		})
	}
	response.JSON(w, r, http.StatusOK, models.EmergencyVehicleListResponse{Items: items})
}

// ListRoutes handles GET /v1/emergency/routes.
func (h *EmergencyHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.feed.Routes()
	items := make([]models.EmergencyRouteResponse, 0, len(routes))
	for _, rt := range routes {
		items = append(items, models.EmergencyRouteResponse{
			RouteID:      rt.RouteID,
			Coords:       toPoints(rt.Coords),
			Polyline:     geometry.EncodePolyline(rt.Coords),
			LengthMeters: geometry.Length(rt.Coords),
			Origin:       rt.Origin,
			Destination:  rt.Destination,
			ETA:          rt.ETA,
			VehicleID:    rt.VehicleID,
			LastUpdate:   models.Timestamp(rt.LastUpdate),
		})
	}
	response.JSON(w, r, http.StatusOK, models.EmergencyRouteListResponse{Items: items})
}

// RequestRoute handles POST /v1/emergency/routes/request - ask the feed
// for a vehicle's route geometry. Cached routes answer without touching
// the feed.
func (h *EmergencyHandler) RequestRoute(w http.ResponseWriter, r *http.Request) {
	var body models.RouteRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	if body.VehicleID == "" {
		response.BadRequest(w, r, "vehicleId is required", []models.FieldError{
			{Field: "vehicleId", Message: "required"},
		})
		return
	}

	_, cached := h.feed.Route(body.RouteID)
	if err := h.feed.RequestRoute(r.Context(), body.VehicleID, body.RouteID); err != nil {
		response.ServiceUnavailable(w, r, "emergency feed unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.RouteRequestResponse{
		Requested: !cached,
		Cached:    cached,
	})
}

// InjectVehicles handles POST /v1/emergency/dev/vehicles - feed a
// synthetic vehicle frame through the real dispatch path. Admin only.
func (h *EmergencyHandler) InjectVehicles(w http.ResponseWriter, r *http.Request) {
	raw, ok := readDevFrame(w, r)
	if !ok {
		return
	}
	h.feed.DevEmitVehicles(raw)
	response.NoContent(w, r)
}

// InjectRoutes handles POST /v1/emergency/dev/routes - feed a synthetic
// route frame through the real dispatch path. Admin only.
func (h *EmergencyHandler) InjectRoutes(w http.ResponseWriter, r *http.Request) {
	raw, ok := readDevFrame(w, r)
	if !ok {
		return
	}
	h.feed.DevEmitRoutes(raw)
	response.NoContent(w, r)
}

func readDevFrame(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxDevFrameBytes))
	if err != nil || len(raw) == 0 {
		response.BadRequest(w, r, "frame body required", nil)
		return nil, false
	}
	if !json.Valid(raw) {
		response.BadRequest(w, r, "frame body must be JSON", nil)
		return nil, false
	}
	return raw, true
}
