// Package emergency implements the emergency-vehicle feed: a dedicated
// telemetry channel for emergency vehicles and their assigned routes,
// with an optional snapshot bootstrap and cache-first route requests.
package emergency

import (
	"time"

	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// VehicleRecord is one live emergency vehicle. Records are refreshed on
// every frame carrying the id and never explicitly deleted; consumers
// infer staleness from LastUpdate.
type VehicleRecord struct {
	VehicleID   string         `json:"vehicleId"`
	Position    geometry.Point `json:"position"`
	Heading     float64        `json:"heading"`
	Speed       float64        `json:"speed"`
	VehicleType string         `json:"vehicleType,omitempty"`
	State       string         `json:"emergencyState,omitempty"`
	RouteID     string         `json:"routeId,omitempty"`
	LastUpdate  time.Time      `json:"lastUpdate"`
}

// RouteRecord is one assigned emergency route, cached by id. A cached
// route is never re-fetched for the same id.
type RouteRecord struct {
	RouteID     string           `json:"routeId"`
	Coords      []geometry.Point `json:"coords"`
	Origin      string           `json:"origin,omitempty"`
	Destination string           `json:"destination,omitempty"`
	ETA         float64          `json:"eta,omitempty"`
	VehicleID   string           `json:"assignedVehicleId,omitempty"`
	LastUpdate  time.Time        `json:"lastUpdate"`
}

// Snapshot is the one-shot bootstrap payload: the same record shapes the
// stream pushes, fetched once before streaming begins.
type Snapshot struct {
	Vehicles []VehicleRecord `json:"vehicles"`
	Routes   []RouteRecord   `json:"routes"`
}
