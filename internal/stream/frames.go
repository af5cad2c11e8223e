// Package stream implements the duplex real-time telemetry client: frame
// ingestion, coordinate-space unification, throttled delivery and
// reconnect-safe state. The simulation bridge pushes JSON frames tagged
// by kind; the channel normalizes them into render-space records.
package stream

import (
	"encoding/json"
	"math"

	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// Frame kinds pushed by the simulation bridge.
const (
	KindNet     = "net"
	KindVehicle = "viz"
	KindSignal  = "tls"
	// Emergency sub-feed kinds.
	KindEmergencyVehicles = "vehicleFrame"
	KindEmergencyRoutes   = "routeFrame"
)

// Frame is one timestamped telemetry push. Payload fields are populated
// per kind; a "viz" frame carries both vehicles and signal states.
type Frame struct {
	Type string `json:"type"`
	Step int64  `json:"step,omitempty"`
	TS   int64  `json:"ts,omitempty"`

	// net
	Bounds *geometry.Bounds `json:"bounds,omitempty"`
	Lanes  []NetLaneWire    `json:"lanes,omitempty"`

	// viz / tls
	Vehicles []VehicleWire `json:"vehicles,omitempty"`
	TLS      []SignalWire  `json:"tls,omitempty"`

	// emergency
	Routes []RouteWire `json:"routes,omitempty"`
}

// DecodeFrame parses a raw frame payload. Unknown kinds decode fine and
// are dropped later by dispatch.
func DecodeFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// XYPoint is a point in the simulation's native XY frame as it appears
// on the wire.
type XYPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NetLaneWire is one lane's geometry in a "net" frame, in native XY.
type NetLaneWire struct {
	ID     string    `json:"id"`
	Speed  float64   `json:"speed,omitempty"`
	Length float64   `json:"length,omitempty"`
	Points []XYPoint `json:"points"`
}

// VehicleWire is one vehicle record on the wire. Coordinates arrive as
// either a geographic pair (lat/lon, already render order) or a native
// XY pair; neither is required to be present alongside the other.
// Pointer fields distinguish absent from zero.
type VehicleWire struct {
	ID    string   `json:"id"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
	Speed float64  `json:"speed,omitempty"`
	Angle float64  `json:"angle,omitempty"`
	Type  string   `json:"type,omitempty"`
	Edge  string   `json:"edge,omitempty"`
	Lane  string   `json:"lane,omitempty"`
	// Emergency-specific fields, ignored by the base channel.
	State   string `json:"state,omitempty"`
	RouteID string `json:"routeId,omitempty"`
}

// Position normalizes the record to a single render-order point. The
// geographic pair wins when complete; otherwise the XY pair is swapped
// at this boundary. Returns false for records with no usable pair or
// non-finite components — such records are dropped, never the frame.
func (v VehicleWire) Position() (geometry.Point, bool) {
	if v.Lat != nil && v.Lon != nil {
		p := geometry.Point{Lat: *v.Lat, Lng: *v.Lon}
		if p.Valid() {
			return p, true
		}
		return geometry.Point{}, false
	}
	if v.X != nil && v.Y != nil {
		p := geometry.FromXY(*v.X, *v.Y)
		if p.Valid() {
			return p, true
		}
	}
	return geometry.Point{}, false
}

// SignalWire is one traffic signal state on the wire. A signal with
// telemetry but no known static position is still valid.
type SignalWire struct {
	ID      string   `json:"id"`
	State   string   `json:"state"`
	Program string   `json:"program,omitempty"`
	Phase   *int     `json:"phase,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// RouteWire is one emergency route on the wire, in native XY, optionally
// as an encoded polyline instead of explicit points.
type RouteWire struct {
	ID          string    `json:"id"`
	VehicleID   string    `json:"vehicleId,omitempty"`
	Points      []XYPoint `json:"points,omitempty"`
	Polyline    string    `json:"polyline,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	Destination string    `json:"destination,omitempty"`
	ETA         float64   `json:"eta,omitempty"`
}

// convertXYPoints swaps a native XY polyline into render order, dropping
// non-finite pairs per-record.
func convertXYPoints(points []XYPoint) []geometry.Point {
	out := make([]geometry.Point, 0, len(points))
	for _, p := range points {
		rp := geometry.FromXY(p.X, p.Y)
		if rp.Valid() {
			out = append(out, rp)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
