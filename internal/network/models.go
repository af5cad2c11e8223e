// Package network parses SUMO-style road network documents into a typed
// geometric model and aggregates per-lane geometry into renderable edges.
package network

import (
	"errors"
	"strings"

	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// Sentinel errors for document parsing and retrieval.
var (
	// ErrEmptyDocument indicates the source text was empty or whitespace.
	ErrEmptyDocument = errors.New("network document is empty")
	// ErrNoGeometry indicates the document parsed but yielded no usable geometry.
	ErrNoGeometry = errors.New("network document contains no usable geometry")
	// ErrAccelerationUnavailable indicates the accelerated parser could not
	// load or run. It is always recovered locally and never surfaced to callers.
	ErrAccelerationUnavailable = errors.New("accelerated parser unavailable")
	// ErrParseTimeout indicates the offloaded parse exceeded its hard deadline.
	ErrParseTimeout = errors.New("parse timed out")
)

// ParseError indicates the document was structurally invalid or yielded
// no usable geometry after filtering. Distinct from FetchError so callers
// can tell "file unusable" from "file missing".
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse network document: " + e.Reason + ": " + e.Err.Error()
	}
	return "parse network document: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FetchError indicates document retrieval failed after the no-cache retry.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return "fetch network document: " + e.Err.Error()
	}
	return "fetch network document: unexpected status"
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Lane is a single directional traffic channel with its own polyline
// geometry, in render axis order. SpeedLimit is the lane's free-flow
// speed in the network's native unit (m/s); zero means unreported.
type Lane struct {
	ID         string           `json:"id"`
	EdgeID     string           `json:"edgeId"`
	Points     []geometry.Point `json:"points"`
	SpeedLimit float64          `json:"speedLimit,omitempty"`
	IsInternal bool             `json:"isInternal"`
}

// Junction is an intersection node with a footprint polygon.
type Junction struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Polygon []geometry.Point `json:"polygon"`
}

// JunctionPoint is the center point of a junction, kept for every junction
// so that "no polygon" is still covered by at least a point.
type JunctionPoint struct {
	ID       string         `json:"id"`
	Position geometry.Point `json:"position"`
}

// Signal is a signal-controlled junction's static position. ClusterID
// groups junctions controlled by the same traffic light program.
type Signal struct {
	ID        string         `json:"id"`
	ClusterID string         `json:"clusterId"`
	Position  geometry.Point `json:"position"`
}

// Model is the parsed network description. It is immutable once parsed
// and rebuilt wholesale on reload; callers own the returned value and
// must not mutate it.
type Model struct {
	Lanes          []Lane           `json:"lanes"`
	Bounds         *geometry.Bounds `json:"bounds,omitempty"`
	Junctions      []Junction       `json:"junctions"`
	JunctionPoints []JunctionPoint  `json:"junctionPoints"`
	Signals        []Signal         `json:"signals"`
}

// DerivedBounds returns the document bounds, or a box reduced over all
// lane points when the document did not declare one.
func (m *Model) DerivedBounds() (geometry.Bounds, bool) {
	if m.Bounds != nil {
		return *m.Bounds, true
	}
	geoms := make([][]geometry.Point, 0, len(m.Lanes))
	for i := range m.Lanes {
		geoms = append(geoms, m.Lanes[i].Points)
	}
	return geometry.BoundsFromPoints(geoms)
}

// EdgeIDForLane derives the edge id from a lane id by stripping the
// trailing _<index> suffix when present. A lane id without a numeric
// suffix is its own edge id. This is the naming convention contract with
// the network description format, not free-form data.
func EdgeIDForLane(laneID string) string {
	idx := strings.LastIndex(laneID, "_")
	if idx <= 0 {
		return laneID
	}
	suffix := laneID[idx+1:]
	if suffix == "" {
		return laneID
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return laneID
		}
	}
	return laneID[:idx]
}
