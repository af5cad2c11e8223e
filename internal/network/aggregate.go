package network

import "github.com/trafficlens/trafficlens/pkg/geometry"

// FallbackSpeedLimit is the free-flow speed assumed for edges whose lanes
// report no speed, in m/s. Roughly 50 km/h, an urban default.
const FallbackSpeedLimit = 13.89

// Edge is the aggregate of all lanes sharing a derived edge id,
// represented by one polyline for rendering and classification.
type Edge struct {
	ID         string           `json:"id"`
	Points     []geometry.Point `json:"points"`
	SpeedLimit float64          `json:"speedLimit"`
}

// AggregateEdges collapses lanes into per-edge representative geometry.
// Lanes are grouped by edge id (derived from the lane id when the lane
// carries none); within each group the lane with the most points is kept
// as representative, first encountered winning ties. The edge speed limit
// is the maximum observed in the group, or FallbackSpeedLimit when no
// lane reports one. Internal lanes are skipped entirely, and groups whose
// representative has fewer than two points are dropped.
//
// Pure function: safe to call on every network reload and on every live
// geometry frame.
func AggregateEdges(lanes []Lane) []Edge {
	type group struct {
		rep   *Lane
		speed float64
	}

	groups := make(map[string]*group)
	order := make([]string, 0, len(lanes))

	for i := range lanes {
		lane := &lanes[i]
		if lane.IsInternal {
			continue
		}

		edgeID := lane.EdgeID
		if edgeID == "" {
			edgeID = EdgeIDForLane(lane.ID)
		}

		g, ok := groups[edgeID]
		if !ok {
			g = &group{}
			groups[edgeID] = g
			order = append(order, edgeID)
		}
		if g.rep == nil || len(lane.Points) > len(g.rep.Points) {
			g.rep = lane
		}
		if lane.SpeedLimit > g.speed {
			g.speed = lane.SpeedLimit
		}
	}

	edges := make([]Edge, 0, len(order))
	for _, id := range order {
		g := groups[id]
		if len(g.rep.Points) < 2 {
			// A degenerate edge cannot be rendered or classified.
			continue
		}
		speed := g.speed
		if speed <= 0 {
			speed = FallbackSpeedLimit
		}
		edges = append(edges, Edge{
			ID:         id,
			Points:     g.rep.Points,
			SpeedLimit: speed,
		})
	}
	return edges
}

// InternalLanes returns the junction-interior connector lanes, surfaced
// separately so they can be rendered underneath through-edges without
// corrupting edge aggregation.
func InternalLanes(lanes []Lane) []Lane {
	out := make([]Lane, 0)
	for i := range lanes {
		if lanes[i].IsInternal && len(lanes[i].Points) >= 2 {
			out = append(out, lanes[i])
		}
	}
	return out
}
