// Package congestion maps live vehicle telemetry onto edges and buckets
// each edge into a discrete congestion level. Two policies coexist:
// count-based (per-edge vehicle occupancy) and ratio-based (average speed
// against the edge's free-flow speed). Callers pick one policy and never
// mix outputs from both in the same render pass.
package congestion

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/trafficlens/trafficlens/internal/network"
)

// Level is a discrete congestion severity bucket.
type Level string

// Count-based levels. LevelDefault marks an open road with zero vehicles,
// kept distinct from LevelLight so the two can render differently later.
const (
	LevelDefault  Level = "default"
	LevelLight    Level = "light"
	LevelModerate Level = "moderate"
	LevelHeavy    Level = "heavy"
)

// Ratio-based levels.
const (
	LevelGreen  Level = "green"
	LevelOrange Level = "orange"
	LevelRed    Level = "red"
)

// DefaultMinInterval is the minimum time between classification runs.
// Frames arriving faster than this are silently skipped to bound CPU
// cost under high-frequency telemetry.
const DefaultMinInterval = 500 * time.Millisecond

// VehicleSample is one vehicle's telemetry contribution to classification.
// EdgeID takes precedence when set; otherwise the edge is resolved by
// stripping the lane-index suffix from LaneID.
type VehicleSample struct {
	EdgeID string
	LaneID string
	Speed  float64
}

// edgeOf resolves the sample's edge id, or "" when it has no reference.
func (s VehicleSample) edgeOf() string {
	if s.EdgeID != "" {
		return s.EdgeID
	}
	if s.LaneID != "" {
		return network.EdgeIDForLane(s.LaneID)
	}
	return ""
}

// CountThresholds are the count-policy bucket boundaries, inclusive.
// These defaults are a compatibility contract; deployments may tune them
// but the zero value of Config preserves them.
type CountThresholds struct {
	Light    int // counts >= Light and < Moderate
	Moderate int
	Heavy    int
}

// DefaultCountThresholds returns the standard bucket boundaries.
func DefaultCountThresholds() CountThresholds {
	return CountThresholds{Light: 1, Moderate: 3, Heavy: 6}
}

// Ratio-policy boundaries: ratio >= green is free flow, >= orange is
// slowed, below orange is congested.
const (
	ratioGreen  = 0.7
	ratioOrange = 0.4
)

// Config holds classifier configuration.
type Config struct {
	// Thresholds for the count policy. Zero value uses the defaults.
	Thresholds CountThresholds

	// MinInterval throttles recomputation. Zero uses DefaultMinInterval;
	// negative disables throttling (useful in tests).
	MinInterval time.Duration

	Logger zerolog.Logger

	// now is overridable for tests.
	now func() time.Time
}

// Classifier recomputes congestion in full on every accepted telemetry
// frame. Classification reflects only the latest frame's snapshot; there
// is no incremental decay or rolling average.
type Classifier struct {
	cfg Config

	mu      sync.Mutex
	lastRun time.Time
	skips   uint64
}

// New creates a classifier.
func New(cfg Config) *Classifier {
	if cfg.Thresholds == (CountThresholds{}) {
		cfg.Thresholds = DefaultCountThresholds()
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Classifier{cfg: cfg}
}

// ClassifyByCount buckets every edge by its vehicle count. Edges with no
// samples classify as LevelDefault. Returns ok=false when the run was
// throttled away; the caller keeps its previous classification and drops
// this frame's contribution.
func (c *Classifier) ClassifyByCount(edges []network.Edge, samples []VehicleSample) (map[string]Level, bool) {
	if !c.admit() {
		return nil, false
	}

	counts := make(map[string]int, len(edges))
	for _, s := range samples {
		if id := s.edgeOf(); id != "" {
			counts[id]++
		}
	}

	t := c.cfg.Thresholds
	levels := make(map[string]Level, len(edges))
	for _, edge := range edges {
		n := counts[edge.ID]
		switch {
		case n >= t.Heavy:
			levels[edge.ID] = LevelHeavy
		case n >= t.Moderate:
			levels[edge.ID] = LevelModerate
		case n >= t.Light:
			levels[edge.ID] = LevelLight
		default:
			levels[edge.ID] = LevelDefault
		}
	}
	return levels, true
}

// ClassifyByRatio buckets edges by the ratio of their mean sampled speed
// to their free-flow speed. Edges with no samples are omitted; there is
// no default bucket in this policy. Returns ok=false when throttled.
func (c *Classifier) ClassifyByRatio(edges []network.Edge, samples []VehicleSample) (map[string]Level, bool) {
	if !c.admit() {
		return nil, false
	}

	speeds := make(map[string][]float64)
	for _, s := range samples {
		if id := s.edgeOf(); id != "" {
			speeds[id] = append(speeds[id], s.Speed)
		}
	}

	levels := make(map[string]Level, len(speeds))
	for _, edge := range edges {
		sampled, ok := speeds[edge.ID]
		if !ok {
			continue
		}

		limit := edge.SpeedLimit
		if limit < 0.1 {
			limit = 0.1
		}
		ratio := stat.Mean(sampled, nil) / limit
		if ratio < 0 {
			ratio = 0
		} else if ratio > 1 {
			ratio = 1
		}

		switch {
		case ratio >= ratioGreen:
			levels[edge.ID] = LevelGreen
		case ratio >= ratioOrange:
			levels[edge.ID] = LevelOrange
		default:
			levels[edge.ID] = LevelRed
		}
	}
	return levels, true
}

// Skips returns how many classification runs were throttled away.
func (c *Classifier) Skips() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skips
}

// admit applies the recomputation throttle.
func (c *Classifier) admit() bool {
	if c.cfg.MinInterval < 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.now()
	if !c.lastRun.IsZero() && now.Sub(c.lastRun) < c.cfg.MinInterval {
		c.skips++
		return false
	}
	c.lastRun = now
	return true
}
