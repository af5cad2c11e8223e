// Package ingest wires the pipeline together: document fetch and parse,
// cached network models, live telemetry, congestion classification and
// batched geometry for the rendering layer.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/congestion"
	"github.com/trafficlens/trafficlens/internal/featureflags"
	"github.com/trafficlens/trafficlens/internal/netcache"
	"github.com/trafficlens/trafficlens/internal/network"
	"github.com/trafficlens/trafficlens/internal/observability"
	"github.com/trafficlens/trafficlens/internal/stream"
	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// Batch sizes per geometry class. Internal connectors are far more
// numerous at high zoom, so they ship in smaller batches; any positive
// size preserves the concatenation round-trip.
const (
	ThroughEdgeBatchSize  = 512
	InternalLaneBatchSize = 128
)

// Config holds service configuration.
type Config struct {
	DocumentURL string

	Fetcher *network.Fetcher
	Parser  network.Parser

	// Interpreted is used directly when the accelerated strategy is
	// disabled by flag.
	Interpreted network.Parser

	// Cache is optional; without it every reload fetches and parses.
	Cache *netcache.Cache

	// Channel is the live telemetry channel. Optional in replay setups
	// where frames are injected.
	Channel *stream.Channel

	Classifier *congestion.Classifier
	Flags      *featureflags.Service

	// Metrics is optional.
	Metrics *observability.PipelineMetrics

	Logger zerolog.Logger
}

// Service owns the current network model and answers geometry and
// classification queries against the effective lane set.
type Service struct {
	cfg Config

	mu       sync.RWMutex
	model    *network.Model
	loadedAt time.Time
}

// New creates the pipeline service.
func New(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// LoadNetwork makes a parsed model current: cache first, then fetch and
// parse. The model is replaced wholesale; there is no incremental merge.
func (s *Service) LoadNetwork(ctx context.Context) error {
	if s.cfg.Cache != nil {
		model, ok, err := s.cfg.Cache.Get(ctx, s.cfg.DocumentURL)
		if err != nil {
			s.cfg.Logger.Warn().Err(err).Msg("network cache read failed, falling through to fetch")
		} else if ok {
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordCacheHit(ctx)
			}
			s.setModel(model)
			s.cfg.Logger.Info().Int("lanes", len(model.Lanes)).Msg("network model served from cache")
			return nil
		}
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordCacheMiss(ctx)
	}

	fetchStart := time.Now()
	source, err := s.cfg.Fetcher.Fetch(ctx, s.cfg.DocumentURL)
	if err != nil {
		return fmt.Errorf("loading network document: %w", err)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordFetch(ctx, time.Since(fetchStart).Seconds())
	}

	parser, strategy := s.cfg.Parser, "composite"
	if s.cfg.Flags != nil && s.cfg.Interpreted != nil && s.cfg.Flags.IsAcceleratedParserDisabled(ctx) {
		parser, strategy = s.cfg.Interpreted, "interpreted"
	}

	start := time.Now()
	model, err := parser.Parse(ctx, source)
	if err != nil {
		return fmt.Errorf("parsing network document: %w", err)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordParse(ctx, strategy, time.Since(start).Seconds())
	}

	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Put(ctx, s.cfg.DocumentURL, model); err != nil {
			s.cfg.Logger.Warn().Err(err).Msg("network cache write failed")
		}
	}

	s.setModel(model)
	s.cfg.Logger.Info().
		Int("lanes", len(model.Lanes)).
		Int("signals", len(model.Signals)).
		Msg("network model loaded")
	return nil
}

// InvalidateCache drops the cached model so the next load re-fetches.
func (s *Service) InvalidateCache(ctx context.Context) error {
	if s.cfg.Cache == nil {
		return nil
	}
	return s.cfg.Cache.Invalidate(ctx, s.cfg.DocumentURL)
}

func (s *Service) setModel(model *network.Model) {
	s.mu.Lock()
	s.model = model
	s.loadedAt = time.Now()
	s.mu.Unlock()
}

// Model returns the current parsed model, or nil before the first load.
func (s *Service) Model() *network.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// LoadedAt returns when the current model became current.
func (s *Service) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// EffectiveLanes returns the lane set queries run against: the live set
// when the channel holds one and live geometry is not disabled by flag,
// else the static document's lanes.
func (s *Service) EffectiveLanes(ctx context.Context) []network.Lane {
	liveDisabled := s.cfg.Flags != nil && s.cfg.Flags.IsLiveGeometryDisabled(ctx)
	if !liveDisabled && s.cfg.Channel != nil {
		if live := s.cfg.Channel.LiveLanes(); len(live) > 0 {
			return live
		}
	}
	if model := s.Model(); model != nil {
		return model.Lanes
	}
	return nil
}

// Edges aggregates the effective lanes into renderable edges.
func (s *Service) Edges(ctx context.Context) []network.Edge {
	return network.AggregateEdges(s.EffectiveLanes(ctx))
}

// GeometryBatches chunks through-edge and internal-connector polylines
// for the renderer, optionally clipped to bounds.
func (s *Service) GeometryBatches(ctx context.Context, bounds *geometry.Bounds) ([][][]geometry.Point, [][][]geometry.Point) {
	lanes := s.EffectiveLanes(ctx)

	through := make([][]geometry.Point, 0, len(lanes))
	for _, edge := range network.AggregateEdges(lanes) {
		through = append(through, edge.Points)
	}
	internal := make([][]geometry.Point, 0)
	for _, lane := range network.InternalLanes(lanes) {
		internal = append(internal, lane.Points)
	}

	if bounds != nil {
		through = geometry.FilterToBounds(through, *bounds)
		internal = geometry.FilterToBounds(internal, *bounds)
	}

	return geometry.Batch(through, ThroughEdgeBatchSize),
		geometry.Batch(internal, InternalLaneBatchSize)
}

// Classify runs the flag-selected policy over the current vehicle
// snapshot. Returns ok=false when the classifier throttled the run.
func (s *Service) Classify(ctx context.Context) (map[string]congestion.Level, string, bool) {
	policy := featureflags.CongestionPolicyCount
	if s.cfg.Flags != nil {
		policy = s.cfg.Flags.CongestionPolicy(ctx)
	}

	edges := s.Edges(ctx)
	samples := s.vehicleSamples()

	var (
		levels map[string]congestion.Level
		ran    bool
	)
	if policy == featureflags.CongestionPolicyRatio {
		levels, ran = s.cfg.Classifier.ClassifyByRatio(edges, samples)
	} else {
		levels, ran = s.cfg.Classifier.ClassifyByCount(edges, samples)
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordClassification(ctx, policy, ran)
	}
	return levels, policy, ran
}

func (s *Service) vehicleSamples() []congestion.VehicleSample {
	if s.cfg.Channel == nil {
		return nil
	}
	vehicles := s.cfg.Channel.Vehicles()
	samples := make([]congestion.VehicleSample, 0, len(vehicles))
	for _, v := range vehicles {
		samples = append(samples, congestion.VehicleSample{
			EdgeID: v.EdgeID,
			LaneID: v.LaneID,
			Speed:  v.Speed,
		})
	}
	return samples
}

// Vehicles returns the live vehicle snapshot, empty without a channel.
func (s *Service) Vehicles() map[string]stream.Vehicle {
	if s.cfg.Channel == nil {
		return map[string]stream.Vehicle{}
	}
	return s.cfg.Channel.Vehicles()
}

// Signals returns the live signal snapshot, empty without a channel.
func (s *Service) Signals() map[string]stream.SignalState {
	if s.cfg.Channel == nil {
		return map[string]stream.SignalState{}
	}
	return s.cfg.Channel.Signals()
}

// ChannelState reports the telemetry channel's connectivity.
func (s *Service) ChannelState() stream.State {
	if s.cfg.Channel == nil {
		return stream.StateDisconnected
	}
	return s.cfg.Channel.State()
}
