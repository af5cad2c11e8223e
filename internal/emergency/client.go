package emergency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/featureflags"
	"github.com/trafficlens/trafficlens/internal/stream"
	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// Streams the feed subscribes to.
var feedStreams = []string{"emergency"}

// FeedConfig holds configuration for the emergency feed client.
type FeedConfig struct {
	Transport stream.Transport

	// Snapshots, when set together with an enabled bootstrap flag, seeds
	// the vehicle and route maps before streaming begins.
	Snapshots *SnapshotClient
	Flags     *featureflags.Service

	Logger zerolog.Logger

	now func() time.Time
}

// FeedClient is the emergency-vehicle channel. It runs separately from
// the main telemetry channel: emergency vehicles and routes have their
// own subscription, lifecycle and caching contract.
type FeedClient struct {
	cfg     FeedConfig
	channel *stream.Channel

	mu         sync.RWMutex
	vehicles   map[string]VehicleRecord
	routes     map[string]RouteRecord
	requested  map[string]bool
	unregister []func()
}

type routeRequest struct {
	Type      string `json:"type"`
	VehicleID string `json:"vehicleId"`
	RouteID   string `json:"routeId"`
}

// NewFeedClient creates an emergency feed client over the given
// transport.
func NewFeedClient(cfg FeedConfig) *FeedClient {
	if cfg.now == nil {
		cfg.now = time.Now
	}
	c := &FeedClient{
		cfg:       cfg,
		vehicles:  make(map[string]VehicleRecord),
		routes:    make(map[string]RouteRecord),
		requested: make(map[string]bool),
	}
	c.channel = stream.NewChannel(stream.Config{
		Transport: cfg.Transport,
		Streams:   feedStreams,
		Logger:    cfg.Logger,
	})
	return c
}

// Connect optionally bootstraps from a snapshot, registers the frame
// handlers and starts streaming. A snapshot failure degrades to an empty
// start; the stream is the source of truth either way.
func (c *FeedClient) Connect(ctx context.Context) error {
	if c.snapshotEnabled(ctx) {
		snap, err := c.cfg.Snapshots.Fetch(ctx)
		if err != nil {
			c.cfg.Logger.Warn().Err(err).Msg("emergency snapshot bootstrap failed, starting empty")
		} else {
			c.seed(snap)
		}
	}

	c.mu.Lock()
	c.unregister = append(c.unregister,
		c.channel.On(stream.KindEmergencyVehicles, c.onVehicleFrame),
		c.channel.On(stream.KindEmergencyRoutes, c.onRouteFrame),
	)
	c.mu.Unlock()

	if err := c.channel.Connect(ctx); err != nil {
		c.Disconnect()
		return fmt.Errorf("emergency feed connect: %w", err)
	}
	return nil
}

func (c *FeedClient) snapshotEnabled(ctx context.Context) bool {
	if c.cfg.Snapshots == nil || c.cfg.Flags == nil {
		return false
	}
	return c.cfg.Flags.GetFlag(ctx, featureflags.FlagEmergencySnapshotBootstrap).BoolValue(false)
}

func (c *FeedClient) seed(snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range snap.Vehicles {
		if v.VehicleID == "" {
			continue
		}
		c.vehicles[v.VehicleID] = v
	}
	for _, r := range snap.Routes {
		if r.RouteID == "" {
			continue
		}
		c.routes[r.RouteID] = r
	}
	c.cfg.Logger.Info().
		Int("vehicles", len(c.vehicles)).
		Int("routes", len(c.routes)).
		Msg("emergency state seeded from snapshot")
}

// State returns the feed's connectivity state.
func (c *FeedClient) State() stream.State {
	return c.channel.State()
}

// Vehicles returns a snapshot of the live emergency vehicle records.
func (c *FeedClient) Vehicles() map[string]VehicleRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]VehicleRecord, len(c.vehicles))
	for id, v := range c.vehicles {
		out[id] = v
	}
	return out
}

// Routes returns a snapshot of the cached route records.
func (c *FeedClient) Routes() map[string]RouteRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]RouteRecord, len(c.routes))
	for id, r := range c.routes {
		out[id] = r
	}
	return out
}

// Route returns the cached route for an id, if any.
func (c *FeedClient) Route(routeID string) (RouteRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.routes[routeID]
	return r, ok
}

// RequestRoute asks the producer for a vehicle's route. Cache-first: a
// route already cached (or already requested and pending) is a no-op, so
// repeated UI asks for the same vehicle never fan out into fetch storms.
// Safe to call from inside a frame handler.
func (c *FeedClient) RequestRoute(ctx context.Context, vehicleID, routeID string) error {
	if routeID == "" {
		return nil
	}

	c.mu.Lock()
	_, cached := c.routes[routeID]
	pending := c.requested[routeID]
	if !cached && !pending {
		c.requested[routeID] = true
	}
	c.mu.Unlock()

	if cached || pending {
		return nil
	}

	payload, err := json.Marshal(routeRequest{
		Type:      "requestRoute",
		VehicleID: vehicleID,
		RouteID:   routeID,
	})
	if err != nil {
		return err
	}
	if err := c.channel.Send(ctx, payload); err != nil {
		// Allow a retry on the next ask.
		c.mu.Lock()
		delete(c.requested, routeID)
		c.mu.Unlock()
		return fmt.Errorf("route request: %w", err)
	}
	return nil
}

// DevEmitVehicles feeds a synthetic vehicle frame through the real
// dispatch path. Nothing is bypassed: tests built on this exercise the
// same normalization production frames do.
func (c *FeedClient) DevEmitVehicles(raw []byte) {
	c.channel.Inject(raw)
}

// DevEmitRoutes feeds a synthetic route frame through the real dispatch
// path.
func (c *FeedClient) DevEmitRoutes(raw []byte) {
	c.channel.Inject(raw)
}

// Disconnect unregisters every handler and releases the transport.
// Idempotent; previously stored vehicles and routes stay queryable.
func (c *FeedClient) Disconnect() {
	c.mu.Lock()
	unregister := c.unregister
	c.unregister = nil
	c.mu.Unlock()

	for _, off := range unregister {
		off()
	}
	_ = c.channel.Close()
}

func (c *FeedClient) onVehicleFrame(frame *stream.Frame) {
	now := c.cfg.now()
	accepted := 0

	c.mu.Lock()
	for _, wire := range frame.Vehicles {
		if wire.ID == "" {
			continue
		}
		pos, ok := wire.Position()
		if !ok {
			continue
		}
		rec := VehicleRecord{
			VehicleID:   wire.ID,
			Position:    pos,
			Heading:     wire.Angle,
			Speed:       wire.Speed,
			VehicleType: wire.Type,
			State:       wire.State,
			RouteID:     wire.RouteID,
			LastUpdate:  now,
		}
		// Absence of a route id in a refresh does not clear a known
		// assignment.
		if rec.RouteID == "" {
			rec.RouteID = c.vehicles[wire.ID].RouteID
		}
		c.vehicles[wire.ID] = rec
		accepted++
	}
	c.mu.Unlock()

	if dropped := len(frame.Vehicles) - accepted; dropped > 0 {
		c.cfg.Logger.Debug().
			Int("accepted", accepted).
			Int("dropped", dropped).
			Msg("emergency vehicle frame had malformed records")
	}
}

func (c *FeedClient) onRouteFrame(frame *stream.Frame) {
	now := c.cfg.now()

	c.mu.Lock()
	for _, wire := range frame.Routes {
		if wire.ID == "" {
			continue
		}
		coords := routeCoords(wire)
		if len(coords) == 0 {
			continue
		}
		c.routes[wire.ID] = RouteRecord{
			RouteID:     wire.ID,
			Coords:      coords,
			Origin:      wire.Origin,
			Destination: wire.Destination,
			ETA:         wire.ETA,
			VehicleID:   wire.VehicleID,
			LastUpdate:  now,
		}
		delete(c.requested, wire.ID)
	}
	c.mu.Unlock()
}

// routeCoords unifies a route's geometry into render order. Explicit
// points arrive in native XY; an encoded polyline is already geographic.
func routeCoords(wire stream.RouteWire) []geometry.Point {
	if len(wire.Points) > 0 {
		out := make([]geometry.Point, 0, len(wire.Points))
		for _, p := range wire.Points {
			rp := geometry.FromXY(p.X, p.Y)
			if rp.Valid() {
				out = append(out, rp)
			}
		}
		return out
	}
	if wire.Polyline != "" {
		return geometry.DecodePolyline(wire.Polyline)
	}
	return nil
}
