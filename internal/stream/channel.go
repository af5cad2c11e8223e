package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/internal/network"
	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// State is the channel's connectivity state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// DefaultNotifyInterval throttles downstream update notifications.
const DefaultNotifyInterval = 200 * time.Millisecond

// HandlerFunc receives one decoded frame. Handlers registered for a kind
// fire in registration order, in arrival order of frames.
type HandlerFunc func(*Frame)

// Vehicle is a normalized live vehicle record. Each frame overwrites the
// previous record for the same id; the channel retains no history.
type Vehicle struct {
	ID        string         `json:"id"`
	Position  geometry.Point `json:"position"`
	Heading   float64        `json:"heading"`
	Speed     float64        `json:"speed"`
	Type      string         `json:"type,omitempty"`
	EdgeID    string         `json:"edgeId,omitempty"`
	LaneID    string         `json:"laneId,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SignalState is a normalized live signal record. Position is nil when
// the producer sent none; the record is kept regardless so it can render
// once the static network supplies a position.
type SignalState struct {
	ID        string          `json:"id"`
	State     string          `json:"state"`
	Program   string          `json:"program,omitempty"`
	Phase     *int            `json:"phase,omitempty"`
	Position  *geometry.Point `json:"position,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Config holds channel configuration.
type Config struct {
	Transport Transport

	// Streams names the logical streams to subscribe to. Empty means the
	// producer's implicit default subscription.
	Streams []string

	// OnUpdate, when set, is called after frames mutate channel state,
	// throttled to at most one call per NotifyInterval.
	OnUpdate func()

	// NotifyInterval throttles OnUpdate. Zero uses the default; negative
	// disables throttling.
	NotifyInterval time.Duration

	Logger zerolog.Logger

	// now is overridable for tests.
	now func() time.Time
}

// Channel is a duplex real-time telemetry client. It interprets frames
// once connected: net frames replace the live lane set, vehicle frames
// upsert normalized vehicle records, signal frames upsert signal states.
// Disconnection keeps all previously-known state intact.
type Channel struct {
	cfg      Config
	clientID string

	mu            sync.RWMutex
	state         State
	closed        bool
	handlers      map[string][]handlerEntry
	nextHandlerID int
	liveLanes     []network.Lane
	vehicles      map[string]Vehicle
	signals       map[string]SignalState
	lastNotify    time.Time
}

type handlerEntry struct {
	id int
	fn HandlerFunc
}

type subscribeRequest struct {
	Type     string   `json:"type"`
	ClientID string   `json:"clientId"`
	Streams  []string `json:"streams,omitempty"`
}

// NewChannel creates a telemetry channel over the given transport.
func NewChannel(cfg Config) *Channel {
	if cfg.NotifyInterval == 0 {
		cfg.NotifyInterval = DefaultNotifyInterval
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Channel{
		cfg:      cfg,
		clientID: uuid.New().String(),
		state:    StateDisconnected,
		handlers: make(map[string][]handlerEntry),
		vehicles: make(map[string]Vehicle),
		signals:  make(map[string]SignalState),
	}
}

// State returns the current connectivity state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// On registers a handler for a frame kind and returns its unregister
// function. Unregistering is idempotent.
func (c *Channel) On(kind string, fn HandlerFunc) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextHandlerID++
	id := c.nextHandlerID
	c.handlers[kind] = append(c.handlers[kind], handlerEntry{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[kind]
		for i, e := range entries {
			if e.id == id {
				c.handlers[kind] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Connect establishes the transport, sends the subscribe request and
// starts the read loop. Connectivity failures are surfaced as an error
// here and as the disconnected state afterwards, never per frame.
func (c *Channel) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	if err := c.cfg.Transport.Connect(ctx); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("channel connect: %w", err)
	}

	sub, err := json.Marshal(subscribeRequest{
		Type:     "subscribe",
		ClientID: c.clientID,
		Streams:  c.cfg.Streams,
	})
	if err == nil {
		err = c.cfg.Transport.Send(ctx, sub)
	}
	if err != nil {
		_ = c.cfg.Transport.Close()
		c.setState(StateDisconnected)
		return fmt.Errorf("channel subscribe: %w", err)
	}

	c.setState(StateConnected)
	c.cfg.Logger.Info().
		Str("client_id", c.clientID).
		Strs("streams", c.cfg.Streams).
		Msg("telemetry channel connected")

	go c.readLoop()
	return nil
}

// readLoop drains the transport in arrival order. When the transport's
// frame channel closes the state flips to disconnected; stored lanes,
// vehicles and signals remain queryable unchanged.
func (c *Channel) readLoop() {
	for raw := range c.cfg.Transport.Frames() {
		c.Inject(raw)
	}
	c.setState(StateDisconnected)
	c.cfg.Logger.Warn().Msg("telemetry channel disconnected")
}

// Inject feeds one raw frame through the normal dispatch path. Synthetic
// frames and transport frames share this code on purpose: anything bypassing
// normalization here would make injected test traffic meaningless.
func (c *Channel) Inject(raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		c.cfg.Logger.Debug().Err(err).Msg("dropping undecodable frame")
		return
	}
	c.Dispatch(frame)
}

// Dispatch applies one decoded frame and fans it out to registered
// handlers. Frames are processed strictly in call order; a later frame
// for the same id overwrites an earlier one even if its timestamp is
// older, since producer clocks are not assumed synchronized.
func (c *Channel) Dispatch(frame *Frame) {
	switch frame.Type {
	case KindNet:
		c.applyNet(frame)
	case KindVehicle:
		c.applyVehicles(frame)
		c.applySignals(frame.TLS, frame.TS)
	case KindSignal:
		c.applySignals(frame.TLS, frame.TS)
	}

	// Snapshot handlers under the lock, invoke outside it so a handler
	// may re-enter the channel (e.g. issue a route request) without
	// deadlocking.
	c.mu.RLock()
	entries := append([]handlerEntry(nil), c.handlers[frame.Type]...)
	c.mu.RUnlock()

	for _, e := range entries {
		e.fn(frame)
	}

	c.maybeNotify()
}

// Send transmits a raw payload upstream.
func (c *Channel) Send(ctx context.Context, payload []byte) error {
	return c.cfg.Transport.Send(ctx, payload)
}

// Close tears the channel down: every registered handler is unregistered
// and the transport released before returning. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	c.handlers = make(map[string][]handlerEntry)
	c.mu.Unlock()

	return c.cfg.Transport.Close()
}

// LiveLanes returns the current live lane set, which supersedes the
// static document's lanes whenever non-empty. Callers must not mutate
// the returned slice.
func (c *Channel) LiveLanes() []network.Lane {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liveLanes
}

// Vehicles returns a snapshot of the current vehicle records.
func (c *Channel) Vehicles() map[string]Vehicle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Vehicle, len(c.vehicles))
	for id, v := range c.vehicles {
		out[id] = v
	}
	return out
}

// Signals returns a snapshot of the current signal states.
func (c *Channel) Signals() map[string]SignalState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]SignalState, len(c.signals))
	for id, s := range c.signals {
		out[id] = s
	}
	return out
}

func (c *Channel) applyNet(frame *Frame) {
	lanes := make([]network.Lane, 0, len(frame.Lanes))
	for _, wire := range frame.Lanes {
		points := convertXYPoints(wire.Points)
		if len(points) < 2 {
			continue
		}
		speed := wire.Speed
		if !finite(speed) || speed < 0 {
			speed = 0
		}
		lanes = append(lanes, network.Lane{
			ID:         wire.ID,
			EdgeID:     network.EdgeIDForLane(wire.ID),
			Points:     points,
			SpeedLimit: speed,
		})
	}

	// Live geometry replaces the static set wholesale; it never merges at
	// the point level. An empty frame leaves the previous set in place.
	if len(lanes) == 0 {
		return
	}

	c.mu.Lock()
	c.liveLanes = lanes
	c.mu.Unlock()

	c.cfg.Logger.Debug().Int("lanes", len(lanes)).Msg("live lane set replaced")
}

func (c *Channel) applyVehicles(frame *Frame) {
	now := c.cfg.now()
	accepted := 0
	dropped := 0

	c.mu.Lock()
	for _, wire := range frame.Vehicles {
		if wire.ID == "" {
			dropped++
			continue
		}
		pos, ok := wire.Position()
		if !ok {
			dropped++
			continue
		}
		c.vehicles[wire.ID] = Vehicle{
			ID:        wire.ID,
			Position:  pos,
			Heading:   wire.Angle,
			Speed:     wire.Speed,
			Type:      wire.Type,
			EdgeID:    wire.Edge,
			LaneID:    wire.Lane,
			UpdatedAt: now,
		}
		accepted++
	}
	c.mu.Unlock()

	if dropped > 0 {
		c.cfg.Logger.Debug().
			Int("accepted", accepted).
			Int("dropped", dropped).
			Msg("vehicle frame had malformed records")
	}
}

func (c *Channel) applySignals(signals []SignalWire, _ int64) {
	if len(signals) == 0 {
		return
	}
	now := c.cfg.now()

	c.mu.Lock()
	for _, wire := range signals {
		if wire.ID == "" {
			continue
		}
		var pos *geometry.Point
		if wire.Lat != nil && wire.Lon != nil {
			p := geometry.Point{Lat: *wire.Lat, Lng: *wire.Lon}
			if p.Valid() {
				pos = &p
			}
		}
		c.signals[wire.ID] = SignalState{
			ID:        wire.ID,
			State:     wire.State,
			Program:   wire.Program,
			Phase:     wire.Phase,
			Position:  pos,
			UpdatedAt: now,
		}
	}
	c.mu.Unlock()
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// maybeNotify fires the downstream update callback, throttled so bursts
// of telemetry do not translate into bursts of repaint work.
func (c *Channel) maybeNotify() {
	if c.cfg.OnUpdate == nil {
		return
	}

	c.mu.Lock()
	now := c.cfg.now()
	if c.cfg.NotifyInterval > 0 && !c.lastNotify.IsZero() && now.Sub(c.lastNotify) < c.cfg.NotifyInterval {
		c.mu.Unlock()
		return
	}
	c.lastNotify = now
	c.mu.Unlock()

	c.cfg.OnUpdate()
}
