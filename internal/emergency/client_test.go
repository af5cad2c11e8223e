package emergency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlens/trafficlens/internal/featureflags"
)

type fakeTransport struct {
	frames chan []byte
	sent   [][]byte
	closed int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 16)}
}

func (t *fakeTransport) Connect(context.Context) error { return nil }

func (t *fakeTransport) Send(_ context.Context, payload []byte) error {
	t.sent = append(t.sent, payload)
	return nil
}

func (t *fakeTransport) Frames() <-chan []byte { return t.frames }

func (t *fakeTransport) Close() error {
	t.closed++
	return nil
}

func newTestFeed(t *testing.T, transport *fakeTransport) *FeedClient {
	t.Helper()
	return NewFeedClient(FeedConfig{
		Transport: transport,
		Logger:    zerolog.Nop(),
	})
}

func TestFeedVehicleFrameUpserts(t *testing.T) {
	transport := newFakeTransport()
	feed := newTestFeed(t, transport)
	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Disconnect()

	feed.DevEmitVehicles([]byte(`{"type":"vehicleFrame","vehicles":[
		{"id":"amb_1","x":150,"y":75,"speed":16.7,"angle":45,"type":"ambulance","state":"responding","routeId":"r1"}
	]}`))

	vehicles := feed.Vehicles()
	require.Contains(t, vehicles, "amb_1")
	v := vehicles["amb_1"]
	assert.Equal(t, 75.0, v.Position.Lat)
	assert.Equal(t, 150.0, v.Position.Lng)
	assert.Equal(t, "responding", v.State)
	assert.Equal(t, "r1", v.RouteID)
}

func TestFeedVehicleRefreshKeepsRouteAssignment(t *testing.T) {
	feed := newTestFeed(t, newFakeTransport())
	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Disconnect()

	feed.DevEmitVehicles([]byte(`{"type":"vehicleFrame","vehicles":[{"id":"amb_1","x":1,"y":2,"routeId":"r1"}]}`))
	feed.DevEmitVehicles([]byte(`{"type":"vehicleFrame","vehicles":[{"id":"amb_1","x":3,"y":4}]}`))

	v := feed.Vehicles()["amb_1"]
	assert.Equal(t, "r1", v.RouteID)
	assert.Equal(t, 4.0, v.Position.Lat)
}

func TestFeedPartialFrameDropsOnlyMalformedRecords(t *testing.T) {
	feed := newTestFeed(t, newFakeTransport())
	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Disconnect()

	feed.DevEmitVehicles([]byte(`{"type":"vehicleFrame","vehicles":[
		{"id":"good","x":10,"y":20},
		{"id":"bad","speed":5}
	]}`))

	vehicles := feed.Vehicles()
	assert.Len(t, vehicles, 1)
	assert.Contains(t, vehicles, "good")
}

func TestFeedMissingIDIsNotADeletion(t *testing.T) {
	feed := newTestFeed(t, newFakeTransport())
	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Disconnect()

	feed.DevEmitVehicles([]byte(`{"type":"vehicleFrame","vehicles":[
		{"id":"amb_1","x":1,"y":2},
		{"id":"amb_2","x":3,"y":4}
	]}`))
	feed.DevEmitVehicles([]byte(`{"type":"vehicleFrame","vehicles":[{"id":"amb_1","x":5,"y":6}]}`))

	assert.Len(t, feed.Vehicles(), 2)
}

func TestFeedRouteFrameUnifiesNativeXY(t *testing.T) {
	feed := newTestFeed(t, newFakeTransport())
	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Disconnect()

	feed.DevEmitRoutes([]byte(`{"type":"routeFrame","routes":[
		{"id":"r1","vehicleId":"amb_1","points":[{"x":100,"y":50},{"x":110,"y":55}],"destination":"hospital"}
	]}`))

	route, ok := feed.Route("r1")
	require.True(t, ok)
	require.Len(t, route.Coords, 2)
	assert.Equal(t, 50.0, route.Coords[0].Lat)
	assert.Equal(t, 100.0, route.Coords[0].Lng)
	assert.Equal(t, "hospital", route.Destination)
}

func TestFeedRequestRouteCacheFirst(t *testing.T) {
	transport := newFakeTransport()
	feed := newTestFeed(t, transport)
	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Disconnect()
	subscribes := len(transport.sent)

	require.NoError(t, feed.RequestRoute(context.Background(), "amb_1", "r1"))
	require.NoError(t, feed.RequestRoute(context.Background(), "amb_1", "r1"))
	assert.Len(t, transport.sent, subscribes+1, "pending request must not fan out")

	var req routeRequest
	require.NoError(t, json.Unmarshal(transport.sent[subscribes], &req))
	assert.Equal(t, "requestRoute", req.Type)
	assert.Equal(t, "r1", req.RouteID)

	// The matching routeFrame lands; subsequent asks are no-ops.
	feed.DevEmitRoutes([]byte(`{"type":"routeFrame","routes":[{"id":"r1","points":[{"x":1,"y":2}]}]}`))
	require.NoError(t, feed.RequestRoute(context.Background(), "amb_1", "r1"))
	assert.Len(t, transport.sent, subscribes+1)
}

func TestFeedDisconnectIdempotentAndUnregisters(t *testing.T) {
	transport := newFakeTransport()
	feed := newTestFeed(t, transport)
	require.NoError(t, feed.Connect(context.Background()))

	feed.DevEmitVehicles([]byte(`{"type":"vehicleFrame","vehicles":[{"id":"amb_1","x":1,"y":2}]}`))
	require.Len(t, feed.Vehicles(), 1)

	feed.Disconnect()
	feed.Disconnect()
	assert.Equal(t, 1, transport.closed)

	// Handlers are gone, but known state stays queryable.
	feed.DevEmitVehicles([]byte(`{"type":"vehicleFrame","vehicles":[{"id":"amb_2","x":3,"y":4}]}`))
	assert.Len(t, feed.Vehicles(), 1)
}

func TestFeedSnapshotBootstrapFlagGated(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/emergency/snapshot", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"vehicles": [{"vehicleId":"amb_9","position":{"lat":48.1,"lng":11.5},"emergencyState":"responding"}],
			"routes": [{"routeId":"r9","coords":[{"lat":48.1,"lng":11.5},{"lat":48.2,"lng":11.6}]}]
		}`))
	}))
	defer server.Close()

	snapshots := NewSnapshotClient(SnapshotConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
		Logger:     zerolog.Nop(),
	})
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})

	newFeed := func() *FeedClient {
		return NewFeedClient(FeedConfig{
			Transport: newFakeTransport(),
			Snapshots: snapshots,
			Flags:     flags,
			Logger:    zerolog.Nop(),
			now:       func() time.Time { return time.Unix(100, 0) },
		})
	}

	// Flag off: no fetch, maps start empty.
	feed := newFeed()
	require.NoError(t, feed.Connect(context.Background()))
	assert.Zero(t, hits)
	assert.Empty(t, feed.Vehicles())
	feed.Disconnect()

	// Flag on: one fetch seeds both maps.
	require.NoError(t, flags.SetFlag(context.Background(), &featureflags.Flag{
		Key:   featureflags.FlagEmergencySnapshotBootstrap,
		Value: true,
	}))
	feed = newFeed()
	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Disconnect()

	assert.Equal(t, 1, hits)
	assert.Contains(t, feed.Vehicles(), "amb_9")
	route, ok := feed.Route("r9")
	require.True(t, ok)
	assert.Len(t, route.Coords, 2)
}

func TestSnapshotClientNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewSnapshotClient(SnapshotConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
		Logger:     zerolog.Nop(),
	})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
