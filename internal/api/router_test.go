package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlens/trafficlens/internal/api"
	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/internal/auth"
	"github.com/trafficlens/trafficlens/internal/congestion"
	"github.com/trafficlens/trafficlens/internal/emergency"
	"github.com/trafficlens/trafficlens/internal/featureflags"
	"github.com/trafficlens/trafficlens/internal/ingest"
	"github.com/trafficlens/trafficlens/internal/network"
	"github.com/trafficlens/trafficlens/internal/settings"
	"github.com/trafficlens/trafficlens/pkg/geometry"
)

const testSharedKey = "control-room-shared-key"

const routerTestNet = `<?xml version="1.0" encoding="UTF-8"?>
<net version="1.16">
    <location convBoundary="0.00,0.00,500.00,300.00"/>
    <edge id="E1" from="J0" to="J1">
        <lane id="E1_0" speed="13.89" shape="0.00,50.00 250.00,50.00 500.00,50.00"/>
    </edge>
</net>`

// testJWTService creates a JWT service for generating test tokens.
func testJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.trafficlens.io",
		Audience:   "trafficlens-api",
	})
}

// generateTestToken generates a valid test token with the given role.
func generateTestToken(t *testing.T, role string) string {
	t.Helper()
	token, _, err := testJWTService().GenerateAccessToken("op_testoperator123", role)
	require.NoError(t, err)
	return token
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	docServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(routerTestNet))
	}))
	t.Cleanup(docServer.Close)

	flagService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})

	pipeline := ingest.New(ingest.Config{
		DocumentURL: docServer.URL + "/net.xml",
		Fetcher:     network.NewFetcher(network.FetcherConfig{}),
		Parser:      network.NewInterpretedParser(zerolog.Nop()),
		Classifier:  congestion.New(congestion.Config{MinInterval: -1}),
		Flags:       flagService,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, pipeline.LoadNetwork(t.Context()))

	feed := emergency.NewFeedClient(emergency.FeedConfig{Logger: zerolog.Nop()})

	settingsService := settings.NewService(settings.ServiceConfig{
		Repository: settings.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})

	logger := zerolog.New(io.Discard)
	return api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "2026-01-01T00:00:00Z",
		Logger:             logger,
		SessionSharedKey:   testSharedKey,
		JWTService:         testJWTService(),
		Pipeline:           pipeline,
		EmergencyFeed:      feed,
		SettingsService:    settingsService,
		FeatureFlagService: flagService,
	})
}

// addAuthHeader adds a valid Bearer token to the request.
func addAuthHeader(t *testing.T, req *http.Request, role string) {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, role))
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_StatusRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.NotEmpty(t, status.Subsystems)
}

func TestRouter_Session(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(models.SessionRequest{
		OperatorID: "op_demo",
		Role:       auth.RoleOperator,
		SharedKey:  testSharedKey,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/session", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var session models.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, "Bearer", session.TokenType)

	// The issued token must be accepted by protected endpoints.
	req = httptest.NewRequest(http.MethodGet, "/v1/network/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SessionRejectsWrongKey(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(models.SessionRequest{
		OperatorID: "op_demo",
		SharedKey:  "wrong",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/session", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_Network(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/network/", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.NetworkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.LaneCount)
	assert.Equal(t, 1, resp.EdgeCount)
	require.NotNil(t, resp.Bounds)
	assert.Equal(t, 500.0, resp.Bounds.MaxLng)
}

func TestRouter_NetworkEdges(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/network/edges", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.EdgeListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "E1", resp.Items[0].ID)
	// Render order: [y, x].
	require.NotEmpty(t, resp.Items[0].Points)
	assert.Equal(t, 50.0, resp.Items[0].Points[0].Lat)
	assert.Equal(t, 0.0, resp.Items[0].Points[0].Lng)
}

func TestRouter_NetworkGeometry(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/network/geometry", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.GeometryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.ThroughBatches, 1)
	assert.Empty(t, resp.InternalBatches)
}

func TestRouter_NetworkGeometryInvalidBounds(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/network/geometry?minLat=abc&minLng=0&maxLat=1&maxLng=1", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_NetworkReloadRequiresOperator(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/network/reload", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/network/reload", http.NoBody)
	addAuthHeader(t, req, auth.RoleOperator)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_TelemetryVehiclesEmpty(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry/vehicles", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.VehicleListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)
	assert.Equal(t, "disconnected", resp.State)
}

func TestRouter_TelemetryCongestion(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry/congestion", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.CongestionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, featureflags.CongestionPolicyCount, resp.Policy)
	assert.False(t, resp.Throttled)
	assert.Equal(t, "default", resp.Levels["E1"])
}

func TestRouter_EmergencyVehiclesEmpty(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/emergency/vehicles", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.EmergencyVehicleListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)
}

func TestRouter_EmergencyRouteRequestValidation(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/emergency/routes/request",
		bytes.NewReader([]byte(`{}`)))
	addAuthHeader(t, req, auth.RoleOperator)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_EmergencyDevRequiresAdmin(t *testing.T) {
	router := newTestRouter(t)

	frame := []byte(`{"type":"vehicleFrame","vehicles":[]}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/emergency/dev/vehicles", bytes.NewReader(frame))
	addAuthHeader(t, req, auth.RoleOperator)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/emergency/dev/vehicles", bytes.NewReader(frame))
	addAuthHeader(t, req, auth.RoleAdmin)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_EmergencyRoutesCarryPolyline(t *testing.T) {
	router := newTestRouter(t)

	frame := []byte(`{"type":"routeFrame","routes":[{"id":"r1","points":[{"x":10,"y":20},{"x":30,"y":40}]}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/emergency/dev/routes", bytes.NewReader(frame))
	addAuthHeader(t, req, auth.RoleAdmin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/emergency/routes", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.EmergencyRouteListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)

	route := resp.Items[0]
	assert.Equal(t, "r1", route.RouteID)
	require.Len(t, route.Coords, 2)
	assert.InDelta(t, 20, route.Coords[0].Lat, 1e-9)
	assert.InDelta(t, 10, route.Coords[0].Lng, 1e-9)
	assert.Greater(t, route.LengthMeters, 0.0)

	// The encoded form must round-trip to the same coords.
	require.NotEmpty(t, route.Polyline)
	decoded := geometry.DecodePolyline(route.Polyline)
	require.Len(t, decoded, 2)
	for i, p := range decoded {
		assert.InDelta(t, route.Coords[i].Lat, p.Lat, 1e-5)
		assert.InDelta(t, route.Coords[i].Lng, p.Lng, 1e-5)
	}
}

func TestRouter_SettingsRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	// Defaults before any save.
	req := httptest.NewRequest(http.MethodGet, "/v1/settings/", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var defaults models.MapSettingsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &defaults))
	assert.Equal(t, 14.0, defaults.Zoom)
	assert.True(t, defaults.ShowSignals)

	// Save a view.
	body, _ := json.Marshal(models.UpdateMapSettingsRequest{
		Zoom:          17,
		ShowSignals:   true,
		ShowEmergency: false,
	})
	req = httptest.NewRequest(http.MethodPut, "/v1/settings/", bytes.NewReader(body))
	addAuthHeader(t, req, auth.RoleViewer)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Read it back.
	req = httptest.NewRequest(http.MethodGet, "/v1/settings/", http.NoBody)
	addAuthHeader(t, req, auth.RoleViewer)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var saved models.MapSettingsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, 17.0, saved.Zoom)
	assert.False(t, saved.ShowEmergency)
}

func TestRouter_SettingsRejectsBadZoom(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(models.UpdateMapSettingsRequest{Zoom: 99})
	req := httptest.NewRequest(http.MethodPut, "/v1/settings/", bytes.NewReader(body))
	addAuthHeader(t, req, auth.RoleViewer)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_OverrideWithoutChannelUnavailable(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"junctionId":"J1","phase":2}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/settings/override", bytes.NewReader(body))
	addAuthHeader(t, req, auth.RoleOperator)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_AuditRequiresAdmin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/settings/audit", http.NoBody)
	addAuthHeader(t, req, auth.RoleOperator)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/settings/audit", http.NoBody)
	addAuthHeader(t, req, auth.RoleAdmin)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AdminFlags(t *testing.T) {
	router := newTestRouter(t)

	// Set the congestion policy flag.
	body := []byte(`{"value":"ratio"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/flags/congestion_policy", bytes.NewReader(body))
	addAuthHeader(t, req, auth.RoleAdmin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// List reflects the change.
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/flags/", http.NoBody)
	addAuthHeader(t, req, auth.RoleAdmin)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.FlagListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	found := false
	for _, item := range resp.Items {
		if item.Key == featureflags.FlagCongestionPolicy {
			found = true
			assert.Equal(t, "ratio", item.Value)
		}
	}
	assert.True(t, found)
}

func TestRouter_AdminFlagsRequiresAdmin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/flags/", http.NoBody)
	addAuthHeader(t, req, auth.RoleOperator)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nope", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
