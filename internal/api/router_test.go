package api

import (
	"artisan-delivery/internal/adapters/routing"
	"artisan-delivery/internal/api/dto"
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/services"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	connaughtPlace = domain.Coordinate{Lat: 28.6139, Lng: 77.2090}
	modelTown      = domain.Coordinate{Lat: 28.7041, Lng: 77.1025}
)

func delhiRoadRoute() domain.RouteResult {
	return domain.RouteResult{
		Geometry:    []domain.Coordinate{connaughtPlace, modelTown},
		DistanceKm:  17.85,
		DurationMin: 41,
		Steps: []domain.NavigationStep{
			{Instruction: "Head north on Janpath", DistanceMeters: 1200, DurationSec: 180},
			{Instruction: "Turn left onto Ring Road", DistanceMeters: 16650, DurationSec: 2280},
		},
	}
}

type testServer struct {
	router  *gin.Engine
	backend *routing.MockDirections
	nav     *services.NavigationManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	backend := routing.NewMockDirections([]routing.MockRoute{{From: connaughtPlace, To: modelTown, Route: delhiRoadRoute()}})
	routes := routing.NewFallbackProvider(backend, time.Second, 30, log)

	fares, err := services.NewFareCalculator(services.DefaultFareConfig())
	require.NoError(t, err)

	nav := services.NewNavigationManager(routes, nil, services.NavigationConfig{FixTimeout: 5 * time.Second}, log)
	t.Cleanup(func() { nav.Shutdown(context.Background()) })

	r := NewRouter(Deps{
		Delivery:   services.NewDeliveryService(routes, fares, nil, log),
		Navigation: nav,
		MaxFixAge:  time.Second,
		Log:        log,
	})
	return &testServer{router: r, backend: backend, nav: nav}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestChargeWithWorkingRouting(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/delivery/charge", map[string]float64{
		"seller_lat": connaughtPlace.Lat, "seller_lng": connaughtPlace.Lng,
		"buyer_lat": modelTown.Lat, "buyer_lng": modelTown.Lng,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fare domain.FareBreakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fare))
	assert.False(t, fare.Degraded)
	assert.Equal(t, "INR", fare.Currency)
	assert.Equal(t, domain.Money(4000), fare.BaseFare)
	assert.Equal(t, domain.Money(19280), fare.Total)
	assert.Equal(t, fare.BaseFare+fare.DistanceFare, fare.Total)
}

func TestChargeDegradesInsteadOfFailing(t *testing.T) {
	s := newTestServer(t)
	s.backend.Err = errors.New("dial tcp: connection refused")

	rec := s.do(t, http.MethodPost, "/api/v1/delivery/charge", map[string]float64{
		"seller_lat": connaughtPlace.Lat, "seller_lng": connaughtPlace.Lng,
		"buyer_lat": modelTown.Lat, "buyer_lng": modelTown.Lng,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fare domain.FareBreakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fare))
	assert.True(t, fare.Degraded)
	assert.InDelta(t, domain.HaversineKm(connaughtPlace, modelTown), fare.DistanceKm, 1e-9)
	assert.Greater(t, fare.Total, fare.BaseFare)
}

func TestChargeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		wantErr string
	}{
		{name: "malformed json", body: `{"seller_lat":`, wantErr: "invalid json body"},
		{name: "missing buyer", body: map[string]float64{"seller_lat": 28.6, "seller_lng": 77.2}, wantErr: "buyer_lat is required"},
		{name: "latitude out of range", body: map[string]float64{
			"seller_lat": 91, "seller_lng": 77.2, "buyer_lat": 28.7, "buyer_lng": 77.1,
		}, wantErr: "latitude"},
		{name: "longitude out of range", body: map[string]float64{
			"seller_lat": 28.6, "seller_lng": 77.2, "buyer_lat": 28.7, "buyer_lng": -181,
		}, wantErr: "longitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(t, http.MethodPost, "/api/v1/delivery/charge", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.wantErr)
			assert.Zero(t, s.backend.Calls())
		})
	}
}

func TestSummaryGroupsBySellerAndWarns(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/delivery/summary", map[string]any{
		"items": []map[string]any{
			{"product_id": "shawl", "seller_id": "kashmir-looms", "unit_price": 250000, "quantity": 1},
			{"product_id": "pot", "seller_id": "khurja-pottery", "unit_price": 40000, "quantity": 2},
			{"product_id": "stole", "seller_id": "kashmir-looms", "unit_price": 90000, "quantity": 1},
		},
		"seller_locations": map[string]domain.Coordinate{"kashmir-looms": connaughtPlace},
		"buyer":            modelTown,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary domain.OrderDeliverySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))

	require.Len(t, summary.Groups, 1)
	assert.Equal(t, "kashmir-looms", summary.Groups[0].SellerID)
	assert.Equal(t, domain.Money(340000), summary.Groups[0].ItemSubtotal)
	assert.Equal(t, domain.Money(19280), summary.TotalFare)

	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, "khurja-pottery", summary.Warnings[0].SellerID)
	assert.Equal(t, domain.WarningMissingLocation, summary.Warnings[0].Reason)

	assert.Equal(t, domain.Money(420000), summary.Subtotal)
	assert.Equal(t, summary.Subtotal+summary.TotalFare, summary.GrandTotal)
}

func TestSummaryRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/delivery/summary", map[string]any{
		"items": []map[string]any{{"product_id": "shawl", "seller_id": "kashmir-looms", "unit_price": 100, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "buyer")

	rec = s.do(t, http.MethodPost, "/api/v1/delivery/summary", map[string]any{
		"items": []map[string]any{{"product_id": "shawl", "seller_id": "kashmir-looms", "unit_price": 100, "quantity": 0}},
		"buyer": modelTown,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "quantity")
}

func TestSummaryRejectsIncompleteSellerLocations(t *testing.T) {
	items := []map[string]any{{"product_id": "shawl", "seller_id": "kashmir-looms", "unit_price": 100, "quantity": 1}}

	tests := []struct {
		name     string
		location string
	}{
		{name: "empty object", location: `{}`},
		{name: "missing lng", location: `{"lat":28.6139}`},
		{name: "null", location: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			body := map[string]any{
				"items":            items,
				"seller_locations": map[string]json.RawMessage{"kashmir-looms": json.RawMessage(tt.location)},
				"buyer":            modelTown,
			}
			rec := s.do(t, http.MethodPost, "/api/v1/delivery/summary", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec), "seller_locations[kashmir-looms].lat")
			assert.Zero(t, s.backend.Calls())
		})
	}
}

func TestSummaryRejectsOverflowingPrices(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/delivery/summary", map[string]any{
		"items": []map[string]any{
			{"product_id": "shawl", "seller_id": "kashmir-looms", "unit_price": int64(1) << 62, "quantity": 2},
		},
		"seller_locations": map[string]domain.Coordinate{"kashmir-looms": connaughtPlace},
		"buyer":            modelTown,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "out of range")
	assert.Zero(t, s.backend.Calls())
}

func TestNavigationSessionNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/navigation/sessions/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/navigation/sessions/nobody", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNavigationWebsocketRejectsBadQuery(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/navigation/ws?dest_lat=28.7&dest_lng=77.1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/navigation/ws?user_id=u1&dest_lat=128.7&dest_lng=77.1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "latitude")
}

// southOf returns a point km kilometres due south of modelTown.
func southOf(km float64) domain.Coordinate {
	return domain.Coordinate{Lat: modelTown.Lat - km/111.195, Lng: modelTown.Lng}
}

func dialNavigation(t *testing.T, s *testServer, userID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/api/v1/navigation/ws?user_id=" + userID + "&dest_lat=28.7041&dest_lng=77.1025"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
		_ = conn.Close()
	})
	return conn
}

// readUntil reads server messages until pred matches one.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(dto.ServerMessage) bool) dto.ServerMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg dto.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if pred(msg) {
			return msg
		}
	}
}

func inState(state domain.NavigationState) func(dto.ServerMessage) bool {
	return func(m dto.ServerMessage) bool {
		return m.Type == dto.MsgState && m.Snapshot != nil && m.Snapshot.State == state
	}
}

func sendPosition(t *testing.T, conn *websocket.Conn, c domain.Coordinate) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: dto.MsgPosition, Lat: &c.Lat, Lng: &c.Lng, Accuracy: 8}))
}

func TestNavigationWebsocketToArrival(t *testing.T) {
	s := newTestServer(t)
	conn := dialNavigation(t, s, "buyer-1")

	readUntil(t, conn, inState(domain.NavLocating))

	sendPosition(t, conn, southOf(2))
	ready := readUntil(t, conn, inState(domain.NavRouteReady))
	require.NotNil(t, ready.Snapshot.Route)
	assert.True(t, ready.Snapshot.Route.Degraded)
	assert.InDelta(t, 2.0, ready.Snapshot.RemainingKm, 0.01)

	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: dto.MsgBegin}))
	readUntil(t, conn, inState(domain.NavNavigating))

	sendPosition(t, conn, southOf(0.5))
	mid := readUntil(t, conn, func(m dto.ServerMessage) bool {
		return inState(domain.NavNavigating)(m) && m.Snapshot.RemainingKm < 0.6
	})
	assert.InDelta(t, 0.5, mid.Snapshot.RemainingKm, 0.01)

	sendPosition(t, conn, southOf(0.03))
	arrived := readUntil(t, conn, inState(domain.NavArrived))
	assert.Less(t, arrived.Snapshot.RemainingKm, 0.05)

	rec := s.do(t, http.MethodGet, "/api/v1/navigation/sessions/buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.NavigationSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.NavArrived, snap.State)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.nav.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNavigationWebsocketRejectsCommands(t *testing.T) {
	s := newTestServer(t)
	conn := dialNavigation(t, s, "buyer-2")

	readUntil(t, conn, inState(domain.NavLocating))

	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: dto.MsgBegin}))
	msg := readUntil(t, conn, func(m dto.ServerMessage) bool { return m.Type == dto.MsgError })
	assert.Contains(t, msg.Error, "invalid navigation transition")

	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: "teleport"}))
	msg = readUntil(t, conn, func(m dto.ServerMessage) bool { return m.Type == dto.MsgError })
	assert.Contains(t, msg.Error, "teleport")
}

func TestNavigationWebsocketPositionError(t *testing.T) {
	s := newTestServer(t)
	conn := dialNavigation(t, s, "buyer-3")

	readUntil(t, conn, inState(domain.NavLocating))

	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: dto.MsgPositionError, Code: "permission_denied"}))
	msg := readUntil(t, conn, inState(domain.NavError))
	assert.Equal(t, domain.PositionPermissionDenied, msg.Snapshot.ErrorCode)
	assert.Contains(t, msg.Snapshot.ErrorMessage, "permission")
}

func TestNavigationWebsocketStopThenRestart(t *testing.T) {
	s := newTestServer(t)
	conn := dialNavigation(t, s, "buyer-4")

	readUntil(t, conn, inState(domain.NavLocating))
	rec := s.do(t, http.MethodDelete, "/api/v1/navigation/sessions/buyer-4", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	readUntil(t, conn, inState(domain.NavIdle))

	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: dto.MsgStart}))
	readUntil(t, conn, inState(domain.NavLocating))
	sendPosition(t, conn, southOf(1))
	readUntil(t, conn, inState(domain.NavRouteReady))
}
