package routing

import (
	"artisan-delivery/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	connaughtPlace = domain.Coordinate{Lat: 28.6139, Lng: 77.2090}
	modelTown      = domain.Coordinate{Lat: 28.7041, Lng: 77.1025}
)

const delhiDirectionsJSON = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature",
    "geometry": {
      "type": "LineString",
      "coordinates": [[77.2090, 28.6139], [77.1800, 28.6500], [77.1025, 28.7041]]
    },
    "properties": {
      "summary": {"distance": 17850.4, "duration": 2460.0},
      "segments": [{
        "distance": 17850.4,
        "duration": 2460.0,
        "steps": [
          {"instruction": "Head north on Janpath", "distance": 1200.0, "duration": 180.0},
          {"instruction": "Turn left onto Ring Road", "distance": 15000.0, "duration": 2040.0},
          {"instruction": "Arrive at your destination", "distance": 1650.4, "duration": 240.0}
        ]
      }]
    }
  }]
}`

func newTestORS(t *testing.T, h http.HandlerFunc) *ORSClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewORSClient(ORSConfig{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestORSDirectionsFlipsCoordinatesAndConvertsUnits(t *testing.T) {
	var got directionsRequest
	c := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/directions/driving-car/geojson", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(delhiDirectionsJSON))
	})

	route, err := c.Directions(context.Background(), connaughtPlace, modelTown)
	require.NoError(t, err)

	assert.True(t, got.Instructions)
	assert.Equal(t, [][]float64{{77.2090, 28.6139}, {77.1025, 28.7041}}, got.Coordinates)

	assert.False(t, route.Degraded)
	assert.InDelta(t, 17.8504, route.DistanceKm, 1e-9)
	assert.InDelta(t, 41.0, route.DurationMin, 1e-9)
	require.Len(t, route.Geometry, 3)
	assert.Equal(t, connaughtPlace, route.Geometry[0])
	assert.Equal(t, modelTown, route.Geometry[2])
	require.Len(t, route.Steps, 3)
	assert.Equal(t, "Turn left onto Ring Road", route.Steps[1].Instruction)
	assert.InDelta(t, 15000.0, route.Steps[1].DistanceMeters, 1e-9)
}

func TestORSDirectionsRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(delhiDirectionsJSON))
	})

	route, err := c.Directions(context.Background(), connaughtPlace, modelTown)
	require.NoError(t, err)
	assert.False(t, route.Degraded)
	assert.Equal(t, int32(3), calls.Load())
}

func TestORSDirectionsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad coordinates"}`, http.StatusBadRequest)
	})

	_, err := c.Directions(context.Background(), connaughtPlace, modelTown)
	require.Error(t, err)

	var he *httpStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestORSDirectionsGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Directions(context.Background(), connaughtPlace, modelTown)
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestORSDirectionsRejectsMalformedPayloads(t *testing.T) {
	bodies := map[string]string{
		"not json":        `<html>oops</html>`,
		"no features":     `{"features": []}`,
		"single point":    `{"features": [{"geometry": {"coordinates": [[77.2, 28.6]]}}]}`,
		"bad coordinates": `{"features": [{"geometry": {"coordinates": [[77.2, 128.6], [77.1, 28.7]]}}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.Directions(context.Background(), connaughtPlace, modelTown)
			assert.Error(t, err)
		})
	}
}

func TestORSGeocode(t *testing.T) {
	c := newTestORS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode/search", r.URL.Path)
		assert.Equal(t, "Connaught Place, New Delhi", r.URL.Query().Get("text"))
		assert.Equal(t, "IN", r.URL.Query().Get("boundary.country"))
		_, _ = w.Write([]byte(`{"features":[{"geometry":{"coordinates":[77.2090,28.6139]}}]}`))
	})

	got, err := c.Geocode(context.Background(), "  Connaught   Place,  New Delhi ")
	require.NoError(t, err)
	assert.Equal(t, connaughtPlace, got)

	_, err = c.Geocode(context.Background(), "   ")
	assert.Error(t, err)
}

func TestNewORSClientRequiresKey(t *testing.T) {
	_, err := NewORSClient(ORSConfig{})
	assert.Error(t, err)
}
