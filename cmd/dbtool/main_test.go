package main

import (
	"artisan-delivery/internal/domain"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memoryAddressCache struct {
	data   map[string]domain.Coordinate
	getErr error
	puts   int
}

func (m *memoryAddressCache) GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinate, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := map[string]domain.Coordinate{}
	for _, a := range addresses {
		if c, ok := m.data[a]; ok {
			out[a] = c
		}
	}
	return out, nil
}

func (m *memoryAddressCache) PutMany(ctx context.Context, results map[string]domain.Coordinate) error {
	m.puts++
	for a, c := range results {
		m.data[a] = c
	}
	return nil
}

type fakeGeocoder struct {
	known map[string]domain.Coordinate
	calls map[string]int
}

func (g *fakeGeocoder) Geocode(ctx context.Context, address string) (domain.Coordinate, error) {
	g.calls[address]++
	c, ok := g.known[address]
	if !ok {
		return domain.Coordinate{}, errors.New("no geocode result")
	}
	return c, nil
}

var (
	hauzKhas  = domain.Coordinate{Lat: 28.5494, Lng: 77.2001}
	dilliHaat = domain.Coordinate{Lat: 28.5733, Lng: 77.2075}
)

func TestGeocodeSellersUsesCacheThenGeocoder(t *testing.T) {
	geoCache := &memoryAddressCache{data: map[string]domain.Coordinate{"Dilli Haat, New Delhi": dilliHaat}}
	geocoder := &fakeGeocoder{
		known: map[string]domain.Coordinate{"Hauz Khas Village, New Delhi": hauzKhas},
		calls: map[string]int{},
	}

	located, failed := geocodeSellers(context.Background(), map[string]string{
		"khurja-pottery":  "Dilli Haat, New Delhi",
		"moradabad-brass": "Hauz Khas Village, New Delhi",
		"bidri-craft":     "  Hauz Khas Village, New Delhi ",
		"lost-seller":     "Nowhere Lane",
	}, geoCache, geocoder, zaptest.NewLogger(t))

	assert.Equal(t, 1, failed)
	require.Len(t, located, 3)
	assert.Equal(t, dilliHaat, located["khurja-pottery"])
	assert.Equal(t, hauzKhas, located["moradabad-brass"])
	assert.Equal(t, hauzKhas, located["bidri-craft"])

	assert.Zero(t, geocoder.calls["Dilli Haat, New Delhi"])
	assert.Equal(t, 1, geocoder.calls["Hauz Khas Village, New Delhi"])
	assert.Equal(t, 1, geoCache.puts)
	assert.Equal(t, hauzKhas, geoCache.data["Hauz Khas Village, New Delhi"])
}

func TestGeocodeSellersSurvivesCacheFailure(t *testing.T) {
	geoCache := &memoryAddressCache{data: map[string]domain.Coordinate{}, getErr: errors.New("relation \"geocode_cache\" does not exist")}
	geocoder := &fakeGeocoder{
		known: map[string]domain.Coordinate{"Hauz Khas Village, New Delhi": hauzKhas},
		calls: map[string]int{},
	}

	located, failed := geocodeSellers(context.Background(), map[string]string{
		"moradabad-brass": "Hauz Khas Village, New Delhi",
	}, geoCache, geocoder, zaptest.NewLogger(t))

	assert.Zero(t, failed)
	assert.Equal(t, hauzKhas, located["moradabad-brass"])
}
