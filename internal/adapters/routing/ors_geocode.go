package routing

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/obs"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// normalize collapses whitespace so equivalent addresses query identically.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Geocode resolves a single address using ORS (/geocode/search).
func (o *ORSClient) Geocode(ctx context.Context, address string) (_ domain.Coordinate, err error) {
	defer obs.Time(ctx, "ors.Geocode")(&err)

	norm := normalize(address)
	if norm == "" {
		return domain.Coordinate{}, errors.New("geocode: address must be non-empty")
	}

	endpoint := o.baseURL + "/geocode/search"

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := o.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("text", norm)
		q.Set("boundary.country", o.country)
		q.Set("size", "1")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("execute geocode request: %w", err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Coordinate{}, fmt.Errorf("decode geocode response: %w", err)
	}

	if len(decoded.Features) == 0 {
		return domain.Coordinate{}, fmt.Errorf("no geocode results for %q", norm)
	}

	c, err := domain.FromLonLat(decoded.Features[0].Geometry.Coordinates)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("geocode %q: %w", norm, err)
	}

	return c, nil
}
