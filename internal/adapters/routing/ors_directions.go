package routing

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/obs"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Units        string      `json:"units"`
}

type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
			Segments []struct {
				Steps []struct {
					Instruction string  `json:"instruction"`
					Distance    float64 `json:"distance"`
					Duration    float64 `json:"duration"`
				} `json:"steps"`
			} `json:"segments"`
		} `json:"properties"`
	} `json:"features"`
}

// Directions fetches a driving route with full geometry and turn-by-turn steps
// from ORS (/v2/directions/{profile}/geojson). The GeoJSON [lon, lat] wire order is
// flipped to Coordinate on ingestion.
func (o *ORSClient) Directions(
	ctx context.Context,
	from domain.Coordinate,
	to domain.Coordinate,
) (_ domain.RouteResult, err error) {
	defer obs.Time(ctx, "ors.Directions")(&err)

	body, err := json.Marshal(directionsRequest{
		Coordinates:  [][]float64{from.CoordsToList(), to.CoordsToList()},
		Instructions: true,
		Units:        "m",
	})
	if err != nil {
		return domain.RouteResult{}, fmt.Errorf("marshal directions request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s/geojson", o.baseURL, o.profile)

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	})
	if err != nil {
		return domain.RouteResult{}, fmt.Errorf("ORS directions request: %w", err)
	}
	defer resp.Body.Close()

	var decoded directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.RouteResult{}, fmt.Errorf("decode directions response: %w", err)
	}

	return decoded.toRoute()
}

func (d directionsResponse) toRoute() (domain.RouteResult, error) {
	if len(d.Features) == 0 {
		return domain.RouteResult{}, errors.New("ORS directions: no route found")
	}
	f := d.Features[0]

	if len(f.Geometry.Coordinates) < 2 {
		return domain.RouteResult{}, fmt.Errorf("ORS directions: geometry has %d points", len(f.Geometry.Coordinates))
	}

	geometry := make([]domain.Coordinate, 0, len(f.Geometry.Coordinates))
	for i, pair := range f.Geometry.Coordinates {
		c, err := domain.FromLonLat(pair)
		if err != nil {
			return domain.RouteResult{}, fmt.Errorf("ORS directions: geometry point %d: %w", i, err)
		}
		geometry = append(geometry, c)
	}

	sum := f.Properties.Summary
	if sum.Distance < 0 || sum.Duration < 0 {
		return domain.RouteResult{}, fmt.Errorf("ORS directions: negative summary %v m / %v s", sum.Distance, sum.Duration)
	}

	steps := make([]domain.NavigationStep, 0)
	for _, seg := range f.Properties.Segments {
		for _, s := range seg.Steps {
			steps = append(steps, domain.NavigationStep{
				Instruction:    s.Instruction,
				DistanceMeters: s.Distance,
				DurationSec:    s.Duration,
			})
		}
	}

	return domain.RouteResult{
		Geometry:    geometry,
		DistanceKm:  sum.Distance / 1000,
		DurationMin: sum.Duration / 60,
		Steps:       steps,
		Degraded:    false,
	}, nil
}
