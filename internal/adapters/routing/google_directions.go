package routing

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/obs"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"googlemaps.github.io/maps"
)

// GoogleDirections implements ports.Directions with the Google Maps Directions API.
type GoogleDirections struct {
	client *maps.Client
}

// NewGoogleDirections creates a client for the given API key. A non-empty baseURL
// overrides the Google endpoint.
func NewGoogleDirections(apiKey, baseURL string) (*GoogleDirections, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(baseURL))
	}

	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleDirections{client: client}, nil
}

func (g *GoogleDirections) Directions(
	ctx context.Context,
	from domain.Coordinate,
	to domain.Coordinate,
) (_ domain.RouteResult, err error) {
	defer obs.Time(ctx, "google.Directions")(&err)

	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Units:       maps.UnitsMetric,
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return domain.RouteResult{}, fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return domain.RouteResult{}, errors.New("google directions: no route found")
	}
	route := routes[0]

	var meters, seconds float64
	steps := make([]domain.NavigationStep, 0)
	for _, leg := range route.Legs {
		meters += float64(leg.Distance.Meters)
		seconds += leg.Duration.Seconds()
		for _, s := range leg.Steps {
			steps = append(steps, domain.NavigationStep{
				Instruction:    stripTags(s.HTMLInstructions),
				DistanceMeters: float64(s.Distance.Meters),
				DurationSec:    s.Duration.Seconds(),
			})
		}
	}

	points, err := route.OverviewPolyline.Decode()
	if err != nil {
		return domain.RouteResult{}, fmt.Errorf("google directions: decode polyline: %w", err)
	}

	geometry := make([]domain.Coordinate, 0, len(points))
	for _, p := range points {
		geometry = append(geometry, domain.Coordinate{Lat: p.Lat, Lng: p.Lng})
	}
	if len(geometry) < 2 {
		geometry = []domain.Coordinate{from, to}
	}

	return domain.RouteResult{
		Geometry:    geometry,
		DistanceKm:  meters / 1000,
		DurationMin: seconds / 60,
		Steps:       steps,
		Degraded:    false,
	}, nil
}

func latLng(c domain.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}

// stripTags reduces Google's HTML instructions to plain text.
func stripTags(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return strings.TrimSpace(s)
			}
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			// <div> wraps secondary notes like "Destination will be on the left".
			if name, _ := z.TagName(); string(name) == "div" || string(name) == "br" {
				b.WriteString(" ")
			}
		}
	}
}
