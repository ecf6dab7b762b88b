package routing

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	defaultORSBaseURL = "https://api.openrouteservice.org"
	defaultORSProfile = "driving-car"
)

type ORSConfig struct {
	APIKey  string
	BaseURL string
	Profile string
	// Country restricts geocoding results (ISO 3166-1 alpha-2).
	Country string
	// InitialBackoff is the first retry delay; it doubles on each attempt.
	InitialBackoff time.Duration
	HTTPClient     *http.Client
}

// ORSClient talks to OpenRouteService for directions and geocoding.
//
// It implements ports.Directions and ports.Geocoder and is safe for
// concurrent use; the API key is shared read-only across requests.
type ORSClient struct {
	session        *http.Client
	apiKey         string
	baseURL        string
	profile        string
	country        string
	initialBackoff time.Duration
}

func NewORSClient(cfg ORSConfig) (*ORSClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}

	c := &ORSClient{
		session:        cfg.HTTPClient,
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		profile:        cfg.Profile,
		country:        cfg.Country,
		initialBackoff: cfg.InitialBackoff,
	}

	if c.session == nil {
		c.session = &http.Client{Timeout: 10 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = defaultORSBaseURL
	}
	if c.profile == "" {
		c.profile = defaultORSProfile
	}
	if c.country == "" {
		c.country = "IN"
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = 200 * time.Millisecond
	}

	return c, nil
}
