package config

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/services"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port   string
	AppEnv string

	RoutingBackend   string
	ORSAPIKey        string
	ORSBaseURL       string
	ORSProfile       string
	GoogleMapsAPIKey string
	RouteTimeout     time.Duration
	FallbackSpeedKmh float64

	RouteCache    string
	RouteCacheTTL time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	Fare       services.FareConfig
	Navigation services.NavigationConfig
	// SnapshotTTL is how long the last navigation snapshot is kept in Redis.
	SnapshotTTL time.Duration
}

// LoadDotEnv loads .env into the environment if present and reports whether it did.
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

// Load reads configuration from the environment. Invalid numbers and durations
// fall back to defaults; an invalid fare policy is an error.
func Load() (Config, error) {
	cfg := Config{
		Port:   Get("PORT", "8080"),
		AppEnv: Get("APP_ENV", "production"),

		RoutingBackend:   strings.ToLower(Get("ROUTING_BACKEND", "ors")),
		ORSAPIKey:        strings.TrimSpace(os.Getenv("ORS_API_KEY")),
		ORSBaseURL:       Get("ORS_BASE_URL", "https://api.openrouteservice.org"),
		ORSProfile:       Get("ORS_PROFILE", "driving-car"),
		GoogleMapsAPIKey: strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY")),
		RouteTimeout:     GetDuration("ROUTE_TIMEOUT", 8*time.Second),
		FallbackSpeedKmh: GetFloat("FALLBACK_SPEED_KMH", 30),

		RouteCache:    strings.ToLower(Get("ROUTE_CACHE", "none")),
		RouteCacheTTL: GetDuration("ROUTE_CACHE_TTL", 24*time.Hour),
		RedisAddr:     Get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       GetInt("REDIS_DB", 0),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),

		SnapshotTTL: GetDuration("NAV_SNAPSHOT_TTL", time.Hour),
	}

	fare := services.DefaultFareConfig()
	fare.Currency = Get("FARE_CURRENCY", fare.Currency)
	fare.BaseFare = domain.Money(GetInt("FARE_BASE_MINOR", int(fare.BaseFare)))
	if raw := strings.TrimSpace(os.Getenv("FARE_TIERS")); raw != "" {
		tiers, err := services.ParseFareTiers(raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config: FARE_TIERS: %w", err)
		}
		fare.Tiers = tiers
	}
	if err := fare.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.Fare = fare

	cfg.Navigation = services.NavigationConfig{
		ArrivalThresholdKm: GetFloat("NAV_ARRIVAL_THRESHOLD_KM", services.DefaultArrivalThresholdKm),
		FixTimeout:         GetDuration("NAV_FIX_TIMEOUT", services.DefaultFixTimeout),
	}
	cfg.Navigation.Watch.Timeout = GetDuration("NAV_WATCH_TIMEOUT", 30*time.Second)
	cfg.Navigation.Watch.MaxAccuracyMeters = GetFloat("NAV_MAX_ACCURACY_M", 0)
	cfg.Navigation.Watch.MaximumAge = GetDuration("NAV_MAX_FIX_AGE", 5*time.Second)

	switch cfg.RoutingBackend {
	case "ors", "google":
	default:
		return Config{}, fmt.Errorf("load config: unknown ROUTING_BACKEND %q", cfg.RoutingBackend)
	}
	switch cfg.RouteCache {
	case "none", "redis", "postgres":
	default:
		return Config{}, fmt.Errorf("load config: unknown ROUTE_CACHE %q", cfg.RouteCache)
	}

	return cfg, nil
}

func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	v, err := strconv.Atoi(Get(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func GetFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(Get(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func GetDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(Get(key, ""))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
