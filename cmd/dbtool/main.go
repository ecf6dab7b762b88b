package main

import (
	"artisan-delivery/internal/adapters/cache"
	"artisan-delivery/internal/adapters/repositories"
	"artisan-delivery/internal/adapters/routing"
	"artisan-delivery/internal/config"
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/db"
	"artisan-delivery/internal/platform/logger"
	"artisan-delivery/internal/ports"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

type options struct {
	seedPath       string
	geocode        bool
	purgeRoutes    bool
	routeCacheTTL  time.Duration
	geocodeTimeout time.Duration
}

func main() {
	dotenv := config.LoadDotEnv()

	var opts options
	flag.StringVar(&opts.seedPath, "seed", config.Get("SEED_PATH", "data/seeds/sellers.json"), "seller seed file (empty to skip seeding)")
	flag.BoolVar(&opts.geocode, "geocode", os.Getenv("ORS_API_KEY") != "", "geocode seller addresses that have no location")
	flag.BoolVar(&opts.purgeRoutes, "purge-route-cache", false, "delete expired route cache rows")
	flag.DurationVar(&opts.routeCacheTTL, "route-cache-ttl", config.GetDuration("ROUTE_CACHE_TTL", 24*time.Hour), "route cache TTL used by -purge-route-cache")
	flag.DurationVar(&opts.geocodeTimeout, "geocode-timeout", 2*time.Minute, "overall geocoding budget")
	flag.Parse()

	zl, err := logger.New(config.Get("APP_ENV", "development"))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	if !dotenv {
		zl.Info("no .env file found (using environment variables)")
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		zl.Fatal("DATABASE_URL is required")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		zl.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	if err := run(conn, opts, zl); err != nil {
		zl.Fatal("dbtool failed", zap.Error(err))
	}
}

func run(conn *sql.DB, opts options, zl *zap.Logger) error {
	zl.Info("initializing database schema")
	if err := repositories.InitSchema(conn); err != nil {
		return err
	}
	zl.Info("schema ready")

	if opts.seedPath != "" {
		if err := seed(conn, opts, zl); err != nil {
			return err
		}
	}

	if opts.geocode {
		ctx, cancel := context.WithTimeout(context.Background(), opts.geocodeTimeout)
		defer cancel()
		if err := locateSellers(ctx, conn, zl); err != nil {
			return err
		}
	}

	if opts.purgeRoutes {
		n, err := cache.NewSQLRouteCache(conn, opts.routeCacheTTL).Purge(context.Background())
		if err != nil {
			return err
		}
		zl.Info("route cache purged", zap.Int64("rows", n))
	}

	return nil
}

func seed(conn *sql.DB, opts options, zl *zap.Logger) error {
	sellers, err := repositories.LoadSellerSeeds(opts.seedPath)
	if err != nil {
		return err
	}

	zl.Info("seeding sellers", zap.String("path", opts.seedPath), zap.Int("count", len(sellers)))
	if err := repositories.SeedSellers(conn, sellers); err != nil {
		return err
	}
	zl.Info("seeding complete")
	return nil
}

// locateSellers fills in coordinates for sellers that only have an address.
// Geocode results are cached by address so reruns skip the API.
func locateSellers(ctx context.Context, conn *sql.DB, zl *zap.Logger) error {
	repo := repositories.NewSQLSellerLocationRepository(conn)
	geoCache := cache.NewSQLGeocodeCache(conn)

	unlocated, err := repo.ListUnlocated(ctx)
	if err != nil {
		return err
	}
	if len(unlocated) == 0 {
		zl.Info("all sellers have a location")
		return nil
	}

	client, err := routing.NewORSClient(routing.ORSConfig{
		APIKey:  os.Getenv("ORS_API_KEY"),
		BaseURL: config.Get("ORS_BASE_URL", ""),
		Country: config.Get("ORS_GEOCODE_COUNTRY", "IN"),
	})
	if err != nil {
		return fmt.Errorf("locate sellers: %w", err)
	}

	located, failed := geocodeSellers(ctx, unlocated, geoCache, client, zl)

	for sellerID, c := range located {
		if err := repo.SetLocation(context.WithoutCancel(ctx), sellerID, c); err != nil {
			return fmt.Errorf("locate sellers: %w", err)
		}
	}

	zl.Info("seller geocoding complete",
		zap.Int("located", len(located)),
		zap.Int("failed", failed),
	)
	return nil
}

type addressCache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinate, error)
	PutMany(ctx context.Context, results map[string]domain.Coordinate) error
}

// geocodeSellers resolves seller addresses through the cache first and the
// geocoder for the rest. Sellers that cannot be resolved are counted and skipped.
func geocodeSellers(
	ctx context.Context,
	addresses map[string]string,
	geoCache addressCache,
	geocoder ports.Geocoder,
	zl *zap.Logger,
) (map[string]domain.Coordinate, int) {
	all := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		all = append(all, addr)
	}

	cached, err := geoCache.GetMany(ctx, all)
	if err != nil {
		zl.Warn("geocode cache read failed", zap.Error(err))
		cached = map[string]domain.Coordinate{}
	}

	located := make(map[string]domain.Coordinate, len(addresses))
	fresh := make(map[string]domain.Coordinate)
	failed := 0

	for sellerID, addr := range addresses {
		key := strings.TrimSpace(addr)
		if c, ok := cached[key]; ok {
			located[sellerID] = c
			continue
		}
		if c, ok := fresh[key]; ok {
			located[sellerID] = c
			continue
		}

		c, err := geocoder.Geocode(ctx, key)
		if err != nil {
			failed++
			zl.Warn("geocode failed", zap.String("seller_id", sellerID), zap.String("address", key), zap.Error(err))
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			continue
		}
		fresh[key] = c
		located[sellerID] = c
	}

	if len(fresh) > 0 {
		if err := geoCache.PutMany(context.WithoutCancel(ctx), fresh); err != nil {
			zl.Warn("geocode cache write failed", zap.Error(err))
		}
	}

	return located, failed
}
