package main

import (
	"artisan-delivery/internal/adapters/cache"
	"artisan-delivery/internal/adapters/repositories"
	"artisan-delivery/internal/adapters/routing"
	"artisan-delivery/internal/api"
	"artisan-delivery/internal/config"
	"artisan-delivery/internal/platform/db"
	"artisan-delivery/internal/platform/kv"
	"artisan-delivery/internal/platform/logger"
	"artisan-delivery/internal/ports"
	"artisan-delivery/internal/services"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// main is the application composition root.
// It wires concrete adapters (routing backend, caches, Postgres, Redis) behind
// ports and starts the HTTP server.
func main() {
	dotenv := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	if !dotenv {
		zl.Info("no .env file found (using environment variables)")
	}

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		sqlDB = conn
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		client, err := kv.Open(ctx, kv.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			if cfg.RouteCache == "redis" {
				return err
			}
			// Redis is optional unless it backs the route cache.
			zl.Warn("redis unavailable, navigation snapshots stay in memory", zap.Error(err))
		} else {
			defer client.Close()
			rdb = client
		}
	}

	backend, err := newDirections(cfg, zl)
	if err != nil {
		return err
	}

	routeCache, err := newRouteCache(cfg, sqlDB, rdb)
	if err != nil {
		return err
	}
	if backend != nil && routeCache != nil {
		backend = routing.NewCachingDirections(backend, routeCache, zl)
	}

	routes := routing.NewFallbackProvider(backend, cfg.RouteTimeout, cfg.FallbackSpeedKmh, zl)

	fares, err := services.NewFareCalculator(cfg.Fare)
	if err != nil {
		return err
	}

	var sellers ports.SellerLocationRepository
	if sqlDB != nil {
		sellers = repositories.NewSQLSellerLocationRepository(sqlDB)
	}

	var store ports.NavigationStore
	if rdb != nil {
		store = cache.NewRedisNavigationStore(rdb, cfg.SnapshotTTL)
	}

	delivery := services.NewDeliveryService(routes, fares, sellers, zl)
	navigation := services.NewNavigationManager(routes, store, cfg.Navigation, zl)

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Delivery:   delivery,
		Navigation: navigation,
		MaxFixAge:  cfg.Navigation.Watch.MaximumAge,
		Log:        zl,
	})

	// WriteTimeout stays above the route timeout so a degraded answer can still be written.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RouteTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("routing_backend", cfg.RoutingBackend),
			zap.String("route_cache", cfg.RouteCache),
			zap.Bool("straight_line_only", backend == nil),
			zap.Bool("seller_repository", sellers != nil),
			zap.Bool("snapshot_store", store != nil),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown does not track hijacked websocket connections, so their
	// sessions are closed here.
	navigation.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newDirections returns a nil backend when the selected provider has no API
// key. Every route is then a straight-line estimate.
func newDirections(cfg config.Config, zl *zap.Logger) (ports.Directions, error) {
	switch cfg.RoutingBackend {
	case "google":
		if cfg.GoogleMapsAPIKey == "" {
			zl.Warn("GOOGLE_MAPS_API_KEY is empty, serving straight-line routes only")
			return nil, nil
		}
		return routing.NewGoogleDirections(cfg.GoogleMapsAPIKey, "")
	default:
		if cfg.ORSAPIKey == "" {
			zl.Warn("ORS_API_KEY is empty, serving straight-line routes only")
			return nil, nil
		}
		return routing.NewORSClient(routing.ORSConfig{
			APIKey:  cfg.ORSAPIKey,
			BaseURL: cfg.ORSBaseURL,
			Profile: cfg.ORSProfile,
		})
	}
}

func newRouteCache(cfg config.Config, sqlDB *sql.DB, rdb *redis.Client) (ports.RouteCache, error) {
	switch cfg.RouteCache {
	case "redis":
		return cache.NewRedisRouteCache(rdb, cfg.RouteCacheTTL), nil
	case "postgres":
		if sqlDB == nil {
			return nil, errors.New("ROUTE_CACHE=postgres requires DATABASE_URL")
		}
		return cache.NewSQLRouteCache(sqlDB, cfg.RouteCacheTTL), nil
	default:
		return nil, nil
	}
}
