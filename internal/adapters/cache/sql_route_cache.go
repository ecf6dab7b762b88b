package cache

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/obs"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLRouteCache is a Postgres-backed cache of road routes keyed by rounded
// origin/destination coordinates. Rows older than TTL are treated as misses.
type SQLRouteCache struct {
	DB  *sql.DB
	TTL time.Duration
}

func NewSQLRouteCache(db *sql.DB, ttl time.Duration) *SQLRouteCache {
	return &SQLRouteCache{DB: db, TTL: ttl}
}

func (s *SQLRouteCache) Get(
	ctx context.Context,
	from domain.Coordinate,
	to domain.Coordinate,
) (_ domain.RouteResult, _ bool, err error) {
	defer obs.Time(ctx, "route.cache.sql.Get")(&err)

	if s.DB == nil {
		return domain.RouteResult{}, false, errors.New("route cache: db is nil")
	}

	q := `
	SELECT route, created_at
	FROM route_cache
	WHERE origin = $1
		AND destination = $2;
	`

	var raw []byte
	var createdAt time.Time
	err = s.DB.QueryRowContext(ctx, q, from.Key(), to.Key()).Scan(&raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RouteResult{}, false, nil
	}
	if err != nil {
		return domain.RouteResult{}, false, fmt.Errorf("get route cache: query route_cache table: %w", err)
	}

	if s.TTL > 0 && time.Since(createdAt) > s.TTL {
		return domain.RouteResult{}, false, nil
	}

	var route domain.RouteResult
	if err := json.Unmarshal(raw, &route); err != nil {
		return domain.RouteResult{}, false, fmt.Errorf("get route cache: decode route: %w", err)
	}

	return route, true, nil
}

// Put stores a route. Degraded routes are ignored.
func (s *SQLRouteCache) Put(
	ctx context.Context,
	from domain.Coordinate,
	to domain.Coordinate,
	route domain.RouteResult,
) error {
	if s.DB == nil {
		return errors.New("route cache: db is nil")
	}

	if route.Degraded {
		return nil
	}

	raw, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("insert route cache: encode route: %w", err)
	}

	q := `
	INSERT INTO route_cache (origin, destination, route, created_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (origin, destination) DO UPDATE
	SET route = EXCLUDED.route,
		created_at = EXCLUDED.created_at;
	`

	if _, err := s.DB.ExecContext(ctx, q, from.Key(), to.Key(), raw); err != nil {
		return fmt.Errorf("insert route cache %s -> %s: %w", from.Key(), to.Key(), err)
	}

	return nil
}

// Purge deletes rows older than TTL and returns how many were removed.
func (s *SQLRouteCache) Purge(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, errors.New("route cache: db is nil")
	}
	if s.TTL <= 0 {
		return 0, nil
	}

	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM route_cache WHERE created_at < now() - make_interval(secs => $1);`,
		s.TTL.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge route cache: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge route cache: rows affected: %w", err)
	}
	return n, nil
}
