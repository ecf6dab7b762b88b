package repositories

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/obs"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Postgres-backed implementation of the SellerLocationRepository port.
type SQLSellerLocationRepository struct{ DB *sql.DB }

func NewSQLSellerLocationRepository(db *sql.DB) *SQLSellerLocationRepository {
	return &SQLSellerLocationRepository{DB: db}
}

// Return stored coordinates for the given sellers. Sellers with no row or
// NULL coordinates are left out of the result.
func (s *SQLSellerLocationRepository) GetLocations(
	ctx context.Context,
	sellerIDs []string,
) (_ map[string]domain.Coordinate, err error) {
	defer obs.Time(ctx, "sellers.GetLocations")(&err)

	if s.DB == nil {
		return nil, errors.New("seller location repository: DB is nil")
	}

	seen := map[string]struct{}{}
	uniq := make([]string, 0, len(sellerIDs))
	for _, id := range sellerIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}

	if len(uniq) == 0 {
		return map[string]domain.Coordinate{}, nil
	}

	query := `
	SELECT seller_id, lat, lng
	FROM seller_locations
	WHERE seller_id = ANY($1::text[])
		AND lat IS NOT NULL
		AND lng IS NOT NULL;
	`
	rows, err := s.DB.QueryContext(ctx, query, uniq)
	if err != nil {
		return nil, fmt.Errorf("get seller locations: query seller_locations table: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Coordinate, len(uniq))
	for rows.Next() {
		var id string
		var c domain.Coordinate
		if err := rows.Scan(&id, &c.Lat, &c.Lng); err != nil {
			return nil, fmt.Errorf("get seller locations: scan row: %w", err)
		}
		out[id] = c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get seller locations: row iteration: %w", err)
	}

	return out, nil
}

// Return sellers that have an address but no coordinates yet.
func (s *SQLSellerLocationRepository) ListUnlocated(ctx context.Context) (map[string]string, error) {
	if s.DB == nil {
		return nil, errors.New("seller location repository: DB is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT seller_id, address
	FROM seller_locations
	WHERE (lat IS NULL OR lng IS NULL)
		AND address <> ''
	ORDER BY seller_id;
	`)
	if err != nil {
		return nil, fmt.Errorf("list unlocated sellers: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, addr string
		if err := rows.Scan(&id, &addr); err != nil {
			return nil, fmt.Errorf("list unlocated sellers: scan row: %w", err)
		}
		out[id] = addr
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unlocated sellers: row iteration: %w", err)
	}

	return out, nil
}

// Set the coordinates of an existing seller.
func (s *SQLSellerLocationRepository) SetLocation(ctx context.Context, sellerID string, c domain.Coordinate) error {
	if s.DB == nil {
		return errors.New("seller location repository: DB is nil")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("set seller location %s: %w", sellerID, err)
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE seller_locations SET lat = $2, lng = $3, updated_at = now() WHERE seller_id = $1;`,
		sellerID, c.Lat, c.Lng,
	)
	if err != nil {
		return fmt.Errorf("set seller location %s: %w", sellerID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set seller location %s: %w", sellerID, sql.ErrNoRows)
	}

	return nil
}
