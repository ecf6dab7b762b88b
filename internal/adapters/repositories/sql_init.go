package repositories

import (
	"artisan-delivery/internal/domain"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Initialize the Postgres schema.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createSellerLocationsQuery := `
	CREATE TABLE IF NOT EXISTS seller_locations (
		seller_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	createRouteCacheQuery := `
	CREATE TABLE IF NOT EXISTS route_cache (
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		route JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (origin, destination)
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_route_cache_created_at
	ON route_cache(created_at);
	`

	statements := []string{
		createSellerLocationsQuery,
		createRouteCacheQuery,
		createGeocodeCacheQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// SellerSeed is one seller entry in the seed file. Location may be omitted
// when Address is set; the caller is expected to geocode it first.
type SellerSeed struct {
	SellerID string             `json:"seller_id"`
	Name     string             `json:"name"`
	Address  string             `json:"address"`
	Location *domain.Coordinate `json:"location,omitempty"`
}

// LoadSellerSeeds reads and validates the seller seed file.
func LoadSellerSeeds(jsonPath string) ([]SellerSeed, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("seed sellers: read %q: %w", jsonPath, err)
	}

	var data []SellerSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("seed sellers: parse json: %w", err)
	}

	rows := make([]SellerSeed, 0, len(data))
	for i, item := range data {
		item.SellerID = strings.TrimSpace(item.SellerID)
		if item.SellerID == "" {
			return nil, fmt.Errorf("seed sellers: item at index %d: seller_id cannot be empty", i+1)
		}
		if item.Location != nil {
			if err := item.Location.Validate(); err != nil {
				return nil, fmt.Errorf("seed sellers: seller %q: %w", item.SellerID, err)
			}
		}
		item.Address = strings.TrimSpace(item.Address)
		rows = append(rows, item)
	}

	return rows, nil
}

// Upsert sellers into seller_locations. Sellers without a location are stored
// with NULL coordinates so delivery pricing reports them as missing.
func SeedSellers(db *sql.DB, sellers []SellerSeed) error {
	if db == nil {
		return errors.New("seed sellers: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed sellers: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO seller_locations (seller_id, name, address, lat, lng, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (seller_id) DO UPDATE
	SET name = EXCLUDED.name,
		address = EXCLUDED.address,
		lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		updated_at = EXCLUDED.updated_at;
	`
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("seed sellers: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range sellers {
		var lat, lng sql.NullFloat64
		if s.Location != nil {
			lat = sql.NullFloat64{Float64: s.Location.Lat, Valid: true}
			lng = sql.NullFloat64{Float64: s.Location.Lng, Valid: true}
		}
		if _, err := stmt.Exec(s.SellerID, s.Name, s.Address, lat, lng); err != nil {
			return fmt.Errorf("seed sellers: insert seller_id=%s: %w", s.SellerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed sellers: commit tx: %w", err)
	}

	return nil
}
