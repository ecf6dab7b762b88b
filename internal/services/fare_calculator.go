package services

import (
	"artisan-delivery/internal/domain"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FareTier charges RatePerKm for every kilometre up to UpToKm.
// UpToKm == 0 marks the unbounded last band.
type FareTier struct {
	UpToKm    float64
	RatePerKm domain.Money
}

type FareConfig struct {
	Currency string
	BaseFare domain.Money
	Tiers    []FareTier
}

// DefaultFareConfig: ₹40 base, ₹10/km for the first 5 km, ₹8/km up to 20 km, ₹6/km beyond.
func DefaultFareConfig() FareConfig {
	return FareConfig{
		Currency: "INR",
		BaseFare: 4000,
		Tiers: []FareTier{
			{UpToKm: 5, RatePerKm: 1000},
			{UpToKm: 20, RatePerKm: 800},
			{UpToKm: 0, RatePerKm: 600},
		},
	}
}

// ParseFareTiers parses "upToKm:rateMinor,..." e.g. "5:1000,20:800,0:600".
func ParseFareTiers(s string) ([]FareTier, error) {
	parts := strings.Split(s, ",")
	tiers := make([]FareTier, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		upTo, rate, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("parse fare tiers: band #%d %q: want upToKm:rate", i+1, p)
		}

		km, err := strconv.ParseFloat(strings.TrimSpace(upTo), 64)
		if err != nil {
			return nil, fmt.Errorf("parse fare tiers: band #%d bound: %w", i+1, err)
		}
		r, err := strconv.ParseInt(strings.TrimSpace(rate), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse fare tiers: band #%d rate: %w", i+1, err)
		}

		tiers = append(tiers, FareTier{UpToKm: km, RatePerKm: domain.Money(r)})
	}

	if len(tiers) == 0 {
		return nil, errors.New("parse fare tiers: no bands")
	}
	return tiers, nil
}

// Validate checks that bands are finite, ascending and non-negative, and that
// only the last band may be unbounded.
func (c FareConfig) Validate() error {
	if c.BaseFare < 0 {
		return fmt.Errorf("fare config: base fare %d must not be negative", c.BaseFare)
	}
	if len(c.Tiers) == 0 {
		return errors.New("fare config: at least one tier is required")
	}

	prev := 0.0
	for i, t := range c.Tiers {
		if t.RatePerKm < 0 {
			return fmt.Errorf("fare config: tier #%d rate %d must not be negative", i+1, t.RatePerKm)
		}
		if math.IsNaN(t.UpToKm) || math.IsInf(t.UpToKm, 0) || t.UpToKm < 0 {
			return fmt.Errorf("fare config: tier #%d bound %v is invalid", i+1, t.UpToKm)
		}
		if t.UpToKm == 0 {
			if i != len(c.Tiers)-1 {
				return fmt.Errorf("fare config: unbounded tier #%d must be last", i+1)
			}
			continue
		}
		if t.UpToKm <= prev {
			return fmt.Errorf("fare config: tier #%d bound %v must exceed %v", i+1, t.UpToKm, prev)
		}
		prev = t.UpToKm
	}
	return nil
}

// FareCalculator prices a route as a flat base fare plus a marginal tiered
// per-km distance fare. It is pure and safe for concurrent use.
type FareCalculator struct {
	cfg FareConfig
}

func NewFareCalculator(cfg FareConfig) (*FareCalculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	cfg.Tiers = append([]FareTier(nil), cfg.Tiers...)
	return &FareCalculator{cfg: cfg}, nil
}

func (f *FareCalculator) BaseFare() domain.Money { return f.cfg.BaseFare }

func (f *FareCalculator) Currency() string { return f.cfg.Currency }

// ComputeFare never fails; degraded routes are priced on their straight-line distance.
func (f *FareCalculator) ComputeFare(route domain.RouteResult) domain.FareBreakdown {
	km := route.DistanceKm
	if math.IsNaN(km) || math.IsInf(km, 0) || km < 0 {
		km = 0
	}

	distanceFare := domain.RoundHalfUp(f.distanceMinor(km))

	return domain.FareBreakdown{
		BaseFare:     f.cfg.BaseFare,
		DistanceFare: distanceFare,
		Total:        f.cfg.BaseFare + distanceFare,
		Currency:     f.cfg.Currency,
		DistanceKm:   km,
		DurationMin:  route.DurationMin,
		Degraded:     route.Degraded,
	}
}

// distanceMinor charges each kilometre at the rate of the band it falls in.
// Distance past a bounded last band is charged at that band's rate.
func (f *FareCalculator) distanceMinor(km float64) float64 {
	total := 0.0
	lower := 0.0
	for i, t := range f.cfg.Tiers {
		last := i == len(f.cfg.Tiers)-1
		upper := t.UpToKm
		if upper == 0 || last {
			upper = math.Inf(1)
		}

		if km <= lower {
			break
		}
		span := math.Min(km, upper) - lower
		total += span * float64(t.RatePerKm)
		lower = upper
	}
	return total
}
