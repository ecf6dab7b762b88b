package domain

// Single turn-by-turn maneuver of a route.
type NavigationStep struct {
	Instruction    string  `json:"instruction"`
	DistanceMeters float64 `json:"distance_meters"`
	DurationSec    float64 `json:"duration_sec"`
}

// Represents a travel route between two coordinates.
// A RouteResult is produced fresh per request and never mutated afterwards.
// Degraded marks a straight-line fallback with no real road geometry.
type RouteResult struct {
	Geometry    []Coordinate     `json:"geometry"`
	DistanceKm  float64          `json:"distance_km"`
	DurationMin float64          `json:"duration_min"`
	Steps       []NavigationStep `json:"steps"`
	Degraded    bool             `json:"degraded"`
}

// StraightLineRoute builds the degraded two-point route between from and to.
// Duration assumes a constant speed of speedKmh.
func StraightLineRoute(from, to Coordinate, speedKmh float64) RouteResult {
	km := HaversineKm(from, to)

	minutes := 0.0
	if speedKmh > 0 {
		minutes = km / speedKmh * 60
	}

	return RouteResult{
		Geometry:    []Coordinate{from, to},
		DistanceKm:  km,
		DurationMin: minutes,
		Steps:       []NavigationStep{},
		Degraded:    true,
	}
}

// TotalStepMeters sums the distance of all steps.
func (r RouteResult) TotalStepMeters() float64 {
	total := 0.0
	for _, s := range r.Steps {
		total += s.DistanceMeters
	}
	return total
}
