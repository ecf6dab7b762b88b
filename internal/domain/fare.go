package domain

// Decomposition of a delivery charge into a flat base fee and a distance component.
// Total always equals BaseFare + DistanceFare.
type FareBreakdown struct {
	BaseFare     Money   `json:"base_fare"`
	DistanceFare Money   `json:"distance_fare"`
	Total        Money   `json:"total"`
	Currency     string  `json:"currency"`
	DistanceKm   float64 `json:"distance_km"`
	DurationMin  float64 `json:"duration_min"`
	// Degraded is true when the fare was priced from a straight-line estimate.
	Degraded bool `json:"degraded"`
}
