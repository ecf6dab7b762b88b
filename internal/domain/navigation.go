package domain

import "time"

type NavigationState string

const (
	NavIdle       NavigationState = "idle"
	NavLocating   NavigationState = "locating"
	NavRouteReady NavigationState = "route_ready"
	NavNavigating NavigationState = "navigating"
	NavArrived    NavigationState = "arrived"
	NavError      NavigationState = "error"
)

// Terminal reports whether no further transition can leave the state.
func (s NavigationState) Terminal() bool {
	return s == NavArrived || s == NavError
}

// Point-in-time view of a navigation session, published on every change.
type NavigationSnapshot struct {
	SessionID            string            `json:"session_id"`
	UserID               string            `json:"user_id"`
	Seq                  uint64            `json:"seq"`
	State                NavigationState   `json:"state"`
	Destination          Coordinate        `json:"destination"`
	CurrentPosition      *Coordinate       `json:"current_position,omitempty"`
	AccuracyMeters       float64           `json:"accuracy_meters,omitempty"`
	Route                *RouteResult      `json:"route,omitempty"`
	RemainingKm          float64           `json:"remaining_km"`
	RemainingDurationMin float64           `json:"remaining_duration_min"`
	ArrivalThresholdKm   float64           `json:"arrival_threshold_km"`
	StepIndex            int               `json:"step_index"`
	CurrentInstruction   string            `json:"current_instruction,omitempty"`
	ErrorCode            PositionErrorCode `json:"error_code,omitempty"`
	ErrorMessage         string            `json:"error_message,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}
