package domain

import (
	"fmt"
	"time"
)

// Single device position report.
type PositionFix struct {
	Coordinate     Coordinate `json:"coordinate"`
	AccuracyMeters float64    `json:"accuracy_meters"`
	Timestamp      time.Time  `json:"timestamp"`
}

type PositionErrorCode string

const (
	PositionPermissionDenied PositionErrorCode = "permission_denied"
	PositionUnavailable      PositionErrorCode = "position_unavailable"
	PositionTimeout          PositionErrorCode = "timeout"
)

// ParsePositionErrorCode maps a wire code to a known category.
func ParsePositionErrorCode(s string) (PositionErrorCode, bool) {
	switch c := PositionErrorCode(s); c {
	case PositionPermissionDenied, PositionUnavailable, PositionTimeout:
		return c, true
	}
	return "", false
}

// PositionError is a categorised positioning failure.
type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func NewPositionError(code PositionErrorCode, msg string) *PositionError {
	return &PositionError{Code: code, Message: msg}
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("position error: %s", e.Code)
	}
	return fmt.Sprintf("position error: %s: %s", e.Code, e.Message)
}

// Guidance returns a user-facing, actionable message for the failure category.
func (e *PositionError) Guidance() string {
	switch e.Code {
	case PositionPermissionDenied:
		return "Location permission denied. Enable location access for this app in your device settings."
	case PositionUnavailable:
		return "Your position is currently unavailable. Check that location services are on and try again outdoors."
	case PositionTimeout:
		return "Finding your position took too long. Move to an area with better signal and try again."
	default:
		return "Could not determine your position."
	}
}

// Element of a continuous position stream: either a fix or a failure.
type PositionUpdate struct {
	Fix PositionFix
	Err *PositionError
}
