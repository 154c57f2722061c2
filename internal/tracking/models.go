package tracking

import (
	"time"

	"backend-tripalarm/internal/shared/geo"
)

// Fix is one position report from the device.
type Fix struct {
	Position   geo.GeoPoint `json:"position"`
	AccuracyM  float64      `json:"accuracy_m"`
	RecordedAt time.Time    `json:"recorded_at"`
}

type Accuracy string

const (
	AccuracyHigh     Accuracy = "high"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyLow      Accuracy = "low"
)

// maxErrorM is the worst reported accuracy radius accepted per level.
func (a Accuracy) maxErrorM() float64 {
	switch a {
	case AccuracyHigh:
		return 50
	case AccuracyLow:
		return 1000
	default:
		return 150
	}
}

type Options struct {
	MinDistanceMeters float64
	DesiredAccuracy   Accuracy
}

type Permission string

const (
	PermissionUndetermined Permission = "undetermined"
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
)

type State string

const (
	StateIdle        State = "idle"
	StateActive      State = "active"
	StatePaused      State = "paused"
	StateUnavailable State = "unavailable"
)

// Session is a trip history record.
type Session struct {
	ID             string    `json:"id"`
	PlanID         string    `json:"plan_id"`
	UserID         string    `json:"user_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
	TotalDistanceM float64   `json:"total_distance_m"`
	Status         string    `json:"status"`
}

type TrackPoint struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type Summary struct {
	SessionID     string  `json:"session_id"`
	Status        string  `json:"status"`
	PointCount    int     `json:"point_count"`
	DistanceM     float64 `json:"distance_m"`
	DurationSec   int64   `json:"duration_sec"`
	AverageSpeedM float64 `json:"average_speed_mps"`
}
