package navigation

import (
	"time"

	"backend-tripalarm/internal/alarm"
	"backend-tripalarm/internal/routing"
	"backend-tripalarm/internal/shared/geo"
	"backend-tripalarm/internal/tracking"
)

type State string

const (
	StateInitializing State = "initializing"
	StateTracking     State = "tracking"
	StateDeviated     State = "deviated"
	StateArrived      State = "arrived"
	StateAlarmActive  State = "alarm_active"
	StateStopped      State = "stopped"
	StateCancelled    State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateStopped || s == StateCancelled
}

// navigating reports whether fixes still drive route resolution.
func (s State) navigating() bool {
	return s == StateInitializing || s == StateTracking || s == StateDeviated
}

// Trip history statuses written when a session ends.
const (
	StatusArrived   = "arrived"
	StatusStopped   = "stopped"
	StatusCancelled = "cancelled"
)

// session is the navigation state owned by the engine loop.
type session struct {
	state           State
	position        *geo.GeoPoint
	plannedLeg      *routing.Leg
	liveLeg         *routing.Leg
	initialDistance float64
	initialSet      bool
	progress        float64
	eta             time.Time
	retrying        bool
	deviationNotice bool
	arrival         *alarm.Event
	nextCheckpoint  int
	lastUpdatedAt   time.Time
}

// Snapshot is the read-only view of a session handed to the UI.
type Snapshot struct {
	SessionID             string         `json:"session_id"`
	PlanID                string         `json:"plan_id,omitempty"`
	State                 State          `json:"state"`
	CurrentPosition       *geo.GeoPoint  `json:"current_position,omitempty"`
	Destination           geo.GeoPoint   `json:"destination"`
	DestinationLabel      string         `json:"destination_label"`
	PlannedLeg            *routing.Leg   `json:"planned_leg,omitempty"`
	LiveLeg               *routing.Leg   `json:"live_leg,omitempty"`
	InitialDistanceMeters float64        `json:"initial_distance_m"`
	Progress              float64        `json:"progress"`
	ETA                   *time.Time     `json:"eta,omitempty"`
	ETALabel              string         `json:"eta_label,omitempty"`
	RemainingLabel        string         `json:"remaining_label,omitempty"`
	CheckpointsRemaining  int            `json:"checkpoints_remaining"`
	Retrying              bool           `json:"retrying"`
	DeviationNotice       bool           `json:"deviation_notice"`
	Tracker               tracking.State `json:"tracker"`
	TrackingPaused        bool           `json:"tracking_paused"`
	TrackingUnavailable   bool           `json:"tracking_unavailable"`
	Alarm                 *alarm.Event   `json:"alarm,omitempty"`
	AlarmConfig           alarm.Config   `json:"alarm_config"`
	LastUpdatedAt         time.Time      `json:"last_updated_at"`
}
