package alarm

import "time"

type Kind string

const (
	KindArrival   Kind = "arrival"
	KindDeviation Kind = "deviation"
)

// Event is what the navigation engine hands to the controller.
type Event struct {
	Kind    Kind      `json:"kind"`
	FiredAt time.Time `json:"fired_at"`
}

const DefaultEarlyRadius = 500

// Config is the per-trip alarm preference.
type Config struct {
	SoundID                 string `json:"sound_id"`
	VibrationEnabled        bool   `json:"vibration_enabled"`
	NotifyEarlyRadiusMeters int    `json:"notify_early_radius_m" validate:"oneof=300 500 700"`
}

type Notification struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// DefaultPattern is the repeating vibration pattern: wait, vibrate, pause.
var DefaultPattern = []time.Duration{0, 500 * time.Millisecond, 500 * time.Millisecond}

const DefaultSound = "default"
