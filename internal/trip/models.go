package trip

import (
	"time"

	"backend-tripalarm/internal/alarm"
	"backend-tripalarm/internal/shared/geo"
)

// Plan is a saved route: what the trip wizard produces and a navigation
// session consumes. Checkpoints are visited in slice order.
type Plan struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id" validate:"required"`
	Name        string         `json:"name"`
	Origin      *geo.GeoPoint  `json:"origin" validate:"required"`
	Destination *geo.GeoPoint  `json:"destination" validate:"required"`
	Checkpoints []geo.GeoPoint `json:"checkpoints" validate:"dive"`
	Alarm       alarm.Config   `json:"alarm"`
	CreatedAt   time.Time      `json:"created_at"`
}
