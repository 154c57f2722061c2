package navigation

import (
	"fmt"
	"math"
	"time"
)

// Progress is the share of the trip already covered, clamped to [0,1].
func Progress(remainingMeters, initialMeters float64) float64 {
	if math.IsNaN(remainingMeters) || math.IsNaN(initialMeters) {
		return 0
	}
	if initialMeters <= 0 {
		if remainingMeters <= 0 {
			return 1
		}
		return 0
	}
	p := 1 - remainingMeters/initialMeters
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func ETALabel(eta time.Time) string {
	return eta.Format("15:04")
}

// RemainingLabel renders a travel time as "15 min" or "1 h 05 min".
func RemainingLabel(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int(math.Round(d.Minutes()))
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	return fmt.Sprintf("%d h %02d min", mins/60, mins%60)
}
