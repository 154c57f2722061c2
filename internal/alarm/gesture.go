package alarm

// StopThreshold is the share of the track a drag must cover to stop the
// alarm.
const StopThreshold = 0.9

type GestureResult struct {
	Fraction   float64 `json:"fraction"`
	Stop       bool    `json:"stop"`
	SpringBack bool    `json:"spring_back"`
}

// EvaluateDrag judges a slide-to-stop drag of dragged units along a track of
// trackLength units. Anything short of the threshold springs back.
func EvaluateDrag(dragged, trackLength float64) GestureResult {
	if trackLength <= 0 || dragged <= 0 {
		return GestureResult{SpringBack: true}
	}
	fraction := dragged / trackLength
	if fraction > 1 {
		fraction = 1
	}
	if fraction >= StopThreshold {
		return GestureResult{Fraction: fraction, Stop: true}
	}
	return GestureResult{Fraction: fraction, SpringBack: true}
}
