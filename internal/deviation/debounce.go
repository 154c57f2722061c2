package deviation

// DefaultConsecutiveFixes is the number of violating fixes in a row needed
// before a deviation is reported.
const DefaultConsecutiveFixes = 2

// Debouncer turns per-fix corridor results into a deviation state. Leaving
// the corridor needs K consecutive violating fixes; a single fix back inside
// clears the state.
type Debouncer struct {
	k      int
	streak int
}

func NewDebouncer(k int) *Debouncer {
	if k < 1 {
		k = 1
	}
	return &Debouncer{k: k}
}

// Observe records one fix and returns whether the traveller is deviated.
func (d *Debouncer) Observe(outside bool) bool {
	if !outside {
		d.streak = 0
		return false
	}
	if d.streak < d.k {
		d.streak++
	}
	return d.streak >= d.k
}

func (d *Debouncer) Reset() {
	d.streak = 0
}
