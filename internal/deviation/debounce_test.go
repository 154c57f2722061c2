package deviation

import "testing"

func TestDebouncerNeedsConsecutiveFixes(t *testing.T) {
	d := NewDebouncer(2)

	if d.Observe(true) {
		t.Fatalf("single outlying fix must not deviate")
	}
	if d.Observe(false) {
		t.Fatalf("fix inside must clear")
	}
	if d.Observe(true) {
		t.Fatalf("streak restarted, expected not deviated")
	}
	if !d.Observe(true) {
		t.Fatalf("expected deviation after two consecutive fixes")
	}
	if !d.Observe(true) {
		t.Fatalf("expected deviation to persist")
	}
	if d.Observe(false) {
		t.Fatalf("expected deviation cleared on re-entry")
	}
}

func TestDebouncerMinimumK(t *testing.T) {
	d := NewDebouncer(0)
	if !d.Observe(true) {
		t.Fatalf("k below one behaves as one")
	}
	d.Reset()
	if d.Observe(false) {
		t.Fatalf("expected not deviated after reset")
	}
}
