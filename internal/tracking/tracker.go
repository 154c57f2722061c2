package tracking

import (
	"context"
	"errors"
	"log"
	"sync"

	"backend-tripalarm/internal/shared/geo"
)

var ErrAlreadyStarted = errors.New("tracker already started")

// Source is a continuous location subscription. The returned channel is
// closed once ctx is done or the subscription is lost.
type Source interface {
	Subscribe(ctx context.Context, opts Options) (<-chan Fix, error)
}

// Permissions asks for location access, foreground first, then background.
type Permissions interface {
	RequestForeground(ctx context.Context) (Permission, error)
	RequestBackground(ctx context.Context) (Permission, error)
}

// Tracker owns the lifecycle of one location subscription and filters the raw
// stream down to fixes that moved at least MinDistanceMeters.
type Tracker struct {
	source Source
	perms  Permissions

	mu         sync.Mutex
	state      State
	opts       Options
	callback   func(Fix)
	cancel     context.CancelFunc
	gen        uint64
	last       *geo.GeoPoint
	background Permission
	listeners  []func(State)
}

func NewTracker(source Source, perms Permissions) *Tracker {
	return &Tracker{
		source:     source,
		perms:      perms,
		state:      StateIdle,
		background: PermissionUndetermined,
	}
}

// OnStateChange registers fn to be called after every state change.
func (t *Tracker) OnStateChange(fn func(State)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// BackgroundAllowed reports whether background location access was granted.
func (t *Tracker) BackgroundAllowed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.background == PermissionGranted
}

// Start requests permissions and begins delivering fixes to callback in
// arrival order. A declined foreground permission returns *PermissionError and
// leaves the tracker unavailable; a declined background permission only
// limits tracking to the foreground.
func (t *Tracker) Start(ctx context.Context, callback func(Fix), opts Options) error {
	t.mu.Lock()
	if t.state == StateActive || t.state == StatePaused {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.opts = opts
	t.callback = callback
	t.mu.Unlock()

	fg, err := t.perms.RequestForeground(ctx)
	if err != nil || fg == PermissionDenied {
		t.setState(StateUnavailable)
		return &PermissionError{Scope: "foreground", Status: fg, Err: err}
	}

	bg, err := t.perms.RequestBackground(ctx)
	if err != nil {
		log.Printf("background location request failed: %v", err)
		bg = PermissionDenied
	}
	if bg == PermissionDenied {
		log.Printf("background location declined, tracking limited to foreground")
	}
	t.mu.Lock()
	t.background = bg
	t.mu.Unlock()

	if err := t.subscribe(); err != nil {
		t.setState(StateUnavailable)
		return err
	}
	t.setState(StateActive)
	return nil
}

// Stop releases the subscription. Fixes are not delivered once Stop returns.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.unsubscribeLocked()
	t.callback = nil
	t.last = nil
	changed := t.state != StateIdle
	t.state = StateIdle
	listeners := t.listeners
	t.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(StateIdle)
		}
	}
}

// OnBackground is called when the host app leaves the foreground.
func (t *Tracker) OnBackground() {
	if !t.BackgroundAllowed() {
		log.Printf("app backgrounded without background location, fixes may stop")
	}
}

// OnForeground re-validates permission when the host app returns to the
// foreground. A revoked permission pauses the tracker; a granted one restores
// the subscription if it was paused or lost. An unavailable tracker retries
// Start with the callback it was first given.
func (t *Tracker) OnForeground(ctx context.Context) error {
	t.mu.Lock()
	state := t.state
	callback, opts := t.callback, t.opts
	t.mu.Unlock()
	if state == StateUnavailable && callback != nil {
		return t.Start(ctx, callback, opts)
	}
	if state != StateActive && state != StatePaused {
		return nil
	}

	fg, err := t.perms.RequestForeground(ctx)
	if err != nil || fg == PermissionDenied {
		t.mu.Lock()
		t.unsubscribeLocked()
		t.mu.Unlock()
		t.setState(StatePaused)
		return &PermissionError{Scope: "foreground", Status: fg, Err: err}
	}

	t.mu.Lock()
	subscribed := t.cancel != nil
	t.mu.Unlock()
	if !subscribed {
		if err := t.subscribe(); err != nil {
			t.setState(StatePaused)
			return err
		}
	}
	t.setState(StateActive)
	return nil
}

func (t *Tracker) subscribe() error {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	opts := t.opts
	t.mu.Unlock()

	fixes, err := t.source.Subscribe(ctx, opts)
	if err != nil {
		cancel()
		return err
	}

	t.mu.Lock()
	t.unsubscribeLocked()
	t.gen++
	gen := t.gen
	t.cancel = cancel
	t.mu.Unlock()

	go t.pump(gen, fixes)
	return nil
}

func (t *Tracker) unsubscribeLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
}

func (t *Tracker) pump(gen uint64, fixes <-chan Fix) {
	for fix := range fixes {
		cb, ok := t.accept(gen, fix)
		if !ok {
			continue
		}
		cb(fix)
	}

	t.mu.Lock()
	if t.gen == gen {
		// subscription lost without Stop; OnForeground resubscribes
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
	}
	t.mu.Unlock()
}

func (t *Tracker) accept(gen uint64, fix Fix) (func(Fix), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen != gen || t.callback == nil {
		return nil, false
	}
	if !fix.Position.Valid() {
		log.Printf("dropping invalid fix %v", fix.Position)
		return nil, false
	}
	if fix.AccuracyM > 0 && fix.AccuracyM > t.opts.DesiredAccuracy.maxErrorM() {
		return nil, false
	}
	if t.last != nil && geo.DistanceMeters(*t.last, fix.Position) < t.opts.MinDistanceMeters {
		return nil, false
	}
	p := fix.Position
	t.last = &p
	return t.callback, true
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	if t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	listeners := t.listeners
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
