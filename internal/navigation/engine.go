package navigation

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"backend-tripalarm/internal/alarm"
	"backend-tripalarm/internal/deviation"
	"backend-tripalarm/internal/routing"
	"backend-tripalarm/internal/shared/geo"
	"backend-tripalarm/internal/tracking"
	"backend-tripalarm/internal/trip"

	"github.com/paulmach/orb"
)

var (
	ErrInvalidPlan       = errors.New("plan needs a valid origin and destination")
	ErrInvalidTransition = errors.New("action not allowed in the current state")
	ErrSessionEnded      = errors.New("navigation session has ended")
	ErrAlreadyStarted    = errors.New("navigation session already started")
)

const (
	DefaultCorridorWidthMeters    = 150
	DefaultCheckpointRadiusMeters = 100

	eventBuffer   = 64
	effectBuffer  = 128
	historyBuffer = 256
	alarmTimeout  = 5 * time.Second
)

type Resolver interface {
	Resolve(ctx context.Context, from, to geo.GeoPoint, waypoints []geo.GeoPoint) (routing.Leg, error)
}

type PositionTracker interface {
	Start(ctx context.Context, callback func(tracking.Fix), opts tracking.Options) error
	Stop()
	State() tracking.State
	OnStateChange(fn func(tracking.State))
}

type Alarm interface {
	Trigger(ctx context.Context, ev alarm.Event, cfg alarm.Config) error
	Clear(ctx context.Context, kind alarm.Kind) error
	Stop(ctx context.Context) error
}

type Publisher interface {
	Publish(snap Snapshot)
}

type History interface {
	AddPoint(ctx context.Context, sessionID string, p tracking.TrackPoint) (tracking.TrackPoint, error)
	EndSession(ctx context.Context, sessionID, status string) error
}

type Options struct {
	Tracker                tracking.Options
	DebounceFixes          int
	CorridorWidthMeters    float64
	CheckpointRadiusMeters float64
	DestinationLabel       string
	Publisher              Publisher
	History                History
	Now                    func() time.Time
}

type fixEvent struct {
	fix tracking.Fix
}

type resolvedEvent struct {
	seq     uint64
	planned bool
	leg     routing.Leg
	err     error
}

type refreshEvent struct{}

type commandEvent struct {
	fn    func() error
	reply chan error
}

// Engine drives one navigation session. All session state is owned by a
// single loop goroutine; fixes, route results and user commands reach it as
// events and are handled strictly in the order they arrive.
type Engine struct {
	id       string
	plan     trip.Plan
	resolver Resolver
	tracker  PositionTracker
	alarm    Alarm
	opts     Options

	ctx     context.Context
	cancel  context.CancelFunc
	events  chan any
	done    chan struct{}
	started atomic.Bool

	// publishes and alarm calls, run in order off the loop
	effects     chan func()
	effectsDone chan struct{}

	// loop-owned
	s            session
	seq          uint64
	appliedSeq   uint64
	inflight     map[uint64]context.CancelFunc
	plannedBusy  bool
	corridor     orb.MultiPolygon
	noCorridor   bool
	debounce     *deviation.Debouncer
	alarmStopped bool
	history      chan tracking.TrackPoint
	endStatus    string

	mu   sync.RWMutex
	snap Snapshot
}

func NewEngine(id string, plan trip.Plan, resolver Resolver, tracker PositionTracker, alarmCtl Alarm, opts Options) (*Engine, error) {
	if plan.Origin == nil || plan.Destination == nil || !plan.Origin.Valid() || !plan.Destination.Valid() {
		return nil, ErrInvalidPlan
	}
	if opts.DebounceFixes <= 0 {
		opts.DebounceFixes = deviation.DefaultConsecutiveFixes
	}
	if opts.CorridorWidthMeters <= 0 {
		opts.CorridorWidthMeters = DefaultCorridorWidthMeters
	}
	if opts.CheckpointRadiusMeters <= 0 {
		opts.CheckpointRadiusMeters = DefaultCheckpointRadiusMeters
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DestinationLabel == "" {
		opts.DestinationLabel = plan.Destination.String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		id:          id,
		plan:        plan,
		resolver:    resolver,
		tracker:     tracker,
		alarm:       alarmCtl,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan any, eventBuffer),
		done:        make(chan struct{}),
		effects:     make(chan func(), effectBuffer),
		effectsDone: make(chan struct{}),
		inflight:    map[uint64]context.CancelFunc{},
		debounce:    deviation.NewDebouncer(opts.DebounceFixes),
		s: session{
			state:         StateInitializing,
			lastUpdatedAt: opts.Now(),
		},
	}
	if opts.History != nil {
		e.history = make(chan tracking.TrackPoint, historyBuffer)
	}
	e.snap = e.snapshot()
	return e, nil
}

func (e *Engine) ID() string { return e.id }

// attachHistory records the session's fixes to h. It must run before Start.
func (e *Engine) attachHistory(h History) {
	e.opts.History = h
	e.history = make(chan tracking.TrackPoint, historyBuffer)
}

// Done is closed once the session reaches a terminal state.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Start launches the session loop and subscribes to position fixes. A
// *tracking.PermissionError leaves the session running in Initializing with
// tracking unavailable until permission is granted again.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	e.tracker.OnStateChange(func(tracking.State) { e.tryPost(refreshEvent{}) })
	if e.history != nil {
		go e.recordHistory(e.history)
	}
	go e.runEffects()
	go e.loop()
	err := e.tracker.Start(ctx, e.onFix, e.opts.Tracker)
	e.post(refreshEvent{})
	return err
}

// Stop applies a slide-to-stop drag. Only a completed gesture stops the
// alarm; a partial drag springs back and leaves the session as it was.
func (e *Engine) Stop(ctx context.Context, dragged, trackLength float64) (alarm.GestureResult, error) {
	g := alarm.EvaluateDrag(dragged, trackLength)
	err := e.do(ctx, func() error {
		if e.s.state != StateAlarmActive {
			return ErrInvalidTransition
		}
		if g.Stop {
			e.finish(StateStopped, StatusArrived)
		}
		return nil
	})
	return g, err
}

// End ends the trip: Stopped while the alarm rings, Cancelled otherwise.
func (e *Engine) End(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.s.state == StateAlarmActive {
			e.finish(StateStopped, StatusStopped)
		} else {
			e.finish(StateCancelled, StatusCancelled)
		}
		return nil
	})
}

func (e *Engine) Cancel(ctx context.Context) error {
	return e.do(ctx, func() error {
		e.finish(StateCancelled, StatusCancelled)
		return nil
	})
}

// DismissDeviation hides the deviation notice for the current episode.
func (e *Engine) DismissDeviation(ctx context.Context) error {
	return e.do(ctx, func() error {
		if !e.s.deviationNotice {
			return nil
		}
		e.clearDeviationNotice()
		e.publish()
		return nil
	})
}

func (e *Engine) onFix(f tracking.Fix) {
	e.post(fixEvent{fix: f})
}

func (e *Engine) post(ev any) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) tryPost(ev any) {
	select {
	case e.events <- ev:
	case <-e.done:
	default:
	}
}

func (e *Engine) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.events <- commandEvent{fn: fn, reply: reply}:
	case <-e.done:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-e.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionEnded
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) loop() {
	defer close(e.done)

	e.resolvePlanned()
	e.publish()

	for {
		switch ev := (<-e.events).(type) {
		case fixEvent:
			e.handleFix(ev.fix)
		case resolvedEvent:
			if ev.planned {
				e.handlePlanned(ev)
			} else {
				e.handleResolved(ev)
			}
		case refreshEvent:
			e.publish()
		case commandEvent:
			ev.reply <- ev.fn()
		}
		if e.s.state.Terminal() {
			return
		}
	}
}

func (e *Engine) handleFix(f tracking.Fix) {
	pos := f.Position
	e.s.position = &pos
	e.s.lastUpdatedAt = e.opts.Now()
	e.record(f)

	if !e.s.state.navigating() {
		e.publish()
		return
	}

	e.seq++
	e.expire()
	e.advanceCheckpoints(pos)
	if e.s.plannedLeg == nil {
		e.resolvePlanned()
	}
	if e.s.state == StateTracking || e.s.state == StateDeviated {
		e.checkDeviation(pos)
	}
	e.resolveLive(e.seq, pos)
	e.publish()
}

// expire fails resolves still outstanding two fixes after they were issued.
func (e *Engine) expire() {
	for seq, cancel := range e.inflight {
		if seq+2 > e.seq {
			continue
		}
		cancel()
		delete(e.inflight, seq)
		log.Printf("route resolve %d for session %s timed out", seq, e.id)
		e.resolveFailed()
	}
}

func (e *Engine) resolveFailed() {
	if e.s.state == StateInitializing {
		e.s.retrying = true
	}
}

func (e *Engine) resolvePlanned() {
	if e.s.plannedLeg != nil || e.plannedBusy {
		return
	}
	e.plannedBusy = true

	ctx := e.ctx
	from, to := *e.plan.Origin, *e.plan.Destination
	waypoints := append([]geo.GeoPoint(nil), e.plan.Checkpoints...)
	go func() {
		leg, err := e.resolver.Resolve(ctx, from, to, waypoints)
		e.post(resolvedEvent{planned: true, leg: leg, err: err})
	}()
}

func (e *Engine) handlePlanned(ev resolvedEvent) {
	e.plannedBusy = false
	if ev.err != nil {
		log.Printf("planned route for session %s: %v", e.id, ev.err)
		return
	}
	leg := ev.leg
	e.s.plannedLeg = &leg
	e.corridor = geo.Corridor(leg.Geometry, e.opts.CorridorWidthMeters)
	e.publish()
}

func (e *Engine) resolveLive(seq uint64, from geo.GeoPoint) {
	ctx, cancel := context.WithCancel(e.ctx)
	e.inflight[seq] = cancel

	to := *e.plan.Destination
	waypoints := e.remainingCheckpoints()
	go func() {
		leg, err := e.resolver.Resolve(ctx, from, to, waypoints)
		e.post(resolvedEvent{seq: seq, leg: leg, err: err})
	}()
}

func (e *Engine) handleResolved(ev resolvedEvent) {
	cancel, ok := e.inflight[ev.seq]
	if !ok || ev.seq <= e.appliedSeq {
		if ok {
			cancel()
			delete(e.inflight, ev.seq)
		}
		log.Printf("discarding stale route %d for session %s", ev.seq, e.id)
		return
	}
	cancel()
	delete(e.inflight, ev.seq)
	e.appliedSeq = ev.seq
	for seq, c := range e.inflight {
		if seq < ev.seq {
			c()
			delete(e.inflight, seq)
		}
	}

	if !e.s.state.navigating() {
		return
	}
	if ev.err != nil {
		log.Printf("route resolve %d for session %s failed: %v", ev.seq, e.id, ev.err)
		e.resolveFailed()
		e.publish()
		return
	}

	now := e.opts.Now()
	leg := ev.leg
	e.s.liveLeg = &leg
	e.s.retrying = false
	if !e.s.initialSet {
		e.s.initialDistance = leg.DistanceMeters
		e.s.initialSet = true
	}
	e.s.progress = Progress(leg.DistanceMeters, e.s.initialDistance)
	e.s.eta = now.Add(time.Duration(leg.DurationSeconds * float64(time.Second)))
	e.s.lastUpdatedAt = now

	if e.s.state == StateInitializing {
		e.s.state = StateTracking
		e.debounce.Reset()
	}
	e.checkArrival()
	e.publish()
}

func (e *Engine) checkDeviation(pos geo.GeoPoint) {
	if len(e.corridor) == 0 {
		if e.s.plannedLeg != nil && !e.noCorridor {
			e.noCorridor = true
			if _, err := deviation.Check(pos, e.corridor); err != nil {
				log.Printf("session %s: deviation checks skipped: %v", e.id, err)
			}
		}
		return
	}
	outside := deviation.IsDeviated(pos, e.corridor)
	deviated := e.debounce.Observe(outside)

	switch {
	case e.s.state == StateTracking && deviated:
		e.s.state = StateDeviated
		e.s.deviationNotice = true
		e.fireAlarm(alarm.Event{Kind: alarm.KindDeviation, FiredAt: e.opts.Now()})
	case e.s.state == StateDeviated && !outside:
		e.s.state = StateTracking
		e.clearDeviationNotice()
	}
}

// checkArrival latches Arrived the first time the live leg falls within the
// geofence radius and moves straight on to AlarmActive.
func (e *Engine) checkArrival() {
	if e.s.arrival != nil || e.s.liveLeg == nil {
		return
	}
	if e.s.state != StateTracking && e.s.state != StateDeviated {
		return
	}
	if e.s.liveLeg.DistanceMeters > float64(e.plan.Alarm.NotifyEarlyRadiusMeters) {
		return
	}

	ev := alarm.Event{Kind: alarm.KindArrival, FiredAt: e.opts.Now()}
	e.s.arrival = &ev
	e.s.state = StateArrived
	e.clearDeviationNotice()
	e.cancelInflight()
	e.publish()

	e.s.state = StateAlarmActive
	e.fireAlarm(ev)
}

func (e *Engine) fireAlarm(ev alarm.Event) {
	cfg := e.plan.Alarm
	e.effects <- func() {
		ctx, cancel := context.WithTimeout(context.Background(), alarmTimeout)
		defer cancel()
		if err := e.alarm.Trigger(ctx, ev, cfg); err != nil {
			log.Printf("alarm %s for session %s: %v", ev.Kind, e.id, err)
		}
	}
}

// clearDeviationNotice ends the notice of the current deviation episode and
// retracts its notification.
func (e *Engine) clearDeviationNotice() {
	if !e.s.deviationNotice {
		return
	}
	e.s.deviationNotice = false
	e.effects <- func() {
		ctx, cancel := context.WithTimeout(context.Background(), alarmTimeout)
		defer cancel()
		if err := e.alarm.Clear(ctx, alarm.KindDeviation); err != nil {
			log.Printf("deviation notice clear for session %s: %v", e.id, err)
		}
	}
}

func (e *Engine) stopAlarm() {
	if e.alarmStopped {
		return
	}
	e.alarmStopped = true
	e.effects <- func() {
		ctx, cancel := context.WithTimeout(context.Background(), alarmTimeout)
		defer cancel()
		if err := e.alarm.Stop(ctx); err != nil {
			log.Printf("alarm stop for session %s: %v", e.id, err)
		}
	}
}

func (e *Engine) runEffects() {
	defer close(e.effectsDone)
	for fn := range e.effects {
		fn()
	}
}


func (e *Engine) cancelInflight() {
	for seq, cancel := range e.inflight {
		cancel()
		delete(e.inflight, seq)
	}
}

// finish moves the session to a terminal state. The tracker and the alarm are
// released before finish returns and late route results are ignored.
func (e *Engine) finish(state State, status string) {
	e.s.state = state
	e.s.deviationNotice = false
	e.s.lastUpdatedAt = e.opts.Now()
	e.cancel()
	e.cancelInflight()
	e.tracker.Stop()
	e.stopAlarm()
	if e.history != nil {
		e.endStatus = status
		close(e.history)
		e.history = nil
	}
	e.publish()
	close(e.effects)
	<-e.effectsDone
}

func (e *Engine) advanceCheckpoints(pos geo.GeoPoint) {
	for e.s.nextCheckpoint < len(e.plan.Checkpoints) {
		cp := e.plan.Checkpoints[e.s.nextCheckpoint]
		if geo.DistanceMeters(pos, cp) > e.opts.CheckpointRadiusMeters {
			return
		}
		e.s.nextCheckpoint++
	}
}

func (e *Engine) remainingCheckpoints() []geo.GeoPoint {
	return append([]geo.GeoPoint(nil), e.plan.Checkpoints[e.s.nextCheckpoint:]...)
}

func (e *Engine) record(f tracking.Fix) {
	if e.history == nil {
		return
	}
	p := tracking.TrackPoint{
		SessionID:  e.id,
		Lat:        f.Position.Lat,
		Lng:        f.Position.Lng,
		AccuracyM:  f.AccuracyM,
		RecordedAt: f.RecordedAt,
	}
	select {
	case e.history <- p:
	default:
		log.Printf("trip history backlog full for session %s, dropping point", e.id)
	}
}

func (e *Engine) recordHistory(points <-chan tracking.TrackPoint) {
	ctx := context.Background()
	for p := range points {
		if _, err := e.opts.History.AddPoint(ctx, e.id, p); err != nil {
			log.Printf("trip history point error: %v", err)
		}
	}
	if err := e.opts.History.EndSession(ctx, e.id, e.endStatus); err != nil {
		log.Printf("trip history end error: %v", err)
	}
}

func (e *Engine) publish() {
	snap := e.snapshot()
	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()
	if e.opts.Publisher == nil {
		return
	}

	pub := e.opts.Publisher
	fn := func() { pub.Publish(snap) }
	if snap.State.Terminal() {
		e.effects <- fn
		return
	}
	// a later snapshot supersedes a skipped one
	select {
	case e.effects <- fn:
	default:
		log.Printf("snapshot backlog full for session %s, skipping publish", e.id)
	}
}

func (e *Engine) snapshot() Snapshot {
	trackerState := e.tracker.State()
	snap := Snapshot{
		SessionID:             e.id,
		PlanID:                e.plan.ID,
		State:                 e.s.state,
		Destination:           *e.plan.Destination,
		DestinationLabel:      e.opts.DestinationLabel,
		InitialDistanceMeters: e.s.initialDistance,
		Progress:              e.s.progress,
		CheckpointsRemaining:  len(e.plan.Checkpoints) - e.s.nextCheckpoint,
		Retrying:              e.s.retrying,
		DeviationNotice:       e.s.deviationNotice,
		Tracker:               trackerState,
		TrackingPaused:        trackerState == tracking.StatePaused,
		TrackingUnavailable:   trackerState == tracking.StateUnavailable,
		Alarm:                 e.s.arrival,
		AlarmConfig:           e.plan.Alarm,
		LastUpdatedAt:         e.s.lastUpdatedAt,
	}
	if e.s.position != nil {
		p := *e.s.position
		snap.CurrentPosition = &p
	}
	if e.s.plannedLeg != nil {
		leg := *e.s.plannedLeg
		snap.PlannedLeg = &leg
	}
	if e.s.liveLeg != nil {
		leg := *e.s.liveLeg
		snap.LiveLeg = &leg
		snap.RemainingLabel = RemainingLabel(time.Duration(leg.DurationSeconds * float64(time.Second)))
	}
	if !e.s.eta.IsZero() {
		eta := e.s.eta
		snap.ETA = &eta
		snap.ETALabel = ETALabel(eta)
	}
	return snap
}
