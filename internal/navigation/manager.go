package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"backend-tripalarm/internal/alarm"
	"backend-tripalarm/internal/shared/geo"
	"backend-tripalarm/internal/stream"
	"backend-tripalarm/internal/tracking"
	"backend-tripalarm/internal/trip"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("navigation session not found")

// DefaultRetention is how long a finished session stays readable.
const DefaultRetention = 2 * time.Minute

type PlanSource interface {
	GetPlan(ctx context.Context, id string) (trip.Plan, error)
}

type Labeler interface {
	Label(ctx context.Context, p geo.GeoPoint) string
}

type Config struct {
	Tracker                tracking.Options
	DebounceFixes          int
	CorridorWidthMeters    float64
	CheckpointRadiusMeters float64
	Retention              time.Duration
}

// CreateRequest starts a session from a saved route or an inline plan.
type CreateRequest struct {
	SavedRouteID string     `json:"saved_route_id"`
	Plan         *trip.Plan `json:"plan"`
}

// Manager owns the live navigation sessions of this instance and the device
// plumbing each of them listens to.
type Manager struct {
	cfg      Config
	plans    PlanSource
	resolver Resolver
	devices  *tracking.Registry
	hub      *stream.Hub
	history  *tracking.Recorder
	labels   Labeler
	bg       *alarm.Background

	mu      sync.RWMutex
	engines map[string]*Engine
}

func NewManager(cfg Config, plans PlanSource, resolver Resolver, devices *tracking.Registry, hub *stream.Hub, history *tracking.Recorder, labels Labeler, bg *alarm.Background) *Manager {
	return &Manager{
		cfg:      cfg,
		plans:    plans,
		resolver: resolver,
		devices:  devices,
		hub:      hub,
		history:  history,
		labels:   labels,
		bg:       bg,
		engines:  map[string]*Engine{},
	}
}

func (m *Manager) Create(ctx context.Context, req CreateRequest, userID string) (*Engine, error) {
	plan, err := m.loadPlan(ctx, req)
	if err != nil {
		return nil, err
	}
	if plan.UserID == "" {
		plan.UserID = userID
	}
	if err := trip.Validate(&plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if userID == "" {
		userID = plan.UserID
	}

	id := uuid.NewString()
	device := tracking.NewDevice()
	cues := alarm.NewStreamCues(m.hub, id)
	ctl := alarm.NewController(cues.Audio, cues.Haptic, cues.Notification, m.bg)
	// failures are logged once per process by the registrar
	_, _ = ctl.EnsureBackground(ctx)

	opts := Options{
		Tracker:                m.cfg.Tracker,
		DebounceFixes:          m.cfg.DebounceFixes,
		CorridorWidthMeters:    m.cfg.CorridorWidthMeters,
		CheckpointRadiusMeters: m.cfg.CheckpointRadiusMeters,
	}
	if m.labels != nil {
		opts.DestinationLabel = m.labels.Label(ctx, *plan.Destination)
	}
	if m.hub != nil {
		opts.Publisher = hubPublisher{hub: m.hub}
	}

	engine, err := NewEngine(id, plan, m.resolver, device.Tracker, ctl, opts)
	if err != nil {
		return nil, err
	}
	if m.history != nil {
		_, err := m.history.StartSession(ctx, tracking.Session{ID: id, PlanID: plan.ID, UserID: userID})
		if err != nil {
			log.Printf("session %s: trip history disabled: %v", id, err)
		} else {
			engine.attachHistory(m.history)
		}
	}

	m.devices.Set(id, device)
	m.mu.Lock()
	m.engines[id] = engine
	m.mu.Unlock()

	go m.release(engine)

	if err := engine.Start(context.WithoutCancel(ctx)); err != nil {
		var permErr *tracking.PermissionError
		if !errors.As(err, &permErr) {
			_ = engine.Cancel(context.Background())
			m.forget(engine)
			return nil, err
		}
		log.Printf("session %s: %v", id, err)
	}
	return engine, nil
}

// release frees the device of a finished session at once and drops the
// session itself after the retention period.
func (m *Manager) release(e *Engine) {
	<-e.Done()
	m.devices.Remove(e.ID())

	retention := m.cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	time.AfterFunc(retention, func() { m.forget(e) })
}

func (m *Manager) forget(e *Engine) {
	m.mu.Lock()
	if m.engines[e.ID()] == e {
		delete(m.engines, e.ID())
	}
	m.mu.Unlock()
}

func (m *Manager) loadPlan(ctx context.Context, req CreateRequest) (trip.Plan, error) {
	if req.Plan != nil {
		return *req.Plan, nil
	}
	if req.SavedRouteID == "" {
		return trip.Plan{}, fmt.Errorf("%w: saved_route_id or plan required", ErrInvalidPlan)
	}
	if m.plans == nil {
		return trip.Plan{}, errors.New("saved routes unavailable")
	}
	return m.plans.GetPlan(ctx, req.SavedRouteID)
}

func (m *Manager) Get(id string) (*Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[id]
	return e, ok
}

// Greeting encodes the latest snapshot of a session as the first stream
// message a new websocket client receives.
func (m *Manager) Greeting(sessionID string) []byte {
	e, ok := m.Get(sessionID)
	if !ok {
		return nil
	}
	data, err := json.Marshal(e.Snapshot())
	if err != nil {
		return nil
	}
	payload, err := json.Marshal(stream.Message{
		Type:      stream.KindSnapshot,
		SessionID: sessionID,
		Data:      data,
		SentAt:    time.Now(),
	})
	if err != nil {
		return nil
	}
	return payload
}

// Shutdown cancels every session that is still live.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.RUnlock()

	for _, e := range engines {
		if err := e.Cancel(ctx); err != nil && !errors.Is(err, ErrSessionEnded) {
			log.Printf("session %s shutdown: %v", e.ID(), err)
		}
	}
}

type hubPublisher struct {
	hub *stream.Hub
}

func (p hubPublisher) Publish(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("snapshot encode error: %v", err)
		return
	}
	p.hub.Publish(snap.SessionID, stream.KindSnapshot, data)
}
