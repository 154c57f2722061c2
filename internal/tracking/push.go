package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
)

const pushBuffer = 32

var ErrNotSubscribed = errors.New("no active location subscription")

// PushSource is a Source fed by fixes the device posts over HTTP. It holds at
// most one subscription at a time.
type PushSource struct {
	mu  sync.Mutex
	ch  chan Fix
	gen uint64
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

func (p *PushSource) Subscribe(ctx context.Context, _ Options) (<-chan Fix, error) {
	ch := make(chan Fix, pushBuffer)

	p.mu.Lock()
	if p.ch != nil {
		close(p.ch)
	}
	p.gen++
	gen := p.gen
	p.ch = ch
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.gen == gen && p.ch != nil {
			close(p.ch)
			p.ch = nil
		}
	}()
	return ch, nil
}

// Push hands a fix to the current subscriber without blocking.
func (p *PushSource) Push(fix Fix) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return ErrNotSubscribed
	}
	select {
	case p.ch <- fix:
	default:
		log.Printf("location buffer full, dropping fix")
	}
	return nil
}

// DevicePermissions holds the permission answers reported by the device. An
// undetermined answer does not block tracking.
type DevicePermissions struct {
	mu         sync.RWMutex
	foreground Permission
	background Permission
}

func NewDevicePermissions() *DevicePermissions {
	return &DevicePermissions{
		foreground: PermissionUndetermined,
		background: PermissionUndetermined,
	}
}

func (d *DevicePermissions) Set(foreground, background Permission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if foreground != "" {
		d.foreground = foreground
	}
	if background != "" {
		d.background = background
	}
}

func (d *DevicePermissions) RequestForeground(context.Context) (Permission, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.foreground, nil
}

func (d *DevicePermissions) RequestBackground(context.Context) (Permission, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.background, nil
}

// Device groups the per-session plumbing the device talks to.
type Device struct {
	Source      *PushSource
	Permissions *DevicePermissions
	Tracker     *Tracker
}

func NewDevice() *Device {
	source := NewPushSource()
	perms := NewDevicePermissions()
	return &Device{
		Source:      source,
		Permissions: perms,
		Tracker:     NewTracker(source, perms),
	}
}

// Registry maps navigation session IDs to devices.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

func NewRegistry() *Registry {
	return &Registry{devices: map[string]*Device{}}
}

func (r *Registry) Set(sessionID string, d *Device) {
	r.mu.Lock()
	r.devices[sessionID] = d
	r.mu.Unlock()
}

func (r *Registry) Device(sessionID string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[sessionID]
	return d, ok
}

func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.devices, sessionID)
	r.mu.Unlock()
}
