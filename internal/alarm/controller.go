package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type AudioCue interface {
	StartLoop(ctx context.Context, soundID string) error
	Stop(ctx context.Context) error
}

type HapticCue interface {
	StartPattern(ctx context.Context, pattern []time.Duration) error
	Stop(ctx context.Context) error
}

type NotificationCue interface {
	Notify(ctx context.Context, n Notification) error
	Dismiss(ctx context.Context) error
}

type channel int

const (
	channelAudio channel = iota
	channelHaptic
	channelNotification
)

// Controller turns alarm events into audio, haptic and notification effects.
// The three channels start independently: one failing does not hold back the
// others.
type Controller struct {
	audio   AudioCue
	haptic  HapticCue
	notify  NotificationCue
	bg      *Background
	pattern []time.Duration

	mu       sync.Mutex
	running  map[channel]bool
	notified Kind
}

func NewController(audio AudioCue, haptic HapticCue, notify NotificationCue, bg *Background) *Controller {
	return &Controller{
		audio:   audio,
		haptic:  haptic,
		notify:  notify,
		bg:      bg,
		pattern: DefaultPattern,
		running: map[channel]bool{},
	}
}

// EnsureBackground attempts the once-per-run background registration and
// reports whether alarms can fire outside the foreground.
func (c *Controller) EnsureBackground(ctx context.Context) (bool, error) {
	if c.bg == nil {
		return false, &BackgroundRegistrationError{Err: errors.New("no registrar")}
	}
	return c.bg.Register(ctx)
}

// Trigger starts the effects for ev. The returned error joins every channel
// failure; channels that started stay active until Stop.
func (c *Controller) Trigger(ctx context.Context, ev Event, cfg Config) error {
	type start struct {
		ch channel
		fn func() error
	}
	var starts []start

	switch ev.Kind {
	case KindArrival:
		sound := cfg.SoundID
		if sound == "" {
			sound = DefaultSound
		}
		if c.audio != nil {
			starts = append(starts, start{channelAudio, func() error { return c.audio.StartLoop(ctx, sound) }})
		}
		if c.haptic != nil && cfg.VibrationEnabled {
			starts = append(starts, start{channelHaptic, func() error { return c.haptic.StartPattern(ctx, c.pattern) }})
		}
		if c.notify != nil {
			n := Notification{Kind: KindArrival, Title: "Wake up!", Body: fmt.Sprintf("You are within %d m of your destination.", cfg.NotifyEarlyRadiusMeters)}
			starts = append(starts, start{channelNotification, func() error { return c.notify.Notify(ctx, n) }})
		}
	case KindDeviation:
		if c.notify != nil {
			n := Notification{Kind: KindDeviation, Title: "Off route", Body: "You have left the planned route."}
			starts = append(starts, start{channelNotification, func() error { return c.notify.Notify(ctx, n) }})
		}
	default:
		return fmt.Errorf("alarm: unknown event kind %q", ev.Kind)
	}

	errs := make([]error, len(starts))
	var wg sync.WaitGroup
	for i, s := range starts {
		wg.Add(1)
		go func(i int, s start) {
			defer wg.Done()
			if err := s.fn(); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.ch, err)
				return
			}
			c.mu.Lock()
			c.running[s.ch] = true
			if s.ch == channelNotification {
				c.notified = ev.Kind
			}
			c.mu.Unlock()
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Stop silences every active channel. Calling it with nothing active is a
// no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	active := c.running
	c.running = map[channel]bool{}
	c.notified = ""
	c.mu.Unlock()

	if len(active) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	stop := func(ch channel, fn func(context.Context) error) {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
			mu.Unlock()
		}
	}
	if active[channelAudio] {
		wg.Add(1)
		go stop(channelAudio, c.audio.Stop)
	}
	if active[channelHaptic] {
		wg.Add(1)
		go stop(channelHaptic, c.haptic.Stop)
	}
	if active[channelNotification] {
		wg.Add(1)
		go stop(channelNotification, c.notify.Dismiss)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (c *Controller) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running) > 0
}

// Clear retracts the notification posted for kind. Other channels and a
// notification of another kind are left alone.
func (c *Controller) Clear(ctx context.Context, kind Kind) error {
	c.mu.Lock()
	if !c.running[channelNotification] || c.notified != kind {
		c.mu.Unlock()
		return nil
	}
	delete(c.running, channelNotification)
	c.notified = ""
	c.mu.Unlock()

	if err := c.notify.Dismiss(ctx); err != nil {
		return fmt.Errorf("%s: %w", channelNotification, err)
	}
	return nil
}

func (ch channel) String() string {
	switch ch {
	case channelAudio:
		return "audio"
	case channelHaptic:
		return "haptic"
	default:
		return "notification"
	}
}
