package alarm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"backend-tripalarm/internal/stream"
)

const (
	KindAudioStart  = "alarm.audio.start"
	KindAudioStop   = "alarm.audio.stop"
	KindHapticStart = "alarm.haptic.start"
	KindHapticStop  = "alarm.haptic.stop"
	KindNotify      = "alarm.notify"
	KindDismiss     = "alarm.dismiss"
)

var errNoHub = errors.New("stream hub unavailable")

// StreamCues sends cue commands to the session's device over the stream hub.
type StreamCues struct {
	Audio        AudioCue
	Haptic       HapticCue
	Notification NotificationCue
}

func NewStreamCues(hub *stream.Hub, sessionID string) StreamCues {
	s := streamSender{hub: hub, sessionID: sessionID}
	return StreamCues{
		Audio:        streamAudio{s},
		Haptic:       streamHaptic{s},
		Notification: streamNotification{s},
	}
}

type streamSender struct {
	hub       *stream.Hub
	sessionID string
}

func (s streamSender) send(kind string, data any) error {
	if s.hub == nil {
		return errNoHub
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.hub.Publish(s.sessionID, kind, payload)
	return nil
}

type streamAudio struct{ streamSender }

func (s streamAudio) StartLoop(_ context.Context, soundID string) error {
	return s.send(KindAudioStart, map[string]any{"sound_id": soundID, "loop": true})
}

func (s streamAudio) Stop(context.Context) error {
	return s.send(KindAudioStop, struct{}{})
}

type streamHaptic struct{ streamSender }

func (s streamHaptic) StartPattern(_ context.Context, pattern []time.Duration) error {
	ms := make([]int64, len(pattern))
	for i, d := range pattern {
		ms[i] = d.Milliseconds()
	}
	return s.send(KindHapticStart, map[string]any{"pattern_ms": ms, "repeat": true})
}

func (s streamHaptic) Stop(context.Context) error {
	return s.send(KindHapticStop, struct{}{})
}

type streamNotification struct{ streamSender }

func (s streamNotification) Notify(_ context.Context, n Notification) error {
	return s.send(KindNotify, n)
}

func (s streamNotification) Dismiss(context.Context) error {
	return s.send(KindDismiss, struct{}{})
}
