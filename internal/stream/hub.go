package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	KindSnapshot   = "navigation.snapshot"
	KindTrackPoint = "tracking.point"
)

const publishTimeout = 2 * time.Second

// Message is the envelope every websocket client receives.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
	SentAt    time.Time       `json:"sent_at"`
}

type Hub struct {
	redis   *redis.Client
	origin  string
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	cancel  context.CancelFunc
	greeter func(sessionID string) []byte
}

type Client struct {
	SessionID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		pubsub := redisClient.PSubscribe(ctx, redisPattern)
		go h.subscribeRedis(ctx, pubsub)
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

// SetGreeter installs fn to produce the first message a newly connected
// client receives, typically the latest state of its session.
func (h *Hub) SetGreeter(fn func(sessionID string) []byte) {
	h.mu.Lock()
	h.greeter = fn
	h.mu.Unlock()
}

func (h *Hub) greet(client *Client) {
	h.mu.RLock()
	fn := h.greeter
	h.mu.RUnlock()
	if fn == nil {
		return
	}
	if msg := fn(client.SessionID); msg != nil {
		select {
		case client.Send <- msg:
		default:
		}
	}
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	close(client.Send)
}

// Publish wraps data in a Message of the given kind and broadcasts it.
func (h *Hub) Publish(sessionID, kind string, data []byte) {
	payload, err := json.Marshal(Message{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		SentAt:    time.Now(),
	})
	if err != nil {
		log.Printf("stream encode error: %v", err)
		return
	}
	h.Broadcast(sessionID, payload)
}

// Broadcast sends payload to local clients of the session and fans it out to
// other instances through redis.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.deliver(sessionID, payload)

	if h.redis != nil {
		msg := append([]byte(h.origin+"\n"), payload...)
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		err := h.redis.Publish(ctx, redisChannel(sessionID), msg).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			origin, payload := splitOrigin([]byte(msg.Payload))
			if origin == h.origin {
				continue
			}
			h.deliver(sessionIDFromChannel(msg.Channel), payload)
		}
	}
}

const redisPattern = "navigation:*:events"

func redisChannel(sessionID string) string {
	return "navigation:" + sessionID + ":events"
}

func sessionIDFromChannel(ch string) string {
	// navigation:{session}:events
	const prefix = "navigation:"
	const suffix = ":events"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}

func splitOrigin(msg []byte) (string, []byte) {
	i := bytes.IndexByte(msg, '\n')
	if i < 0 {
		return "", msg
	}
	return string(msg[:i]), msg[i+1:]
}
