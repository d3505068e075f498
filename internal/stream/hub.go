package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"backend-pushup/internal/session"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "reps:"
	channelSuffix  = ":updates"
	channelPattern = channelPrefix + "*" + channelSuffix

	clientBuffer     = 64
	publishQueue     = 256
	subscribeTimeout = 2 * time.Second
	publishTimeout   = 500 * time.Millisecond
)

// Hub fans session updates out to websocket clients. With redis configured,
// every update goes through pub/sub so clients connected to any instance
// receive it; otherwise delivery is local only. Publishing happens on a
// single goroutine so Broadcast never waits on redis.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	queueMu   sync.RWMutex
	queue     chan outbound
	closed    bool
	published chan struct{}
}

type outbound struct {
	sessionID string
	payload   []byte
}

type Client struct {
	SessionID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		clients: map[string]map[*Client]struct{}{},
		logger:  slog.Default().With("component", "stream"),
	}

	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
		defer cancel()

		ps := redisClient.PSubscribe(ctx, channelPattern)
		if _, err := ps.Receive(ctx); err != nil {
			h.logger.Warn("redis subscribe failed, delivering locally", "error", err)
			_ = ps.Close()
		} else {
			h.redis = redisClient
			h.pubsub = ps
			h.queue = make(chan outbound, publishQueue)
			h.published = make(chan struct{})
			go h.forward(ps)
			go h.publish()
		}
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	if _, ok := sessionClients[client]; !ok {
		return
	}
	delete(sessionClients, client)
	if len(sessionClients) == 0 {
		delete(h.clients, client.SessionID)
	}
	close(client.Send)
}

// OnUpdate lets the hub observe a session controller directly.
func (h *Hub) OnUpdate(u session.Update) {
	payload, err := json.Marshal(u)
	if err != nil {
		h.logger.Error("encode update", "session_id", u.SessionID, "error", err)
		return
	}
	h.Broadcast(u.SessionID, payload)
}

// Broadcast never blocks: clients whose buffer is full miss the message.
// When the publish queue is full the update is delivered locally only.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	if h.pubsub != nil && h.enqueue(outbound{sessionID: sessionID, payload: payload}) {
		return
	}
	h.deliver(sessionID, payload)
}

func (h *Hub) enqueue(m outbound) bool {
	h.queueMu.RLock()
	defer h.queueMu.RUnlock()
	if h.closed {
		return false
	}
	select {
	case h.queue <- m:
		return true
	default:
		h.logger.Warn("publish queue full, delivering locally", "session_id", m.sessionID)
		return false
	}
}

func (h *Hub) publish() {
	defer close(h.published)
	for m := range h.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := h.redis.Publish(ctx, redisChannel(m.sessionID), m.payload).Err()
		cancel()
		if err != nil {
			h.logger.Warn("redis publish failed, delivering locally", "session_id", m.sessionID, "error", err)
			h.deliver(m.sessionID, m.payload)
		}
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

func (h *Hub) forward(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		sessionID := sessionIDFromChannel(msg.Channel)
		if sessionID == "" {
			continue
		}
		h.deliver(sessionID, []byte(msg.Payload))
	}
}

// Close drains queued publishes and detaches from redis. Later broadcasts
// are delivered locally.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	h.queueMu.Lock()
	if h.closed {
		h.queueMu.Unlock()
		return nil
	}
	h.closed = true
	close(h.queue)
	h.queueMu.Unlock()

	<-h.published
	return h.pubsub.Close()
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
