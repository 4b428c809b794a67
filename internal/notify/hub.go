package notify

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains poll_id -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: events are published once and
// every instance, this one included, delivers them via its subscription.
type Hub struct {
	// pollID -> map[clientID]*Client
	polls    map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per poll
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishPollEvent(pollID, event string, payload []byte) error
}

// RedisSubscriber subscribes to poll channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribePoll(pollID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		polls:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a poll room. Starts Redis subscription for this poll if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.polls[c.PollID] == nil {
		h.polls[c.PollID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribePoll(c.PollID, func(event string, payload []byte) {
				h.BroadcastToPoll(c.PollID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.PollID] = cancel
			}
		}
	}
	h.polls[c.PollID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined poll", zap.String("client_id", c.ID), zap.String("poll_id", c.PollID))
}

// Unregister removes a client from a poll room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.polls[c.PollID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.polls, c.PollID)
			if cancel, ok := h.subs[c.PollID]; ok {
				cancel()
				delete(h.subs, c.PollID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left poll", zap.String("client_id", c.ID), zap.String("poll_id", c.PollID))
}

// BroadcastToPoll sends a message to all clients watching a poll (local only).
func (h *Hub) BroadcastToPoll(pollID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.polls[pollID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish fans the event out to every instance through Redis; local clients
// receive it through this instance's own subscription, so there is no direct
// local broadcast to duplicate it. Without Redis, or when the publish fails,
// the broadcast stays local.
func (h *Hub) Publish(pollID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		if err := h.redis.PublishPollEvent(pollID, event, data); err == nil {
			return
		}
		h.logger.Warn("redis publish failed, falling back to local broadcast",
			zap.String("poll_id", pollID), zap.String("event", event))
	}
	h.BroadcastToPoll(pollID, event, json.RawMessage(data))
}

// WatcherCount returns the number of connected clients watching a poll.
func (h *Hub) WatcherCount(pollID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.polls[pollID])
}
