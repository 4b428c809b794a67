package notify

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// loopbackPubSub delivers published events straight back to the instance's
// own subscription, the way Redis echoes a channel message to every
// subscriber including the publisher.
type loopbackPubSub struct {
	handlers  map[string]func(event string, payload []byte)
	failPub   bool
	publishes int
}

func newLoopbackPubSub() *loopbackPubSub {
	return &loopbackPubSub{handlers: make(map[string]func(event string, payload []byte))}
}

func (p *loopbackPubSub) PublishPollEvent(pollID, event string, payload []byte) error {
	p.publishes++
	if p.failPub {
		return errors.New("redis: connection refused")
	}
	if h, ok := p.handlers[pollID]; ok {
		h(event, payload)
	}
	return nil
}

func (p *loopbackPubSub) SubscribePoll(pollID string, handler func(event string, payload []byte)) (func(), error) {
	p.handlers[pollID] = handler
	return func() { delete(p.handlers, pollID) }, nil
}

func newTestClient(pollID string) *Client {
	return &Client{
		ID:     "c1",
		PollID: pollID,
		send:   make(chan WSMessage, 8),
	}
}

func TestPublishDeliversExactlyOnceToLocalClients(t *testing.T) {
	pubsub := newLoopbackPubSub()
	hub := NewHub(zap.NewNop(), pubsub, pubsub)
	client := newTestClient("123456789012345678")
	hub.Register(client)
	defer hub.Unregister(client)

	hub.Publish("123456789012345678", "poll_closed", map[string]any{"active": false})

	require.Len(t, client.send, 1, "local client must receive the event once, not a direct copy plus the subscription echo")
	msg := <-client.send
	assert.Equal(t, "poll_closed", msg.Event)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, false, payload["active"])
	assert.Equal(t, 1, pubsub.publishes)
}

func TestPublishFallsBackToLocalBroadcastWhenRedisFails(t *testing.T) {
	pubsub := newLoopbackPubSub()
	pubsub.failPub = true
	hub := NewHub(zap.NewNop(), pubsub, pubsub)
	client := newTestClient("123456789012345678")
	hub.Register(client)
	defer hub.Unregister(client)

	hub.Publish("123456789012345678", "vote_cast", map[string]any{"count": 1})

	require.Len(t, client.send, 1)
	assert.Equal(t, "vote_cast", (<-client.send).Event)
}

func TestPublishWithoutRedisBroadcastsLocally(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	client := newTestClient("123456789012345678")
	hub.Register(client)
	defer hub.Unregister(client)

	hub.Publish("123456789012345678", "poll_created", map[string]any{"title": "Lunch?"})

	require.Len(t, client.send, 1)
	assert.Equal(t, "poll_created", (<-client.send).Event)
}
