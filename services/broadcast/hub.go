package broadcastsvc

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/mahudhurio/core"
)

type (
	// Message is the envelope delivered to subscribers.
	Message struct {
		ID      string      `json:"id"`
		Channel string      `json:"channel"`
		Event   string      `json:"event"`
		Payload interface{} `json:"payload"`
		SentAt  time.Time   `json:"sent_at"`
	}

	subscriber struct {
		id string
		ch chan Message
	}

	// Hub is an in-process Broadcaster. Each subscriber owns a buffered
	// channel; a subscriber that falls behind loses messages rather than
	// blocking publishers.
	Hub struct {
		mu   sync.RWMutex
		subs map[string][]subscriber // channel -> subscribers
	}
)

var _ core.Broadcaster = (*Hub)(nil)

const subscriberBuffer = 16

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]subscriber)}
}

// Subscribe registers a listener on channel and returns the delivery
// channel along with a cancel function that must be called when done.
func (h *Hub) Subscribe(channel string) (<-chan Message, func()) {
	sub := subscriber{
		id: uuid.NewString(),
		ch: make(chan Message, subscriberBuffer),
	}

	h.mu.Lock()
	h.subs[channel] = append(h.subs[channel], sub)
	h.mu.Unlock()

	cancel := func() { h.unsubscribe(channel, sub.id) }
	return sub.ch, cancel
}

func (h *Hub) unsubscribe(channel, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[channel]
	for i, sub := range subs {
		if sub.id == id {
			h.subs[channel] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			break
		}
	}
	if len(h.subs[channel]) == 0 {
		delete(h.subs, channel)
	}
}

func (h *Hub) Publish(channel, event string, payload interface{}) {
	msg := Message{
		ID:      uuid.NewString(),
		Channel: channel,
		Event:   event,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[channel] {
		select {
		case sub.ch <- msg:
		default: // subscriber too slow; drop
		}
	}
}
