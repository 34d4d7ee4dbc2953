package broadcastsvc

import (
	"sync"

	"github.com/trezcool/mahudhurio/core"
)

// Recorder captures published messages for inspection in tests.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
}

var _ core.Broadcaster = (*Recorder)(nil)

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(channel, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, Message{Channel: channel, Event: event, Payload: payload})
}

// Sent returns the messages published on channel.
func (r *Recorder) Sent(channel string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	for _, msg := range r.Messages {
		if msg.Channel == channel {
			out = append(out, msg)
		}
	}
	return out
}
