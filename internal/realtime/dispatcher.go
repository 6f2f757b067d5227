package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// Event catalog. Consumers resync via re-fetch; delivery is at most
// once and not guaranteed when the transport is down.
const (
	EventMessageSent     = "message.sent"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
	EventUserTyping      = "user.typing"
)

const defaultPublishTimeout = 2 * time.Second

// Transport carries an already-serialized envelope to subscribers of a
// channel. Implementations must respect ctx cancellation.
type Transport interface {
	Publish(ctx context.Context, channel, event string, payload []byte) error
}

// Envelope is the wire frame relayed to channel subscribers.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Dispatcher fans domain events out to the realtime transport. It is
// strictly best-effort: the triggering mutation has already committed,
// so transport failures are logged and swallowed, never returned.
type Dispatcher struct {
	transport Transport
	log       *logrus.Logger
	timeout   time.Duration
}

func NewDispatcher(transport Transport, log *logrus.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Dispatcher{transport: transport, log: log, timeout: timeout}
}

// Publish sends one event to one channel. Callers invoke it only after
// the store write has committed.
func (d *Dispatcher) Publish(ctx context.Context, channel, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		d.log.WithFields(logrus.Fields{"channel": channel, "event": event}).
			WithError(err).Error("broadcast payload not serializable")
		return
	}
	body, err := json.Marshal(Envelope{Channel: channel, Event: event, Data: data})
	if err != nil {
		d.log.WithFields(logrus.Fields{"channel": channel, "event": event}).
			WithError(err).Error("broadcast envelope not serializable")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.transport.Publish(ctx, channel, event, body); err != nil {
		d.log.WithFields(logrus.Fields{
			"channel": channel,
			"event":   event,
			"payload": truncate(data, 256),
		}).WithError(err).Error("broadcast publish failed")
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
