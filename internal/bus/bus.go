package bus

import (
	"encoding/json"

	"github.com/google/uuid"
)

// DefaultSubscriberQueueSize bounds how many undelivered events a single
// subscriber can accumulate before the bus starts dropping its oldest
// pending event (spec §4.B: "bounded per-subscriber queue with overflow
// handling for lossy subscribers").
const DefaultSubscriberQueueSize = 64

// Handler receives a decoded event published to a channel it subscribed to.
type Handler func(event []byte)

// SubscriptionHandle identifies a live subscription so it can be closed.
type SubscriptionHandle struct {
	Channel string
	id      uuid.UUID
}

// Bus is a channel-addressed publish/subscribe fabric (spec §4.B). Per
// channel, events from a single publisher are delivered to each subscriber
// in FIFO order; a slow subscriber never blocks the publisher or other
// subscribers, at the cost of dropping its own backlog when it falls too
// far behind.
type Bus interface {
	// Publish marshals event to JSON and delivers it to every current
	// subscriber of channel.
	Publish(channel string, event interface{}) error

	// Subscribe registers handler for every future publish on channel and
	// returns a handle usable with Close. handler runs on a dedicated
	// goroutine per subscription; it must not block indefinitely.
	Subscribe(channel string, handler Handler) (SubscriptionHandle, error)

	// Close stops delivering events to the subscription and releases its
	// resources.
	Close(handle SubscriptionHandle) error
}

func marshalEvent(event interface{}) ([]byte, error) {
	if raw, ok := event.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(event)
}

func newHandle(channel string) SubscriptionHandle {
	return SubscriptionHandle{Channel: channel, id: uuid.New()}
}
