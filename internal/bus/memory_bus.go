package bus

import (
	"context"
	"sync"

	"github.com/redditcraft/commission-pipeline/core/logger"
)

// subscriber is one registered handler on one channel, fed by a bounded
// buffered queue so Publish never blocks on a slow consumer.
type subscriber struct {
	handle SubscriptionHandle
	queue  chan []byte
	stop   chan struct{}
}

// MemoryBus is an in-process Bus implementation: every Publish/Subscribe
// pair within the same service instance, no cross-process delivery. Used
// by the tests and by NewBus when no bus connection string is set; AMQPBus
// keeps its own subscriber queues and does not build on MemoryBus.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	queueSize   int
	logger      logger.Logger
}

// NewMemoryBus constructs a MemoryBus with the default bounded queue size.
func NewMemoryBus(logger logger.Logger) *MemoryBus {
	return &MemoryBus{
		subscribers: make(map[string][]*subscriber),
		queueSize:   DefaultSubscriberQueueSize,
		logger:      logger,
	}
}

// Publish implements Bus.
func (b *MemoryBus) Publish(channel string, event interface{}) error {
	payload, err := marshalEvent(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	subs := append([]*subscriber(nil), b.subscribers[channel]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, payload)
	}
	return nil
}

// deliver enqueues payload without blocking; when the subscriber's queue is
// full, its oldest pending event is dropped to make room, and the drop is
// logged so an operator can see a subscriber falling behind.
func (b *MemoryBus) deliver(sub *subscriber, payload []byte) {
	select {
	case sub.queue <- payload:
		return
	default:
	}

	select {
	case <-sub.queue:
	default:
	}

	select {
	case sub.queue <- payload:
	default:
		b.logger.Warning(context.Background(), "bus subscriber queue full, dropping event", logger.Fields{
			"channel": sub.handle.Channel,
		})
	}
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(channel string, handler Handler) (SubscriptionHandle, error) {
	sub := &subscriber{
		handle: newHandle(channel),
		queue:  make(chan []byte, b.queueSize),
		stop:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[channel] = append(b.subscribers[channel], sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case payload := <-sub.queue:
				handler(payload)
			case <-sub.stop:
				return
			}
		}
	}()

	return sub.handle, nil
}

// Close implements Bus.
func (b *MemoryBus) Close(handle SubscriptionHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[handle.Channel]
	for i, sub := range subs {
		if sub.handle.id == handle.id {
			close(sub.stop)
			b.subscribers[handle.Channel] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return nil
}
