package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redditcraft/commission-pipeline/core/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// busExchange is the single topic exchange every channel is published
// through, keyed by routing key = channel name.
const busExchange = "commission_pipeline.bus"

// AMQPBus is the cross-process Bus backend (spec §4.B): one connection
// publishing to a topic exchange instead of a single named queue, so an
// arbitrary number of channels can share one exchange.
type AMQPBus struct {
	conn      *amqp.Connection
	queueSize int
	logger    logger.Logger

	mu   sync.Mutex
	subs map[string]func() error // handle id -> cleanup, keyed by handle.id.String()
}

// NewAMQPBus dials url and declares the shared topic exchange.
func NewAMQPBus(url string, logger logger.Logger) (*AMQPBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("bus: dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(busExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: declare exchange: %w", err)
	}

	logger.Info(context.Background(), "Bus connected to RabbitMQ", logger.Fields{"exchange": busExchange})

	return &AMQPBus{
		conn:      conn,
		queueSize: DefaultSubscriberQueueSize,
		logger:    logger,
		subs:      make(map[string]func() error),
	}, nil
}

// Publish implements Bus.
func (b *AMQPBus) Publish(channel string, event interface{}) error {
	payload, err := marshalEvent(event)
	if err != nil {
		return err
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("bus: open channel for publish: %w", err)
	}
	defer ch.Close()

	return ch.PublishWithContext(context.Background(), busExchange, channel, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
}

// Subscribe implements Bus. Each subscription gets its own exclusive,
// auto-deleted queue bound to channel, fed through a bounded local buffer
// identical in shape to MemoryBus's so a slow handler can never stall the
// AMQP consumer goroutine.
func (b *AMQPBus) Subscribe(channel string, handler Handler) (SubscriptionHandle, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return SubscriptionHandle{}, fmt.Errorf("bus: open channel for subscribe: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return SubscriptionHandle{}, fmt.Errorf("bus: declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, channel, busExchange, false, nil); err != nil {
		ch.Close()
		return SubscriptionHandle{}, fmt.Errorf("bus: bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return SubscriptionHandle{}, fmt.Errorf("bus: consume queue: %w", err)
	}

	handle := newHandle(channel)
	queue := make(chan []byte, b.queueSize)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				b.enqueue(handle.Channel, queue, d.Body)
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case payload := <-queue:
				handler(payload)
			case <-stop:
				return
			}
		}
	}()

	b.mu.Lock()
	b.subs[handle.id.String()] = func() error {
		close(stop)
		return ch.Close()
	}
	b.mu.Unlock()

	return handle, nil
}

func (b *AMQPBus) enqueue(channel string, queue chan []byte, payload []byte) {
	select {
	case queue <- payload:
		return
	default:
	}

	select {
	case <-queue:
	default:
	}

	select {
	case queue <- payload:
	default:
		b.logger.Warning(context.Background(), "bus subscriber queue full, dropping event", logger.Fields{
			"channel": channel,
		})
	}
}

// Close implements Bus.
func (b *AMQPBus) Close(handle SubscriptionHandle) error {
	b.mu.Lock()
	cleanup, ok := b.subs[handle.id.String()]
	if ok {
		delete(b.subs, handle.id.String())
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}
	return cleanup()
}

// Shutdown closes the underlying AMQP connection.
func (b *AMQPBus) Shutdown() error {
	return b.conn.Close()
}
