package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/bus"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
)

// ClientEvent is the wire shape ProgressBroker publishes to the Bus and
// that the gateway's WebSocket layer streams on to clients (spec §4.G).
type ClientEvent struct {
	TaskID    uuid.UUID `json:"task_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Percent   int       `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

// anyTaskChannel is the wildcard channel every task's events are also
// published to, for subscribers that want every task (spec §4.B: "a
// single logical channel per task id plus a wildcard 'any task' channel").
const anyTaskChannel = "tasks.any"

func taskChannel(taskID uuid.UUID) string {
	return "tasks." + taskID.String()
}

// Broker is the ProgressBroker (spec §4.G): the only path a pipeline
// stage's progress takes to become both a durable record and a live
// client update.
type Broker struct {
	store  store.Store
	bus    bus.Bus
	logger logger.Logger
}

// NewBroker constructs a Broker.
func NewBroker(s store.Store, b bus.Bus, logger logger.Logger) *Broker {
	return &Broker{store: s, bus: b, logger: logger}
}

// Publish persists a stage transition and fans it out to both the task's
// own channel and the wildcard channel.
func (b *Broker) Publish(ctx context.Context, taskID uuid.UUID, stage, message string, percent int) error {
	if _, err := b.store.AppendProgress(ctx, taskID, stage, message, percent); err != nil {
		return err
	}

	event := ClientEvent{
		TaskID:    taskID,
		Stage:     stage,
		Message:   message,
		Percent:   percent,
		Timestamp: time.Now(),
	}

	if err := b.bus.Publish(taskChannel(taskID), event); err != nil {
		b.logger.Error(ctx, "failed to publish progress event", logger.Fields{"task_id": taskID.String(), "error": err.Error()})
	}
	if err := b.bus.Publish(anyTaskChannel, event); err != nil {
		b.logger.Error(ctx, "failed to publish progress event to wildcard channel", logger.Fields{"task_id": taskID.String(), "error": err.Error()})
	}
	return nil
}

// Subscribe registers handler for every future event on taskID's channel.
func (b *Broker) Subscribe(taskID uuid.UUID, handler func(ClientEvent)) (bus.SubscriptionHandle, error) {
	return b.bus.Subscribe(taskChannel(taskID), decodingHandler(handler))
}

// SubscribeAll registers handler for every task's events (the wildcard
// channel used by a dashboard view).
func (b *Broker) SubscribeAll(handler func(ClientEvent)) (bus.SubscriptionHandle, error) {
	return b.bus.Subscribe(anyTaskChannel, decodingHandler(handler))
}

// Unsubscribe releases a subscription obtained from Subscribe/SubscribeAll.
func (b *Broker) Unsubscribe(handle bus.SubscriptionHandle) error {
	return b.bus.Close(handle)
}

// Snapshot returns the most recently persisted stage/percent/message for a
// task, used by cold-start clients that missed earlier events (spec §4.G).
// Falls back to the task's bare status when no ProgressEvent exists yet
// (a task that was just enqueued and not yet claimed).
func (b *Broker) Snapshot(ctx context.Context, taskID uuid.UUID) (*ClientEvent, error) {
	latest, err := b.store.GetLatestProgressEvent(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		return &ClientEvent{
			TaskID:    taskID,
			Stage:     latest.Stage,
			Message:   latest.Message,
			Percent:   latest.Percent,
			Timestamp: latest.CreatedAt,
		}, nil
	}

	task, err := b.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &ClientEvent{
		TaskID:    task.ID,
		Stage:     task.Status,
		Percent:   0,
		Timestamp: task.UpdatedAt,
	}, nil
}

func decodingHandler(handler func(ClientEvent)) bus.Handler {
	return func(payload []byte) {
		var event ClientEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return
		}
		handler(event)
	}
}
