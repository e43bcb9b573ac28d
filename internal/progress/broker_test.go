package progress

import (
	"context"
	"testing"
	"time"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/bus"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
)

type fakeStore struct {
	store.Store
	events []*store.ProgressEvent
	tasks  map[uuid.UUID]*store.PipelineTask
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[uuid.UUID]*store.PipelineTask)}
}

func (f *fakeStore) AppendProgress(ctx context.Context, taskID uuid.UUID, stage, message string, percent int) (*store.ProgressEvent, error) {
	event := &store.ProgressEvent{ID: int64(len(f.events) + 1), TaskID: taskID, Stage: stage, Message: message, Percent: percent, CreatedAt: time.Now()}
	f.events = append(f.events, event)
	return event, nil
}

func (f *fakeStore) GetLatestProgressEvent(ctx context.Context, taskID uuid.UUID) (*store.ProgressEvent, error) {
	var latest *store.ProgressEvent
	for _, e := range f.events {
		if e.TaskID == taskID {
			latest = e
		}
	}
	return latest, nil
}

func (f *fakeStore) GetTask(ctx context.Context, id uuid.UUID) (*store.PipelineTask, error) {
	return f.tasks[id], nil
}

func TestBroker_PublishPersistsAndDeliversToSubscriber(t *testing.T) {
	fs := newFakeStore()
	b := NewBroker(fs, bus.NewMemoryBus(logger.NewLogger()), logger.NewLogger())
	taskID := uuid.New()

	received := make(chan ClientEvent, 1)
	handle, err := b.Subscribe(taskID, func(e ClientEvent) { received <- e })
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer b.Unsubscribe(handle)

	if err := b.Publish(context.Background(), taskID, "post_fetched", "found a post", 15); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	select {
	case event := <-received:
		if event.Stage != "post_fetched" || event.Percent != 15 {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	if len(fs.events) != 1 {
		t.Errorf("expected 1 persisted event, got %d", len(fs.events))
	}
}

func TestBroker_Snapshot_ReturnsLatestProgressEvent(t *testing.T) {
	fs := newFakeStore()
	b := NewBroker(fs, bus.NewMemoryBus(logger.NewLogger()), logger.NewLogger())
	taskID := uuid.New()

	b.Publish(context.Background(), taskID, "post_fetching", "", 0)
	b.Publish(context.Background(), taskID, "post_fetched", "done", 15)

	snap, err := b.Snapshot(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap.Stage != "post_fetched" || snap.Percent != 15 {
		t.Errorf("expected latest event, got %+v", snap)
	}
}

func TestBroker_Snapshot_FallsBackToTaskStatusWithNoEvents(t *testing.T) {
	fs := newFakeStore()
	b := NewBroker(fs, bus.NewMemoryBus(logger.NewLogger()), logger.NewLogger())
	taskID := uuid.New()
	fs.tasks[taskID] = &store.PipelineTask{ID: taskID, Status: store.TaskPending}

	snap, err := b.Snapshot(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap.Stage != store.TaskPending {
		t.Errorf("expected fallback stage=%s, got %s", store.TaskPending, snap.Stage)
	}
}
