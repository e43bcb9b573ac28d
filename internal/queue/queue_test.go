package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
)

// fakeStore is a minimal in-memory store.Store double covering only what
// TaskQueue exercises; every other method panics if called, so a test that
// reaches one fails loudly instead of silently returning a zero value.
type fakeStore struct {
	store.Store
	tasks map[uuid.UUID]*store.PipelineTask
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[uuid.UUID]*store.PipelineTask)}
}

func (f *fakeStore) CreateTask(ctx context.Context, task *store.PipelineTask) error {
	if task.Status == "" {
		task.Status = store.TaskPending
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id uuid.UUID) (*store.PipelineTask, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return task, nil
}

func (f *fakeStore) FailTask(ctx context.Context, id uuid.UUID, errMsg string, toStatus string, runAfter *time.Time) error {
	task, ok := f.tasks[id]
	if !ok {
		return errors.New("not found")
	}
	task.Status = toStatus
	task.ErrorMessage = errMsg
	task.RunAfter = runAfter
	return nil
}

func (f *fakeStore) CompleteTask(ctx context.Context, id uuid.UUID) error {
	f.tasks[id].Status = store.TaskCompleted
	return nil
}

func (f *fakeStore) CancelTask(ctx context.Context, id uuid.UUID) error {
	f.tasks[id].Status = store.TaskCancelled
	return nil
}

func newTestQueue(s *fakeStore) *StoreQueue {
	cfg := &config.AppConfig{
		MaxTaskAttempts: 5,
		RetryBaseDelay:  time.Second,
		RetryMaxDelay:   5 * time.Minute,
	}
	return NewStoreQueue(s, cfg, logger.NewLogger())
}

func TestStoreQueue_EnqueueSetsPendingStatus(t *testing.T) {
	q := newTestQueue(newFakeStore())

	task, err := q.Enqueue(context.Background(), &store.PipelineTask{ID: uuid.New(), Priority: PriorityCommission})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if task.Status != store.TaskPending {
		t.Errorf("expected status=%s, got %s", store.TaskPending, task.Status)
	}
}

func TestStoreQueue_FailRetryableReturnsToPendingWithinBudget(t *testing.T) {
	fs := newFakeStore()
	q := newTestQueue(fs)
	taskID := uuid.New()
	fs.tasks[taskID] = &store.PipelineTask{ID: taskID, Status: store.TaskInProgress, Attempt: 1}

	before := time.Now()
	if err := q.Fail(context.Background(), taskID, errors.New("upstream hiccup"), true); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if fs.tasks[taskID].Status != store.TaskPending {
		t.Errorf("expected status=%s, got %s", store.TaskPending, fs.tasks[taskID].Status)
	}
	if fs.tasks[taskID].RunAfter == nil {
		t.Fatal("expected RunAfter to be set so the task isn't immediately re-claimable")
	}
	if delay := fs.tasks[taskID].RunAfter.Sub(before); delay < time.Second || delay > 2*time.Second {
		t.Errorf("expected ~1s backoff delay for attempt 1, got %v", delay)
	}
}

func TestStoreQueue_FailRetryableExhaustsToFailedAtMaxAttempts(t *testing.T) {
	fs := newFakeStore()
	q := newTestQueue(fs)
	taskID := uuid.New()
	fs.tasks[taskID] = &store.PipelineTask{ID: taskID, Status: store.TaskInProgress, Attempt: 5}

	if err := q.Fail(context.Background(), taskID, errors.New("still failing"), true); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if fs.tasks[taskID].Status != store.TaskFailed {
		t.Errorf("expected status=%s after exhausting attempts, got %s", store.TaskFailed, fs.tasks[taskID].Status)
	}
}

func TestStoreQueue_FailNonRetryableGoesStraightToFailed(t *testing.T) {
	fs := newFakeStore()
	q := newTestQueue(fs)
	taskID := uuid.New()
	fs.tasks[taskID] = &store.PipelineTask{ID: taskID, Status: store.TaskInProgress, Attempt: 1}

	if err := q.Fail(context.Background(), taskID, errors.New("rejected"), false); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if fs.tasks[taskID].Status != store.TaskFailed {
		t.Errorf("expected status=%s, got %s", store.TaskFailed, fs.tasks[taskID].Status)
	}
}

func TestStoreQueue_NextAttemptDelayBacksOffExponentiallyWithCap(t *testing.T) {
	q := newTestQueue(newFakeStore())

	cases := map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
	}
	for attempt, want := range cases {
		if got := q.NextAttemptDelay(attempt); got != want {
			t.Errorf("attempt %d: expected delay %v, got %v", attempt, want, got)
		}
	}

	if got := q.NextAttemptDelay(20); got != 5*time.Minute {
		t.Errorf("expected delay to cap at 5m, got %v", got)
	}
}
