package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
)

// Priority bands, set by the enqueuer (spec §4.E): commission tasks always
// outrank scheduled subreddit tasks, which always outrank front-page tasks.
const (
	PriorityCommission    = 10
	PrioritySubredditPost = 5
	PriorityFrontPage     = 1
)

// ErrNoWork is returned by ClaimNext when nothing is pending.
var ErrNoWork = store.ErrNoTaskAvailable

// TaskQueue is the ordered, prioritized, resumable work queue in front of
// the Store (spec §4.E).
type TaskQueue interface {
	Enqueue(ctx context.Context, task *store.PipelineTask) (*store.PipelineTask, error)
	ClaimNext(ctx context.Context, workerToken string, leaseTTL time.Duration) (*store.PipelineTask, error)
	RenewLease(ctx context.Context, taskID uuid.UUID, workerToken string, newExpiresAt time.Time) error
	Complete(ctx context.Context, taskID uuid.UUID) error
	Fail(ctx context.Context, taskID uuid.UUID, cause error, retryable bool) error
	Cancel(ctx context.Context, taskID uuid.UUID) error
	RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error)
}

// StoreQueue implements TaskQueue directly on top of Store, adding only the
// retry/backoff policy Store itself has no opinion on.
type StoreQueue struct {
	store       store.Store
	logger      logger.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewStoreQueue constructs a StoreQueue with the retry policy from AppConfig
// (spec §4.E backoff: base 1s, cap 5min, 5 attempts by default).
func NewStoreQueue(s store.Store, cfg *config.AppConfig, logger logger.Logger) *StoreQueue {
	return &StoreQueue{
		store:       s,
		logger:      logger,
		maxAttempts: cfg.MaxTaskAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		maxDelay:    cfg.RetryMaxDelay,
	}
}

// Enqueue implements TaskQueue.
func (q *StoreQueue) Enqueue(ctx context.Context, task *store.PipelineTask) (*store.PipelineTask, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.Status = store.TaskPending
	if err := q.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ClaimNext implements TaskQueue.
func (q *StoreQueue) ClaimNext(ctx context.Context, workerToken string, leaseTTL time.Duration) (*store.PipelineTask, error) {
	task, err := q.store.ClaimNextTask(ctx, workerToken, leaseTTL)
	if errors.Is(err, store.ErrNoTaskAvailable) {
		return nil, ErrNoWork
	}
	return task, err
}

// RenewLease implements TaskQueue.
func (q *StoreQueue) RenewLease(ctx context.Context, taskID uuid.UUID, workerToken string, newExpiresAt time.Time) error {
	return q.store.RenewLease(ctx, taskID, workerToken, newExpiresAt)
}

// Complete implements TaskQueue.
func (q *StoreQueue) Complete(ctx context.Context, taskID uuid.UUID) error {
	return q.store.CompleteTask(ctx, taskID)
}

// Fail implements TaskQueue. On a retryable failure within the attempt
// budget, the task is returned to pending with RunAfter set to
// NextAttemptDelay(task.Attempt) from now, so ClaimNextTask won't hand it
// back out before the exponential backoff delay elapses (spec §4.E: 1s,
// 2s, 4s, ... capped at 5min).
func (q *StoreQueue) Fail(ctx context.Context, taskID uuid.UUID, cause error, retryable bool) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if !retryable {
		return q.store.FailTask(ctx, taskID, msg, store.TaskFailed, nil)
	}

	task, err := q.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Attempt >= q.maxAttempts {
		return q.store.FailTask(ctx, taskID, msg, store.TaskFailed, nil)
	}
	runAfter := time.Now().Add(q.NextAttemptDelay(task.Attempt))
	return q.store.FailTask(ctx, taskID, msg, store.TaskPending, &runAfter)
}

// Cancel implements TaskQueue.
func (q *StoreQueue) Cancel(ctx context.Context, taskID uuid.UUID) error {
	return q.store.CancelTask(ctx, taskID)
}

// RecoverExpiredLeases implements TaskQueue.
func (q *StoreQueue) RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	return q.store.RecoverExpiredLeases(ctx, now)
}

// NextAttemptDelay returns the exponential backoff delay before attempt
// should be retried: 1s, 2s, 4s, ... capped at maxDelay.
func (q *StoreQueue) NextAttemptDelay(attempt int) time.Duration {
	delay := q.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.maxDelay {
			return q.maxDelay
		}
	}
	return delay
}
