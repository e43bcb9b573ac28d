package pipeline

import (
	"context"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/queue"
	"github.com/redditcraft/commission-pipeline/internal/store"
)

// leaseRenewalFraction is how much of the lease TTL elapses before a
// worker renews it (spec §5: "workers renew at >= half TTL").
const leaseRenewalFraction = 2

// Worker repeatedly claims and runs tasks, renewing its lease while a task
// is in flight (spec §4.E/§5). cmd/service does not construct one: the
// pipeline run mode enqueues, claims and runs a single task through
// Engine.RunTask, and no run mode reads WorkerConcurrency.
type Worker struct {
	engine    *Engine
	taskQueue queue.TaskQueue
	token     string
	leaseTTL  time.Duration
	logger    logger.Logger
}

// NewWorker constructs a Worker with a unique lease-owner token.
func NewWorker(engine *Engine, taskQueue queue.TaskQueue, token string, cfg *config.AppConfig, logger logger.Logger) *Worker {
	return &Worker{engine: engine, taskQueue: taskQueue, token: token, leaseTTL: cfg.LeaseTTL, logger: logger}
}

// Run polls for work until ctx is cancelled, sleeping idlePoll between
// empty claims.
func (w *Worker) Run(ctx context.Context, idlePoll time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.taskQueue.ClaimNext(ctx, w.token, w.leaseTTL)
		if err == queue.ErrNoWork {
			time.Sleep(idlePoll)
			continue
		}
		if err != nil {
			w.logger.Error(ctx, "failed to claim next task", logger.Fields{"error": err.Error()})
			time.Sleep(idlePoll)
			continue
		}

		w.runWithLeaseRenewal(ctx, task)
	}
}

func (w *Worker) runWithLeaseRenewal(ctx context.Context, task *store.PipelineTask) {
	renewalInterval := w.leaseTTL / leaseRenewalFraction
	renewCtx, stopRenewing := context.WithCancel(ctx)
	defer stopRenewing()

	go func() {
		ticker := time.NewTicker(renewalInterval)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				newExpiry := time.Now().Add(w.leaseTTL)
				if err := w.taskQueue.RenewLease(renewCtx, task.ID, w.token, newExpiry); err != nil {
					w.logger.Warning(renewCtx, "failed to renew task lease", logger.Fields{"task_id": task.ID.String(), "error": err.Error()})
				}
			}
		}
	}()

	if err := w.engine.RunTask(ctx, task); err != nil {
		w.logger.Error(ctx, "task run ended with error", logger.Fields{"task_id": task.ID.String(), "error": err.Error()})
	}
}
