package fundraising

import (
	"context"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/queue"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
)

// DefaultGoalAmount seeds a subreddit's fundraising goal the first time it
// is referenced, in minor currency units.
const DefaultGoalAmount int64 = 10000_00

// SubredditProgress is one subreddit's row in GetBySubreddit's result.
type SubredditProgress struct {
	Subreddit  *store.Subreddit
	Goal       *store.SubredditGoal
	Commission []*store.Donation
	Support    []*store.Donation
}

// OverallProgress aggregates totals across every subreddit.
type OverallProgress struct {
	TotalRaisedMinor int64
	SubredditCount   int
	CompletedGoals   int
}

// Ledger is the FundraisingLedger (spec §4.H): the only place a donation's
// amount is translated into goal/tier accounting, and the only place tier
// completion side effects fire.
type Ledger struct {
	store     store.Store
	taskQueue queue.TaskQueue
	logger    logger.Logger
}

// NewLedger constructs a Ledger.
func NewLedger(s store.Store, taskQueue queue.TaskQueue, logger logger.Logger) *Ledger {
	return &Ledger{store: s, taskQueue: taskQueue, logger: logger}
}

// ApplyDonation is idempotent via Donation.Applied (spec §4.H): calling it
// twice for the same donation increases the goal amount and fires the
// tier-completion side effect at most once.
func (l *Ledger) ApplyDonation(ctx context.Context, donationID uuid.UUID) error {
	donation, err := l.store.GetDonation(ctx, donationID)
	if err != nil {
		return errs.NotFoundError("donation not found")
	}

	if donation.Applied {
		return nil
	}
	if donation.Status != store.DonationSucceeded {
		return nil
	}
	if donation.Source != store.DonationSourceGateway {
		// Manual/creator-match donations are tracked separately and do not
		// count toward a subreddit's goal (spec §3 invariant).
		return l.store.MarkDonationApplied(ctx, donationID)
	}
	if donation.SubredditID == nil {
		return l.store.MarkDonationApplied(ctx, donationID)
	}

	if _, err := l.store.GetOrCreateGoal(ctx, *donation.SubredditID, DefaultGoalAmount); err != nil {
		return errs.InternalError("failed to ensure subreddit goal exists", err)
	}

	goal, applied, justCompleted, err := l.store.ApplyDonationToGoal(ctx, donationID, *donation.SubredditID, donation.AmountMinor)
	if err != nil {
		return errs.InternalError("failed to apply donation to goal", err)
	}
	if !applied {
		// A concurrent delivery of the same webhook event already applied
		// this donation and incremented the goal; nothing left to do.
		return nil
	}

	if justCompleted {
		if err := l.onTierCompleted(ctx, *donation.SubredditID, goal); err != nil {
			return err
		}
	}

	return nil
}

// onTierCompleted records the AgentAction and enqueues the elevated-priority
// SUBREDDIT_POST task spec §4.H describes as the banner-art integration
// point.
func (l *Ledger) onTierCompleted(ctx context.Context, subredditID uuid.UUID, goal *store.SubredditGoal) error {
	action := &store.AgentAction{
		AgentID:  "fundraising_ledger",
		TargetID: subredditID.String(),
		Kind:     "tier_completed",
		Payload:  store.JSONMap{"goal_amount": goal.GoalAmount, "current_amount": goal.CurrentAmount},
	}
	if err := l.store.RecordAgentAction(ctx, action); err != nil {
		return errs.InternalError("failed to record tier_completed action", err)
	}

	task := &store.PipelineTask{
		ID:          uuid.New(),
		Type:        store.TaskSubredditPost,
		Status:      store.TaskPending,
		Priority:    queue.PrioritySubredditPost,
		SubredditID: &subredditID,
	}
	if _, err := l.taskQueue.Enqueue(ctx, task); err != nil {
		return errs.InternalError("failed to enqueue tier-completion post task", err)
	}
	return nil
}

// GetProgress returns a single subreddit's goal progress.
func (l *Ledger) GetProgress(ctx context.Context, subredditID uuid.UUID) (*store.SubredditGoal, error) {
	return l.store.GetOrCreateGoal(ctx, subredditID, DefaultGoalAmount)
}

// GetOverall aggregates totals across every subreddit with a goal.
func (l *Ledger) GetOverall(ctx context.Context) (*OverallProgress, error) {
	subreddits, err := l.store.ListSubreddits(ctx)
	if err != nil {
		return nil, err
	}

	overall := &OverallProgress{}
	for _, sub := range subreddits {
		goal, err := l.store.GetOrCreateGoal(ctx, sub.ID, DefaultGoalAmount)
		if err != nil {
			continue
		}
		overall.SubredditCount++
		overall.TotalRaisedMinor += goal.CurrentAmount
		if goal.Status == store.GoalCompleted {
			overall.CompletedGoals++
		}
	}
	return overall, nil
}

// GetBySubreddit returns every subreddit's goal plus its donations split
// into commission vs support buckets.
func (l *Ledger) GetBySubreddit(ctx context.Context) ([]*SubredditProgress, error) {
	subreddits, err := l.store.ListSubreddits(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*SubredditProgress, 0, len(subreddits))
	for _, sub := range subreddits {
		goal, err := l.store.GetOrCreateGoal(ctx, sub.ID, DefaultGoalAmount)
		if err != nil {
			return nil, err
		}

		donations, err := l.store.ListDonationsBySubreddit(ctx, sub.ID, 500, 0)
		if err != nil {
			return nil, err
		}

		progress := &SubredditProgress{Subreddit: sub, Goal: goal}
		for _, d := range donations {
			if d.Type == store.DonationTypeCommission {
				progress.Commission = append(progress.Commission, d)
			} else {
				progress.Support = append(progress.Support, d)
			}
		}
		results = append(results, progress)
	}
	return results, nil
}
