package fundraising

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
)

type jsonErr string

func (e jsonErr) Error() string { return string(e) }

const errNotFound = jsonErr("not found")

type fakeStore struct {
	store.Store
	donations map[uuid.UUID]*store.Donation
	goals     map[uuid.UUID]*store.SubredditGoal
	actions   []*store.AgentAction
	subs      map[uuid.UUID]*store.Subreddit
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		donations: make(map[uuid.UUID]*store.Donation),
		goals:     make(map[uuid.UUID]*store.SubredditGoal),
		subs:      make(map[uuid.UUID]*store.Subreddit),
	}
}

func (f *fakeStore) GetDonation(ctx context.Context, id uuid.UUID) (*store.Donation, error) {
	d, ok := f.donations[id]
	if !ok {
		return nil, errNotFound
	}
	return d, nil
}

func (f *fakeStore) MarkDonationApplied(ctx context.Context, id uuid.UUID) error {
	f.donations[id].Applied = true
	return nil
}

func (f *fakeStore) GetOrCreateGoal(ctx context.Context, subredditID uuid.UUID, defaultGoalAmount int64) (*store.SubredditGoal, error) {
	if g, ok := f.goals[subredditID]; ok {
		return g, nil
	}
	g := &store.SubredditGoal{SubredditID: subredditID, GoalAmount: defaultGoalAmount, Status: store.GoalActive}
	f.goals[subredditID] = g
	return g, nil
}

func (f *fakeStore) ApplyDonationToGoal(ctx context.Context, donationID, subredditID uuid.UUID, delta int64) (*store.SubredditGoal, bool, bool, error) {
	d, ok := f.donations[donationID]
	if !ok {
		return nil, false, false, errNotFound
	}
	if d.Applied {
		return nil, false, false, nil
	}
	d.Applied = true

	g, ok := f.goals[subredditID]
	if !ok {
		return nil, false, false, errNotFound
	}
	wasCompleted := g.Status == store.GoalCompleted
	g.CurrentAmount += delta
	justCompleted := false
	if !wasCompleted && g.CurrentAmount >= g.GoalAmount {
		g.Status = store.GoalCompleted
		justCompleted = true
	}
	return g, true, justCompleted, nil
}

func (f *fakeStore) RecordAgentAction(ctx context.Context, action *store.AgentAction) error {
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeStore) ListSubreddits(ctx context.Context) ([]*store.Subreddit, error) {
	var out []*store.Subreddit
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) ListDonationsBySubreddit(ctx context.Context, subredditID uuid.UUID, limit, offset int) ([]*store.Donation, error) {
	var out []*store.Donation
	for _, d := range f.donations {
		if d.SubredditID != nil && *d.SubredditID == subredditID {
			out = append(out, d)
		}
	}
	return out, nil
}

// fakeQueue implements queue.TaskQueue, recording Enqueue calls and
// panicking on any method this package's ledger never calls.
type fakeQueue struct {
	enqueued []*store.PipelineTask
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *store.PipelineTask) (*store.PipelineTask, error) {
	q.enqueued = append(q.enqueued, task)
	return task, nil
}
func (q *fakeQueue) ClaimNext(ctx context.Context, workerToken string, leaseTTL time.Duration) (*store.PipelineTask, error) {
	panic("not used")
}
func (q *fakeQueue) RenewLease(ctx context.Context, taskID uuid.UUID, workerToken string, newExpiresAt time.Time) error {
	panic("not used")
}
func (q *fakeQueue) Complete(ctx context.Context, taskID uuid.UUID) error { panic("not used") }
func (q *fakeQueue) Fail(ctx context.Context, taskID uuid.UUID, cause error, retryable bool) error {
	panic("not used")
}
func (q *fakeQueue) Cancel(ctx context.Context, taskID uuid.UUID) error { panic("not used") }
func (q *fakeQueue) RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	panic("not used")
}

func newTestLedger(fs *fakeStore, fq *fakeQueue) *Ledger {
	return &Ledger{store: fs, taskQueue: fq, logger: logger.NewLogger()}
}

func TestLedger_ApplyDonation_IncrementsGoalAndIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	fq := &fakeQueue{}
	l := newTestLedger(fs, fq)

	subID := uuid.New()
	fs.subs[subID] = &store.Subreddit{ID: subID, Name: "golang"}
	donationID := uuid.New()
	fs.donations[donationID] = &store.Donation{
		ID: donationID, Status: store.DonationSucceeded, Source: store.DonationSourceGateway,
		SubredditID: &subID, AmountMinor: 500,
	}

	if err := l.ApplyDonation(context.Background(), donationID); err != nil {
		t.Fatalf("ApplyDonation returned error: %v", err)
	}
	if fs.goals[subID].CurrentAmount != 500 {
		t.Fatalf("expected goal current_amount 500, got %d", fs.goals[subID].CurrentAmount)
	}

	if err := l.ApplyDonation(context.Background(), donationID); err != nil {
		t.Fatalf("second ApplyDonation returned error: %v", err)
	}
	if fs.goals[subID].CurrentAmount != 500 {
		t.Fatalf("expected goal current_amount to stay 500 after duplicate apply, got %d", fs.goals[subID].CurrentAmount)
	}
}

func TestLedger_ApplyDonation_TierCompletionEnqueuesSubredditPostTask(t *testing.T) {
	fs := newFakeStore()
	fq := &fakeQueue{}
	l := newTestLedger(fs, fq)

	subID := uuid.New()
	fs.subs[subID] = &store.Subreddit{ID: subID, Name: "golang"}
	fs.goals[subID] = &store.SubredditGoal{SubredditID: subID, GoalAmount: 1000, CurrentAmount: 900, Status: store.GoalActive}

	donationID := uuid.New()
	fs.donations[donationID] = &store.Donation{
		ID: donationID, Status: store.DonationSucceeded, Source: store.DonationSourceGateway,
		SubredditID: &subID, AmountMinor: 200,
	}

	if err := l.ApplyDonation(context.Background(), donationID); err != nil {
		t.Fatalf("ApplyDonation returned error: %v", err)
	}

	if fs.goals[subID].Status != store.GoalCompleted {
		t.Fatalf("expected goal to be completed, got status=%s", fs.goals[subID].Status)
	}
	if len(fq.enqueued) != 1 || fq.enqueued[0].Type != store.TaskSubredditPost {
		t.Fatalf("expected one SUBREDDIT_POST task enqueued, got %+v", fq.enqueued)
	}
	if len(fs.actions) != 1 || fs.actions[0].Kind != "tier_completed" {
		t.Fatalf("expected one tier_completed AgentAction, got %+v", fs.actions)
	}
}

func TestLedger_ApplyDonation_SkipsNonSucceededDonation(t *testing.T) {
	fs := newFakeStore()
	fq := &fakeQueue{}
	l := newTestLedger(fs, fq)

	subID := uuid.New()
	donationID := uuid.New()
	fs.donations[donationID] = &store.Donation{ID: donationID, Status: store.DonationPending, SubredditID: &subID}

	if err := l.ApplyDonation(context.Background(), donationID); err != nil {
		t.Fatalf("ApplyDonation returned error: %v", err)
	}
	if len(fq.enqueued) != 0 {
		t.Fatalf("expected no task enqueued for a pending donation")
	}
}

func TestLedger_ApplyDonation_UnknownDonationReturnsNotFound(t *testing.T) {
	fs := newFakeStore()
	fq := &fakeQueue{}
	l := newTestLedger(fs, fq)

	err := l.ApplyDonation(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected an error for an unknown donation id")
	}
	if errors.Is(err, errNotFound) {
		t.Fatal("expected a wrapped NotFoundError, not the raw store error")
	}
}
