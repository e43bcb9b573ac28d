package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNoTaskAvailable is returned by ClaimNextTask when the pending queue is
// empty; callers treat this as "poll again later", not a failure.
var ErrNoTaskAvailable = errors.New("store: no task available")

// ErrLeaseMismatch is returned by RenewLease when the caller no longer holds
// the lease (expired and reclaimed by another worker, or never held it).
var ErrLeaseMismatch = errors.New("store: lease mismatch")

// Store is the single transactional boundary onto Postgres (spec §4.A).
// Every other component depends on it; it has no domain logic of its own
// beyond what the strict-serializability guarantees on ClaimNextTask,
// UpsertDonationByIntent and goal-amount updates require.
type Store interface {
	// ClaimNextTask atomically selects and leases the highest-priority,
	// oldest pending task, marking it in_progress with the given owner
	// token and lease expiry. Returns ErrNoTaskAvailable if nothing is
	// pending.
	ClaimNextTask(ctx context.Context, workerToken string, leaseTTL time.Duration) (*PipelineTask, error)

	// RenewLease extends a held lease. Returns ErrLeaseMismatch if the
	// caller no longer holds it.
	RenewLease(ctx context.Context, taskID uuid.UUID, workerToken string, newExpiresAt time.Time) error

	// RecoverExpiredLeases resets any in_progress task whose lease expired
	// before now back to pending and returns how many were recovered. The
	// attempt counter is left as is; ClaimNextTask increments it when the
	// task is next claimed.
	RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error)

	// AppendProgress records a stage transition for a task.
	AppendProgress(ctx context.Context, taskID uuid.UUID, stage, message string, percent int) (*ProgressEvent, error)

	// GetLatestProgressEvent returns the most recently appended
	// ProgressEvent for a task, or nil if none exists yet.
	GetLatestProgressEvent(ctx context.Context, taskID uuid.UUID) (*ProgressEvent, error)

	// UpsertDonationByIntent creates or updates the donation for a payment
	// gateway intent id, applying fields idempotently under serializable
	// isolation.
	UpsertDonationByIntent(ctx context.Context, intentID string, fields map[string]interface{}) (*Donation, error)

	CreateTask(ctx context.Context, task *PipelineTask) error
	GetTask(ctx context.Context, id uuid.UUID) (*PipelineTask, error)
	// GetTaskByDonationID returns the task a donation triggered, if any.
	GetTaskByDonationID(ctx context.Context, donationID uuid.UUID) (*PipelineTask, error)
	ListTasks(ctx context.Context, status string, limit, offset int) ([]*PipelineTask, error)
	CompleteTask(ctx context.Context, id uuid.UUID) error
	// FailTask transitions a task to toStatus. When toStatus is TaskPending
	// (a retryable failure within the attempt budget), runAfter gates when
	// ClaimNextTask may pick it back up, enforcing the backoff delay (spec
	// §4.E); pass nil for a terminal TaskFailed transition.
	FailTask(ctx context.Context, id uuid.UUID, errMsg string, toStatus string, runAfter *time.Time) error
	CancelTask(ctx context.Context, id uuid.UUID) error
	// SetTaskPost persists the post a task resolved to, so a crash-and-resume
	// re-entry into the post_fetching stage can detect it already ran.
	SetTaskPost(ctx context.Context, taskID, postID uuid.UUID) error

	GetOrCreateSubreddit(ctx context.Context, name string, displayName string, over18 bool) (*Subreddit, error)
	GetSubredditByName(ctx context.Context, name string) (*Subreddit, error)
	GetSubreddit(ctx context.Context, id uuid.UUID) (*Subreddit, error)
	ListSubreddits(ctx context.Context) ([]*Subreddit, error)

	CreateRedditPost(ctx context.Context, post *RedditPost) error
	GetRedditPostByExternalID(ctx context.Context, externalID string) (*RedditPost, error)
	GetRedditPost(ctx context.Context, id uuid.UUID) (*RedditPost, error)

	GetDonation(ctx context.Context, id uuid.UUID) (*Donation, error)
	GetDonationByIntent(ctx context.Context, intentID string) (*Donation, error)
	MarkDonationApplied(ctx context.Context, id uuid.UUID) error
	ListDonationsBySubreddit(ctx context.Context, subredditID uuid.UUID, limit, offset int) ([]*Donation, error)

	GetTier(ctx context.Context, name string) (*Tier, error)
	TierForAmount(ctx context.Context, amountMinor int64) (*Tier, error)
	// SeedTiers inserts DefaultTiers on first run; a no-op on subsequent
	// startups once every row already exists.
	SeedTiers(ctx context.Context) error

	CreateProductInfo(ctx context.Context, info *ProductInfo) error
	// UpsertProductInfo creates or replaces the single ProductInfo row for
	// info.TaskID, letting a stage re-persist the row as it accumulates
	// fields across checkpoints (spec §4.F resumability).
	UpsertProductInfo(ctx context.Context, info *ProductInfo) error
	GetProductInfoByTask(ctx context.Context, taskID uuid.UUID) (*ProductInfo, error)
	ListProductInfo(ctx context.Context, limit, offset int) ([]*ProductInfo, error)

	GetOrCreateGoal(ctx context.Context, subredditID uuid.UUID, defaultGoalAmount int64) (*SubredditGoal, error)
	// ApplyDonationToGoal marks donationID applied and, only if that update
	// actually flips Applied false->true (reported via applied), increments
	// the subreddit's goal amount — both under the same serializable
	// transaction, so two concurrently-delivered duplicate webhooks for the
	// same donation can never both increment the goal (spec §4.H, §8
	// invariant #4). Returns applied=false with no error and a nil goal when
	// a concurrent caller already won the race.
	ApplyDonationToGoal(ctx context.Context, donationID, subredditID uuid.UUID, delta int64) (goal *SubredditGoal, applied bool, justCompleted bool, err error)

	RecordAgentAction(ctx context.Context, action *AgentAction) error
	// RecentAgentAction returns the most recent action of the given kind
	// for a target within the lookback window, or nil if none exists (used
	// for agent dedup).
	RecentAgentAction(ctx context.Context, agentID, targetID, kind string, within time.Duration) (*AgentAction, error)
	CountAgentActionsSince(ctx context.Context, agentID, kind string, since time.Time) (int64, error)
}

// GormStore is the gorm.io/gorm-backed Store implementation.
type GormStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormStore constructs a GormStore over an already-connected *gorm.DB.
func NewGormStore(db *gorm.DB, logger logger.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// AutoMigrate creates/updates every table this package owns.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(AllModels()...)
}

func (s *GormStore) ClaimNextTask(ctx context.Context, workerToken string, leaseTTL time.Duration) (*PipelineTask, error) {
	var claimed PipelineTask

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate PipelineTask
		err := tx.Clauses(lockingClause()).
			Where("status = ? AND (run_after IS NULL OR run_after <= ?)", TaskPending, time.Now()).
			Order("priority DESC, created_at ASC").
			Limit(1).
			Take(&candidate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoTaskAvailable
			}
			return err
		}

		expiresAt := time.Now().Add(leaseTTL)
		result := tx.Model(&PipelineTask{}).
			Where("id = ?", candidate.ID).
			Updates(map[string]interface{}{
				"status":           TaskInProgress,
				"lease_owner":      workerToken,
				"lease_expires_at": expiresAt,
				"attempt":          candidate.Attempt + 1,
				"run_after":        nil,
			})
		if result.Error != nil {
			return result.Error
		}

		candidate.Status = TaskInProgress
		candidate.LeaseOwner = workerToken
		candidate.LeaseExpiresAt = &expiresAt
		candidate.Attempt++
		claimed = candidate
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

func (s *GormStore) RenewLease(ctx context.Context, taskID uuid.UUID, workerToken string, newExpiresAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&PipelineTask{}).
		Where("id = ? AND lease_owner = ? AND status = ?", taskID, workerToken, TaskInProgress).
		Update("lease_expires_at", newExpiresAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLeaseMismatch
	}
	return nil
}

func (s *GormStore) RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	result := s.db.WithContext(ctx).Model(&PipelineTask{}).
		Where("status = ? AND lease_expires_at < ?", TaskInProgress, now).
		Updates(map[string]interface{}{
			"status":           TaskPending,
			"lease_owner":      "",
			"lease_expires_at": nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (s *GormStore) AppendProgress(ctx context.Context, taskID uuid.UUID, stage, message string, percent int) (*ProgressEvent, error) {
	event := &ProgressEvent{
		TaskID:    taskID,
		Stage:     stage,
		Message:   message,
		Percent:   percent,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (s *GormStore) GetLatestProgressEvent(ctx context.Context, taskID uuid.UUID) (*ProgressEvent, error) {
	var event ProgressEvent
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id DESC").Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *GormStore) UpsertDonationByIntent(ctx context.Context, intentID string, fields map[string]interface{}) (*Donation, error) {
	var donation Donation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(lockingClause()).Where("intent_id = ?", intentID).Take(&donation).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			donation = Donation{ID: uuid.New(), IntentID: intentID, Status: DonationPending}
			applyDonationFields(&donation, fields)
			return tx.Create(&donation).Error
		case err != nil:
			return err
		default:
			applyDonationFields(&donation, fields)
			return tx.Save(&donation).Error
		}
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	return &donation, nil
}

func applyDonationFields(d *Donation, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "amount_minor":
			d.AmountMinor = v.(int64)
		case "currency":
			d.Currency = v.(string)
		case "status":
			d.Status = v.(string)
		case "type":
			d.Type = v.(string)
		case "commission_type":
			d.CommissionType = v.(string)
		case "post_id":
			d.PostID = v.(*uuid.UUID)
		case "subreddit_id":
			d.SubredditID = v.(*uuid.UUID)
		case "message":
			d.Message = v.(string)
		case "reddit_handle":
			d.RedditHandle = v.(string)
		case "anonymous":
			d.Anonymous = v.(bool)
		case "tier_name":
			d.TierName = v.(string)
		case "source":
			d.Source = v.(string)
		}
	}
}

func (s *GormStore) CreateTask(ctx context.Context, task *PipelineTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = TaskPending
	}
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *GormStore) GetTask(ctx context.Context, id uuid.UUID) (*PipelineTask, error) {
	var task PipelineTask
	if err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *GormStore) GetTaskByDonationID(ctx context.Context, donationID uuid.UUID) (*PipelineTask, error) {
	var task PipelineTask
	if err := s.db.WithContext(ctx).Order("created_at DESC").First(&task, "donation_id = ?", donationID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *GormStore) ListTasks(ctx context.Context, status string, limit, offset int) ([]*PipelineTask, error) {
	var tasks []*PipelineTask
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *GormStore) CompleteTask(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&PipelineTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": TaskCompleted, "lease_owner": "", "lease_expires_at": nil}).Error
}

func (s *GormStore) FailTask(ctx context.Context, id uuid.UUID, errMsg string, toStatus string, runAfter *time.Time) error {
	return s.db.WithContext(ctx).Model(&PipelineTask{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           toStatus,
			"error_message":    errMsg,
			"lease_owner":      "",
			"lease_expires_at": nil,
			"run_after":        runAfter,
		}).Error
}

func (s *GormStore) CancelTask(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&PipelineTask{}).
		Where("id = ? AND status IN ?", id, []string{TaskPending, TaskInProgress}).
		Updates(map[string]interface{}{"status": TaskCancelled, "lease_owner": "", "lease_expires_at": nil}).Error
}

func (s *GormStore) SetTaskPost(ctx context.Context, taskID, postID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&PipelineTask{}).Where("id = ?", taskID).Update("post_id", postID).Error
}

func (s *GormStore) GetOrCreateSubreddit(ctx context.Context, name string, displayName string, over18 bool) (*Subreddit, error) {
	var sub Subreddit
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&sub).Error
	if err == nil {
		return &sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	sub = Subreddit{ID: uuid.New(), Name: name, DisplayName: displayName, Over18: over18}
	if err := s.db.WithContext(ctx).Clauses(onConflictDoNothing("name")).Create(&sub).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("name = ?", name).Take(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *GormStore) GetSubredditByName(ctx context.Context, name string) (*Subreddit, error) {
	var sub Subreddit
	if err := s.db.WithContext(ctx).Where("name = ?", name).Take(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *GormStore) GetSubreddit(ctx context.Context, id uuid.UUID) (*Subreddit, error) {
	var sub Subreddit
	if err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *GormStore) ListSubreddits(ctx context.Context) ([]*Subreddit, error) {
	var subs []*Subreddit
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *GormStore) CreateRedditPost(ctx context.Context, post *RedditPost) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Clauses(onConflictDoNothing("external_id")).Create(post).Error
}

func (s *GormStore) GetRedditPostByExternalID(ctx context.Context, externalID string) (*RedditPost, error) {
	var post RedditPost
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *GormStore) GetRedditPost(ctx context.Context, id uuid.UUID) (*RedditPost, error) {
	var post RedditPost
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *GormStore) GetDonation(ctx context.Context, id uuid.UUID) (*Donation, error) {
	var donation Donation
	if err := s.db.WithContext(ctx).First(&donation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

func (s *GormStore) GetDonationByIntent(ctx context.Context, intentID string) (*Donation, error) {
	var donation Donation
	if err := s.db.WithContext(ctx).Where("intent_id = ?", intentID).Take(&donation).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

func (s *GormStore) MarkDonationApplied(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&Donation{}).Where("id = ? AND applied = ?", id, false).
		Update("applied", true).Error
}

func (s *GormStore) ListDonationsBySubreddit(ctx context.Context, subredditID uuid.UUID, limit, offset int) ([]*Donation, error) {
	var donations []*Donation
	err := s.db.WithContext(ctx).Where("subreddit_id = ?", subredditID).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&donations).Error
	if err != nil {
		return nil, err
	}
	return donations, nil
}

func (s *GormStore) GetTier(ctx context.Context, name string) (*Tier, error) {
	var tier Tier
	if err := s.db.WithContext(ctx).First(&tier, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (s *GormStore) TierForAmount(ctx context.Context, amountMinor int64) (*Tier, error) {
	var tier Tier
	err := s.db.WithContext(ctx).Where("min_amount <= ?", amountMinor).Order("min_amount DESC").Take(&tier).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (s *GormStore) CreateProductInfo(ctx context.Context, info *ProductInfo) error {
	if info.ID == uuid.Nil {
		info.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(info).Error
}

func (s *GormStore) UpsertProductInfo(ctx context.Context, info *ProductInfo) error {
	if info.ID == uuid.Nil {
		info.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Clauses(onConflictUpdateAll("task_id")).Create(info).Error
}

func (s *GormStore) GetProductInfoByTask(ctx context.Context, taskID uuid.UUID) (*ProductInfo, error) {
	var info ProductInfo
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Take(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *GormStore) ListProductInfo(ctx context.Context, limit, offset int) ([]*ProductInfo, error) {
	var infos []*ProductInfo
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset).Find(&infos).Error
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *GormStore) GetOrCreateGoal(ctx context.Context, subredditID uuid.UUID, defaultGoalAmount int64) (*SubredditGoal, error) {
	var goal SubredditGoal
	err := s.db.WithContext(ctx).Where("subreddit_id = ?", subredditID).Take(&goal).Error
	if err == nil {
		return &goal, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	goal = SubredditGoal{SubredditID: subredditID, GoalAmount: defaultGoalAmount, Status: GoalActive}
	if err := s.db.WithContext(ctx).Clauses(onConflictDoNothing("subreddit_id")).Create(&goal).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("subreddit_id = ?", subredditID).Take(&goal).Error; err != nil {
		return nil, err
	}
	return &goal, nil
}

func (s *GormStore) ApplyDonationToGoal(ctx context.Context, donationID, subredditID uuid.UUID, delta int64) (*SubredditGoal, bool, bool, error) {
	var goal SubredditGoal
	applied := false
	justCompleted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Donation{}).Where("id = ? AND applied = ?", donationID, false).Update("applied", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race to a concurrent delivery of the same event;
			// the winner already incremented the goal.
			return nil
		}
		applied = true

		if err := tx.Clauses(lockingClause()).Where("subreddit_id = ?", subredditID).Take(&goal).Error; err != nil {
			return err
		}

		wasCompleted := goal.Status == GoalCompleted
		goal.CurrentAmount += delta
		if !wasCompleted && goal.CurrentAmount >= goal.GoalAmount {
			goal.Status = GoalCompleted
			now := time.Now()
			goal.CompletedAt = &now
			justCompleted = true
		}

		return tx.Save(&goal).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, false, err
	}
	if !applied {
		return nil, false, false, nil
	}
	return &goal, applied, justCompleted, nil
}

func (s *GormStore) RecordAgentAction(ctx context.Context, action *AgentAction) error {
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(action).Error
}

func (s *GormStore) RecentAgentAction(ctx context.Context, agentID, targetID, kind string, within time.Duration) (*AgentAction, error) {
	var action AgentAction
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND target_id = ? AND kind = ? AND created_at > ?", agentID, targetID, kind, time.Now().Add(-within)).
		Order("created_at DESC").Take(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (s *GormStore) CountAgentActionsSince(ctx context.Context, agentID, kind string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AgentAction{}).
		Where("agent_id = ? AND kind = ? AND created_at > ?", agentID, kind, since).
		Count(&count).Error
	return count, err
}
