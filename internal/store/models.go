package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JSONMap is an opaque JSON object column, used for PipelineTask.Metadata and
// AgentAction.Payload (spec §3: "opaque metadata" / "opaque rating payload").
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("store: JSONMap column is not []byte or string")
		}
	}
	if len(bytes) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Subreddit is a Reddit community referenced by commissions or agent
// activity. Owned by Store; created on first reference, never deleted
// (spec §3).
type Subreddit struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	DisplayName string    `gorm:"type:varchar(128)"`
	Over18      bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RedditPost is created when a task resolves to a concrete post; retained
// afterward.
type RedditPost struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExternalID     string    `gorm:"type:varchar(32);uniqueIndex;not null"`
	Title          string    `gorm:"type:text;not null"`
	Body           string    `gorm:"type:text"`
	Score          int       `gorm:"not null;default:0"`
	SubredditID    uuid.UUID `gorm:"type:uuid;index;not null"`
	Permalink      string    `gorm:"type:text"`
	CommentSummary string    `gorm:"type:text"`
	CreatedAt      time.Time
}

// Donation statuses (spec §3: a DAG — pending→succeeded→refunded,
// pending→failed. No resurrection).
const (
	DonationPending   = "pending"
	DonationSucceeded = "succeeded"
	DonationFailed    = "failed"
	DonationRefunded  = "refunded"
)

// Donation types and commission sub-types.
const (
	DonationTypeCommission = "commission"
	DonationTypeSupport    = "support"

	CommissionRandomRandom    = "random_random"
	CommissionRandomSubreddit = "random_subreddit"
	CommissionSpecificPost    = "specific_post"
	CommissionNone            = "none"

	DonationSourceGateway = "stripe"
	DonationSourceManual  = "manual"
)

// Donation records a single payment toward a commission or a community's
// fundraising goal.
type Donation struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	IntentID       string     `gorm:"type:varchar(128);uniqueIndex;not null"`
	AmountMinor    int64      `gorm:"not null"`
	Currency       string     `gorm:"type:varchar(8);not null;default:'usd'"`
	Status         string     `gorm:"type:varchar(16);not null;index"`
	Type           string     `gorm:"type:varchar(16);not null"`
	CommissionType string     `gorm:"type:varchar(24);not null;default:'none'"`
	PostID         *uuid.UUID `gorm:"type:uuid"`
	SubredditID    *uuid.UUID `gorm:"type:uuid;index"`
	Message        string     `gorm:"type:varchar(100)"`
	RedditHandle   string     `gorm:"type:varchar(20)"`
	Anonymous      bool       `gorm:"not null;default:false"`
	TierName       string     `gorm:"type:varchar(32)"`
	Source         string     `gorm:"type:varchar(16);not null;default:'stripe'"`
	Applied        bool       `gorm:"not null;default:false"` // FundraisingLedger.ApplyDonation idempotency flag (spec §4.H)
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tier is static, seeded-once donation-amount-band configuration.
type Tier struct {
	Name         string `gorm:"type:varchar(32);primaryKey"`
	MinAmount    int64  `gorm:"not null"`
	DisplayColor string `gorm:"type:varchar(16)"`
	DisplayIcon  string `gorm:"type:varchar(32)"`
	HD           bool   `gorm:"not null;default:false"`
}

// PipelineTask statuses and types.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskCancelled  = "cancelled"

	TaskSubredditPost = "SUBREDDIT_POST"
	TaskFrontPage     = "FRONT_PAGE"
	TaskSpecificPost  = "SPECIFIC_POST"
)

// PipelineTask is a single unit of work processed by the PipelineEngine
// (spec §4.F), claimed and leased via TaskQueue (spec §4.E).
type PipelineTask struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DonationID     *uuid.UUID `gorm:"type:uuid;index"` // nil for agent-originated tasks (e.g. tier-completion announcements) that have no donation
	Type           string     `gorm:"type:varchar(24);not null"`
	Status         string     `gorm:"type:varchar(16);not null;index"`
	Priority       int        `gorm:"not null;default:0;index"`
	Attempt        int        `gorm:"not null;default:0"`
	SubredditID    *uuid.UUID `gorm:"type:uuid"`
	PostID         *uuid.UUID `gorm:"type:uuid"`
	ErrorMessage   string     `gorm:"type:text"`
	LeaseOwner     string     `gorm:"type:varchar(64);index"`
	LeaseExpiresAt *time.Time
	// RunAfter gates ClaimNextTask: a retryable failure sets it to
	// now+backoff so the task isn't re-claimed before its delay elapses
	// (spec §4.E exponential backoff).
	RunAfter  *time.Time `gorm:"index"`
	Metadata  JSONMap    `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProgressEvent is an append-only stage transition for a task, ordered by
// (task_id, id) per spec §3.
type ProgressEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	TaskID    uuid.UUID `gorm:"type:uuid;index;not null"`
	Stage     string    `gorm:"type:varchar(32);not null"`
	Message   string    `gorm:"type:text"`
	Percent   int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

// ProductInfo is created exactly once per successfully completed task.
type ProductInfo struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskID        uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	RedditPostID  uuid.UUID `gorm:"type:uuid;not null"`
	Theme         string    `gorm:"type:text"`
	ImageTitle    string    `gorm:"type:text"`
	ImageURL      string    `gorm:"type:text;not null"`
	ProductURL    string    `gorm:"type:text;not null"`
	TemplateID    string    `gorm:"type:varchar(64)"`
	Model         string    `gorm:"type:varchar(64)"`
	PromptVersion string    `gorm:"type:varchar(16)"`
	ImageQuality  string    `gorm:"type:varchar(16)"`
	CreatedAt     time.Time
}

// SubredditGoal statuses.
const (
	GoalActive    = "active"
	GoalCompleted = "completed"
)

// SubredditGoal is the ledger-maintained fundraising threshold for a
// community (spec §4.H).
type SubredditGoal struct {
	SubredditID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	GoalAmount    int64     `gorm:"not null"`
	CurrentAmount int64     `gorm:"not null;default:0"`
	Status        string    `gorm:"type:varchar(16);not null;default:'active'"`
	CompletedAt   *time.Time
}

// AgentAction is an append-only dedup/audit record written by
// CommunityAgent/PromoterAgent (spec §4.I) and by FundraisingLedger on tier
// completion (spec §4.H).
type AgentAction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AgentID   string    `gorm:"type:varchar(64);index;not null"`
	TargetID  string    `gorm:"type:varchar(128);index;not null"`
	Kind      string    `gorm:"type:varchar(32);not null"`
	DryRun    bool      `gorm:"not null;default:false"`
	Payload   JSONMap   `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"index"`
}

// AllModels lists every gorm model this service owns, for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Subreddit{},
		&RedditPost{},
		&Donation{},
		&Tier{},
		&PipelineTask{},
		&ProgressEvent{},
		&ProductInfo{},
		&SubredditGoal{},
		&AgentAction{},
	}
}
