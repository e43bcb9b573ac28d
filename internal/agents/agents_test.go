package agents

import (
	"context"
	"testing"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
)

type fakeAgentStore struct {
	store.Store
	actions []*store.AgentAction
}

func (s *fakeAgentStore) RecordAgentAction(ctx context.Context, action *store.AgentAction) error {
	s.actions = append(s.actions, action)
	return nil
}

func (s *fakeAgentStore) RecentAgentAction(ctx context.Context, agentID, targetID, kind string, within time.Duration) (*store.AgentAction, error) {
	for _, action := range s.actions {
		if action.AgentID == agentID && action.TargetID == targetID && action.Kind == kind {
			return action, nil
		}
	}
	return nil, nil
}

type fakeAdvisor struct {
	verdict *Verdict
	err     error
}

func (a *fakeAdvisor) Classify(ctx context.Context, systemPrompt string, post *reddit.Post) (*Verdict, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.verdict, nil
}

type fakeModerator struct {
	posts    []*reddit.Post
	upvotes  []string
	comments []string
}

func (f *fakeModerator) GetHotPosts(ctx context.Context, subreddit string, limit int) ([]*reddit.Post, error) {
	return f.posts, nil
}
func (f *fakeModerator) Upvote(ctx context.Context, externalID string) error {
	f.upvotes = append(f.upvotes, externalID)
	return nil
}
func (f *fakeModerator) Comment(ctx context.Context, thingID, body string) (string, error) {
	f.comments = append(f.comments, thingID)
	return "c1", nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		AgentPeriod:                 time.Millisecond,
		AgentDedupWindow:            time.Hour,
		AgentRateLimitPerHour:       3600,
		AgentRateLimitBurst:         10,
		AgentScoreThreshold:         50,
		AgentMaxConsecutiveFailures: 3,
	}
}

func TestCommunityAgent_ActsOnHighScoringWelcomePost(t *testing.T) {
	fs := &fakeAgentStore{}
	moderator := &fakeModerator{posts: []*reddit.Post{{ExternalID: "p1", Title: "hi"}}}
	advisor := &fakeAdvisor{verdict: &Verdict{Score: 90, Action: "welcome", Text: "welcome!"}}
	agent := &CommunityAgent{reddit: moderator, store: fs, advisor: advisor, limiter: alwaysAllow{}, cfg: testConfig(), logger: logger.NewLogger()}

	if err := agent.runCycle(context.Background(), []string{"aww"}, false); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if len(moderator.upvotes) != 1 || moderator.upvotes[0] != "p1" {
		t.Fatalf("expected an upvote on p1, got %+v", moderator.upvotes)
	}
	if len(moderator.comments) != 1 {
		t.Fatalf("expected a welcome comment, got %+v", moderator.comments)
	}
}

func TestCommunityAgent_SkipsBelowThresholdAndRecentlyActedOn(t *testing.T) {
	fs := &fakeAgentStore{}
	moderator := &fakeModerator{posts: []*reddit.Post{{ExternalID: "low", Title: "meh"}, {ExternalID: "dup", Title: "seen"}}}
	advisor := &fakeAdvisor{verdict: &Verdict{Score: 10, Action: "ignore"}}
	cfg := testConfig()
	agent := &CommunityAgent{reddit: moderator, store: fs, advisor: advisor, limiter: alwaysAllow{}, cfg: cfg, logger: logger.NewLogger()}

	fs.actions = append(fs.actions, &store.AgentAction{AgentID: CommunityAgentID, TargetID: "dup", Kind: communityActionKind, CreatedAt: time.Now()})

	if err := agent.runCycle(context.Background(), []string{"aww"}, false); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if len(moderator.upvotes) != 0 {
		t.Fatalf("expected no actions, got upvotes=%+v", moderator.upvotes)
	}
}

func TestCommunityAgent_DryRunRecordsActionWithoutWriting(t *testing.T) {
	fs := &fakeAgentStore{}
	moderator := &fakeModerator{posts: []*reddit.Post{{ExternalID: "p1", Title: "hi"}}}
	advisor := &fakeAdvisor{verdict: &Verdict{Score: 90, Action: "welcome", Text: "welcome!"}}
	agent := &CommunityAgent{reddit: moderator, store: fs, advisor: advisor, limiter: alwaysAllow{}, cfg: testConfig(), logger: logger.NewLogger()}

	if err := agent.runCycle(context.Background(), []string{"aww"}, true); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if len(moderator.upvotes) != 0 || len(moderator.comments) != 0 {
		t.Fatal("dry run must not call any write endpoint")
	}
	found := false
	for _, action := range fs.actions {
		if action.TargetID == "p1" && action.DryRun {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a dry-run AgentAction to be recorded")
	}
}

type fakePromoter struct {
	posts    []*reddit.Post
	comments []string
}

func (f *fakePromoter) GetHotPosts(ctx context.Context, subreddit string, limit int) ([]*reddit.Post, error) {
	return f.posts, nil
}
func (f *fakePromoter) GetFrontPage(ctx context.Context, limit int) ([]*reddit.Post, error) {
	return f.posts, nil
}
func (f *fakePromoter) Comment(ctx context.Context, thingID, body string) (string, error) {
	f.comments = append(f.comments, thingID)
	return "c1", nil
}

func TestPromoterAgent_PromotesHighScoringPost(t *testing.T) {
	fs := &fakeAgentStore{}
	promoter := &fakePromoter{posts: []*reddit.Post{{ExternalID: "p1", Title: "wow"}}}
	advisor := &fakeAdvisor{verdict: &Verdict{Score: 95, Action: "promote", Text: "check this out"}}
	agent := &PromoterAgent{reddit: promoter, store: fs, advisor: advisor, limiter: alwaysAllow{}, cfg: testConfig(), logger: logger.NewLogger()}

	if err := agent.Run(context.Background(), "", false, true); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(promoter.comments) != 1 {
		t.Fatalf("expected a promotional comment, got %+v", promoter.comments)
	}
}

func TestPromoterAgent_IgnoresNonPromoteVerdict(t *testing.T) {
	fs := &fakeAgentStore{}
	promoter := &fakePromoter{posts: []*reddit.Post{{ExternalID: "p1", Title: "meh"}}}
	advisor := &fakeAdvisor{verdict: &Verdict{Score: 95, Action: "ignore"}}
	agent := &PromoterAgent{reddit: promoter, store: fs, advisor: advisor, limiter: alwaysAllow{}, cfg: testConfig(), logger: logger.NewLogger()}

	if err := agent.Run(context.Background(), "", false, true); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(promoter.comments) != 0 {
		t.Fatalf("expected no comment for an ignore verdict, got %+v", promoter.comments)
	}
}

type alwaysAllow struct{}

func (alwaysAllow) Allow() bool { return true }
