package agents

import (
	"context"
	"fmt"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"golang.org/x/time/rate"
)

// PromoterAgentID identifies this agent's AgentAction rows.
const PromoterAgentID = "promoter_agent"

const promoterActionKind = "promoted"

// promoterPrompt asks the LLM to score a post's artistic potential for a
// commissioned-artwork promotional comment.
const promoterPrompt = "You scout Reddit's popular posts for ones that would" +
	" make a striking piece of commissioned artwork. Given a post's title" +
	" and body, respond with a JSON object {score, action, text}: score" +
	" 0-100 for artistic potential, action \"promote\" or \"ignore\", and" +
	" text a short, non-spammy promotional comment if action is \"promote\"."

// RedditPromoter is the subset of *reddit.Client PromoterAgent needs.
type RedditPromoter interface {
	GetHotPosts(ctx context.Context, subreddit string, limit int) ([]*reddit.Post, error)
	GetFrontPage(ctx context.Context, limit int) ([]*reddit.Post, error)
	Comment(ctx context.Context, thingID, body string) (string, error)
}

// PromoterAgent scans the front page (or one subreddit's hot listing), has
// the advisor score each post for artistic potential, and on a "promote"
// verdict above the score threshold comments the advisor's text on the
// post as-is (spec §4.I); no link to the service is added to that text.
// It never mutates core commission state.
type PromoterAgent struct {
	reddit  RedditPromoter
	store   store.Store
	advisor Advisor
	limiter RateLimiter
	cfg     *config.AppConfig
	logger  logger.Logger
}

// NewPromoterAgent constructs a PromoterAgent.
func NewPromoterAgent(redditClient *reddit.Client, s store.Store, advisor Advisor, cfg *config.AppConfig, logger logger.Logger) *PromoterAgent {
	return &PromoterAgent{
		reddit:  redditClient,
		store:   s,
		advisor: advisor,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.AgentRateLimitPerHour)/3600), cfg.AgentRateLimitBurst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Run scans subreddit (or the front page, if empty) on a loop until ctx is
// cancelled or singleCycle is set (spec §6: `agent promoter --single-cycle`).
func (a *PromoterAgent) Run(ctx context.Context, subreddit string, dryRun, singleCycle bool) error {
	return runLoop(ctx, a.cfg.AgentPeriod, a.cfg.AgentMaxConsecutiveFailures, singleCycle, func(ctx context.Context) error {
		return a.runCycle(ctx, subreddit, dryRun)
	})
}

func (a *PromoterAgent) runCycle(ctx context.Context, subreddit string, dryRun bool) error {
	var posts []*reddit.Post
	var err error
	if subreddit != "" {
		posts, err = a.reddit.GetHotPosts(ctx, subreddit, 50)
	} else {
		posts, err = a.reddit.GetFrontPage(ctx, 50)
	}
	if err != nil {
		writeHeartbeat(ctx, a.store, PromoterAgentID, a.logger)
		return err
	}

	for _, post := range posts {
		if recentlyActedOn(ctx, a.store, PromoterAgentID, post.ExternalID, promoterActionKind, a.cfg.AgentDedupWindow) {
			continue
		}

		verdict, err := a.advisor.Classify(ctx, promoterPrompt, post)
		if err != nil {
			a.logger.Warning(ctx, "promoter agent classification failed", logger.Fields{"post_id": post.ExternalID, "error": err.Error()})
			continue
		}
		if verdict.Action != "promote" || verdict.Score < a.cfg.AgentScoreThreshold {
			continue
		}
		if !a.limiter.Allow() {
			a.logger.Info(ctx, "promoter agent rate limited, deferring to next cycle", logger.Fields{})
			break
		}

		if err := a.promote(ctx, post, verdict, dryRun); err != nil {
			a.logger.Error(ctx, "promoter agent action failed", logger.Fields{"post_id": post.ExternalID, "error": err.Error()})
		}
	}

	writeHeartbeat(ctx, a.store, PromoterAgentID, a.logger)
	return nil
}

func (a *PromoterAgent) promote(ctx context.Context, post *reddit.Post, verdict *Verdict, dryRun bool) error {
	if !dryRun && verdict.Text != "" {
		if _, err := a.reddit.Comment(ctx, fmt.Sprintf("t3_%s", post.ExternalID), verdict.Text); err != nil {
			return err
		}
	}

	return a.store.RecordAgentAction(ctx, &store.AgentAction{
		AgentID:  PromoterAgentID,
		TargetID: post.ExternalID,
		Kind:     promoterActionKind,
		DryRun:   dryRun,
		Payload:  store.JSONMap{"score": verdict.Score},
	})
}
