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

// CommunityAgentID identifies this agent's AgentAction rows.
const CommunityAgentID = "community_agent"

const communityActionKind = "moderated"

// communityPrompt asks the LLM to classify a post for moderation: whether
// it's a new poster worth welcoming, and whether it's on-topic enough to
// upvote.
const communityPrompt = "You moderate a Reddit community. Given a post's" +
	" title and body, respond with a JSON object {score, action, text}:" +
	" score 0-100 for how clearly on-topic and welcome-worthy the post is," +
	" action one of \"upvote\", \"welcome\", \"ignore\", and text a short" +
	" friendly welcome comment if action is \"welcome\"."

// RedditModerator is the subset of *reddit.Client CommunityAgent needs.
type RedditModerator interface {
	GetHotPosts(ctx context.Context, subreddit string, limit int) ([]*reddit.Post, error)
	Upvote(ctx context.Context, externalID string) error
	Comment(ctx context.Context, thingID, body string) (string, error)
}

// CommunityAgent moderates a home community: upvoting on-topic posts and
// welcoming new posters with a comment (spec §4.I). It never mutates core
// commission state.
type CommunityAgent struct {
	reddit  RedditModerator
	store   store.Store
	advisor Advisor
	limiter RateLimiter
	cfg     *config.AppConfig
	logger  logger.Logger
}

// NewCommunityAgent constructs a CommunityAgent.
func NewCommunityAgent(redditClient *reddit.Client, s store.Store, advisor Advisor, cfg *config.AppConfig, logger logger.Logger) *CommunityAgent {
	return &CommunityAgent{
		reddit:  redditClient,
		store:   s,
		advisor: advisor,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.AgentRateLimitPerHour)/3600), cfg.AgentRateLimitBurst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Run polls the given subreddits on a loop until ctx is cancelled, exiting
// non-zero after AgentMaxConsecutiveFailures consecutive failed cycles.
func (a *CommunityAgent) Run(ctx context.Context, subreddits []string, dryRun bool) error {
	return runLoop(ctx, a.cfg.AgentPeriod, a.cfg.AgentMaxConsecutiveFailures, false, func(ctx context.Context) error {
		return a.runCycle(ctx, subreddits, dryRun)
	})
}

func (a *CommunityAgent) runCycle(ctx context.Context, subreddits []string, dryRun bool) error {
	var firstErr error
	for _, subreddit := range subreddits {
		if err := a.moderateSubreddit(ctx, subreddit, dryRun); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	writeHeartbeat(ctx, a.store, CommunityAgentID, a.logger)
	return firstErr
}

func (a *CommunityAgent) moderateSubreddit(ctx context.Context, subreddit string, dryRun bool) error {
	posts, err := a.reddit.GetHotPosts(ctx, subreddit, 25)
	if err != nil {
		return err
	}

	for _, post := range posts {
		if recentlyActedOn(ctx, a.store, CommunityAgentID, post.ExternalID, communityActionKind, a.cfg.AgentDedupWindow) {
			continue
		}

		verdict, err := a.advisor.Classify(ctx, communityPrompt, post)
		if err != nil {
			a.logger.Warning(ctx, "community agent classification failed", logger.Fields{"post_id": post.ExternalID, "error": err.Error()})
			continue
		}
		if verdict.Score < a.cfg.AgentScoreThreshold {
			continue
		}
		if !a.limiter.Allow() {
			a.logger.Info(ctx, "community agent rate limited, deferring to next cycle", logger.Fields{})
			return nil
		}

		if err := a.act(ctx, post, verdict, dryRun); err != nil {
			a.logger.Error(ctx, "community agent action failed", logger.Fields{"post_id": post.ExternalID, "error": err.Error()})
		}
	}
	return nil
}

func (a *CommunityAgent) act(ctx context.Context, post *reddit.Post, verdict *Verdict, dryRun bool) error {
	if !dryRun {
		if err := a.reddit.Upvote(ctx, post.ExternalID); err != nil {
			return err
		}
		if verdict.Action == "welcome" && verdict.Text != "" {
			if _, err := a.reddit.Comment(ctx, fmt.Sprintf("t3_%s", post.ExternalID), verdict.Text); err != nil {
				return err
			}
		}
	}

	return a.store.RecordAgentAction(ctx, &store.AgentAction{
		AgentID:  CommunityAgentID,
		TargetID: post.ExternalID,
		Kind:     communityActionKind,
		DryRun:   dryRun,
		Payload:  store.JSONMap{"score": verdict.Score, "action": verdict.Action},
	})
}
