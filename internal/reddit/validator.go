package reddit

import (
	"context"
	stderrors "errors"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"gorm.io/gorm"
)

// ValidationRequest is the input to Validate (spec §4.D).
type ValidationRequest struct {
	CommissionType string
	Subreddit      string
	PostIDOrURL    string
}

// ValidationResult is the output of Validate (spec §4.D).
type ValidationResult struct {
	Valid     bool
	Subreddit string
	PostID    string
	PostTitle string
	Reason    string
	Ratings   map[string]interface{}
}

// Validator is the CommissionValidator (spec §4.D): checks a commission
// request against the social platform and, on success, upserts the
// referenced subreddit/post into Store so the pipeline can resolve them by
// id later.
type Validator struct {
	client *Client
	store  store.Store
	logger logger.Logger
}

// NewValidator constructs a Validator.
func NewValidator(client *Client, s store.Store, logger logger.Logger) *Validator {
	return &Validator{client: client, store: s, logger: logger}
}

// Validate implements the three commission_type behaviors from spec §4.D.
func (v *Validator) Validate(ctx context.Context, req ValidationRequest) (*ValidationResult, error) {
	switch req.CommissionType {
	case store.CommissionRandomRandom:
		return &ValidationResult{Valid: true}, nil
	case store.CommissionRandomSubreddit:
		return v.validateRandomSubreddit(ctx, req.Subreddit)
	case store.CommissionSpecificPost:
		return v.validateSpecificPost(ctx, req.PostIDOrURL)
	default:
		return nil, errs.ValidationError("unknown commission_type: " + req.CommissionType)
	}
}

func (v *Validator) validateRandomSubreddit(ctx context.Context, subreddit string) (*ValidationResult, error) {
	info, err := v.client.GetSubreddit(ctx, subreddit)
	if err != nil {
		return nil, err
	}
	if info.Over18 {
		return &ValidationResult{Valid: false, Reason: "subreddit is over-18"}, nil
	}

	if _, err := v.store.GetOrCreateSubreddit(ctx, info.Name, info.DisplayName, info.Over18); err != nil {
		return nil, errs.InternalError("failed to persist subreddit", err)
	}

	result := &ValidationResult{Valid: true, Subreddit: info.Name}

	candidate, err := v.client.GetRandomPost(ctx, info.Name)
	if err == nil && candidate != nil {
		result.PostID = candidate.ExternalID
		result.PostTitle = candidate.Title
		result.Ratings = scoreArtisticPotential(candidate)
	}

	return result, nil
}

func (v *Validator) validateSpecificPost(ctx context.Context, idOrURL string) (*ValidationResult, error) {
	postID, err := ParsePostIdentifier(idOrURL)
	if err != nil {
		return nil, errs.ValidationError(err.Error())
	}

	post, err := v.client.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Over18 {
		return &ValidationResult{Valid: false, Reason: "post is over-18"}, nil
	}

	subreddit, err := v.store.GetOrCreateSubreddit(ctx, post.SubredditName, "", false)
	if err != nil {
		return nil, errs.InternalError("failed to persist subreddit", err)
	}

	existing, err := v.store.GetRedditPostByExternalID(ctx, post.ExternalID)
	if err != nil {
		if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.InternalError("failed to look up existing post", err)
		}
		existing = &store.RedditPost{
			ExternalID:     post.ExternalID,
			Title:          post.Title,
			Body:           post.Body,
			Score:          post.Score,
			SubredditID:    subreddit.ID,
			Permalink:      post.Permalink,
			CommentSummary: post.CommentSummary,
		}
		if err := v.store.CreateRedditPost(ctx, existing); err != nil {
			return nil, errs.InternalError("failed to persist post", err)
		}
	}

	return &ValidationResult{
		Valid:     true,
		Subreddit: subreddit.Name,
		PostID:    post.ExternalID,
		PostTitle: post.Title,
		Ratings:   scoreArtisticPotential(post),
	}, nil
}

// scoreArtisticPotential produces an opaque-to-the-core scoring object
// (spec §4.D: "opaque to the core; used by the UI"). The heuristic itself
// — length and engagement as rough proxies for how much visual material a
// post offers — is intentionally simple; the UI, not this service, decides
// what it means.
func scoreArtisticPotential(post *Post) map[string]interface{} {
	lengthScore := len(post.Title) + len(post.Body)
	return map[string]interface{}{
		"length_score":     lengthScore,
		"engagement_score": post.Score,
	}
}
