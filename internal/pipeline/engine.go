package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/redditcraft/commission-pipeline/internal/progress"
	"github.com/redditcraft/commission-pipeline/internal/queue"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RedditFetcher is the subset of *reddit.Client the engine's post-selection
// stage needs, narrowed to an interface so it can be substituted in tests.
type RedditFetcher interface {
	GetHotPosts(ctx context.Context, subreddit string, limit int) ([]*reddit.Post, error)
	GetFrontPage(ctx context.Context, limit int) ([]*reddit.Post, error)
}

// ImageUploader is the subset of *services.ImageHostService the stamping
// stage needs.
type ImageUploader interface {
	UploadImage(ctx context.Context, image io.Reader, title string) (string, error)
}

// recentPostWindow is how long a selected post is considered "recently
// used" and excluded from future selection (spec §4.F: "not recently
// used").
const recentPostWindow = 72 * time.Hour

const postSelectorAgentID = "pipeline_post_selector"

// webCallTimeout bounds the per-call upstream timeouts used throughout a
// stage (spec §5: "web calls 30s").
const webCallTimeout = 30 * time.Second

// llmCallTimeout bounds an LLM design call (spec §5: "LLM 60s").
const llmCallTimeout = 60 * time.Second

// imageCallTimeout bounds an image generation call (spec §5: "image gen 180s").
const imageCallTimeout = 180 * time.Second

// Engine is the PipelineEngine (spec §4.F): the 5-stage checkpointed state
// machine that turns a claimed PipelineTask into a completed commissioned
// product.
type Engine struct {
	store     store.Store
	taskQueue queue.TaskQueue
	broker    *progress.Broker
	reddit    RedditFetcher
	designer  DesignDeviser
	imageGen  ImageGenerator
	imageHost ImageUploader
	cfg       *config.AppConfig
	logger    logger.Logger
}

// NewEngine constructs an Engine.
func NewEngine(
	s store.Store,
	taskQueue queue.TaskQueue,
	broker *progress.Broker,
	redditClient *reddit.Client,
	designer DesignDeviser,
	imageGen ImageGenerator,
	cfg *config.AppConfig,
	logger logger.Logger,
) *Engine {
	imageHost := services.NewImageHostService(cfg.ImageHostBaseURL, cfg.ImageHostClientID, logger)
	return &Engine{
		store:     s,
		taskQueue: taskQueue,
		broker:    broker,
		reddit:    redditClient,
		designer:  designer,
		imageGen:  imageGen,
		imageHost: imageHost,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunTask drives a single claimed task through every stage it has not yet
// completed. It is the caller's responsibility to have claimed the task
// (via TaskQueue.ClaimNext) and to keep renewing its lease while this runs.
func (e *Engine) RunTask(ctx context.Context, task *store.PipelineTask) error {
	if cancelled, err := e.checkCancelled(ctx, task.ID); err != nil {
		return err
	} else if cancelled {
		return nil
	}

	post, err := e.runPostFetching(ctx, task)
	if err != nil {
		return e.fail(ctx, task.ID, err)
	}

	if cancelled, err := e.checkCancelled(ctx, task.ID); err != nil {
		return err
	} else if cancelled {
		return nil
	}

	design, err := e.runProductDesign(ctx, task, post)
	if err != nil {
		return e.fail(ctx, task.ID, err)
	}

	if cancelled, err := e.checkCancelled(ctx, task.ID); err != nil {
		return err
	} else if cancelled {
		return nil
	}

	imageBytes, quality, err := e.runImageGeneration(ctx, task, design)
	if err != nil {
		return e.fail(ctx, task.ID, err)
	}

	if cancelled, err := e.checkCancelled(ctx, task.ID); err != nil {
		return err
	} else if cancelled {
		return nil
	}

	imageURL, err := e.runImageStamping(ctx, task, post, design, imageBytes, quality)
	if err != nil {
		return e.fail(ctx, task.ID, err)
	}

	if err := e.runCommissionComplete(ctx, task, post, design, imageURL, quality); err != nil {
		return e.fail(ctx, task.ID, err)
	}

	if err := e.taskQueue.Complete(ctx, task.ID); err != nil {
		return err
	}
	return nil
}

func (e *Engine) checkCancelled(ctx context.Context, taskID uuid.UUID) (bool, error) {
	current, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if current.Status == store.TaskCancelled {
		_ = e.broker.Publish(ctx, taskID, "cancelled", "task was cancelled", 0)
		return true, nil
	}
	return false, nil
}

// fail classifies err as retryable or not (spec §4.F/§7) and routes it to
// TaskQueue.Fail, emitting a terminal-for-this-attempt progress event.
func (e *Engine) fail(ctx context.Context, taskID uuid.UUID, err error) error {
	retryable := true
	if appErr, ok := err.(*errs.AppError); ok {
		retryable = appErr.Retryable()
	}
	_ = e.broker.Publish(ctx, taskID, "failed", err.Error(), 0)
	if failErr := e.taskQueue.Fail(ctx, taskID, err, retryable); failErr != nil {
		return failErr
	}
	return err
}

// runPostFetching is stage 1 (spec §4.F: post_fetching 0% -> post_fetched
// 15%). Re-entry skips selection when task.PostID already persists.
func (e *Engine) runPostFetching(ctx context.Context, task *store.PipelineTask) (*store.RedditPost, error) {
	if task.PostID != nil {
		return e.store.GetRedditPost(ctx, *task.PostID)
	}

	if err := e.broker.Publish(ctx, task.ID, "post_fetching", "selecting a post", 0); err != nil {
		e.logger.Error(ctx, "failed to publish post_fetching event", logger.Fields{"error": err.Error()})
	}

	callCtx, cancel := context.WithTimeout(ctx, webCallTimeout)
	defer cancel()

	post, subredditName, err := e.selectCandidatePost(callCtx, task)
	if err != nil {
		return nil, err
	}

	subreddit, err := e.store.GetOrCreateSubreddit(ctx, subredditName, "", post.Over18)
	if err != nil {
		return nil, errs.InternalError("failed to persist subreddit", err)
	}

	existing, lookupErr := e.store.GetRedditPostByExternalID(ctx, post.ExternalID)
	if lookupErr != nil && !stderrors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return nil, errs.InternalError("failed to look up selected post", lookupErr)
	}
	if existing == nil {
		record := &store.RedditPost{
			ExternalID:     post.ExternalID,
			Title:          post.Title,
			Body:           post.Body,
			Score:          post.Score,
			SubredditID:    subreddit.ID,
			Permalink:      post.Permalink,
			CommentSummary: post.CommentSummary,
		}
		if err := e.store.CreateRedditPost(ctx, record); err != nil {
			return nil, errs.InternalError("failed to persist selected post", err)
		}
		existing = record
	}

	if err := e.store.SetTaskPost(ctx, task.ID, existing.ID); err != nil {
		return nil, errs.InternalError("failed to persist task's selected post", err)
	}
	_ = e.store.RecordAgentAction(ctx, &store.AgentAction{
		AgentID:  postSelectorAgentID,
		TargetID: existing.ExternalID,
		Kind:     "post_used",
	})

	if err := e.broker.Publish(ctx, task.ID, "post_fetched", existing.Title, 15); err != nil {
		e.logger.Error(ctx, "failed to publish post_fetched event", logger.Fields{"error": err.Error()})
	}
	task.PostID = &existing.ID
	return existing, nil
}

func (e *Engine) selectCandidatePost(ctx context.Context, task *store.PipelineTask) (*reddit.Post, string, error) {
	recentlyUsed := func(externalID string) bool {
		action, err := e.store.RecentAgentAction(ctx, postSelectorAgentID, externalID, "post_used", recentPostWindow)
		return err == nil && action != nil
	}

	if task.SubredditID != nil {
		subreddit, err := e.store.GetSubreddit(ctx, *task.SubredditID)
		if err != nil {
			return nil, "", errs.InternalError("failed to load task's subreddit", err)
		}
		candidates, err := e.reddit.GetHotPosts(ctx, subreddit.Name, 50)
		if err != nil {
			return nil, "", err
		}
		best := pickBestPost(candidates, recentlyUsed)
		if best == nil {
			return nil, "", errs.NotFoundError(fmt.Sprintf("no eligible post found in r/%s", subreddit.Name))
		}
		return best, subreddit.Name, nil
	}

	candidates, err := e.reddit.GetFrontPage(ctx, 50)
	if err != nil {
		return nil, "", err
	}
	best := pickBestPost(candidates, recentlyUsed)
	if best == nil {
		return nil, "", errs.NotFoundError("no eligible post found on the front page")
	}
	return best, best.SubredditName, nil
}

// runProductDesign is stage 2 (spec §4.F: product_designed 30%).
func (e *Engine) runProductDesign(ctx context.Context, task *store.PipelineTask, post *store.RedditPost) (*ProductDesign, error) {
	existing, err := e.store.GetProductInfoByTask(ctx, task.ID)
	if err != nil {
		return nil, errs.InternalError("failed to look up existing product design", err)
	}
	if existing != nil && existing.Theme != "" {
		return &ProductDesign{Theme: existing.Theme, ImageTitle: existing.ImageTitle}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()

	design, err := e.designer.DeviseProduct(callCtx, e.cfg.PromptVersion, &postContext{
		Title:          post.Title,
		Body:           post.Body,
		CommentSummary: post.CommentSummary,
	})
	if err != nil {
		return nil, err
	}

	if err := e.store.UpsertProductInfo(ctx, &store.ProductInfo{
		TaskID:        task.ID,
		RedditPostID:  post.ID,
		Theme:         design.Theme,
		ImageTitle:    design.ImageTitle,
		PromptVersion: e.cfg.PromptVersion,
	}); err != nil {
		return nil, errs.InternalError("failed to persist product design", err)
	}

	if err := e.broker.Publish(ctx, task.ID, "product_designed", design.Theme, 30); err != nil {
		e.logger.Error(ctx, "failed to publish product_designed event", logger.Fields{"error": err.Error()})
	}
	return design, nil
}

// runImageGeneration is stage 3 (spec §4.F: image_generation_started 45% ->
// image_generated 70%). Raw bytes are intentionally not checkpointed — spec
// §4.F calls for storing them "temporarily" only, so a crash mid-stage
// simply regenerates on retry.
func (e *Engine) runImageGeneration(ctx context.Context, task *store.PipelineTask, design *ProductDesign) ([]byte, string, error) {
	quality := QualityStandard
	if task.DonationID != nil {
		donation, err := e.store.GetDonation(ctx, *task.DonationID)
		if err != nil {
			return nil, "", errs.InternalError("failed to load donation for image quality", err)
		}
		quality = QualityForTier(donation.TierName)
	}

	if existing, err := e.store.GetProductInfoByTask(ctx, task.ID); err == nil && existing != nil && existing.ImageURL != "" {
		// The image was already generated and uploaded on an earlier attempt.
		return nil, quality, nil
	}

	if err := e.broker.Publish(ctx, task.ID, "image_generation_started", "", 45); err != nil {
		e.logger.Error(ctx, "failed to publish image_generation_started event", logger.Fields{"error": err.Error()})
	}

	callCtx, cancel := context.WithTimeout(ctx, imageCallTimeout)
	defer cancel()

	imageBytes, err := e.imageGen.GenerateImage(callCtx, design, quality)
	if err != nil {
		return nil, "", err
	}

	if err := e.broker.Publish(ctx, task.ID, "image_generated", "", 70); err != nil {
		e.logger.Error(ctx, "failed to publish image_generated event", logger.Fields{"error": err.Error()})
	}
	return imageBytes, quality, nil
}

// runImageStamping is stage 4 (spec §4.F: image_stamped 80%): optional
// creator-mark overlay, then upload and persist the public URL.
func (e *Engine) runImageStamping(ctx context.Context, task *store.PipelineTask, post *store.RedditPost, design *ProductDesign, imageBytes []byte, quality string) (string, error) {
	if existing, err := e.store.GetProductInfoByTask(ctx, task.ID); err == nil && existing != nil && existing.ImageURL != "" {
		return existing.ImageURL, nil
	}

	stamped, err := stampCreatorMark(imageBytes, design.ImageTitle)
	if err != nil {
		e.logger.Warning(ctx, "creator-mark overlay failed, uploading unstamped image", logger.Fields{"error": err.Error()})
		stamped = imageBytes
	}

	callCtx, cancel := context.WithTimeout(ctx, webCallTimeout)
	defer cancel()

	imageURL, err := e.imageHost.UploadImage(callCtx, bytes.NewReader(stamped), design.ImageTitle)
	if err != nil {
		return "", errs.UpstreamUnavailableError("failed to upload stamped image", err)
	}

	if err := e.store.UpsertProductInfo(ctx, &store.ProductInfo{
		TaskID:        task.ID,
		RedditPostID:  post.ID,
		Theme:         design.Theme,
		ImageTitle:    design.ImageTitle,
		ImageURL:      imageURL,
		PromptVersion: e.cfg.PromptVersion,
		ImageQuality:  quality,
	}); err != nil {
		return "", errs.InternalError("failed to persist uploaded image url", err)
	}

	if err := e.broker.Publish(ctx, task.ID, "image_stamped", imageURL, 80); err != nil {
		e.logger.Error(ctx, "failed to publish image_stamped event", logger.Fields{"error": err.Error()})
	}
	return imageURL, nil
}

// runCommissionComplete is stage 5 (spec §4.F: commission_complete 100%):
// builds the affiliate storefront link and persists the final ProductInfo.
func (e *Engine) runCommissionComplete(ctx context.Context, task *store.PipelineTask, post *store.RedditPost, design *ProductDesign, imageURL, quality string) error {
	templateID := "default"
	if task.Metadata != nil {
		if v, ok := task.Metadata["template_id"].(string); ok && v != "" {
			templateID = v
		}
	}

	productURL := fmt.Sprintf("%s/product?template=%s&image=%s&affiliate=%s",
		e.cfg.AffiliateProductBaseURL, url.QueryEscape(templateID), url.QueryEscape(imageURL), url.QueryEscape(e.cfg.AffiliateID))

	if err := e.store.UpsertProductInfo(ctx, &store.ProductInfo{
		TaskID:        task.ID,
		RedditPostID:  post.ID,
		Theme:         design.Theme,
		ImageTitle:    design.ImageTitle,
		ImageURL:      imageURL,
		ProductURL:    productURL,
		TemplateID:    templateID,
		PromptVersion: e.cfg.PromptVersion,
		ImageQuality:  quality,
	}); err != nil {
		return errs.InternalError("failed to persist final product info", err)
	}

	return e.broker.Publish(ctx, task.ID, "commission_complete", productURL, 100)
}
