package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/bus"
	"github.com/redditcraft/commission-pipeline/internal/progress"
	"github.com/redditcraft/commission-pipeline/internal/queue"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// fakeStore implements only the Store methods Engine's stages exercise;
// everything else panics if called, so an unexpected dependency surfaces
// immediately.
type fakeStore struct {
	store.Store

	tasks       map[uuid.UUID]*store.PipelineTask
	subreddits  map[string]*store.Subreddit
	subsByID    map[uuid.UUID]*store.Subreddit
	postsByExt  map[string]*store.RedditPost
	postsByID   map[uuid.UUID]*store.RedditPost
	products    map[uuid.UUID]*store.ProductInfo
	donations   map[uuid.UUID]*store.Donation
	actions     []*store.AgentAction
	upsertCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:      map[uuid.UUID]*store.PipelineTask{},
		subreddits: map[string]*store.Subreddit{},
		subsByID:   map[uuid.UUID]*store.Subreddit{},
		postsByExt: map[string]*store.RedditPost{},
		postsByID:  map[uuid.UUID]*store.RedditPost{},
		products:   map[uuid.UUID]*store.ProductInfo{},
		donations:  map[uuid.UUID]*store.Donation{},
	}
}

func (s *fakeStore) GetTask(ctx context.Context, id uuid.UUID) (*store.PipelineTask, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, errs.NotFoundError("task not found")
	}
	return task, nil
}

func (s *fakeStore) AppendProgress(ctx context.Context, taskID uuid.UUID, stage, message string, percent int) (*store.ProgressEvent, error) {
	return &store.ProgressEvent{TaskID: taskID, Stage: stage, Message: message, Percent: percent}, nil
}

func (s *fakeStore) GetOrCreateSubreddit(ctx context.Context, name, displayName string, over18 bool) (*store.Subreddit, error) {
	if existing, ok := s.subreddits[name]; ok {
		return existing, nil
	}
	sub := &store.Subreddit{ID: uuid.New(), Name: name, DisplayName: displayName, Over18: over18}
	s.subreddits[name] = sub
	s.subsByID[sub.ID] = sub
	return sub, nil
}

func (s *fakeStore) GetSubreddit(ctx context.Context, id uuid.UUID) (*store.Subreddit, error) {
	sub, ok := s.subsByID[id]
	if !ok {
		return nil, errs.NotFoundError("subreddit not found")
	}
	return sub, nil
}

func (s *fakeStore) GetRedditPostByExternalID(ctx context.Context, externalID string) (*store.RedditPost, error) {
	post, ok := s.postsByExt[externalID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return post, nil
}

func (s *fakeStore) GetRedditPost(ctx context.Context, id uuid.UUID) (*store.RedditPost, error) {
	post, ok := s.postsByID[id]
	if !ok {
		return nil, errs.NotFoundError("post not found")
	}
	return post, nil
}

func (s *fakeStore) CreateRedditPost(ctx context.Context, post *store.RedditPost) error {
	post.ID = uuid.New()
	s.postsByExt[post.ExternalID] = post
	s.postsByID[post.ID] = post
	return nil
}

func (s *fakeStore) SetTaskPost(ctx context.Context, taskID, postID uuid.UUID) error {
	s.tasks[taskID].PostID = &postID
	return nil
}

func (s *fakeStore) RecordAgentAction(ctx context.Context, action *store.AgentAction) error {
	action.ID = uuid.New()
	action.CreatedAt = time.Now()
	s.actions = append(s.actions, action)
	return nil
}

func (s *fakeStore) RecentAgentAction(ctx context.Context, agentID, targetID, kind string, within time.Duration) (*store.AgentAction, error) {
	for _, action := range s.actions {
		if action.AgentID == agentID && action.TargetID == targetID && action.Kind == kind {
			return action, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetProductInfoByTask(ctx context.Context, taskID uuid.UUID) (*store.ProductInfo, error) {
	info, ok := s.products[taskID]
	if !ok {
		return nil, nil
	}
	return info, nil
}

func (s *fakeStore) UpsertProductInfo(ctx context.Context, info *store.ProductInfo) error {
	s.upsertCalls++
	if info.ID == uuid.Nil {
		info.ID = uuid.New()
	}
	s.products[info.TaskID] = info
	return nil
}

func (s *fakeStore) GetDonation(ctx context.Context, id uuid.UUID) (*store.Donation, error) {
	donation, ok := s.donations[id]
	if !ok {
		return nil, errs.NotFoundError("donation not found")
	}
	return donation, nil
}

// fakeQueue implements queue.TaskQueue, recording only what tests assert on.
type fakeQueue struct {
	completed []uuid.UUID
	failed    []uuid.UUID
	failCause error
	retryable bool
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *store.PipelineTask) (*store.PipelineTask, error) {
	panic("not used")
}
func (q *fakeQueue) ClaimNext(ctx context.Context, workerToken string, leaseTTL time.Duration) (*store.PipelineTask, error) {
	panic("not used")
}
func (q *fakeQueue) RenewLease(ctx context.Context, taskID uuid.UUID, workerToken string, newExpiresAt time.Time) error {
	panic("not used")
}
func (q *fakeQueue) Complete(ctx context.Context, taskID uuid.UUID) error {
	q.completed = append(q.completed, taskID)
	return nil
}
func (q *fakeQueue) Fail(ctx context.Context, taskID uuid.UUID, cause error, retryable bool) error {
	q.failed = append(q.failed, taskID)
	q.failCause = cause
	q.retryable = retryable
	return nil
}
func (q *fakeQueue) Cancel(ctx context.Context, taskID uuid.UUID) error {
	panic("not used")
}
func (q *fakeQueue) RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	panic("not used")
}

type fakeRedditFetcher struct {
	hotPosts    []*reddit.Post
	frontPage   []*reddit.Post
	fetchErr    error
	calledTimes int
}

func (f *fakeRedditFetcher) GetHotPosts(ctx context.Context, subreddit string, limit int) ([]*reddit.Post, error) {
	f.calledTimes++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.hotPosts, nil
}

func (f *fakeRedditFetcher) GetFrontPage(ctx context.Context, limit int) ([]*reddit.Post, error) {
	f.calledTimes++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.frontPage, nil
}

type fakeDesigner struct {
	design *ProductDesign
	err    error
}

func (d *fakeDesigner) DeviseProduct(ctx context.Context, promptVersion string, post *postContext) (*ProductDesign, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.design, nil
}

type fakeImageGen struct {
	bytesOut []byte
	err      error
}

func (g *fakeImageGen) GenerateImage(ctx context.Context, design *ProductDesign, quality string) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.bytesOut, nil
}

type fakeUploader struct {
	url string
	err error
}

func (u *fakeUploader) UploadImage(ctx context.Context, image io.Reader, title string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

func newTestEngine(fs *fakeStore, fq *fakeQueue, rf *fakeRedditFetcher, fd *fakeDesigner, fg *fakeImageGen, fu *fakeUploader) *Engine {
	log := logger.NewLogger()
	broker := progress.NewBroker(fs, bus.NewMemoryBus(log), log)
	return &Engine{
		store:     fs,
		taskQueue: fq,
		broker:    broker,
		reddit:    rf,
		designer:  fd,
		imageGen:  fg,
		imageHost: fu,
		cfg:       &config.AppConfig{PromptVersion: "v1", AffiliateProductBaseURL: "https://store.example.com", AffiliateID: "aff-1"},
		logger:    log,
	}
}

func newPendingTask() *store.PipelineTask {
	return &store.PipelineTask{ID: uuid.New(), Type: store.TaskFrontPage, Status: store.TaskInProgress}
}

func TestEngine_RunTask_FullSuccessfulRun(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fq := &fakeQueue{}
	rf := &fakeRedditFetcher{frontPage: []*reddit.Post{{ExternalID: "abc", Title: "neat cat", Score: 42}}}
	fd := &fakeDesigner{design: &ProductDesign{Theme: "cosmic cat", ImageTitle: "Cosmic Cat", ImageDescription: "a cat in space"}}
	fg := &fakeImageGen{bytesOut: []byte("not-a-real-png")}
	fu := &fakeUploader{url: "https://cdn.example.com/img.png"}

	engine := newTestEngine(fs, fq, rf, fd, fg, fu)

	task := newPendingTask()
	fs.tasks[task.ID] = task

	if err := engine.RunTask(ctx, task); err != nil {
		t.Fatalf("RunTask returned error: %v", err)
	}

	if len(fq.completed) != 1 || fq.completed[0] != task.ID {
		t.Fatalf("expected task to be marked complete, got %+v", fq.completed)
	}

	info := fs.products[task.ID]
	if info == nil {
		t.Fatal("expected a persisted ProductInfo")
	}
	if info.ImageURL != fu.url {
		t.Fatalf("expected image url %q, got %q", fu.url, info.ImageURL)
	}
	if info.ProductURL == "" {
		t.Fatal("expected a non-empty product url")
	}
}

func TestEngine_RunTask_ResumesWhenPostAlreadySelected(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fq := &fakeQueue{}
	rf := &fakeRedditFetcher{}
	fd := &fakeDesigner{design: &ProductDesign{Theme: "t", ImageTitle: "it", ImageDescription: "d"}}
	fg := &fakeImageGen{bytesOut: []byte("x")}
	fu := &fakeUploader{url: "https://cdn.example.com/resumed.png"}
	engine := newTestEngine(fs, fq, rf, fd, fg, fu)

	task := newPendingTask()
	sub := &store.Subreddit{ID: uuid.New(), Name: "aww"}
	fs.subsByID[sub.ID] = sub
	post := &store.RedditPost{ID: uuid.New(), ExternalID: "already-selected", SubredditID: sub.ID, Title: "old post"}
	fs.postsByID[post.ID] = post
	task.PostID = &post.ID
	fs.tasks[task.ID] = task

	if err := engine.RunTask(ctx, task); err != nil {
		t.Fatalf("RunTask returned error: %v", err)
	}
	if rf.calledTimes != 0 {
		t.Fatalf("expected no calls to RedditFetcher on resume, got %d", rf.calledTimes)
	}
}

func TestEngine_RunTask_ResumesWhenDesignAndImageAlreadyPersisted(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fq := &fakeQueue{}
	rf := &fakeRedditFetcher{frontPage: []*reddit.Post{{ExternalID: "abc", Title: "x"}}}
	fd := &fakeDesigner{err: errs.InternalError("designer should not be called", nil)}
	fg := &fakeImageGen{err: errs.InternalError("image gen should not be called", nil)}
	fu := &fakeUploader{url: "https://cdn.example.com/already.png"}
	engine := newTestEngine(fs, fq, rf, fd, fg, fu)

	task := newPendingTask()
	sub := &store.Subreddit{ID: uuid.New(), Name: "aww"}
	fs.subsByID[sub.ID] = sub
	post := &store.RedditPost{ID: uuid.New(), ExternalID: "ext", SubredditID: sub.ID, Title: "x"}
	fs.postsByID[post.ID] = post
	task.PostID = &post.ID
	fs.tasks[task.ID] = task
	fs.products[task.ID] = &store.ProductInfo{
		TaskID: task.ID, RedditPostID: post.ID,
		Theme: "already designed", ImageTitle: "already", ImageURL: "https://cdn.example.com/already.png",
	}

	if err := engine.RunTask(ctx, task); err != nil {
		t.Fatalf("RunTask returned error: %v", err)
	}
}

func TestEngine_RunTask_CancelledTaskStopsBeforeNextStage(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fq := &fakeQueue{}
	rf := &fakeRedditFetcher{}
	fd := &fakeDesigner{}
	fg := &fakeImageGen{}
	fu := &fakeUploader{}
	engine := newTestEngine(fs, fq, rf, fd, fg, fu)

	task := newPendingTask()
	task.Status = store.TaskCancelled
	fs.tasks[task.ID] = task

	if err := engine.RunTask(ctx, task); err != nil {
		t.Fatalf("expected nil error for a cancelled task, got %v", err)
	}
	if rf.calledTimes != 0 {
		t.Fatalf("expected no reddit calls once task is cancelled, got %d", rf.calledTimes)
	}
	if len(fq.completed) != 0 || len(fq.failed) != 0 {
		t.Fatal("a cancelled task should neither complete nor fail through the queue")
	}
}

func TestEngine_RunTask_RetryableFailureRoutesToQueueFail(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fq := &fakeQueue{}
	rf := &fakeRedditFetcher{fetchErr: errs.UpstreamUnavailableError("reddit is down", nil)}
	fd := &fakeDesigner{}
	fg := &fakeImageGen{}
	fu := &fakeUploader{}
	engine := newTestEngine(fs, fq, rf, fd, fg, fu)

	task := newPendingTask()
	fs.tasks[task.ID] = task

	err := engine.RunTask(ctx, task)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(fq.failed) != 1 {
		t.Fatalf("expected task to be routed to queue.Fail, got %+v", fq.failed)
	}
	if !fq.retryable {
		t.Fatal("expected an upstream-unavailable failure to be retryable")
	}
}

func TestEngine_RunTask_NonRetryableRefusalRoutesToQueueFail(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fq := &fakeQueue{}
	rf := &fakeRedditFetcher{frontPage: []*reddit.Post{{ExternalID: "abc", Title: "x"}}}
	fd := &fakeDesigner{err: errs.UpstreamRejectedError("content policy refusal")}
	fg := &fakeImageGen{}
	fu := &fakeUploader{}
	engine := newTestEngine(fs, fq, rf, fd, fg, fu)

	task := newPendingTask()
	fs.tasks[task.ID] = task

	err := engine.RunTask(ctx, task)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(fq.failed) != 1 {
		t.Fatalf("expected task to be routed to queue.Fail, got %+v", fq.failed)
	}
	if fq.retryable {
		t.Fatal("expected a content-policy refusal to be non-retryable")
	}
}
