package gatewayapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/middlewares"
	"github.com/redditcraft/commission-pipeline/internal/bus"
	"github.com/redditcraft/commission-pipeline/internal/fundraising"
	"github.com/redditcraft/commission-pipeline/internal/payment"
	"github.com/redditcraft/commission-pipeline/internal/progress"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// fakeStore implements only the Store methods the gateway's read-only
// handlers exercise; everything else panics.
type fakeStore struct {
	store.Store

	tasks       map[uuid.UUID]*store.PipelineTask
	donations   map[uuid.UUID]*store.Donation
	byIntent    map[string]*store.Donation
	subreddits  map[uuid.UUID]*store.Subreddit
	subsByName  map[string]*store.Subreddit
	products    map[uuid.UUID]*store.ProductInfo
	goals       map[uuid.UUID]*store.SubredditGoal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:      map[uuid.UUID]*store.PipelineTask{},
		donations:  map[uuid.UUID]*store.Donation{},
		byIntent:   map[string]*store.Donation{},
		subreddits: map[uuid.UUID]*store.Subreddit{},
		subsByName: map[string]*store.Subreddit{},
		products:   map[uuid.UUID]*store.ProductInfo{},
		goals:      map[uuid.UUID]*store.SubredditGoal{},
	}
}

func (s *fakeStore) GetTask(ctx context.Context, id uuid.UUID) (*store.PipelineTask, error) {
	if t, ok := s.tasks[id]; ok {
		return t, nil
	}
	return nil, errNotFound
}

func (s *fakeStore) GetTaskByDonationID(ctx context.Context, donationID uuid.UUID) (*store.PipelineTask, error) {
	for _, t := range s.tasks {
		if t.DonationID != nil && *t.DonationID == donationID {
			return t, nil
		}
	}
	return nil, errNotFound
}

func (s *fakeStore) ListTasks(ctx context.Context, status string, limit, offset int) ([]*store.PipelineTask, error) {
	var out []*store.PipelineTask
	for _, t := range s.tasks {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) GetDonation(ctx context.Context, id uuid.UUID) (*store.Donation, error) {
	if d, ok := s.donations[id]; ok {
		return d, nil
	}
	return nil, errNotFound
}

func (s *fakeStore) GetDonationByIntent(ctx context.Context, intentID string) (*store.Donation, error) {
	if d, ok := s.byIntent[intentID]; ok {
		return d, nil
	}
	return nil, errNotFound
}

func (s *fakeStore) ListDonationsBySubreddit(ctx context.Context, subredditID uuid.UUID, limit, offset int) ([]*store.Donation, error) {
	var out []*store.Donation
	for _, d := range s.donations {
		if d.SubredditID != nil && *d.SubredditID == subredditID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) ListSubreddits(ctx context.Context) ([]*store.Subreddit, error) {
	var out []*store.Subreddit
	for _, sub := range s.subreddits {
		out = append(out, sub)
	}
	return out, nil
}

func (s *fakeStore) GetSubredditByName(ctx context.Context, name string) (*store.Subreddit, error) {
	if sub, ok := s.subsByName[name]; ok {
		return sub, nil
	}
	return nil, errNotFound
}

func (s *fakeStore) GetOrCreateGoal(ctx context.Context, subredditID uuid.UUID, defaultGoalAmount int64) (*store.SubredditGoal, error) {
	if g, ok := s.goals[subredditID]; ok {
		return g, nil
	}
	goal := &store.SubredditGoal{SubredditID: subredditID, GoalAmount: defaultGoalAmount, Status: store.GoalActive}
	s.goals[subredditID] = goal
	return goal, nil
}

func (s *fakeStore) GetProductInfoByTask(ctx context.Context, taskID uuid.UUID) (*store.ProductInfo, error) {
	if p, ok := s.products[taskID]; ok {
		return p, nil
	}
	return nil, errNotFound
}

func (s *fakeStore) ListProductInfo(ctx context.Context, limit, offset int) ([]*store.ProductInfo, error) {
	var out []*store.ProductInfo
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

var errNotFound error = notFoundErr{}

// fakeQueue implements the subset of queue.TaskQueue Ledger needs; every
// method a test doesn't exercise panics.
type fakeQueue struct{}

func (fakeQueue) Enqueue(ctx context.Context, task *store.PipelineTask) (*store.PipelineTask, error) {
	return task, nil
}
func (fakeQueue) ClaimNext(ctx context.Context, workerToken string, leaseTTL time.Duration) (*store.PipelineTask, error) {
	panic("not implemented")
}
func (fakeQueue) RenewLease(ctx context.Context, taskID uuid.UUID, workerToken string, newExpiresAt time.Time) error {
	panic("not implemented")
}
func (fakeQueue) Complete(ctx context.Context, taskID uuid.UUID) error { panic("not implemented") }
func (fakeQueue) Fail(ctx context.Context, taskID uuid.UUID, cause error, retryable bool) error {
	panic("not implemented")
}
func (fakeQueue) Cancel(ctx context.Context, taskID uuid.UUID) error { panic("not implemented") }
func (fakeQueue) RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func newTestGateway(t *testing.T, fs *fakeStore) (*Gateway, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewLogger()
	cfg := &config.AppConfig{SocialBaseURL: "http://localhost", PaymentBaseURL: "http://localhost"}
	memBus := bus.NewMemoryBus(log)

	gw := &Gateway{
		store:     fs,
		taskQueue: fakeQueue{},
		payment:   payment.NewGateway(cfg, fs, fakeQueue{}, log),
		validator: reddit.NewValidator(reddit.NewClient(cfg, log), fs, log),
		ledger:    fundraising.NewLedger(fs, fakeQueue{}, log),
		broker:    progress.NewBroker(fs, memBus, log),
		cfg:       cfg,
		cache:     &middlewares.CacheMiddleware{},
		logger:    log,
	}

	router := gin.New()
	root := router.Group("/v1")
	gw.Routes(root)
	return gw, router
}

func TestListTasks_ReturnsOnlyRequestedStatuses(t *testing.T) {
	fs := newFakeStore()
	pending := &store.PipelineTask{ID: uuid.New(), Status: store.TaskPending, Type: store.TaskFrontPage}
	completed := &store.PipelineTask{ID: uuid.New(), Status: store.TaskCompleted, Type: store.TaskFrontPage}
	fs.tasks[pending.ID] = pending
	fs.tasks[completed.ID] = completed

	_, router := newTestGateway(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/tasks?status=pending", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Tasks []taskResponse `json:"tasks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Tasks) != 1 || body.Tasks[0].ID != pending.ID.String() {
		t.Fatalf("expected only the pending task, got %+v", body.Tasks)
	}
}

func TestGetDonation_NotFoundReturns404(t *testing.T) {
	fs := newFakeStore()
	_, router := newTestGateway(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/donations/missing-intent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProductForCommission_ReturnsLinkedProduct(t *testing.T) {
	fs := newFakeStore()
	donationID := uuid.New()
	task := &store.PipelineTask{ID: uuid.New(), DonationID: &donationID, Status: store.TaskCompleted}
	fs.tasks[task.ID] = task
	fs.products[task.ID] = &store.ProductInfo{ID: uuid.New(), TaskID: task.ID, ImageURL: "https://img", ProductURL: "https://product"}

	_, router := newTestGateway(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/products/commission/"+donationID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var product productResponse
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if product.ImageURL != "https://img" {
		t.Fatalf("expected linked product, got %+v", product)
	}
}

func TestProductDonations_ReturnsLinkedDonation(t *testing.T) {
	fs := newFakeStore()
	donation := &store.Donation{ID: uuid.New(), IntentID: "pi_1", Status: store.DonationSucceeded}
	task := &store.PipelineTask{ID: uuid.New(), DonationID: &donation.ID}
	fs.donations[donation.ID] = donation
	fs.tasks[task.ID] = task

	_, router := newTestGateway(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/products/"+task.ID.String()+"/donations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "pi_1") {
		t.Fatalf("expected linked donation in body, got %s", w.Body.String())
	}
}

func TestValidateCommission_RandomRandomIsTriviallyValid(t *testing.T) {
	fs := newFakeStore()
	_, router := newTestGateway(t, fs)

	req := httptest.NewRequest(http.MethodPost, "/v1/api/commissions/validate", strings.NewReader(`{"commission_type":"random_random"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp validateCommissionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Valid {
		t.Fatal("expected random_random to always be valid")
	}
}

func TestFundraisingProgress_AggregatesAcrossSubreddits(t *testing.T) {
	fs := newFakeStore()
	sub := &store.Subreddit{ID: uuid.New(), Name: "golf"}
	fs.subreddits[sub.ID] = sub
	fs.goals[sub.ID] = &store.SubredditGoal{SubredditID: sub.ID, GoalAmount: 1000, CurrentAmount: 400, Status: store.GoalActive}

	_, router := newTestGateway(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/fundraising/progress", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp fundraisingProgressResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SubredditCount != 1 || resp.TotalRaisedMinor != 400 {
		t.Fatalf("expected aggregated totals, got %+v", resp)
	}
}
