package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/google/uuid"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestGateway(fs *fakeStore, fq *fakeQueue) *Gateway {
	return &Gateway{webhookSecret: "whsec_test", store: fs, taskQueue: fq}
}

func TestGateway_HandleWebhook_RejectsInvalidSignature(t *testing.T) {
	g := newTestGateway(newFakeStore(), newFakeQueue())
	body := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	_, err := g.HandleWebhook(context.Background(), body, "not-the-real-signature")
	if err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestGateway_HandleWebhook_RejectsMalformedEvent(t *testing.T) {
	g := newTestGateway(newFakeStore(), newFakeQueue())
	body := []byte(`{"type":"some.unknown.event","data":{"object":{"id":"pi_1"}}}`)
	sig := sign(g.webhookSecret, body)

	_, err := g.HandleWebhook(context.Background(), body, sig)
	if err != ErrMalformedEvent {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestGateway_HandleWebhook_ParsesPaymentSucceeded(t *testing.T) {
	g := newTestGateway(newFakeStore(), newFakeQueue())
	body := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":2500,"currency":"usd"}}}`)
	sig := sign(g.webhookSecret, body)

	event, err := g.HandleWebhook(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("HandleWebhook returned error: %v", err)
	}
	if event.Kind != PaymentSucceeded || event.IntentID != "pi_1" || event.AmountMinor != 2500 {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestGateway_Apply_EnqueuesCommissionTaskOnSuccess(t *testing.T) {
	fs := newFakeStore()
	fq := newFakeQueue()
	fs.donations["pi_1"] = &store.Donation{ID: uuid.New(), IntentID: "pi_1", Status: store.DonationPending, Type: store.DonationTypeCommission}
	g := newTestGateway(fs, fq)

	err := g.Apply(context.Background(), &WebhookEvent{Kind: PaymentSucceeded, IntentID: "pi_1"})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(fq.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(fq.enqueued))
	}
	if fq.enqueued[0].Priority != 10 {
		t.Errorf("expected commission priority 10, got %d", fq.enqueued[0].Priority)
	}
}

func TestGateway_Apply_DuplicateSucceededDoesNotDoubleEnqueue(t *testing.T) {
	fs := newFakeStore()
	fq := newFakeQueue()
	fs.donations["pi_1"] = &store.Donation{ID: uuid.New(), IntentID: "pi_1", Status: store.DonationSucceeded, Type: store.DonationTypeCommission}
	g := newTestGateway(fs, fq)

	err := g.Apply(context.Background(), &WebhookEvent{Kind: PaymentSucceeded, IntentID: "pi_1"})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(fq.enqueued) != 0 {
		t.Errorf("expected no new task for an already-succeeded donation, got %d", len(fq.enqueued))
	}
}

func TestGateway_Apply_SupportDonationDoesNotEnqueueTask(t *testing.T) {
	fs := newFakeStore()
	fq := newFakeQueue()
	fs.donations["pi_2"] = &store.Donation{ID: uuid.New(), IntentID: "pi_2", Status: store.DonationPending, Type: store.DonationTypeSupport}
	g := newTestGateway(fs, fq)

	if err := g.Apply(context.Background(), &WebhookEvent{Kind: PaymentSucceeded, IntentID: "pi_2"}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(fq.enqueued) != 0 {
		t.Errorf("expected no task for a support donation, got %d", len(fq.enqueued))
	}
}

// fakeStore is a minimal in-memory store.Store double, keyed by intent id.
type fakeStore struct {
	store.Store
	donations map[string]*store.Donation
}

func newFakeStore() *fakeStore {
	return &fakeStore{donations: make(map[string]*store.Donation)}
}

func (f *fakeStore) GetDonationByIntent(ctx context.Context, intentID string) (*store.Donation, error) {
	d, ok := f.donations[intentID]
	if !ok {
		return nil, errNotFound
	}
	return d, nil
}

func (f *fakeStore) UpsertDonationByIntent(ctx context.Context, intentID string, fields map[string]interface{}) (*store.Donation, error) {
	d, ok := f.donations[intentID]
	if !ok {
		d = &store.Donation{ID: uuid.New(), IntentID: intentID}
		f.donations[intentID] = d
	}
	if status, ok := fields["status"]; ok {
		d.Status = status.(string)
	}
	return d, nil
}

type fakeQueue struct {
	enqueued []*store.PipelineTask
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{}
}

func (f *fakeQueue) Enqueue(ctx context.Context, task *store.PipelineTask) (*store.PipelineTask, error) {
	f.enqueued = append(f.enqueued, task)
	return task, nil
}

func (f *fakeQueue) ClaimNext(ctx context.Context, workerToken string, leaseTTL time.Duration) (*store.PipelineTask, error) {
	panic("not used in this test")
}
func (f *fakeQueue) RenewLease(ctx context.Context, taskID uuid.UUID, workerToken string, newExpiresAt time.Time) error {
	panic("not used in this test")
}
func (f *fakeQueue) Complete(ctx context.Context, taskID uuid.UUID) error { panic("not used in this test") }
func (f *fakeQueue) Fail(ctx context.Context, taskID uuid.UUID, cause error, retryable bool) error {
	panic("not used in this test")
}
func (f *fakeQueue) Cancel(ctx context.Context, taskID uuid.UUID) error { panic("not used in this test") }
func (f *fakeQueue) RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	panic("not used in this test")
}

var errNotFound = jsonErr("not found")

type jsonErr string

func (e jsonErr) Error() string { return string(e) }
