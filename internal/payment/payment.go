package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redditcraft/commission-pipeline/core/config"
	errs "github.com/redditcraft/commission-pipeline/core/errors"
	coreLogger "github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/redditcraft/commission-pipeline/internal/queue"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// WebhookKind enumerates the handled webhook event variants (spec §4.C).
type WebhookKind string

const (
	PaymentSucceeded  WebhookKind = "payment_succeeded"
	PaymentFailed     WebhookKind = "payment_failed"
	CheckoutCompleted WebhookKind = "checkout_completed"
)

// WebhookEvent is the typed result of verifying and deserializing a
// gateway webhook delivery.
type WebhookEvent struct {
	Kind        WebhookKind
	IntentID    string
	AmountMinor int64
	Currency    string
	Complete    bool
}

// ErrInvalidSignature means the HMAC on the raw body didn't match; callers
// must respond 4xx and never retry.
var ErrInvalidSignature = errors.New("payment: invalid webhook signature")

// ErrMalformedEvent means the body didn't parse into a known webhook shape.
var ErrMalformedEvent = errors.New("payment: malformed webhook event")

// Gateway is the PaymentGateway adapter (spec §4.C): creates/updates
// payment intents against the third-party processor and turns its webhook
// deliveries into typed, idempotently-applied domain events.
type Gateway struct {
	client        *resty.Client
	webhookSecret string
	store         store.Store
	taskQueue     queue.TaskQueue
	logger        coreLogger.Logger
}

// NewGateway constructs a Gateway using the shared instrumented HTTP client.
func NewGateway(cfg *config.AppConfig, s store.Store, taskQueue queue.TaskQueue, logger coreLogger.Logger) *Gateway {
	client := resty.NewWithClient(services.NewInstrumentedHTTPClient())
	client.SetBaseURL(cfg.PaymentBaseURL)
	client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.PaymentSecretKey))

	return &Gateway{
		client:        client,
		webhookSecret: cfg.PaymentWebhookSecret,
		store:         s,
		taskQueue:     taskQueue,
		logger:        logger,
	}
}

type createIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// CreateIntent creates a payment intent and returns (intent_id, client_secret).
func (g *Gateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (intentID, clientSecret string, err error) {
	var result createIntentResponse
	resp, restErr := g.client.R().
		SetContext(ctx).
		SetFormData(flattenMetadata(amountMinor, currency, metadata)).
		SetResult(&result).
		Post("/v1/payment_intents")
	if restErr != nil {
		return "", "", errs.UpstreamUnavailableError("payment gateway request failed", restErr)
	}
	if resp.IsError() {
		return "", "", errs.UpstreamUnavailableError(fmt.Sprintf("payment gateway rejected intent creation: %s", resp.String()), nil)
	}
	return result.ID, result.ClientSecret, nil
}

// UpdateIntent updates an existing intent; idempotent, used while the
// donor edits the form before submitting payment.
func (g *Gateway) UpdateIntent(ctx context.Context, intentID string, amountMinor *int64, metadata map[string]string) error {
	form := map[string]string{}
	if amountMinor != nil {
		form["amount"] = fmt.Sprintf("%d", *amountMinor)
	}
	for k, v := range metadata {
		form[fmt.Sprintf("metadata[%s]", k)] = v
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(fmt.Sprintf("/v1/payment_intents/%s", intentID))
	if err != nil {
		return errs.UpstreamUnavailableError("payment gateway update request failed", err)
	}
	if resp.IsError() {
		return errs.UpstreamUnavailableError(fmt.Sprintf("payment gateway rejected intent update: %s", resp.String()), nil)
	}
	return nil
}

// rawWebhookPayload is the subset of the gateway's webhook envelope this
// adapter understands; unknown event types fall through to ErrMalformedEvent.
type rawWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Status   string `json:"status"`
		} `json:"object"`
	} `json:"data"`
}

// VerifySignature checks the HMAC-SHA256 signature on rawBody using the
// configured webhook secret.
func (g *Gateway) VerifySignature(rawBody []byte, signatureHeader string) bool {
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signatureHeader), []byte(expected))
}

// HandleWebhook verifies the signature, parses the body into a typed
// WebhookEvent, and returns ErrInvalidSignature / ErrMalformedEvent on
// failure. Callers propagate those as 4xx (spec §4.C: "will not retry").
func (g *Gateway) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*WebhookEvent, error) {
	if !g.VerifySignature(rawBody, signatureHeader) {
		return nil, ErrInvalidSignature
	}

	var payload rawWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, ErrMalformedEvent
	}

	event := &WebhookEvent{
		IntentID:    payload.Data.Object.ID,
		AmountMinor: payload.Data.Object.Amount,
		Currency:    payload.Data.Object.Currency,
	}

	switch payload.Type {
	case "payment_intent.succeeded":
		event.Kind = PaymentSucceeded
	case "payment_intent.payment_failed":
		event.Kind = PaymentFailed
	case "checkout.session.completed":
		event.Kind = CheckoutCompleted
		event.Complete = payload.Data.Object.Status == "complete"
	default:
		return nil, ErrMalformedEvent
	}

	if event.IntentID == "" {
		return nil, ErrMalformedEvent
	}
	return event, nil
}

// Apply is the idempotent side-effect handler for a verified WebhookEvent
// (spec §4.C): it upserts the Donation by intent id and, on a succeeded
// commission, enqueues a pipeline task. Calling it twice for the same
// event produces no extra task and no double-counting, since
// UpsertDonationByIntent is itself idempotent and task enqueue only fires
// on the pending->succeeded transition observed in this call.
func (g *Gateway) Apply(ctx context.Context, event *WebhookEvent) error {
	var status string
	switch event.Kind {
	case PaymentSucceeded:
		status = store.DonationSucceeded
	case PaymentFailed:
		status = store.DonationFailed
	case CheckoutCompleted:
		if !event.Complete {
			return nil
		}
		status = store.DonationSucceeded
	default:
		return ErrMalformedEvent
	}

	before, lookupErr := g.store.GetDonationByIntent(ctx, event.IntentID)
	alreadySucceeded := lookupErr == nil && before.Status == store.DonationSucceeded

	donation, err := g.store.UpsertDonationByIntent(ctx, event.IntentID, map[string]interface{}{
		"status": status,
	})
	if err != nil {
		return errs.InternalError("failed to upsert donation by intent", err)
	}

	if status != store.DonationSucceeded || alreadySucceeded {
		return nil
	}

	if donation.Type != store.DonationTypeCommission {
		return nil
	}

	task := &store.PipelineTask{
		ID:          uuid.New(),
		DonationID:  &donation.ID,
		Type:        commissionTaskType(donation.CommissionType),
		Status:      store.TaskPending,
		Priority:    queue.PriorityCommission,
		SubredditID: donation.SubredditID,
		PostID:      donation.PostID,
	}
	if _, err := g.taskQueue.Enqueue(ctx, task); err != nil {
		return errs.InternalError("failed to enqueue commission task", err)
	}

	return nil
}

func commissionTaskType(commissionType string) string {
	switch commissionType {
	case store.CommissionSpecificPost:
		return store.TaskSpecificPost
	default:
		return store.TaskSubredditPost
	}
}

func flattenMetadata(amountMinor int64, currency string, metadata map[string]string) map[string]string {
	form := map[string]string{
		"amount":   fmt.Sprintf("%d", amountMinor),
		"currency": currency,
	}
	for k, v := range metadata {
		form[fmt.Sprintf("metadata[%s]", k)] = v
	}
	return form
}
