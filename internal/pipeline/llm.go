package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redditcraft/commission-pipeline/core/config"
	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ProductDesign is the structured output of the product_designed stage
// (spec §4.F): theme, image_title, image_description.
type ProductDesign struct {
	Theme            string `json:"theme"`
	ImageTitle       string `json:"image_title"`
	ImageDescription string `json:"image_description"`
}

// DesignDeviser turns a Reddit post into a ProductDesign. Implementations
// must distinguish a content-policy refusal (non-retryable) from a
// transient upstream failure (retryable) via the returned error's
// Retryable() behavior.
type DesignDeviser interface {
	DeviseProduct(ctx context.Context, promptVersion string, post *postContext) (*ProductDesign, error)
}

// postContext is the subset of a RedditPost fed into the design prompt.
type postContext struct {
	Title          string
	Body           string
	CommentSummary string
}

// promptTemplates maps a prompt_version to its system instruction, so a
// template can be revised without breaking tasks already checkpointed
// under an older version (spec §4.F: "LLM call ... using a prompt_version
// versioned template").
var promptTemplates = map[string]string{
	"v1": "You are an art director turning a Reddit post into a single piece of" +
		" commissioned artwork. Given the post's title, body and comment" +
		" summary, respond with a theme, an image title, and a vivid image" +
		" description suitable for an image generation model. Refuse if the" +
		" post's content violates content policy.",
}

func promptFor(version string) string {
	if tpl, ok := promptTemplates[version]; ok {
		return tpl
	}
	return promptTemplates["v1"]
}

// restyLLM is a chat-completion-shaped LLM adapter, grounded in the same
// resty + instrumented-client pattern every other upstream adapter in this
// service uses.
type restyLLM struct {
	client *resty.Client
	logger logger.Logger
}

// NewDesignDeviser constructs the LLM-backed DesignDeviser.
func NewDesignDeviser(cfg *config.AppConfig, logger logger.Logger) DesignDeviser {
	client := resty.NewWithClient(services.NewInstrumentedHTTPClient())
	client.SetBaseURL(cfg.LLMBaseURL)
	client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.LLMAPIKey))
	return &restyLLM{client: client, logger: logger}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		Refused bool        `json:"refused,omitempty"`
	} `json:"choices"`
}

func (d *restyLLM) DeviseProduct(ctx context.Context, promptVersion string, post *postContext) (*ProductDesign, error) {
	userContent := fmt.Sprintf("Title: %s\n\nBody: %s\n\nComments: %s", post.Title, post.Body, post.CommentSummary)

	var result chatCompletionResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(chatCompletionRequest{
			Model: "commission-art-director",
			Messages: []chatMessage{
				{Role: "system", Content: promptFor(promptVersion)},
				{Role: "user", Content: userContent},
			},
		}).
		SetResult(&result).
		Post("/v1/chat/completions")
	if err != nil {
		return nil, errs.UpstreamUnavailableError("llm design request failed", err)
	}
	if resp.StatusCode() == 429 {
		return nil, errs.RateLimitedError("llm design request rate limited")
	}
	if resp.IsError() {
		return nil, errs.UpstreamUnavailableError(fmt.Sprintf("llm design request rejected: %s", resp.String()), nil)
	}
	if len(result.Choices) == 0 {
		return nil, errs.UpstreamUnavailableError("llm returned no choices", nil)
	}
	if result.Choices[0].Refused {
		return nil, errs.UpstreamRejectedError("llm refused to design a product for this post")
	}

	design, err := parseDesign(result.Choices[0].Message.Content)
	if err != nil {
		return nil, errs.UpstreamRejectedError("llm response did not contain a usable design: " + err.Error())
	}
	return design, nil
}

// parseDesign decodes the model's reply into a ProductDesign. A strict
// JSON object is tried first; failing that, gjson is used to pull the
// three fields out of a looser reply (a preamble sentence before the JSON
// block, markdown fencing, etc).
func parseDesign(content string) (*ProductDesign, error) {
	var design ProductDesign
	if err := json.Unmarshal([]byte(content), &design); err == nil && design.Theme != "" {
		return &design, nil
	}

	parsed := gjson.Parse(content)
	theme := parsed.Get("theme").String()
	if theme == "" {
		return nil, fmt.Errorf("no theme field found in response")
	}
	return &ProductDesign{
		Theme:            theme,
		ImageTitle:       parsed.Get("image_title").String(),
		ImageDescription: parsed.Get("image_description").String(),
	}, nil
}
