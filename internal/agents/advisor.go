package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redditcraft/commission-pipeline/core/config"
	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Verdict is an agent's LLM-assisted decision about a candidate post (spec
// §4.I: "the agent asks the LLM for a classification + generated text; the
// agent applies a hard scoring threshold before acting").
type Verdict struct {
	Score  int    `json:"score"`
	Action string `json:"action"`
	Text   string `json:"text"`
}

// Advisor classifies a post against an agent-specific system prompt.
type Advisor interface {
	Classify(ctx context.Context, systemPrompt string, post *reddit.Post) (*Verdict, error)
}

type restyAdvisor struct {
	client *resty.Client
	logger logger.Logger
}

// NewAdvisor constructs the LLM-backed Advisor, sharing the same
// chat-completion endpoint the PipelineEngine's DesignDeviser uses.
func NewAdvisor(cfg *config.AppConfig, logger logger.Logger) Advisor {
	client := resty.NewWithClient(services.NewInstrumentedHTTPClient())
	client.SetBaseURL(cfg.LLMBaseURL)
	client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.LLMAPIKey))
	return &restyAdvisor{client: client, logger: logger}
}

type classifyRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type classifyResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *restyAdvisor) Classify(ctx context.Context, systemPrompt string, post *reddit.Post) (*Verdict, error) {
	userContent := fmt.Sprintf("Title: %s\n\nBody: %s", post.Title, post.Body)

	var result classifyResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(classifyRequest{
			Model: "agent-classifier",
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userContent},
			},
		}).
		SetResult(&result).
		Post("/v1/chat/completions")
	if err != nil {
		return nil, errs.UpstreamUnavailableError("agent classification request failed", err)
	}
	if resp.StatusCode() == 429 {
		return nil, errs.RateLimitedError("agent classification request rate limited")
	}
	if resp.IsError() {
		return nil, errs.UpstreamUnavailableError(fmt.Sprintf("agent classification request rejected: %s", resp.String()), nil)
	}
	if len(result.Choices) == 0 {
		return nil, errs.UpstreamUnavailableError("agent classification returned no choices", nil)
	}

	return parseVerdict(result.Choices[0].Message.Content)
}

func parseVerdict(content string) (*Verdict, error) {
	var verdict Verdict
	if err := json.Unmarshal([]byte(content), &verdict); err == nil {
		return &verdict, nil
	}

	parsed := gjson.Parse(content)
	return &Verdict{
		Score:  int(parsed.Get("score").Int()),
		Action: parsed.Get("action").String(),
		Text:   parsed.Get("text").String(),
	}, nil
}
