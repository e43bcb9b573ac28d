package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/redditcraft/commission-pipeline/core/config"
	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/go-resty/resty/v2"
)

// Image quality tiers (spec §4.F: "hd iff the donation's tier is sapphire
// or diamond, else standard").
const (
	QualityStandard = "standard"
	QualityHD       = "hd"
)

// ImageGenerator renders a product design into image bytes at a given
// quality.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, design *ProductDesign, quality string) ([]byte, error)
}

type restyImageModel struct {
	client *resty.Client
	logger logger.Logger
}

// NewImageGenerator constructs the image-model-backed ImageGenerator.
func NewImageGenerator(cfg *config.AppConfig, logger logger.Logger) ImageGenerator {
	client := resty.NewWithClient(services.NewInstrumentedHTTPClient())
	client.SetBaseURL(cfg.ImageModelBaseURL)
	client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.ImageModelAPIKey))
	return &restyImageModel{client: client, logger: logger}
}

type imageGenerationRequest struct {
	Prompt  string `json:"prompt"`
	Quality string `json:"quality"`
	N       int    `json:"n"`
}

type imageGenerationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (g *restyImageModel) GenerateImage(ctx context.Context, design *ProductDesign, quality string) ([]byte, error) {
	var result imageGenerationResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(imageGenerationRequest{Prompt: design.ImageDescription, Quality: quality, N: 1}).
		SetResult(&result).
		Post("/v1/images/generations")
	if err != nil {
		return nil, errs.UpstreamUnavailableError("image generation request failed", err)
	}
	if resp.StatusCode() == 429 {
		return nil, errs.RateLimitedError("image generation request rate limited")
	}
	if resp.IsError() {
		return nil, errs.UpstreamUnavailableError(fmt.Sprintf("image generation request rejected: %s", resp.String()), nil)
	}
	if len(result.Data) == 0 || result.Data[0].B64JSON == "" {
		return nil, errs.UpstreamUnavailableError("image generation returned no image data", nil)
	}

	decoded, err := base64.StdEncoding.DecodeString(result.Data[0].B64JSON)
	if err != nil {
		return nil, errs.UpstreamUnavailableError("image generation returned undecodable image data", err)
	}
	return decoded, nil
}

// QualityForTier derives image quality from a donation's tier name (spec
// §4.F).
func QualityForTier(tierName string) string {
	switch tierName {
	case "sapphire", "diamond":
		return QualityHD
	default:
		return QualityStandard
	}
}
