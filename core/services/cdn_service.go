package services

import (
	"context"
	"fmt"
	"io"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/go-resty/resty/v2"
)

// ImageHostService uploads images to the external image hosting provider
// used by the stamping stage (spec §4.F) to publish the final commissioned
// artwork. It has no method for retrieving images back from the host.
type ImageHostService struct {
	baseURL    string
	clientID   string
	httpClient *resty.Client
	logger     logger.Logger
}

// ImageHostUploadResponse represents the response from an image-host upload.
type ImageHostUploadResponse struct {
	Data struct {
		Link string `json:"link"`
		ID   string `json:"id"`
	} `json:"data"`
	Success bool `json:"success"`
}

// NewImageHostService creates a new ImageHostService instance, backed by the
// shared OpenTelemetry-instrumented HTTP transport.
func NewImageHostService(baseURL, clientID string, logger logger.Logger) *ImageHostService {
	client := resty.NewWithClient(NewInstrumentedHTTPClient())
	client.SetBaseURL(baseURL)
	client.SetHeader("Authorization", fmt.Sprintf("Client-ID %s", clientID))

	return &ImageHostService{
		baseURL:    baseURL,
		clientID:   clientID,
		httpClient: client,
		logger:     logger,
	}
}

// UploadImage uploads raw image bytes and returns the publicly reachable URL.
func (s *ImageHostService) UploadImage(ctx context.Context, image io.Reader, title string) (string, error) {
	var result ImageHostUploadResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetFileReader("image", title, image).
		SetFormData(map[string]string{"title": title}).
		SetResult(&result).
		Post("/image")
	if err != nil {
		s.logger.Error(ctx, "Image host upload request failed", map[string]interface{}{"error": err.Error()})
		return "", fmt.Errorf("image host upload request failed: %w", err)
	}

	if resp.IsError() {
		s.logger.Error(ctx, "Image host upload rejected", map[string]interface{}{
			"status_code": resp.StatusCode(),
			"response":    resp.String(),
		})
		return "", fmt.Errorf("image host upload failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	s.logger.Info(ctx, "Image uploaded successfully", map[string]interface{}{
		"title": title,
		"url":   result.Data.Link,
	})

	return result.Data.Link, nil
}
