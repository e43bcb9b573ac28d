package middlewares

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/gin-gonic/gin"
)

// WebhookSignatureMiddleware verifies inbound webhook HMAC-SHA256 signatures
// (spec §7) before a handler ever touches the payload. This replaces the
// teacher's JWT/Keycloak bearer-token gate for the one inbound-trust concern
// this domain actually has: payment gateway webhook deliveries.
type WebhookSignatureMiddleware struct {
	logger logger.Logger
}

// NewWebhookSignatureMiddleware creates a new WebhookSignatureMiddleware instance.
func NewWebhookSignatureMiddleware(logger logger.Logger) *WebhookSignatureMiddleware {
	return &WebhookSignatureMiddleware{logger: logger}
}

// VerifyHMAC returns a middleware that rejects requests whose
// X-Webhook-Signature header does not match the hex-encoded HMAC-SHA256 of
// the raw request body under the given secret. The raw body is restored onto
// the request so downstream handlers can still bind/unmarshal it.
func (m *WebhookSignatureMiddleware) VerifyHMAC(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader("X-Webhook-Signature")
		if signature == "" {
			appErr := errors.UnauthorizedError("missing webhook signature")
			c.AbortWithStatusJSON(appErr.HTTPStatus(), appErr.ToHTTPError())
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			appErr := errors.ValidationError("failed to read webhook body")
			c.AbortWithStatusJSON(appErr.HTTPStatus(), appErr.ToHTTPError())
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(signature), []byte(expected)) {
			m.logger.Warning(c.Request.Context(), "Webhook signature mismatch", logger.Fields{
				"path": c.Request.URL.Path,
			})
			appErr := errors.UnauthorizedError("invalid webhook signature")
			c.AbortWithStatusJSON(appErr.HTTPStatus(), appErr.ToHTTPError())
			return
		}

		c.Next()
	}
}

