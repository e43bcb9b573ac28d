package gatewayapi

import (
	"context"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/gin-gonic/gin"
)

// respondError converts err to the standardized HTTPError shape and writes
// it, logging non-4xx failures (spec §7 propagation policy).
func respondError(c *gin.Context, log logger.Logger, err error) {
	appErr, ok := err.(*errs.AppError)
	if !ok {
		appErr = errs.InternalError("unexpected error", err)
	}
	if appErr.HTTPStatus() >= 500 {
		log.LogError(c.Request.Context(), "gateway request failed", appErr)
	}
	c.JSON(appErr.HTTPStatus(), appErr.ToHTTPError())
}

func ctxOf(c *gin.Context) context.Context {
	return c.Request.Context()
}
