package routes

import (
	"github.com/redditcraft/commission-pipeline/core/health"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/middlewares"
	"github.com/redditcraft/commission-pipeline/internal/gatewayapi"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// InitializeRoutes sets up all application routes.
func InitializeRoutes(
	router *gin.Engine,
	gateway *gatewayapi.Gateway,
	cacheMiddleware *middlewares.CacheMiddleware,
	logger logger.Logger,
) {
	root := router.Group("/v1")

	root.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	health.Routes(root, logger)
	gateway.Routes(root)
}
