package app

import (
	"context"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/middlewares"
	"github.com/redditcraft/commission-pipeline/core/observability"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/redditcraft/commission-pipeline/internal/agents"
	"github.com/redditcraft/commission-pipeline/internal/bus"
	"github.com/redditcraft/commission-pipeline/internal/fundraising"
	"github.com/redditcraft/commission-pipeline/internal/gatewayapi"
	"github.com/redditcraft/commission-pipeline/internal/payment"
	"github.com/redditcraft/commission-pipeline/internal/pipeline"
	"github.com/redditcraft/commission-pipeline/internal/progress"
	"github.com/redditcraft/commission-pipeline/internal/queue"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/redditcraft/commission-pipeline/routes"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// NewFxApp builds the fx graph for the `api` run mode: the HTTP/WS gateway
// plus its TaskQueue lease-recovery sweep, wired to every domain module.
// The pipeline and agent run modes are started separately by cmd/service,
// which constructs pipeline.Engine/agents.CommunityAgent/agents.PromoterAgent
// directly rather than through this graph.
func NewFxApp() *fx.App {
	return fx.New(
		logger.Module,
		config.Module,
		observability.Module,
		services.Module,
		middlewares.Module,
		bus.Module,
		store.Module,
		queue.Module,
		payment.Module,
		reddit.Module,
		progress.Module,
		fundraising.Module,
		pipeline.Module,
		agents.Module,
		gatewayapi.Module,
		fx.Provide(gin.New),
		fx.Invoke(
			func(lc fx.Lifecycle, redisService *services.RedisService, logger logger.Logger) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						if err := redisService.Init(); err != nil {
							logger.Error(ctx, "Failed to initialize Redis", map[string]interface{}{
								"error": err.Error(),
							})
						}
						return nil
					},
				})
			},
		),
		fx.Invoke(routes.InitializeRoutes),
		InitAndRun(),
	)
}
