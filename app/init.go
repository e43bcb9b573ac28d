package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/entities"
	appErrors "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/docs"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// InitAndRun verifies the database connection, finalizes the swagger
// document, and starts the HTTP server on the configured port. store.Module
// already ran AutoMigrate by the time this hook fires, since it provides the
// Store singleton that routes.InitializeRoutes depends on transitively.
func InitAndRun() fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, cfg *config.AppConfig, app *gin.Engine, log logger.Logger, db *gorm.DB) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					log.Error(ctx, "Failed to get database instance", map[string]interface{}{
						"error": err.Error(),
					})
					return fmt.Errorf("failed to get database instance: %w", err)
				}
				if err := sqlDB.Ping(); err != nil {
					log.Error(ctx, "Database ping failed", map[string]interface{}{
						"error": err.Error(),
					})
					return fmt.Errorf("database not accessible: %w", err)
				}
				log.Info(ctx, "Database connection verified")

				if cfg.Environment == entities.Environment.Development {
					docs.SwaggerInfo.Host = "localhost:" + cfg.Port
					docs.SwaggerInfo.Schemes = []string{"http", "https"}
				} else {
					docs.SwaggerInfo.Host = cfg.BaseURL
					docs.SwaggerInfo.Schemes = []string{"https"}
				}

				docs.SwaggerInfo.BasePath = "/v1"
				docs.SwaggerInfo.Title = cfg.ServiceName
				docs.SwaggerInfo.Description = "Reddit commission fundraising pipeline: accepts donations, validates target subreddits/posts, generates and stamps AI artwork, and builds an affiliate product link for it."
				docs.SwaggerInfo.Version = "1.0"

				runPort := fmt.Sprintf(":%s", cfg.Port)
				go func() {
					if err := app.Run(runPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
						appError := appErrors.RootError(err.Error(), nil)
						log.LogError(ctx, "HTTP server failed", appError)
						panic(err)
					}
				}()

				return nil
			},
			OnStop: func(ctx context.Context) error {
				log.Info(ctx, "Shutting down gracefully")
				return nil
			},
		})
	})
}
