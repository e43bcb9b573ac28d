// Package gatewayapi is the HTTP/WS gateway (spec §4.J): the one
// network-facing surface over Store, TaskQueue, PaymentGateway,
// CommissionValidator, FundraisingLedger and ProgressBroker.
package gatewayapi

import (
	"context"
	"time"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/middlewares"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/redditcraft/commission-pipeline/internal/fundraising"
	"github.com/redditcraft/commission-pipeline/internal/payment"
	"github.com/redditcraft/commission-pipeline/internal/progress"
	"github.com/redditcraft/commission-pipeline/internal/queue"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// Gateway wires every gateway-facing domain dependency to the HTTP/WS
// surface described in spec §6.
type Gateway struct {
	store     store.Store
	taskQueue queue.TaskQueue
	payment   *payment.Gateway
	validator *reddit.Validator
	ledger    *fundraising.Ledger
	broker    *progress.Broker
	cfg       *config.AppConfig
	cache     *middlewares.CacheMiddleware
	redis     *services.RedisService
	logger    logger.Logger
}

// NewGateway constructs a Gateway and registers its one background sweep,
// the TaskQueue lease-recovery sweep, with the fx lifecycle (spec §4.J).
// Idle WebSocket subscriber eviction is not a sweep: it runs
// per-connection inside subscribeTasks (see websocket.go).
func NewGateway(
	lifecycle fx.Lifecycle,
	s store.Store,
	taskQueue queue.TaskQueue,
	paymentGateway *payment.Gateway,
	validator *reddit.Validator,
	ledger *fundraising.Ledger,
	broker *progress.Broker,
	cfg *config.AppConfig,
	cache *middlewares.CacheMiddleware,
	redis *services.RedisService,
	logger logger.Logger,
) *Gateway {
	gw := &Gateway{
		store:     s,
		taskQueue: taskQueue,
		payment:   paymentGateway,
		validator: validator,
		ledger:    ledger,
		broker:    broker,
		cfg:       cfg,
		cache:     cache,
		redis:     redis,
		logger:    logger,
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go gw.runLeaseSweep(sweepCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})

	return gw
}

// runLeaseSweep recovers expired task leases at least once per TTL (spec
// §4.E/§5), independently of whether any worker process is still alive to
// renew them.
func (g *Gateway) runLeaseSweep(ctx context.Context) {
	interval := g.cfg.LeaseTTL
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := g.taskQueue.RecoverExpiredLeases(ctx, time.Now())
			if err != nil {
				g.logger.Error(ctx, "lease recovery sweep failed", logger.Fields{"error": err.Error()})
				continue
			}
			if recovered > 0 {
				g.logger.Info(ctx, "lease recovery sweep reclaimed tasks", logger.Fields{"count": recovered})
			}
		}
	}
}

// Routes registers every endpoint from the HTTP surface table (spec §6)
// under route.
func (g *Gateway) Routes(route *gin.RouterGroup) {
	route.POST("/api/commissions/validate", g.validateCommission)

	route.POST("/api/donations/create-payment-intent", g.createPaymentIntent)
	route.PUT("/api/donations/payment-intent/:id/update", g.updatePaymentIntent)
	route.POST("/api/donations/webhook", g.handleWebhook)
	route.POST("/api/donations/manual", g.createManualDonation)
	route.GET("/api/donations/:intent_id", g.getDonation)
	route.GET("/api/donations/by-subreddit", g.donationsBySubreddit)

	route.GET("/api/fundraising/progress", g.cache.Cache5Min(), g.fundraisingProgress)

	route.GET("/api/subreddits", g.cache.Cache15Min(), g.listSubreddits)
	route.POST("/api/subreddits/validate", g.validateSubreddit)

	route.GET("/api/tasks", g.listTasks)

	route.GET("/api/agents/health", g.agentHealth)

	route.GET("/api/products/:run_id/donations", g.productDonations)
	route.GET("/api/products/commission/:donation_id", g.productForCommission)
	route.GET("/api/generated_products", g.listGeneratedProducts)

	route.GET("/ws/tasks", g.subscribeTasks)
}

// Module wires Gateway into the fx graph.
var Module = fx.Module("gatewayapi", fx.Provide(NewGateway))
