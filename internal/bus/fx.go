package bus

import (
	"context"

	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"go.uber.org/fx"
)

// NewBus builds the cross-process AMQP-backed Bus from cfg.BusConnection,
// falling back to an in-process MemoryBus only when that string is empty.
// config.EnvBusConnection always returns an amqp:// URL (BUS_USER,
// BUS_PASSWORD and BUS_HOST have defaults), so an AppConfig loaded from
// the environment always gets the AMQP-backed Bus.
func NewBus(lifecycle fx.Lifecycle, cfg *config.AppConfig, logger logger.Logger) (Bus, error) {
	if cfg.BusConnection == "" {
		logger.Warning(context.Background(), "BUS_CONNECTION not set, using in-process bus", nil)
		return NewMemoryBus(logger), nil
	}

	amqpBus, err := NewAMQPBus(cfg.BusConnection, logger)
	if err != nil {
		return nil, err
	}

	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return amqpBus.Shutdown()
		},
	})

	return amqpBus, nil
}

// Module wires the Bus singleton into the fx graph.
var Module = fx.Module("bus", fx.Provide(NewBus))
