package store

import (
	"context"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// NewStore constructs the Store, runs AutoMigrate against the shared
// *gorm.DB connection provided by core/services, and seeds the static
// Tier rows every other Store-backed component (donation intents, the
// image model's hd quality rule) depends on existing.
func NewStore(db *gorm.DB, logger logger.Logger) (Store, error) {
	s := NewGormStore(db, logger)
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	if err := s.SeedTiers(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Module wires the Store singleton into the fx graph.
var Module = fx.Module("store", fx.Provide(NewStore))
