package store

import "context"

// DefaultTiers are the donation-amount bands seeded once at startup (spec
// §3 Tier; SPEC_FULL.md §5 tier seeding). MinAmount is in minor currency
// units (cents). HD marks the bands whose commissions render at the
// image model's hd quality (spec §4.F).
var DefaultTiers = []Tier{
	{Name: "bronze", MinAmount: 500, DisplayColor: "#cd7f32", DisplayIcon: "medal", HD: false},
	{Name: "silver", MinAmount: 1500, DisplayColor: "#c0c0c0", DisplayIcon: "medal", HD: false},
	{Name: "gold", MinAmount: 3000, DisplayColor: "#ffd700", DisplayIcon: "medal", HD: false},
	{Name: "sapphire", MinAmount: 7500, DisplayColor: "#0f52ba", DisplayIcon: "gem", HD: true},
	{Name: "diamond", MinAmount: 15000, DisplayColor: "#b9f2ff", DisplayIcon: "gem", HD: true},
}

// SeedTiers inserts any DefaultTiers row not already present, keyed on
// Tier.Name. Idempotent across repeated startups, mirroring the teacher's
// seeds_service.go pattern for one-time reference-data seeding.
func (s *GormStore) SeedTiers(ctx context.Context) error {
	for _, tier := range DefaultTiers {
		tier := tier
		if err := s.db.WithContext(ctx).Clauses(onConflictDoNothing("name")).Create(&tier).Error; err != nil {
			return err
		}
	}
	return nil
}
