package store

import "gorm.io/gorm/clause"

// lockingClause applies SELECT ... FOR UPDATE so the serializable
// transactions in ClaimNextTask/UpsertDonationByIntent/ApplyDonationToGoal
// don't rely on isolation level alone to avoid lost updates under
// contention (spec §4.A: "strict serializable").
func lockingClause() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// onConflictDoNothing makes a Create a no-op when the named unique column
// already has a matching row, so GetOrCreate-style calls stay race-free
// under concurrent first-reference inserts.
func onConflictDoNothing(column string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		DoNothing: true,
	}
}

// onConflictUpdateAll makes a Create act as an upsert keyed on the named
// unique column, so a stage can re-persist a task's ProductInfo row as it
// accumulates fields across checkpoints without a separate read-modify-write.
func onConflictUpdateAll(column string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		UpdateAll: true,
	}
}
