package reddit

import (
	"context"
	"testing"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/store"
)

func TestValidator_RandomRandomIsTriviallyValid(t *testing.T) {
	v := NewValidator(nil, nil, logger.NewLogger())

	result, err := v.Validate(context.Background(), ValidationRequest{CommissionType: store.CommissionRandomRandom})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Error("expected random_random to be trivially valid")
	}
}

func TestValidator_UnknownCommissionTypeIsRejected(t *testing.T) {
	v := NewValidator(nil, nil, logger.NewLogger())

	_, err := v.Validate(context.Background(), ValidationRequest{CommissionType: "not_a_real_type"})
	if err == nil {
		t.Fatal("expected a validation error for an unknown commission_type")
	}
}

func TestScoreArtisticPotential_ReflectsLengthAndEngagement(t *testing.T) {
	score := scoreArtisticPotential(&Post{Title: "short", Body: "a bit more text", Score: 42})
	if score["engagement_score"] != 42 {
		t.Errorf("expected engagement_score=42, got %v", score["engagement_score"])
	}
	if score["length_score"].(int) <= 0 {
		t.Errorf("expected a positive length_score, got %v", score["length_score"])
	}
}
