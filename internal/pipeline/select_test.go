package pipeline

import (
	"testing"

	"github.com/redditcraft/commission-pipeline/internal/reddit"
)

func TestPickBestPost_FiltersOver18AndRecentlyUsed(t *testing.T) {
	candidates := []*reddit.Post{
		{ExternalID: "a", Score: 500, Over18: true},
		{ExternalID: "b", Score: 400},
		{ExternalID: "c", Score: 900},
	}
	recentlyUsed := func(externalID string) bool { return externalID == "c" }

	best := pickBestPost(candidates, recentlyUsed)
	if best == nil || best.ExternalID != "b" {
		t.Fatalf("expected candidate b to win, got %+v", best)
	}
}

func TestPickBestPost_HighestScoreWins(t *testing.T) {
	candidates := []*reddit.Post{
		{ExternalID: "a", Score: 10},
		{ExternalID: "b", Score: 999},
		{ExternalID: "c", Score: 500},
	}
	best := pickBestPost(candidates, func(string) bool { return false })
	if best == nil || best.ExternalID != "b" {
		t.Fatalf("expected candidate b to win, got %+v", best)
	}
}

func TestPickBestPost_NoEligibleCandidatesReturnsNil(t *testing.T) {
	candidates := []*reddit.Post{
		{ExternalID: "a", Over18: true},
		{ExternalID: "b"},
	}
	best := pickBestPost(candidates, func(string) bool { return true })
	if best != nil {
		t.Fatalf("expected no eligible candidate, got %+v", best)
	}
}
