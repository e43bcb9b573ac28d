package pipeline

import "github.com/redditcraft/commission-pipeline/internal/reddit"

// pickBestPost applies the post-selection policy (spec §4.F: "hot-top-50 /
// not-over-18 / not-recently-used / combined score"): among eligible
// candidates, the one with the highest engagement score wins. recentlyUsed
// reports whether a candidate's external id was already turned into a
// commission within the dedup window.
func pickBestPost(candidates []*reddit.Post, recentlyUsed func(externalID string) bool) *reddit.Post {
	var best *reddit.Post
	for _, candidate := range candidates {
		if candidate.Over18 {
			continue
		}
		if recentlyUsed(candidate.ExternalID) {
			continue
		}
		if best == nil || candidate.Score > best.Score {
			best = candidate
		}
	}
	return best
}
