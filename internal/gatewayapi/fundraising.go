package gatewayapi

import (
	"net/http"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/gin-gonic/gin"
)

type goalResponse struct {
	SubredditID   string `json:"subreddit_id,omitempty"`
	GoalAmount    int64  `json:"goal_amount"`
	CurrentAmount int64  `json:"current_amount"`
	Status        string `json:"status"`
}

type fundraisingProgressResponse struct {
	TotalRaisedMinor int64          `json:"total_raised_minor"`
	SubredditCount   int            `json:"subreddit_count"`
	CompletedGoals   int            `json:"completed_goals"`
	BySubreddit      []goalResponse `json:"by_subreddit"`
}

// fundraisingProgress implements GET /api/fundraising/progress (spec §4.H):
// overall totals plus each community's goal.
func (g *Gateway) fundraisingProgress(c *gin.Context) {
	overall, err := g.ledger.GetOverall(ctxOf(c))
	if err != nil {
		respondError(c, g.logger, errs.InternalError("failed to aggregate fundraising progress", err))
		return
	}

	bySubreddit, err := g.ledger.GetBySubreddit(ctxOf(c))
	if err != nil {
		respondError(c, g.logger, errs.InternalError("failed to list per-subreddit progress", err))
		return
	}

	goals := make([]goalResponse, 0, len(bySubreddit))
	for _, sp := range bySubreddit {
		if sp.Goal == nil {
			continue
		}
		goals = append(goals, goalResponse{
			SubredditID:   sp.Subreddit.ID.String(),
			GoalAmount:    sp.Goal.GoalAmount,
			CurrentAmount: sp.Goal.CurrentAmount,
			Status:        sp.Goal.Status,
		})
	}

	c.JSON(http.StatusOK, fundraisingProgressResponse{
		TotalRaisedMinor: overall.TotalRaisedMinor,
		SubredditCount:   overall.SubredditCount,
		CompletedGoals:   overall.CompletedGoals,
		BySubreddit:      goals,
	})
}
