package gatewayapi

import (
	"net/http"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/gin-gonic/gin"
)

type subredditResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Over18      bool   `json:"over_18"`
}

func subredditToResponse(s *store.Subreddit) subredditResponse {
	return subredditResponse{ID: s.ID.String(), Name: s.Name, DisplayName: s.DisplayName, Over18: s.Over18}
}

// listSubreddits implements GET /api/subreddits.
func (g *Gateway) listSubreddits(c *gin.Context) {
	subreddits, err := g.store.ListSubreddits(ctxOf(c))
	if err != nil {
		respondError(c, g.logger, errs.InternalError("failed to list subreddits", err))
		return
	}

	out := make([]subredditResponse, 0, len(subreddits))
	for _, s := range subreddits {
		out = append(out, subredditToResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"subreddits": out})
}

type validateSubredditRequest struct {
	Subreddit string `json:"subreddit" binding:"required"`
}

// validateSubreddit implements POST /api/subreddits/validate: ensures a
// subreddit exists and is registered (spec §4.D's random_subreddit path,
// exposed standalone for the commission form's subreddit picker).
func (g *Gateway) validateSubreddit(c *gin.Context) {
	var req validateSubredditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, g.logger, errs.ValidationError("invalid request body: "+err.Error()))
		return
	}

	result, err := g.validator.Validate(ctxOf(c), reddit.ValidationRequest{
		CommissionType: store.CommissionRandomSubreddit,
		Subreddit:      req.Subreddit,
	})
	if err != nil {
		respondError(c, g.logger, err)
		return
	}

	c.JSON(http.StatusOK, validateCommissionResponse{
		Valid:     result.Valid,
		Subreddit: result.Subreddit,
		PostID:    result.PostID,
		PostTitle: result.PostTitle,
		Reason:    result.Reason,
		Ratings:   result.Ratings,
	})
}
