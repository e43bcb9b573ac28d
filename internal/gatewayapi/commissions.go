package gatewayapi

import (
	"net/http"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/gin-gonic/gin"
)

type validateCommissionRequest struct {
	CommissionType string `json:"commission_type" binding:"required"`
	Subreddit      string `json:"subreddit"`
	PostIDOrURL    string `json:"post_id_or_url"`
}

type validateCommissionResponse struct {
	Valid     bool                   `json:"valid"`
	Subreddit string                 `json:"subreddit,omitempty"`
	PostID    string                 `json:"post_id,omitempty"`
	PostTitle string                 `json:"post_title,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Ratings   map[string]interface{} `json:"ratings,omitempty"`
}

// validateCommission implements POST /api/commissions/validate (spec §4.D).
func (g *Gateway) validateCommission(c *gin.Context) {
	var req validateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, g.logger, errs.ValidationError("invalid request body: "+err.Error()))
		return
	}

	result, err := g.validator.Validate(ctxOf(c), reddit.ValidationRequest{
		CommissionType: req.CommissionType,
		Subreddit:      req.Subreddit,
		PostIDOrURL:    req.PostIDOrURL,
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
