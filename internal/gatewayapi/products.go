package gatewayapi

import (
	"net/http"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type productResponse struct {
	ID            string `json:"id"`
	TaskID        string `json:"task_id"`
	Theme         string `json:"theme"`
	ImageTitle    string `json:"image_title"`
	ImageURL      string `json:"image_url"`
	ProductURL    string `json:"product_url"`
	TemplateID    string `json:"template_id,omitempty"`
	Model         string `json:"model,omitempty"`
	ImageQuality  string `json:"image_quality,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
}

func productToResponse(p *store.ProductInfo) productResponse {
	return productResponse{
		ID:            p.ID.String(),
		TaskID:        p.TaskID.String(),
		Theme:         p.Theme,
		ImageTitle:    p.ImageTitle,
		ImageURL:      p.ImageURL,
		ProductURL:    p.ProductURL,
		TemplateID:    p.TemplateID,
		Model:         p.Model,
		ImageQuality:  p.ImageQuality,
		PromptVersion: p.PromptVersion,
	}
}

// productDonations implements GET /api/products/{run_id}/donations: the
// donation(s) that triggered a given pipeline run (spec §6 "linked
// donations"). A run has at most one triggering donation in this domain,
// but the endpoint returns a list for forward compatibility with the
// multi-donation fundraising-post case.
func (g *Gateway) productDonations(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		respondError(c, g.logger, errs.ValidationError("run_id must be a uuid"))
		return
	}

	task, err := g.store.GetTask(ctxOf(c), runID)
	if err != nil {
		respondError(c, g.logger, errs.NotFoundError("task not found"))
		return
	}

	donations := []donationResponse{}
	if task.DonationID != nil {
		donation, err := g.store.GetDonation(ctxOf(c), *task.DonationID)
		if err != nil {
			respondError(c, g.logger, errs.InternalError("failed to load linked donation", err))
			return
		}
		donations = append(donations, donationToResponse(donation))
	}

	c.JSON(http.StatusOK, gin.H{"donations": donations})
}

// productForCommission implements GET /api/products/commission/{donation_id}
// (spec §6, exercised by S1).
func (g *Gateway) productForCommission(c *gin.Context) {
	donationID, err := uuid.Parse(c.Param("donation_id"))
	if err != nil {
		respondError(c, g.logger, errs.ValidationError("donation_id must be a uuid"))
		return
	}

	task, err := g.store.GetTaskByDonationID(ctxOf(c), donationID)
	if err != nil {
		respondError(c, g.logger, errs.NotFoundError("no task found for that donation"))
		return
	}

	product, err := g.store.GetProductInfoByTask(ctxOf(c), task.ID)
	if err != nil {
		respondError(c, g.logger, errs.NotFoundError("product not yet generated for that commission"))
		return
	}

	c.JSON(http.StatusOK, productToResponse(product))
}

// listGeneratedProducts implements GET /api/generated_products.
func (g *Gateway) listGeneratedProducts(c *gin.Context) {
	limit, offset := paginationParams(c)
	products, err := g.store.ListProductInfo(ctxOf(c), limit, offset)
	if err != nil {
		respondError(c, g.logger, errs.InternalError("failed to list generated products", err))
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productToResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}
