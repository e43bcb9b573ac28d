package gatewayapi

import (
	"net/http"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/internal/store"
	"github.com/gin-gonic/gin"
)

type taskResponse struct {
	ID           string `json:"id"`
	DonationID   string `json:"donation_id,omitempty"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	Priority     int    `json:"priority"`
	Attempt      int    `json:"attempt"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func taskToResponse(t *store.PipelineTask) taskResponse {
	resp := taskResponse{
		ID:           t.ID.String(),
		Type:         t.Type,
		Status:       t.Status,
		Priority:     t.Priority,
		Attempt:      t.Attempt,
		ErrorMessage: t.ErrorMessage,
	}
	if t.DonationID != nil {
		resp.DonationID = t.DonationID.String()
	}
	return resp
}

// listTasks implements GET /api/tasks: non-terminal tasks (spec §6), i.e.
// everything still pending or in flight.
func (g *Gateway) listTasks(c *gin.Context) {
	limit, offset := paginationParams(c)

	statuses := []string{store.TaskPending, store.TaskInProgress}
	if status := c.Query("status"); status != "" {
		statuses = []string{status}
	}

	out := make([]taskResponse, 0, limit)
	for _, status := range statuses {
		tasks, err := g.store.ListTasks(ctxOf(c), status, limit, offset)
		if err != nil {
			respondError(c, g.logger, errs.InternalError("failed to list tasks", err))
			return
		}
		for _, t := range tasks {
			out = append(out, taskToResponse(t))
		}
	}

	c.JSON(http.StatusOK, gin.H{"tasks": out})
}
