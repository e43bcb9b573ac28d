package gatewayapi

import (
	"net/http"
	"time"

	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/internal/agents"
	"github.com/gin-gonic/gin"
)

// heartbeatWindow is how stale an agent's last heartbeat AgentAction may be
// before agentHealth reports it as down.
const heartbeatWindow = 24 * time.Hour

type agentHealthEntry struct {
	AgentID       string     `json:"agent_id"`
	Healthy       bool       `json:"healthy"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// agentHealth implements GET /api/agents/health (SPEC_FULL.md §5): ops
// visibility into whether CommunityAgent/PromoterAgent are still alive,
// derived from the heartbeat AgentAction row each writes every cycle
// (spec §4.I).
func (g *Gateway) agentHealth(c *gin.Context) {
	entries := make([]agentHealthEntry, 0, 2)
	for _, agentID := range []string{agents.CommunityAgentID, agents.PromoterAgentID} {
		entry := agentHealthEntry{AgentID: agentID}

		action, err := g.store.RecentAgentAction(ctxOf(c), agentID, agentID, agents.HeartbeatKind, heartbeatWindow)
		if err != nil {
			respondError(c, g.logger, errs.InternalError("failed to look up agent heartbeat", err))
			return
		}
		if action != nil {
			entry.Healthy = true
			entry.LastHeartbeat = &action.CreatedAt
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{"agents": entries})
}
