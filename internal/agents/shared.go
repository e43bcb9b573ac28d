package agents

import (
	"context"
	"math/rand"
	"time"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/store"
)

// RateLimiter gates write actions with a token bucket (spec §4.I: "a token
// bucket per agent ... that gates write actions"). *rate.Limiter from
// golang.org/x/time/rate satisfies this directly.
type RateLimiter interface {
	Allow() bool
}

// HeartbeatKind is the AgentAction.Kind every agent writes once per cycle
// (spec §4.I: "writes a heartbeat file or record every cycle"); exported so
// the gateway's agent-health endpoint can query for it directly.
const HeartbeatKind = "heartbeat"

func writeHeartbeat(ctx context.Context, s store.Store, agentID string, log logger.Logger) {
	if err := s.RecordAgentAction(ctx, &store.AgentAction{
		AgentID:  agentID,
		TargetID: agentID,
		Kind:     HeartbeatKind,
	}); err != nil {
		log.Warning(ctx, "failed to write agent heartbeat", logger.Fields{"agent_id": agentID, "error": err.Error()})
	}
}

func recentlyActedOn(ctx context.Context, s store.Store, agentID, targetID, kind string, window time.Duration) bool {
	action, err := s.RecentAgentAction(ctx, agentID, targetID, kind, window)
	return err == nil && action != nil
}

// jitter perturbs base by up to ±20%, so a fleet of agents doesn't all poll
// in lockstep.
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	spread := float64(base) * 0.2
	offset := (rand.Float64()*2 - 1) * spread
	return base + time.Duration(offset)
}

// runLoop is the shared polling-loop skeleton both agents use: run a cycle,
// track consecutive failures, exit once the cap is hit, sleep a jittered
// period between cycles, and stop on ctx cancellation (spec §4.I).
// singleCycle runs exactly one cycle and returns, for PromoterAgent's
// `--single-cycle` CLI flag (spec §6).
func runLoop(ctx context.Context, period time.Duration, maxConsecutiveFailures int, singleCycle bool, cycle func(context.Context) error) error {
	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := cycle(ctx)
		if singleCycle {
			return err
		}

		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= maxConsecutiveFailures {
				return err
			}
		} else {
			consecutiveFailures = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(jitter(period)):
		}
	}
}
