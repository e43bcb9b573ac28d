package gatewayapi

import (
	"net/http"
	"time"

	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/internal/progress"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsPingInterval and wsIdleTimeout implement spec §4.J: "streams progress
// events with heartbeat pings every 20s; closes idle subscribers after 2
// minutes of no client read."
const (
	wsPingInterval = 20 * time.Second
	wsIdleTimeout  = 2 * time.Minute
	wsWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEnvelope is the wire shape from spec §6's WebSocket message envelope.
type wsEnvelope struct {
	Type   string      `json:"type"`
	TaskID string      `json:"task_id"`
	Data   wsEventData `json:"data"`
}

type wsEventData struct {
	Status    string `json:"status"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Progress  int    `json:"progress"`
	Timestamp int64  `json:"timestamp"`
}

// subscribeTasks implements WS /ws/tasks: a single wildcard subscription
// over every task's progress events (spec §4.B/§4.G "any task" channel).
func (g *Gateway) subscribeTasks(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warning(ctxOf(c), "websocket upgrade failed", logger.Fields{"error": err.Error()})
		return
	}
	defer conn.Close()

	outbound := make(chan wsEnvelope, 32)
	handle, err := g.broker.SubscribeAll(func(event progress.ClientEvent) {
		msg := wsEnvelope{
			Type:   "task_update",
			TaskID: event.TaskID.String(),
			Data: wsEventData{
				Stage:     event.Stage,
				Message:   event.Message,
				Progress:  event.Percent,
				Timestamp: event.Timestamp.Unix(),
			},
		}
		select {
		case outbound <- msg:
		default:
			// Slow reader; the per-subscriber Bus queue already enforces
			// the bound (spec §5), this is just the final hop to the
			// socket and drops the same way rather than blocking.
		}
	})
	if err != nil {
		g.logger.Error(ctxOf(c), "failed to subscribe websocket client to progress broker", logger.Fields{"error": err.Error()})
		return
	}
	defer g.broker.Unsubscribe(handle)

	conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-c.Request.Context().Done():
			return
		case msg := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
