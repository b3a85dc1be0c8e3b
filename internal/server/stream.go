package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleEvents streams the caller's notifications as server-sent events until the
// client disconnects.
func (h *httpHandler) handleEvents(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, eventPayload{
				Type:       message.EventType,
				NoteID:     message.NoteID,
				QuestionID: message.QuestionID,
				ActorID:    message.ActorID,
				Timestamp:  message.Timestamp,
				Source:     realtimeSourceBackend,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, eventPayload{
				Type:      realtimeEventHeartbeat,
				Timestamp: tick.UTC(),
				Source:    realtimeSourceBackend,
			})
			return true
		}
	})
}
