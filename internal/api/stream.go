package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/avail-checker/internal/types"
)

// StreamProgress pushes queue events as server-sent events. The current
// snapshot is sent first so late subscribers render immediately.
func (h *Handler) StreamProgress(c *gin.Context) {
	events, cancel := h.q.Subscribe(64)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(string(types.EventProgress), types.Event{Type: types.EventProgress, Progress: h.q.Progress()})
	c.Writer.Flush()

	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()
	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-tick.C:
			c.SSEvent("ping", gin.H{"time": time.Now().Unix()})
			return true
		}
	})
}
