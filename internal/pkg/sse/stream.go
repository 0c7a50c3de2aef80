package sse

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// Serve streams hub events for resource to the request until the client
// goes away. A zero heartbeat disables keep-alive comments.
func Serve(c *gin.Context, hub *Hub, resource string, heartbeat time.Duration) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	client := hub.Subscribe(resource)
	defer hub.Unsubscribe(client)

	connected := Event{
		Type: "connected",
		Data: map[string]string{"client_id": client.ID, "resource": resource},
	}
	if !write(c, connected.Format()) {
		return
	}

	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	gone := c.Request.Context().Done()
	for {
		select {
		case <-gone:
			return
		case e, ok := <-client.Events():
			if !ok || !write(c, e.Format()) {
				return
			}
		case <-tick:
			if !write(c, ": heartbeat\n\n") {
				return
			}
		}
	}
}

func write(c *gin.Context, frame string) bool {
	if _, err := fmt.Fprint(c.Writer, frame); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}
