package sse

import (
	"encoding/json"
	"time"

	ginsse "github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// Stream drains sub onto c's response as a text/event-stream, emitting
// periodic heartbeats while idle (default 15s) and stopping when the
// client disconnects or a terminal event is delivered.
//
// The producer (caller) is responsible for eventually publishing a complete
// or error event on the source tag sub is filtered to; Stream closes the
// subscription itself once that happens.
func Stream(c *gin.Context, sub *Subscription, heartbeat time.Duration) {
	defer sub.Close()
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	WriteStreamHeaders(c)

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			WriteEvent(c, ev)
			c.Writer.Flush()
			if ev.Kind.Terminal() {
				return
			}
		case <-ticker.C:
			_ = ginsse.Encode(c.Writer, ginsse.Event{Event: string(KindHeartbeat), Data: "{}"})
			c.Writer.Flush()
		}
	}
}

// WriteStreamHeaders sets the text/event-stream response headers. Safe to
// call more than once before the first byte is written.
func WriteStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// WriteEvent encodes one event in the wire format. Callers replaying
// history ahead of a live Stream use this directly.
func WriteEvent(c *gin.Context, ev Event) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(`{"error":"failed to encode event"}`)
	}
	_ = ginsse.Encode(c.Writer, ginsse.Event{Event: string(ev.Kind), Data: string(body)})
}

