package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	streamEventFeedUpdate = "feed-update"
	streamEventHeartbeat  = "heartbeat"
	heartbeatInterval     = 25 * time.Second
)

// handleFeedStream serves the live feed over server-sent events. The client
// receives the current view immediately and a fresh one whenever messages,
// curation, engagement, or settings change.
func (h *httpHandler) handleFeedStream(c *gin.Context) {
	visitorID, ok := h.visitorID(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	views, cancel, err := h.composer.Subscribe(c.Request.Context(), visitorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case view, open := <-views:
			if !open {
				return
			}
			payload, err := json.Marshal(renderFeedView(view))
			if err != nil {
				h.logger.Error("failed to encode feed view", zap.Error(err))
				continue
			}
			if !writeSSE(c.Writer, streamEventFeedUpdate, payload) {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if !writeSSE(c.Writer, streamEventHeartbeat, []byte(`{}`)) {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(writer gin.ResponseWriter, event string, data []byte) bool {
	if _, err := writer.WriteString("event: " + event + "\n"); err != nil {
		return false
	}
	if _, err := writer.WriteString("data: "); err != nil {
		return false
	}
	if _, err := writer.Write(data); err != nil {
		return false
	}
	if _, err := writer.WriteString("\n\n"); err != nil {
		return false
	}
	return true
}
