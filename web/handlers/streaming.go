package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// StreamEvent represents a server-sent event.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// handleDebateStream streams debate updates using Server-Sent Events.
// The handler polls the live session; each new transcript message,
// metrics change, and human-input request becomes one event.
func (h *Handler) handleDebateStream(w http.ResponseWriter, r *http.Request) {
	sess := h.currentSession()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("streaming unsupported: ResponseWriter does not implement http.Flusher")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	if sess == nil {
		h.sendSSEError(w, flusher, "no active debate")
		return
	}

	// Send existing messages immediately so late subscribers catch up.
	sent := 0
	for _, msg := range sess.Messages() {
		h.sendSSEEvent(w, flusher, "message", msg)
		sent++
	}
	lastMetrics := sess.Metrics()
	h.sendSSEEvent(w, flusher, "metrics", lastMetrics)

	if run := sess.Snapshot(); run.Status == core.StatusCompleted {
		h.sendSSEEvent(w, flusher, "debate_complete", run)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastAwaited string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			messages := sess.Messages()
			for ; sent < len(messages); sent++ {
				h.sendSSEEvent(w, flusher, "message", messages[sent])
			}

			if m := sess.Metrics(); m != lastMetrics {
				lastMetrics = m
				h.sendSSEEvent(w, flusher, "metrics", m)
			}

			if role, iteration, ok := sess.AwaitingInput(); ok {
				key := fmt.Sprintf("%s@%d", role, iteration)
				if key != lastAwaited {
					lastAwaited = key
					h.sendSSEEvent(w, flusher, "awaiting_input", map[string]interface{}{
						"role":      role,
						"iteration": iteration,
					})
				}
			}

			if run := sess.Snapshot(); run.Status == core.StatusCompleted {
				h.sendSSEEvent(w, flusher, "debate_complete", run)
				return
			}
		}
	}
}

// sendSSEEvent sends a server-sent event.
func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		slog.Error("failed to write SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		slog.Error("failed to write SSE data", "error", err)
		return
	}
	flusher.Flush()
}

// sendSSEError sends an error event.
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	h.sendSSEEvent(w, flusher, "error", map[string]string{"message": message})
}
