package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
)

// eventStreamHandler streams control-plane events over Server-Sent
// Events. Each connection gets a buffered channel fed from the bus; a
// slow client drops events rather than blocking emitters.
type eventStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

func newEventStreamHandler(bus *events.Bus, log zerolog.Logger) *eventStreamHandler {
	return &eventStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream. An optional ?types=A,B query
// restricts the stream to the named event types.
func (h *eventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var allowedTypes map[events.EventType]bool
	if raw := r.URL.Query().Get("types"); raw != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	h.log.Info().Int("type_filter", len(allowedTypes)).Msg("Client connected to event stream")

	// Bus handlers must not block, so events are handed over through a
	// buffered channel and dropped when the client cannot keep up.
	eventCh := make(chan events.Event, 100)
	unsubscribe := h.bus.SubscribeAll(func(event events.Event) {
		if allowedTypes != nil && !allowedTypes[event.Type] {
			return
		}
		select {
		case eventCh <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Event stream client too slow, dropping event")
		}
	})
	defer unsubscribe()

	fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to control plane event stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventCh:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			}))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

func (h *eventStreamHandler) encode(payload map[string]interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal stream event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
