package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aquaflora/stockscan/internal/events"
)

const (
	// sseBacklogSize bounds the events kept for Last-Event-ID resumption.
	sseBacklogSize = 1000
	// sseClientBuffer is the per-client queue; a client that falls further
	// behind loses events rather than stalling the controller.
	sseClientBuffer      = 64
	sseKeepaliveInterval = 15 * time.Second
	// sseRetry is the reconnect delay advertised to clients.
	sseRetry = 2 * time.Second
)

// sseEvent is one broadcast event. Session is the session_id carried by the
// payload, if any.
type sseEvent struct {
	ID      uint64
	Topic   string
	Session string
	Data    []byte
}

// sseFilter selects the events a stream client receives. The zero value
// passes everything.
type sseFilter struct {
	topics  []string
	session string
}

// parseSSEFilter reads ?topics=a,b and ?session=<id>.
func parseSSEFilter(q url.Values) sseFilter {
	var f sseFilter
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.topics = append(f.topics, t)
		}
	}
	f.session = strings.TrimSpace(q.Get("session"))
	return f
}

func (f sseFilter) matches(evt *sseEvent) bool {
	if f.session != "" && evt.Session != f.session {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, pattern := range f.topics {
		if events.MatchTopic(pattern, evt.Topic) {
			return true
		}
	}
	return false
}

// sseHub fans controller, catalog and device events out to stream clients.
// Sequence numbers, the backlog and delivery share one lock so every client
// sees events in ID order.
type sseHub struct {
	mu      sync.Mutex
	seq     uint64
	backlog []*sseEvent // oldest first
	clients map[*sseClient]struct{}
}

type sseClient struct {
	filter  sseFilter
	ch      chan *sseEvent
	dropped atomic.Uint64
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

// sessionOf extracts the session_id of an event payload.
func sessionOf(payload []byte) string {
	var v struct {
		SessionID string `json:"session_id"`
	}
	_ = json.Unmarshal(payload, &v)
	return v.SessionID
}

func (h *sseHub) broadcast(topic string, payload []byte) {
	session := sessionOf(payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	evt := &sseEvent{ID: h.seq, Topic: topic, Session: session, Data: payload}
	if len(h.backlog) == sseBacklogSize {
		h.backlog = append(h.backlog[1:], evt)
	} else {
		h.backlog = append(h.backlog, evt)
	}
	for c := range h.clients {
		if !c.filter.matches(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			c.dropped.Add(1)
		}
	}
}

// subscribe registers a client for live events only.
func (h *sseHub) subscribe(f sseFilter) *sseClient {
	c, _ := h.resume(f, 0, false)
	return c
}

// resume registers a client and, when replay is set, returns the backlog
// events after lastID that pass its filter. Registration and the backlog read
// happen under one lock, so no event is both replayed and delivered live.
func (h *sseHub) resume(f sseFilter, lastID uint64, replay bool) (*sseClient, []*sseEvent) {
	c := &sseClient{filter: f, ch: make(chan *sseEvent, sseClientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if !replay {
		return c, nil
	}
	var missed []*sseEvent
	for _, evt := range h.backlog {
		if evt.ID > lastID && f.matches(evt) {
			missed = append(missed, evt)
		}
	}
	return c, missed
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	if n := c.dropped.Load(); n > 0 {
		slog.Debug("sse client fell behind", "dropped", n, "session", c.filter.session)
	}
}

// lastEventID reads the resume point from the Last-Event-ID header, falling
// back to ?last_event_id for clients that cannot set headers.
func lastEventID(r *http.Request) (uint64, bool) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	return id, err == nil
}

// handleEventStream handles GET /v1/events/stream.
func (s *StockServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filter := parseSSEFilter(r.URL.Query())
	lastID, replay := lastEventID(r)
	client, missed := s.sseHub.resume(filter, lastID, replay)
	defer s.sseHub.unsubscribe(client)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", sseRetry.Milliseconds())
	for _, evt := range missed {
		writeSSEEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// broadcastEvent marshals event and hands it to the hub.
func (s *StockServer) broadcastEvent(topic string, event any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("sse: marshal event", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
