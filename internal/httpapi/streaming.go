package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/streaming"
)

// StreamingHandler serves SSE and WebSocket endpoints for run events.
type StreamingHandler struct {
	mgr       *streaming.Manager
	logger    *zap.Logger
	heartbeat time.Duration
}

func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamingHandler{mgr: mgr, logger: logger, heartbeat: 15 * time.Second}
}

// RegisterRoutes registers SSE and WebSocket routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stream/sse", h.handleSSE)
	mux.HandleFunc("GET /stream/ws", h.handleWS)
}

// streamRequest holds the parsed query of a stream request.
type streamRequest struct {
	runID  string
	lastID uint64
	types  map[string]struct{}
}

func parseStreamRequest(r *http.Request) (streamRequest, error) {
	req := streamRequest{runID: r.URL.Query().Get("run_id"), types: map[string]struct{}{}}
	if req.runID == "" {
		return req, fmt.Errorf("run_id required")
	}
	if s := r.URL.Query().Get("types"); s != "" {
		for _, t := range strings.Split(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.types[t] = struct{}{}
			}
		}
	}
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			req.lastID = n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" && req.lastID == 0 {
		n, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid last_event_id")
		}
		req.lastID = n
	}
	return req, nil
}

func (s streamRequest) wants(ev streaming.Event) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[string(ev.Type)]
	return ok
}

// cursor de-duplicates replayed and live events by sequence number.
type cursor struct{ last uint64 }

func (c *cursor) next(ev streaming.Event) bool {
	if ev.Seq <= c.last {
		return false
	}
	c.last = ev.Seq
	return true
}

// handleSSE streams events for a run via Server-Sent Events.
// GET /stream/sse?run_id=<id>&last_event_id=<seq>
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	req, err := parseStreamRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// subscribe before replay so nothing published in between is lost
	ch := h.mgr.Subscribe(req.runID, 256)
	defer h.mgr.Unsubscribe(req.runID, ch)
	finished := h.mgr.Finished(req.runID)

	fmt.Fprintf(w, ": connected to run %s\n\n", req.runID)
	flusher.Flush()

	cur := &cursor{last: req.lastID}
	write := func(ev streaming.Event) bool {
		if !cur.next(ev) {
			return false
		}
		if req.wants(ev) {
			writeSSE(w, ev)
		}
		return ev.Terminal()
	}

	for _, ev := range h.mgr.ReplaySince(req.runID, req.lastID) {
		if write(ev) {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()
	// the client already holds the terminal event
	if finished {
		return
	}

	hb := time.NewTicker(h.heartbeat)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("run_id", req.runID))
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			done := write(ev)
			flusher.Flush()
			if done {
				return
			}
		case <-hb.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev streaming.Event) {
	fmt.Fprintf(w, "id: %d\n", ev.Seq)
	fmt.Fprintf(w, "event: %s\n", ev.Type)
	fmt.Fprintf(w, "data: %s\n\n", ev.Marshal())
}
