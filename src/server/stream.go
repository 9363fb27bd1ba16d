package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kaenova/chatd/src/history"
	"github.com/kaenova/chatd/src/turn"
)

// snapshotEvent is a snapshot line on the wire: the event type plus the full
// thread view.
type snapshotEvent struct {
	Type turn.EventType `json:"type"`
	*history.Snapshot
}

// streamRun executes run on a detached context while forwarding its events
// to the client as NDJSON lines. Checkpoint writes survive a client
// disconnect; only the response writes observe it. The final line is always
// a fresh snapshot unless the run failed.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, threadID string, run func(context.Context, turn.EventSink)) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sink := turn.NewChannelEventSink(64)
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		defer sink.Close()
		run(runCtx, sink)
	}()

	clientGone := false
	failed := false
	for event := range sink.Events() {
		if event.Type == turn.EventError {
			failed = true
		}
		if clientGone {
			continue
		}
		if !s.writeEvent(runCtx, w, r, threadID, event) {
			clientGone = true
		}
	}

	if clientGone || failed {
		return
	}
	snapshot, err := s.history.Snapshot(runCtx, threadID)
	if err != nil {
		s.logger.Error("final snapshot failed", "thread_id", threadID, "error", err)
		writeLine(w, turn.Event{Type: turn.EventError, Error: err.Error()})
		return
	}
	writeLine(w, snapshotEvent{Type: turn.EventSnapshot, Snapshot: snapshot})
}

// writeEvent serializes one event line, enriching snapshot markers with the
// reconstructed thread view. Returns false once the client is gone.
func (s *Server) writeEvent(ctx context.Context, w http.ResponseWriter, r *http.Request, threadID string, event turn.Event) bool {
	if r.Context().Err() != nil {
		return false
	}

	var line any = event
	if event.Type == turn.EventSnapshot {
		snapshot, err := s.history.Snapshot(ctx, threadID)
		if err != nil {
			s.logger.Error("snapshot enrichment failed", "thread_id", threadID, "error", err)
			return writeLine(w, turn.Event{Type: turn.EventError, Error: err.Error()})
		}
		line = snapshotEvent{Type: turn.EventSnapshot, Snapshot: snapshot}
	}
	return writeLine(w, line)
}

func writeLine(w http.ResponseWriter, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return false
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
