package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseFlushWriter wraps a ResponseWriter to flush after each write.
type sseFlushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw sseFlushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}

// eventStream writes ChatEvents as server-sent events. Headers are only
// sent with the first event so that a failure before any output can still
// be answered with a plain JSON error.
type eventStream struct {
	w       http.ResponseWriter
	out     sseFlushWriter
	started bool
	failed  bool
}

func newEventStream(w http.ResponseWriter, f http.Flusher) *eventStream {
	return &eventStream{w: w, out: sseFlushWriter{w: w, f: f}}
}

func (es *eventStream) send(evt ChatEvent) error {
	if es.failed {
		return fmt.Errorf("event stream already failed")
	}
	if !es.started {
		h := es.w.Header()
		h.Del("Content-Length")
		h.Set("Content-Type", "text/event-stream; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		es.w.WriteHeader(http.StatusOK)
		es.started = true
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(es.out, "data: %s\n\n", payload); err != nil {
		es.failed = true
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
