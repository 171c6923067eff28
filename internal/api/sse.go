package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const syncEventName = "sync.completed"

// syncEvents streams sync signals as Server-Sent Events.
func (h *handler) syncEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.deps.Signals.Subscribe()
	defer sub.Unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(sig)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", sig.Seq, syncEventName, payload)
			flusher.Flush()
		}
	}
}
