package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// Events streams session events (presence, absence, ended) over SSE until
// the session ends or the client disconnects.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	ms := h.lookup(w, r)
	if ms == nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventCh := ms.AddListener()
	defer ms.RemoveListener(eventCh)

	// Late subscribers get the current state first.
	summary := ms.sess.Summary()
	sendSSEEvent(w, flusher, "status", summary)
	if summary.State == "ended" {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if event.Type == "ended" {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
