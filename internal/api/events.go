package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// eventsBuffer — буфер подписки одного SSE клиента.
const eventsBuffer = 32

// StreamEvents отдаёт snapshots как Server-Sent Events.
// GET /api/v1/pipeline/events
//
// Первым событием идёт текущий snapshot, затем каждый новый.
// Snapshots с версией не новее уже отправленной пропускаются.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		Unavailable(w, "event stream is not configured")
		return
	}

	rc := http.NewResponseController(w)
	// Поток живёт дольше WriteTimeout сервера.
	_ = rc.SetWriteDeadline(time.Time{})

	updates, cancel := h.events.Subscribe(eventsBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	current := h.pipeline.Snapshot()
	if err := writeEvent(w, current); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn("sse flush not supported", "error", err)
		return
	}
	last := current.Version

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.Version <= last {
				continue
			}
			if err := writeEvent(w, snap); err != nil {
				return
			}
			last = snap.Version

		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}

		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeEvent пишет snapshot в формате SSE.
func writeEvent(w io.Writer, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", snap.Version, data)
	return err
}
