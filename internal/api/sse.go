package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rvergara/maestro/internal/streaming"
	"github.com/rvergara/maestro/pkg/schema"
)

// handleEvents streams a workflow's live events over Server-Sent Events until
// the instance reaches a terminal status or the client disconnects. There is
// no replay: subscribers that arrive after completion get an empty stream and
// should read the snapshot instead.
func (s *Server) handleEvents(c echo.Context) error {
	id := c.Param("id")

	_, active := s.deps.Orchestrator.Snapshot(id)
	if !active {
		// Archived workflows get an immediately-closing stream; unknown ids 404.
		if _, err := s.deps.Store.GetWorkflow(c.Request().Context(), id); err != nil {
			return httpError(err)
		}
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	if !active {
		return nil
	}

	ch, cancel := s.deps.Hub.Subscribe(streaming.Filter{WorkflowID: id})
	defer cancel()

	// The instance may have gone terminal between the active check and the
	// subscription. The status turns terminal before the terminal event is
	// broadcast, so a terminal snapshot here means that event predates this
	// subscription and will never arrive on the channel; the instance may
	// still sit in the active registry while its archive write finishes.
	if snap, live := s.deps.Orchestrator.Snapshot(id); !live || snap.Status.Terminal() {
		return nil
	}

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			w.Flush()
			if terminalEvent(event.Type) {
				return nil
			}
		}
	}
}

func terminalEvent(eventType string) bool {
	switch eventType {
	case schema.EventWorkflowCompleted, schema.EventWorkflowFailed, schema.EventWorkflowTimedOut:
		return true
	}
	return false
}
