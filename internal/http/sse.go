package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handleEvents streams a task's progress as Server-Sent Events.
//
//	event: step
//	data: {"kind":"step","task_id":"t1","step":"#E1","tool":"Search",...}
//
// The stream ends after a completed, failed or awaiting event, or when the
// client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	if s.deps.Events == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event streaming is not enabled")
	}
	ctx := c.Request().Context()
	agentID, taskID := c.Param("agent"), c.Param("task")

	ch, err := s.deps.Events.Subscribe(ctx, agentID, taskID)
	if err != nil {
		s.logger.Warn("subscribe to task events failed", zap.String("task_id", taskID), zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream unavailable")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(s.config.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\n", ev.Kind)
			fmt.Fprintf(w, "data: %s\n\n", data)
			w.Flush()
			if ev.Kind.Terminal() {
				return nil
			}

		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			w.Flush()

		case <-ctx.Done():
			return nil
		}
	}
}
