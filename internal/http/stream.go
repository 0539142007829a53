package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/ws"
)

const sseHeartbeatInterval = 25 * time.Second

func streamProjectID(req *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(req.URL.Query().Get("project_id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	projectID, ok := streamProjectID(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "project_id query parameter required")
		return
	}
	if r.logs == nil || r.logs.Hub() == nil {
		writeError(w, http.StatusServiceUnavailable, "log streaming disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub := r.logs.Hub()
	hub.Register(projectID, client)
	go func() {
		defer func() {
			hub.Unregister(projectID, client)
			client.Close()
		}()
		client.Serve()
	}()
}

func (r *Router) handleLogsSSE(w http.ResponseWriter, req *http.Request) {
	projectID, ok := streamProjectID(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "project_id query parameter required")
		return
	}
	if r.logs == nil || r.logs.Hub() == nil {
		writeError(w, http.StatusServiceUnavailable, "log streaming disabled")
		return
	}
	stream := ws.NewEventStream(w, "log", r.logger)
	if err := stream.Open(req.Header.Get("Last-Event-ID")); err != nil {
		r.logger.Warn("event stream open failed", "project_id", projectID, "error", err)
		return
	}
	hub := r.logs.Hub()
	hub.Register(projectID, stream)
	defer hub.Unregister(projectID, stream)
	_ = stream.Run(req.Context(), sseHeartbeatInterval)
}
