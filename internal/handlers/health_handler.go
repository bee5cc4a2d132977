package handlers

import (
	"net/http"

	"strategyd/internal/service"
)

type HealthHandler struct {
	sup *service.Supervisor
}

func NewHealthHandler(sup *service.Supervisor) *HealthHandler {
	return &HealthHandler{sup: sup}
}

type ProcessInfo struct {
	Pid     int  `json:"pid"`
	Running bool `json:"running"`
}

type HealthResponse struct {
	Status          string       `json:"status"`
	StrategyRunning bool         `json:"strategy_running"`
	ProcessInfo     *ProcessInfo `json:"process_info,omitempty"`
}

// Health reports service liveness plus the worker's state in one call, so
// the dashboard needs a single poll.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	pid, alive := h.sup.WorkerAlive()
	resp := HealthResponse{
		Status:          "healthy",
		StrategyRunning: alive,
	}
	if alive {
		resp.ProcessInfo = &ProcessInfo{Pid: pid, Running: true}
	}
	writeJSON(w, http.StatusOK, resp)
}
