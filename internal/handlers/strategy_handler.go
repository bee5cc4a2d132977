package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"strategyd/internal/metrics"
	"strategyd/internal/models"
	"strategyd/internal/service"
)

type StrategyHandler struct {
	sup    *service.Supervisor
	tailer *service.Tailer
}

func NewStrategyHandler(sup *service.Supervisor, tailer *service.Tailer) *StrategyHandler {
	return &StrategyHandler{sup: sup, tailer: tailer}
}

type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	Pid        int    `json:"pid,omitempty"`
	ReturnCode int    `json:"returncode,omitempty"`
}

type StartResponse struct {
	Message string             `json:"message"`
	Pid     int                `json:"pid"`
	Status  string             `json:"status"`
	Config  models.StartConfig `json:"config"`
}

type StopResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Output  string `json:"output"`
}

type LogsResponse struct {
	Logs []models.LogRecord `json:"logs"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encoding JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, err error, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}

// Root answers the service banner the dashboard pings on load.
func (h *StrategyHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Strategy control API is running",
	})
}

// Start launches the worker. POST carries the full dashboard configuration as
// JSON; the GET variant accepts a comma-separated pair list for convenience.
func (h *StrategyHandler) Start(w http.ResponseWriter, r *http.Request) {
	var cfg models.StartConfig
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err, "invalid start configuration")
			return
		}
	} else if pairs := r.URL.Query().Get("pairs"); pairs != "" {
		cfg.SelectedPairs = strings.Split(pairs, ",")
	}

	res, err := h.sup.Start(cfg)
	if err != nil {
		var already *service.AlreadyRunningError
		if errors.As(err, &already) {
			metrics.Starts.WithLabelValues("already_running").Inc()
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error: "Strategy already running",
				Pid:   already.Pid,
			})
			return
		}
		metrics.Starts.WithLabelValues("spawn_failed").Inc()
		writeError(w, http.StatusInternalServerError, err, "Failed to start strategy")
		return
	}

	metrics.Starts.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, StartResponse{
		Message: "Strategy started successfully",
		Pid:     res.Pid,
		Status:  "running",
		Config:  res.Config,
	})
}

func (h *StrategyHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.sup.Stop(); err != nil {
		switch {
		case errors.Is(err, service.ErrNotRunning):
			metrics.Stops.WithLabelValues("not_running").Inc()
			writeError(w, http.StatusConflict, err, "No active strategy running")
		case errors.Is(err, service.ErrStopInProgress):
			metrics.Stops.WithLabelValues("in_progress").Inc()
			writeError(w, http.StatusConflict, err, "Stop already in progress")
		default:
			metrics.Stops.WithLabelValues("failed").Inc()
			writeError(w, http.StatusInternalServerError, err, "Failed to stop strategy")
		}
		return
	}

	metrics.Stops.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, StopResponse{
		Message: "Strategy stopped successfully",
		Status:  "stopped",
	})
}

func (h *StrategyHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sup.Status())
}

func (h *StrategyHandler) Reset(w http.ResponseWriter, r *http.Request) {
	out, err := h.sup.Reset(r.Context())
	if err != nil {
		var resetErr *service.ResetError
		switch {
		case errors.Is(err, service.ErrResetBlocked):
			metrics.Resets.WithLabelValues("blocked").Inc()
			writeError(w, http.StatusConflict, err, "Stop the strategy before resetting")
		case errors.Is(err, service.ErrResetConfirmDisabled):
			metrics.Resets.WithLabelValues("confirm_disabled").Inc()
			writeError(w, http.StatusConflict, err, "Enable reset.auto_confirm to reset through the API")
		case errors.Is(err, service.ErrResetScriptMissing):
			metrics.Resets.WithLabelValues("script_missing").Inc()
			writeError(w, http.StatusInternalServerError, err, "Reset script not found")
		case errors.Is(err, service.ErrResetTimeout):
			metrics.Resets.WithLabelValues("timeout").Inc()
			writeError(w, http.StatusGatewayTimeout, err, "Reset took too long")
		case errors.As(err, &resetErr):
			metrics.Resets.WithLabelValues("failed").Inc()
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:      "Reset failed",
				Message:    resetErr.Output,
				ReturnCode: resetErr.ExitCode,
			})
		default:
			metrics.Resets.WithLabelValues("failed").Inc()
			writeError(w, http.StatusInternalServerError, err, "Unexpected error during reset")
		}
		return
	}

	metrics.Resets.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, ResetResponse{
		Success: true,
		Message: "Statistics reset successfully",
		Output:  out,
	})
}

// Logs always answers 200: the tailer degrades internally rather than
// surfacing failures.
func (h *StrategyHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, LogsResponse{Logs: h.tailer.Recent(limit)})
}
