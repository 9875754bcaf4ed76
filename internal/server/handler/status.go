package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the engine status for operator tooling. Degraded and
// LastScan are optional; modes without a gate or scan loop leave them nil.
type StatusHandler struct {
	Mode      string
	Exchanges []string
	StartedAt time.Time
	Degraded  func() []string
	LastScan  func() time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, exchanges []string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{Mode: mode, Exchanges: exchanges, StartedAt: startedAt}
}

// GetStatus responds with the engine mode, configured exchanges, uptime, and
// when available the breaker state and last scan time.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.Mode,
		"exchanges":      h.Exchanges,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.Degraded != nil {
		degraded := h.Degraded()
		if degraded == nil {
			degraded = []string{}
		}
		body["degraded_exchanges"] = degraded
	}
	if h.LastScan != nil {
		if t := h.LastScan(); !t.IsZero() {
			body["last_scan"] = t.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, body)
}
