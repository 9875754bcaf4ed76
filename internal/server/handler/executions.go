package handler

import (
	"log/slog"
	"net/http"

	"github.com/openarb/arbd/internal/domain"
)

// ExecutionsHandler serves the persisted execution history.
type ExecutionsHandler struct {
	store  domain.ExecutionStore
	logger *slog.Logger
}

// NewExecutionsHandler creates an ExecutionsHandler over the execution store.
func NewExecutionsHandler(store domain.ExecutionStore, logger *slog.Logger) *ExecutionsHandler {
	return &ExecutionsHandler{store: store, logger: logger}
}

// ListRecent responds with the most recent execution records.
// GET /api/executions?limit=50
func (h *ExecutionsHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.LoadRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("execution listing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "execution listing failed")
		return
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		legs := make([]map[string]any, 0, len(rec.Legs))
		for _, l := range rec.Legs {
			legs = append(legs, map[string]any{
				"exchange":        l.ExchangeID,
				"symbol":          l.Pair.Symbol(),
				"side":            l.Side,
				"planned_amount":  l.PlannedAmount,
				"planned_price":   l.PlannedPrice,
				"executed_amount": l.ExecutedAmount,
				"executed_price":  l.ExecutedPrice,
				"order_id":        l.OrderID,
				"status":          l.Status,
			})
		}
		out = append(out, map[string]any{
			"id":              rec.ID,
			"opportunity_id":  rec.OpportunityID,
			"kind":            rec.Kind,
			"legs":            legs,
			"outcome":         rec.Outcome,
			"realized_profit": rec.RealizedProfit,
			"unwind_required": rec.UnwindRequired,
			"reason":          rec.Reason,
			"started_at":      rec.StartedAt,
			"completed_at":    rec.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": out})
}
