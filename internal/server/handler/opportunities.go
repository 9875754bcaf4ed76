package handler

import (
	"net/http"

	"github.com/openarb/arbd/internal/domain"
)

// OpportunitySource exposes the result of the most recent scan.
type OpportunitySource interface {
	Latest() []domain.ArbitrageOpportunity
}

// OpportunitiesHandler serves the latest ranked opportunities.
type OpportunitiesHandler struct {
	source OpportunitySource
}

// NewOpportunitiesHandler creates an OpportunitiesHandler.
func NewOpportunitiesHandler(source OpportunitySource) *OpportunitiesHandler {
	return &OpportunitiesHandler{source: source}
}

// ListOpportunities responds with the most recent scan's ranked output.
// GET /api/opportunities
func (h *OpportunitiesHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps := h.source.Latest()

	out := make([]map[string]any, 0, len(opps))
	for _, o := range opps {
		legs := make([]map[string]any, 0, len(o.Legs))
		for _, l := range o.Legs {
			legs = append(legs, map[string]any{
				"exchange":       l.ExchangeID,
				"symbol":         l.Pair.Symbol(),
				"side":           l.Side,
				"planned_amount": l.PlannedAmount,
				"planned_price":  l.PlannedPrice,
			})
		}
		out = append(out, map[string]any{
			"id":                 o.ID,
			"kind":               o.Kind,
			"legs":               legs,
			"gross_profit_ratio": o.GrossProfitRatio,
			"net_profit_ratio":   o.NetProfitRatio,
			"required_notional":  o.RequiredNotional,
			"exchanges":          o.Exchanges,
			"discovered_at":      o.DiscoveredAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": out})
}
