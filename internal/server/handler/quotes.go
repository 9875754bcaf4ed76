package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/openarb/arbd/internal/domain"
)

// QuotesHandler serves the latest cached quotes.
type QuotesHandler struct {
	cache  domain.QuoteCache
	logger *slog.Logger
}

// NewQuotesHandler creates a QuotesHandler over the quote cache.
func NewQuotesHandler(cache domain.QuoteCache, logger *slog.Logger) *QuotesHandler {
	return &QuotesHandler{cache: cache, logger: logger}
}

// ListQuotes responds with every cached quote for one exchange, or a single
// quote when the symbol query parameter is present.
// GET /api/quotes/{exchange}?symbol=BTC/USDT
func (h *QuotesHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	exchangeID := r.PathValue("exchange")
	if exchangeID == "" {
		writeError(w, http.StatusBadRequest, "exchange is required")
		return
	}

	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		q, err := h.cache.GetQuote(r.Context(), exchangeID, symbol)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no quote for "+exchangeID+":"+symbol)
				return
			}
			h.logger.Error("quote lookup failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "quote lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, quoteDTO(q))
		return
	}

	quotes, err := h.cache.GetQuotes(r.Context(), exchangeID)
	if err != nil {
		h.logger.Error("quote listing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "quote listing failed")
		return
	}

	out := make([]map[string]any, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, quoteDTO(q))
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchange": exchangeID, "quotes": out})
}

func quoteDTO(q domain.PriceQuote) map[string]any {
	return map[string]any{
		"exchange":    q.ExchangeID,
		"symbol":      q.Pair.Symbol(),
		"bid":         q.Bid,
		"ask":         q.Ask,
		"bid_volume":  q.BidVolume,
		"ask_volume":  q.AskVolume,
		"observed_at": q.ObservedAt,
	}
}
