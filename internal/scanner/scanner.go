// Package scanner searches the rate graph for profitable trade plans. The
// scan is pure and fully deterministic: given the same snapshot and policy it
// returns the same ranked sequence, with no randomness anywhere.
package scanner

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/openarb/arbd/internal/domain"
	"github.com/openarb/arbd/internal/graph"
)

const maxPathLengthCap = 5

// Policy is the slice of the risk gate the scanner consults.
type Policy interface {
	MinProfitRatio() float64
	SlippageRatio() float64
	UtilizationFraction() float64
	MinNotional() float64
	MaxNotional() float64
	Degraded(exchangeID string) bool
	AllowScan(opp domain.ArbitrageOpportunity) bool
}

// Config holds the scanner's search parameters.
type Config struct {
	// SettlementCurrency anchors triangular cycles, e.g. "USDT".
	SettlementCurrency string
	// MaxPathLength bounds triangular cycle length in legs (3..5).
	MaxPathLength int
	// TransferCostRatio is the assumed settlement cost of moving funds
	// between exchanges, applied once per cross-exchange opportunity.
	TransferCostRatio float64
}

// Scanner finds triangular and cross-exchange opportunities.
type Scanner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Scanner. MaxPathLength is clamped to [3, 5].
func New(cfg Config, logger *slog.Logger) *Scanner {
	if cfg.MaxPathLength < 3 {
		cfg.MaxPathLength = 3
	}
	if cfg.MaxPathLength > maxPathLengthCap {
		cfg.MaxPathLength = maxPathLengthCap
	}
	return &Scanner{cfg: cfg, logger: logger.With(slog.String("component", "scanner"))}
}

// Scan returns all opportunities passing the policy, ranked by net profit
// ratio descending, then required notional ascending, then exchange count,
// then id. A malformed quote skips only the candidates needing it.
func (s *Scanner) Scan(g *graph.RateGraph, policy Policy) []domain.ArbitrageOpportunity {
	var opps []domain.ArbitrageOpportunity
	opps = append(opps, s.scanTriangular(g, policy)...)
	opps = append(opps, s.scanCrossExchange(g, policy)...)

	sort.Slice(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.NetProfitRatio != b.NetProfitRatio {
			return a.NetProfitRatio > b.NetProfitRatio
		}
		if a.RequiredNotional != b.RequiredNotional {
			return a.RequiredNotional < b.RequiredNotional
		}
		if len(a.Exchanges) != len(b.Exchanges) {
			return len(a.Exchanges) < len(b.Exchanges)
		}
		return a.ID < b.ID
	})
	return opps
}

// oppID derives a deterministic id from the opportunity's content so that two
// scans over the same snapshot produce identical results.
func oppID(kind domain.OpportunityKind, legs []domain.TradeLeg, snap domain.MarketSnapshot) string {
	desc := string(kind) + "|" + snap.TakenAt.UTC().Format("20060102T150405.000000000")
	for _, l := range legs {
		desc += fmt.Sprintf("|%s:%s:%s", l.ExchangeID, l.Pair.Symbol(), l.Side)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(desc)).String()
}
