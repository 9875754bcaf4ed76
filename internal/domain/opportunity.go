package domain

import "time"

// OpportunityKind classifies how an opportunity makes money.
type OpportunityKind string

const (
	// OpportunityTriangular is a cycle of trades on one exchange returning
	// to the settlement currency with a profit.
	OpportunityTriangular OpportunityKind = "triangular"
	// OpportunityCrossExchange buys a symbol cheaply on one exchange and
	// sells it at a higher price on another.
	OpportunityCrossExchange OpportunityKind = "cross_exchange"
)

// OrderSide indicates whether a leg buys or sells the base currency.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// TradeLeg is one planned order within an opportunity. Legs are ordered:
// each leg's output currency funds the next leg.
type TradeLeg struct {
	ExchangeID    string
	Pair          Pair
	Side          OrderSide
	PlannedAmount float64 // base units
	PlannedPrice  float64
}

// Notional returns the planned quote-currency value of the leg.
func (l TradeLeg) Notional() float64 { return l.PlannedAmount * l.PlannedPrice }

// ArbitrageOpportunity is a fee- and liquidity-adjusted trade plan produced by
// the scanner. It is immutable and consumed at most once by the coordinator.
type ArbitrageOpportunity struct {
	ID               string
	Kind             OpportunityKind
	Legs             []TradeLeg
	GrossProfitRatio float64 // before fees, e.g. 0.0066 for 0.66%
	NetProfitRatio   float64 // after fees and slippage allowance
	RequiredNotional float64 // settlement-currency value needed to run the plan
	Exchanges        []string
	DiscoveredAt     time.Time
}

// Expired reports whether the opportunity is older than maxAge at the given
// instant. Expired opportunities are discarded, never executed.
func (o ArbitrageOpportunity) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(o.DiscoveredAt) > maxAge
}
