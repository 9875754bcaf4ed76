package coinbase

import "encoding/json"

// --------------------------------------------------------------------------
// Coinbase Exchange API DTOs
// --------------------------------------------------------------------------

// bookResponse is the orderbook for one product. Levels are
// [price, size, num-orders] with price and size as JSON strings and the
// order count as a number.
type bookResponse struct {
	Sequence int64               `json:"sequence"`
	Bids     [][]json.RawMessage `json:"bids"`
	Asks     [][]json.RawMessage `json:"asks"`
}

// orderResponse covers both order placement and the order status endpoint.
type orderResponse struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Status        string `json:"status"` // pending, open, done
	FilledSize    string `json:"filled_size"`
	ExecutedValue string `json:"executed_value"`
	DoneReason    string `json:"done_reason"` // filled, canceled
}

// accountEntry is one currency account in the accounts listing.
type accountEntry struct {
	ID        string `json:"id"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	Available string `json:"available"`
	Hold      string `json:"hold"`
}

// apiError is the Coinbase error envelope.
type apiError struct {
	Message string `json:"message"`
}
