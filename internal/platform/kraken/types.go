package kraken

import "encoding/json"

// --------------------------------------------------------------------------
// Kraken API DTOs
// --------------------------------------------------------------------------

// apiResponse is the envelope every Kraken endpoint uses. Result stays raw
// until the caller knows its shape.
type apiResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// tickerInfo is one pair entry in the public Ticker result. Array fields are
// [price, whole lot volume, lot volume] for a/b and [today, last 24h] for v.
type tickerInfo struct {
	Ask    []string `json:"a"`
	Bid    []string `json:"b"`
	Last   []string `json:"c"`
	Volume []string `json:"v"`
}

// depthInfo is one pair entry in the public Depth result. Each level is
// [price string, volume string, timestamp number].
type depthInfo struct {
	Asks [][]json.RawMessage `json:"asks"`
	Bids [][]json.RawMessage `json:"bids"`
}

// addOrderResult is the AddOrder response payload.
type addOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxIDs []string `json:"txid"`
}

// orderInfo is one transaction entry in the QueryOrders result.
type orderInfo struct {
	Status     string `json:"status"` // pending, open, closed, canceled, expired
	Volume     string `json:"vol"`
	VolumeExec string `json:"vol_exec"`
	Price      string `json:"price"` // average fill price
	Cost       string `json:"cost"`
	Fee        string `json:"fee"`
}
