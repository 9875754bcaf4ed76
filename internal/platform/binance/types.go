package binance

// --------------------------------------------------------------------------
// Binance API DTOs
// --------------------------------------------------------------------------

// bookTickerResponse is the best bid/ask for one symbol.
type bookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

// depthResponse is the partial orderbook for one symbol. Levels are
// [price, quantity] string pairs.
type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// orderResponse is the FULL order placement response.
type orderResponse struct {
	Symbol              string      `json:"symbol"`
	OrderID             int64       `json:"orderId"`
	ClientOrderID       string      `json:"clientOrderId"`
	TransactTime        int64       `json:"transactTime"`
	Price               string      `json:"price"`
	OrigQty             string      `json:"origQty"`
	ExecutedQty         string      `json:"executedQty"`
	CummulativeQuoteQty string      `json:"cummulativeQuoteQty"`
	Status              string      `json:"status"` // NEW, FILLED, PARTIALLY_FILLED, EXPIRED, ...
	Type                string      `json:"type"`
	Side                string      `json:"side"`
	Fills               []orderFill `json:"fills"`
}

// orderFill is one trade within an order placement response.
type orderFill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

// accountResponse is the signed account endpoint response.
type accountResponse struct {
	Balances []accountBalance `json:"balances"`
}

// accountBalance is one asset entry in the account response.
type accountBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// apiError is the Binance error envelope.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}
