package polymarket

// Wire types for the CLOB websocket market channel and REST API.
// All prices and sizes travel as strings.

type wsSubscribeMessage struct {
	Type        string   `json:"type"`
	AssetIDs    []string `json:"assets_ids"`
	InitialDump bool     `json:"initial_dump"`
}

type wsEnvelope struct {
	EventType string `json:"event_type"`
}

type priceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookMessage is the full order book snapshot sent on subscribe and on
// significant book changes.
type bookMessage struct {
	EventType string       `json:"event_type"` // "book"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Bids      []priceLevel `json:"bids"`
	Asks      []priceLevel `json:"asks"`
	Timestamp string       `json:"timestamp"` // unix ms
	Hash      string       `json:"hash"`
}

type priceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"` // "BUY" or "SELL"
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// priceChangeMessage carries incremental level updates with the new best
// bid/ask attached to each change.
type priceChangeMessage struct {
	EventType    string        `json:"event_type"` // "price_change"
	Market       string        `json:"market"`
	PriceChanges []priceChange `json:"price_changes"`
	Timestamp    string        `json:"timestamp"`
}

// REST API types

type placeOrderRequest struct {
	Order     orderPayload `json:"order"`
	Owner     string       `json:"owner"`
	OrderType string       `json:"orderType"`
}

type orderPayload struct {
	TokenID    string `json:"tokenID"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	Side       string `json:"side"` // "BUY" or "SELL"
	Expiration string `json:"expiration"`
}

type placeOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

type cancelOrderRequest struct {
	OrderID string `json:"orderID"`
}

type cancelOrderResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

type openOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
}

type balanceAllowanceResponse struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

type apiError struct {
	Error string `json:"error"`
}
