package grpcserver

import "time"

// Amounts and prices travel as decimal strings.

type Bucket struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type Fill struct {
	Maker    uint64 `json:"maker"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Quote    string `json:"quote"`
}

type Order struct {
	ID       uint64    `json:"id"`
	Side     string    `json:"side"`
	Price    string    `json:"price"`
	Amount   string    `json:"amount"`
	Filled   string    `json:"filled"`
	Proceeds Bucket    `json:"proceeds"`
	Owner    string    `json:"owner"`
	Created  time.Time `json:"created"`
}

type Level struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
	Count  int    `json:"count"`
}

type CreateOrderRequest struct {
	Market string `json:"market"`
	Owner  string `json:"owner"`
	Side   string `json:"side"`
	Funds  Bucket `json:"funds"`
	Limit  string `json:"limit"`
}

type CreateOrderResponse struct {
	// OrderID is zero when nothing rested.
	OrderID  uint64 `json:"order_id"`
	Proceeds Bucket `json:"proceeds"`
	Change   Bucket `json:"change"`
	Fills    []Fill `json:"fills"`
}

// OrderRequest addresses one order; used by cancel, claim and get.
type OrderRequest struct {
	Market  string `json:"market"`
	Owner   string `json:"owner,omitempty"`
	OrderID uint64 `json:"order_id"`
}

type SettlementResponse struct {
	Proceeds  Bucket `json:"proceeds"`
	Principal Bucket `json:"principal"`
	Order     Order  `json:"order"`
	Burned    bool   `json:"burned"`
}

type GetOrderResponse struct {
	Order Order `json:"order"`
}

type GetDepthRequest struct {
	Market string `json:"market"`
	Levels int    `json:"levels"`
}

type GetDepthResponse struct {
	Market string  `json:"market"`
	Seq    uint64  `json:"seq"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}
