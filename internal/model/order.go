package model

import "time"

// OrderKind is the order type sent to the gateway.
type OrderKind string

const (
	OrderMarket OrderKind = "MARKET"
	OrderLimit  OrderKind = "LIMIT"
)

// Order status values.
const (
	StatusFilled   = "FILLED"
	StatusRejected = "REJECTED"
)

// Order represents an order acknowledged by an execution gateway.
type Order struct {
	ID        string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Kind      OrderKind `json:"kind"`
	Side      Side      `json:"side"`
	Qty       int64     `json:"qty"`
	Price     float64   `json:"price"`    // fill price
	Slippage  float64   `json:"slippage"` // absolute, in price units
	Status    string    `json:"status"`
	Signal    Signal    `json:"signal,omitempty"`
	Realized  float64   `json:"realized_pnl,omitempty"` // P&L closed by a SELL
	CreatedAt time.Time `json:"created_at"`
}
