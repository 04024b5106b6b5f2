package model

// Position represents a tracked net position for one symbol.
type Position struct {
	Symbol    string  `json:"symbol"`
	Qty       int64   `json:"qty"`
	AvgPrice  float64 `json:"avg_price"`
	LastPrice float64 `json:"last_price"`
}

// UnrealizedPnL computes unrealized profit/loss at LastPrice.
func (p *Position) UnrealizedPnL() float64 {
	return (p.LastPrice - p.AvgPrice) * float64(p.Qty)
}
