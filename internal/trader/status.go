package trader

import (
	"maps"
	"slices"
	"time"

	"pullback-engine/internal/model"
	"pullback-engine/internal/portfolio"
)

// Status is a point-in-time view of the loop for the operator API and
// the backtest summary.
type Status struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	Period   int    `json:"period"`

	Cycles    int64  `json:"cycles"`
	Errors    int64  `json:"errors"`
	LastError string `json:"last_error,omitempty"`

	HistoryTotal   int `json:"history_total"`
	HistoryLen     int `json:"history_len"`
	HistoryRetain  int `json:"history_retain"` // 0 = unbounded
	HistoryEvicted int `json:"history_evicted"`

	LastBar    *model.Bar             `json:"last_bar,omitempty"`
	LastSignal model.Signal           `json:"last_signal,omitempty"`
	LastReason string                 `json:"last_reason,omitempty"`
	Signals    map[model.Signal]int64 `json:"signals"`

	OrderCount int64                 `json:"order_count"`
	Orders     []model.Order         `json:"orders"` // most recent, oldest first
	Positions  []model.Position      `json:"positions"`
	PnL        *portfolio.PnLSummary `json:"pnl,omitempty"`

	MarketOpen bool      `json:"market_open"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Status returns a deep copy of the current status. Safe for concurrent use.
func (r *Runner) Status() Status {
	r.mu.RLock()
	s := r.status
	s.Signals = maps.Clone(r.status.Signals)
	s.Orders = slices.Clone(r.status.Orders)
	if r.status.LastBar != nil {
		b := *r.status.LastBar
		s.LastBar = &b
	}
	r.mu.RUnlock()

	s.Positions = r.deps.Gateway.Positions()
	if r.deps.Book != nil {
		pnl := r.deps.Book.Summary()
		s.PnL = &pnl
	}
	return s
}
