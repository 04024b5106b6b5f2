// Package strategy turns indicator-enriched bars into trade signals.
//
// A Strategy reads the history after the indicator engine has folded the
// newest bar and returns a Decision. Strategies are pure: they keep no state
// between calls, so there is no cooldown and repeated signals are emitted
// every time the condition holds.
package strategy

import "pullback-engine/internal/model"

// Decision is the outcome of one strategy evaluation.
type Decision struct {
	StrategyName string       `json:"strategy_name"`
	Signal       model.Signal `json:"signal"`
	Symbol       string       `json:"symbol"`
	Price        float64      `json:"price"` // reference price (latest close)
	Reason       string       `json:"reason"`
	Bar          model.Bar    `json:"bar"`
}

// Strategy is the interface that trading strategies implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnHistory evaluates the newest bar of h.
	OnHistory(h *model.History) Decision
}
