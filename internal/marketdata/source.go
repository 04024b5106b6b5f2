// Package marketdata defines where bars come from.
//
// Implementations live in sub-packages: mock (random walk), wsfeed
// (websocket bar server) and replay (SQLite archive).
package marketdata

import (
	"context"
	"errors"

	"pullback-engine/internal/model"
)

// ErrExhausted is returned by finite sources once every bar was delivered.
var ErrExhausted = errors.New("marketdata: source exhausted")

// Source produces bars in chronological order, one per call.
type Source interface {
	Next(ctx context.Context) (model.Bar, error)
}
