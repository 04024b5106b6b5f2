// Package notification delivers alerts about signals and orders to external
// channels (log, webhook, Telegram).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pullback-engine/internal/logger"
	"pullback-engine/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	CycleID string     `json:"cycle_id,omitempty"` // loop cycle that raised the alert
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log, mapping the alert level
// to a log level.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Component("notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	if alert.CycleID != "" && logger.CycleID(ctx) == "" {
		ctx = logger.WithCycleID(ctx, alert.CycleID)
	}
	n.log.Log(ctx, level, alert.Title, append(logger.LogWithCycle(ctx), "message", alert.Message)...)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlert describes an actionable signal on bar b.
func SignalAlert(sig model.Signal, b model.Bar, reason string) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s", sig, b.Symbol),
		Message: fmt.Sprintf("%s\n%s", b, reason),
	}
}

// OrderAlert describes a filled order.
func OrderAlert(o model.Order) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("Order %s %s", o.Status, o.ID),
		Message: fmt.Sprintf("%s %d %s @ %.2f (slippage %.2f, signal %s)",
			o.Side, o.Qty, o.Symbol, o.Price, o.Slippage, o.Signal),
	}
}

// GatewayFailureAlert describes an order the gateway refused or failed.
func GatewayFailureAlert(sig model.Signal, symbol string, err error) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   fmt.Sprintf("Order failed %s", symbol),
		Message: fmt.Sprintf("signal %s: %v", sig, err),
	}
}
