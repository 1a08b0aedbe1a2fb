// Package switchboard holds the operator-controlled trading switch. Order
// creation and matching endpoints consult it before calling the engine.
package switchboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Store persists the single trading switch row
type Store interface {
	// TradingEnabled returns the stored value and whether a row exists
	TradingEnabled(ctx context.Context) (enabled bool, found bool, err error)
	SetTradingEnabled(ctx context.Context, enabled bool) error
}

// Switch reads and flips the trading-enabled flag
type Switch struct {
	store  Store
	logger *zap.Logger
	// initial is reported until the switch is first written
	initial bool
}

// New creates a switch that reports initial until an operator sets it
func New(store Store, initial bool, logger *zap.Logger) *Switch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Switch{store: store, initial: initial, logger: logger}
}

// Enabled reports whether trading is currently allowed
func (s *Switch) Enabled(ctx context.Context) (bool, error) {
	enabled, found, err := s.store.TradingEnabled(ctx)
	if err != nil {
		return false, fmt.Errorf("read trading switch: %w", err)
	}
	if !found {
		return s.initial, nil
	}
	return enabled, nil
}

// SetEnabled stores the flag, creating the row on first use
func (s *Switch) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.SetTradingEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("write trading switch: %w", err)
	}
	s.logger.Info("trading switch changed", zap.Bool("enabled", enabled))
	return nil
}
