package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/models"
)

// StatusUpdate is an operator request to change an order. Nil fields are left alone.
type StatusUpdate struct {
	Status             *models.Status
	CancellationReason *string
	RemainingAmount    *decimal.Decimal
}

// ApplyStatusUpdate returns o with upd applied according to the order state
// machine. Status and remaining amount changes are computed together so the
// caller can write them in a single statement.
//
// Resetting to awaiting deposit re-arms the full amount unless an explicit
// remaining amount is supplied, in which case the explicit value wins.
func ApplyStatusUpdate(o models.Order, upd StatusUpdate) (models.Order, error) {
	if upd.Status != nil {
		s := *upd.Status
		if !s.Valid() {
			return o, fmt.Errorf("%w: unknown status %d", ErrInvalidOrderState, s)
		}
		if s == models.StatusAwaitingDeposit {
			o.RemainingAmount = o.Amount
		}
		o.Status = s
	}

	if upd.RemainingAmount != nil {
		o.RemainingAmount = *upd.RemainingAmount
	}

	if upd.CancellationReason != nil && *upd.CancellationReason != "" {
		reason := *upd.CancellationReason
		o.CancellationReason = &reason
	}

	if o.RemainingAmount.IsNegative() || o.RemainingAmount.GreaterThan(o.Amount) {
		return o, fmt.Errorf("%w: remaining amount %s outside [0, %s]", ErrInvalidOrderState, o.RemainingAmount, o.Amount)
	}
	// matched with nothing settled is never a valid resting state
	if o.Status == models.StatusMatched && o.RemainingAmount.Equal(o.Amount) {
		return o, fmt.Errorf("%w: matched order must have a settled quantity", ErrInvalidOrderState)
	}
	return o, nil
}

// settledStatus is the status an order takes after a fill leaves it with remaining
func (c Config) settledStatus(remaining decimal.Decimal) models.Status {
	if remaining.IsZero() {
		return c.TerminalStatus
	}
	return models.StatusConfirmed
}

// applyFill decrements o by fill and moves it along the state machine
func (c Config) applyFill(o *models.Order, fill decimal.Decimal) {
	o.RemainingAmount = o.RemainingAmount.Sub(fill)
	o.Status = c.settledStatus(o.RemainingAmount)
	if c.ClearProcessedOnPartial && o.RemainingAmount.IsPositive() {
		o.Processed = false
	}
}

// matchable reports whether o can take part in a settlement right now
func matchable(o *models.Order) bool {
	return o.Status == models.StatusConfirmed && o.RemainingAmount.IsPositive()
}
