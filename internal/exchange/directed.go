package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/models"
)

// RunDirectedMatch settles one named sell order against one named buy order
// at the buy price. Unlike the batch matcher it allows crossing prices and
// ignores the processed flag; both orders must still be in status 1.
// It returns the recorded trade, or nil when nothing was left to fill.
func (e *Exchange) RunDirectedMatch(ctx context.Context, sellOrderID, buyOrderID string) (*models.Trade, error) {
	sell, err := e.getOrder(ctx, sellOrderID)
	if err != nil {
		return nil, err
	}
	buy, err := e.getOrder(ctx, buyOrderID)
	if err != nil {
		return nil, err
	}

	if sell.Side != models.SideSell || buy.Side != models.SideBuy {
		return nil, fmt.Errorf("%w: expected a sell and a buy order, got %s and %s", ErrInvalidOrderState, sell.Side, buy.Side)
	}
	if sell.Status != models.StatusConfirmed || buy.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("%w: both orders must have deposit confirmed", ErrInvalidOrderState)
	}
	if buy.Price.LessThan(sell.Price) {
		return nil, fmt.Errorf("%w: buy %s < sell %s", ErrPriceConstraint, buy.Price, sell.Price)
	}

	fill := decimal.Min(buy.RemainingAmount, sell.RemainingAmount)
	s, err := e.settle(ctx, triggerDirected, buy.ID, sell.ID, fill, buy.Price, matchable)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	return s.Trade, nil
}

func (e *Exchange) getOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := e.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, persistence("get order "+id, err)
	}
	return o, nil
}
