package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/metrics"
	"github.com/xtrntr/otcexchange/internal/models"
	"go.uber.org/zap"
)

const (
	triggerBatch    = "batch"
	triggerDirected = "directed"
)

// Settlement is the outcome of one settlement transaction. Buy and Sell are
// the rows as read under lock, after the fill was applied when Trade is set.
type Settlement struct {
	Trade *models.Trade
	Buy   models.Order
	Sell  models.Order
}

// Settle atomically records a trade between buyID and sellID at price and
// decrements both orders.
//
// fill is the quantity the caller computed from its own, possibly stale,
// read. A non-positive fill is a no-op and returns (nil, nil). Otherwise the
// fill actually applied is recomputed from the remaining amounts read under
// row lock; when that is zero, or either order left status 1, nothing is
// written and ErrConcurrentModification is returned together with the fresh rows.
func (e *Exchange) Settle(ctx context.Context, buyID, sellID string, fill, price decimal.Decimal) (*Settlement, error) {
	return e.settle(ctx, triggerDirected, buyID, sellID, fill, price, matchable)
}

// settle runs the settlement transaction. eligible is re-evaluated on both
// rows under lock; a row failing it aborts with ErrConcurrentModification.
func (e *Exchange) settle(ctx context.Context, trigger, buyID, sellID string, fill, price decimal.Decimal, eligible func(*models.Order) bool) (*Settlement, error) {
	if !fill.IsPositive() {
		return nil, nil
	}

	var result Settlement
	err := e.store.InTx(ctx, func(tx Tx) error {
		buy, sell, err := lockPair(ctx, tx, buyID, sellID)
		if err != nil {
			return err
		}
		result.Buy, result.Sell = *buy, *sell

		if buy.Side != models.SideBuy || sell.Side != models.SideSell {
			return fmt.Errorf("%w: order %s is not a buy or order %s is not a sell", ErrInvalidOrderState, buyID, sellID)
		}
		if !eligible(buy) || !eligible(sell) {
			return ErrConcurrentModification
		}

		amount := decimal.Min(buy.RemainingAmount, sell.RemainingAmount)
		now := e.now()
		trade := &models.Trade{
			ID:          uuid.NewString(),
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			Amount:      amount,
			Price:       price,
			Buy:         buy.Contact,
			Sell:        sell.Contact,
			CreatedAt:   now,
		}
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return persistence("insert trade", err)
		}

		for _, o := range []*models.Order{buy, sell} {
			e.cfg.applyFill(o, amount)
			o.UpdatedAt = now
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return persistence("update order "+o.ID, err)
			}
		}

		result.Trade = trade
		result.Buy, result.Sell = *buy, *sell
		return nil
	})

	switch {
	case errors.Is(err, ErrConcurrentModification):
		metrics.SettlementConflicts.WithLabelValues(trigger).Inc()
		return &result, err
	case err != nil:
		return nil, err
	}

	metrics.Settlements.WithLabelValues(trigger).Inc()
	metrics.SettledQuantity.Add(result.Trade.Amount.InexactFloat64())
	e.logger.Info("settled",
		zap.String("trigger", trigger),
		zap.String("trade_id", result.Trade.ID),
		zap.String("buy_order_id", buyID),
		zap.String("sell_order_id", sellID),
		zap.Stringer("amount", result.Trade.Amount),
		zap.Stringer("price", price),
	)
	if err := e.publisher.PublishTrade(ctx, *result.Trade); err != nil {
		// the settlement is committed; delivery is best effort
		e.logger.Warn("failed to publish trade", zap.String("trade_id", result.Trade.ID), zap.Error(err))
	}
	return &result, nil
}

// lockPair locks both rows in id order so that two settlements touching the
// same orders cannot deadlock on each other.
func lockPair(ctx context.Context, tx Tx, buyID, sellID string) (*models.Order, *models.Order, error) {
	if buyID == sellID {
		return nil, nil, fmt.Errorf("%w: an order cannot match itself", ErrInvalidOrderState)
	}
	first, second := buyID, sellID
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*models.Order, 2)
	for _, id := range []string{first, second} {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return nil, nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
			}
			return nil, nil, persistence("lock order "+id, err)
		}
		locked[id] = o
	}
	return locked[buyID], locked[sellID], nil
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
