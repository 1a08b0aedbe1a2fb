package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/kst"
	"github.com/xtrntr/otcexchange/internal/metrics"
	"github.com/xtrntr/otcexchange/internal/models"
	"go.uber.org/zap"
)

// NewOrder is the input of CreateOrder
type NewOrder struct {
	Side   models.Side
	Amount decimal.Decimal
	Price  decimal.Decimal
	models.Contact
}

// CreateOrder inserts a new order awaiting deposit. The order number is the
// KST date followed by a four digit sequence derived from the number of
// orders already created that day; the count and insert share a transaction
// that holds the day lock, so concurrent creations never get the same number.
func (e *Exchange) CreateOrder(ctx context.Context, in NewOrder) (*models.Order, error) {
	if !in.Side.Valid() {
		return nil, fmt.Errorf("%w: type must be BUY or SELL", ErrInvalidOrder)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}
	if !in.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}

	var order *models.Order
	err := e.store.InTx(ctx, func(tx Tx) error {
		now := e.now()
		from, to := kst.DayBounds(now)
		if err := tx.LockOrderDay(ctx, from); err != nil {
			return persistence("lock order day", err)
		}
		count, err := tx.CountOrdersCreated(ctx, from, to)
		if err != nil {
			return persistence("count orders", err)
		}

		order = &models.Order{
			ID:              uuid.NewString(),
			OrderNumber:     kst.OrderNumber(now, count+1),
			Side:            in.Side,
			Amount:          in.Amount,
			RemainingAmount: in.Amount,
			Price:           in.Price,
			Status:          models.StatusAwaitingDeposit,
			Contact:         in.Contact,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return persistence("insert order", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.WithLabelValues(string(order.Side)).Inc()
	e.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("side", string(order.Side)),
	)
	return order, nil
}

// UpdateOrderStatus applies an operator status update under row lock
func (e *Exchange) UpdateOrderStatus(ctx context.Context, id string, upd StatusUpdate) (*models.Order, error) {
	return e.mutateOrder(ctx, id, func(o models.Order) (models.Order, error) {
		return ApplyStatusUpdate(o, upd)
	})
}

// SetProcessed marks whether the order's deposit was confirmed for batch matching
func (e *Exchange) SetProcessed(ctx context.Context, id string, processed bool) (*models.Order, error) {
	return e.mutateOrder(ctx, id, func(o models.Order) (models.Order, error) {
		o.Processed = processed
		return o, nil
	})
}

func (e *Exchange) mutateOrder(ctx context.Context, id string, fn func(models.Order) (models.Order, error)) (*models.Order, error) {
	var updated models.Order
	err := e.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
			}
			return persistence("lock order "+id, err)
		}
		updated, err = fn(*o)
		if err != nil {
			return err
		}
		updated.UpdatedAt = e.now()
		if err := tx.UpdateOrder(ctx, &updated); err != nil {
			return persistence("update order "+id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("order updated",
		zap.String("order_id", id),
		zap.Int("status", int(updated.Status)),
		zap.Stringer("remaining_amount", updated.RemainingAmount),
		zap.Bool("processed", updated.Processed),
	)
	return &updated, nil
}

// GetOrder returns one order
func (e *Exchange) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return e.getOrder(ctx, id)
}

// ListOrders returns every order
func (e *Exchange) ListOrders(ctx context.Context) ([]models.Order, error) {
	return e.listOrders(ctx, OrderFilter{})
}

// ListTodayOrders returns the orders created during the current KST day
func (e *Exchange) ListTodayOrders(ctx context.Context) ([]models.Order, error) {
	from, to := kst.DayBounds(e.now())
	return e.listOrders(ctx, OrderFilter{CreatedFrom: from, CreatedBefore: to})
}

// ListOrdersByStatus returns the orders in the given status
func (e *Exchange) ListOrdersByStatus(ctx context.Context, status models.Status) ([]models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", ErrInvalidOrder, status)
	}
	return e.listOrders(ctx, OrderFilter{Status: &status})
}

// ListTrades returns every trade with the current quantities of both orders
func (e *Exchange) ListTrades(ctx context.Context) ([]models.TradeView, error) {
	trades, err := e.store.ListTrades(ctx)
	if err != nil {
		return nil, persistence("list trades", err)
	}
	return trades, nil
}

func (e *Exchange) listOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	orders, err := e.store.ListOrders(ctx, f)
	if err != nil {
		return nil, persistence("list orders", err)
	}
	return orders, nil
}
