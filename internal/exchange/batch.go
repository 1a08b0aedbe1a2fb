package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/metrics"
	"github.com/xtrntr/otcexchange/internal/models"
	"go.uber.org/zap"
)

// BatchResult summarizes one batch matching run
type BatchResult struct {
	Trades  []models.Trade
	Skipped int // pairings dropped because of concurrent modification
}

// RunBatchMatch pairs every eligible buy order, oldest first, with the
// oldest eligible sell order at exactly the same price until the buy is
// filled or no equal-price sell is left. Each pairing settles in its own
// transaction; a failure aborts the run but keeps earlier settlements.
func (e *Exchange) RunBatchMatch(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	buys, err := e.store.EligibleOrders(ctx, models.SideBuy)
	if err != nil {
		return result, persistence("load buy orders", err)
	}
	sells, err := e.store.EligibleOrders(ctx, models.SideSell)
	if err != nil {
		return result, persistence("load sell orders", err)
	}

	// buys this run partially filled; settling may have cleared their
	// processed flag, which must not stop the run from filling them further
	filled := make(map[string]bool)
	eligible := func(o *models.Order) bool {
		return matchable(o) && (o.Processed || filled[o.ID])
	}

	book := e.newSellBook(sells)
	for i := range buys {
		buy := &buys[i]
		for buy.RemainingAmount.IsPositive() {
			sell := book.first(buy.Price)
			if sell == nil {
				break
			}

			fill := decimal.Min(buy.RemainingAmount, sell.RemainingAmount)
			s, err := e.settle(ctx, triggerBatch, buy.ID, sell.ID, fill, buy.Price, eligible)
			if errors.Is(err, ErrConcurrentModification) {
				result.Skipped++
				e.logger.Info("skipping pairing modified concurrently",
					zap.String("buy_order_id", buy.ID),
					zap.String("sell_order_id", sell.ID),
				)
				// keep the sell for later buys unless it is the side that was consumed
				if !eligible(&s.Sell) {
					book.remove(sell)
				}
				if !eligible(&s.Buy) {
					break
				}
				buy.RemainingAmount = s.Buy.RemainingAmount
				sell.RemainingAmount = s.Sell.RemainingAmount
				continue
			}
			if err != nil {
				e.logger.Error("batch match aborted",
					zap.String("buy_order_id", buy.ID),
					zap.String("sell_order_id", sell.ID),
					zap.Int("settled", len(result.Trades)),
					zap.Error(err),
				)
				return result, err
			}

			// a sell is consumed by at most one buy per run
			book.remove(sell)
			if s == nil {
				continue
			}
			buy.RemainingAmount = s.Buy.RemainingAmount
			filled[buy.ID] = true
			result.Trades = append(result.Trades, *s.Trade)
		}
	}

	e.logger.Info("batch match finished",
		zap.Int("buy_orders", len(buys)),
		zap.Int("sell_orders", len(sells)),
		zap.Int("trades", len(result.Trades)),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// sellBook holds the sell candidates of one batch run in time priority
type sellBook interface {
	// first returns the oldest remaining sell priced exactly at price, or nil
	first(price decimal.Decimal) *models.Order
	remove(o *models.Order)
}

func (e *Exchange) newSellBook(sells []models.Order) sellBook {
	if e.cfg.Strategy == StrategyBucket {
		return newBucketBook(sells)
	}
	return newScanBook(sells)
}

// scanBook walks the whole candidate list for every lookup
type scanBook struct {
	orders []*models.Order
}

func newScanBook(sells []models.Order) *scanBook {
	b := &scanBook{orders: make([]*models.Order, 0, len(sells))}
	for i := range sells {
		b.orders = append(b.orders, &sells[i])
	}
	return b
}

func (b *scanBook) first(price decimal.Decimal) *models.Order {
	for _, o := range b.orders {
		if o.Price.Equal(price) {
			return o
		}
	}
	return nil
}

func (b *scanBook) remove(o *models.Order) {
	b.orders = removeOrder(b.orders, o)
}

// bucketBook keeps one FIFO queue per distinct price
type bucketBook struct {
	buckets map[string][]*models.Order
}

func newBucketBook(sells []models.Order) *bucketBook {
	b := &bucketBook{buckets: make(map[string][]*models.Order)}
	for i := range sells {
		key := priceKey(sells[i].Price)
		b.buckets[key] = append(b.buckets[key], &sells[i])
	}
	return b
}

func (b *bucketBook) first(price decimal.Decimal) *models.Order {
	if q := b.buckets[priceKey(price)]; len(q) > 0 {
		return q[0]
	}
	return nil
}

func (b *bucketBook) remove(o *models.Order) {
	key := priceKey(o.Price)
	if q := removeOrder(b.buckets[key], o); len(q) > 0 {
		b.buckets[key] = q
	} else {
		delete(b.buckets, key)
	}
}

// priceKey normalizes trailing zeros so 100 and 100.00 share a bucket
func priceKey(p decimal.Decimal) string {
	return p.String()
}

func removeOrder(orders []*models.Order, o *models.Order) []*models.Order {
	for i, c := range orders {
		if c == o {
			return append(orders[:i], orders[i+1:]...)
		}
	}
	return orders
}
