// Package memstore is an in-process implementation of the exchange, stats
// and trading switch stores. Write transactions are serialized by a single
// mutex and staged until commit, so readers only ever see committed state.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/models"
)

// Store keeps orders, trades, daily stats and the trading switch in memory
type Store struct {
	txMu sync.Mutex // one write transaction at a time

	mu             sync.RWMutex // guards the committed state below
	orders         map[string]models.Order
	trades         []models.Trade
	stats          map[string]models.DailyStat
	tradingEnabled *bool

	faultMu sync.Mutex
	faults  map[string]error
}

// New returns an empty store
func New() *Store {
	return &Store{
		orders: make(map[string]models.Order),
		stats:  make(map[string]models.DailyStat),
		faults: make(map[string]error),
	}
}

// FailNext makes the next call of op ("InsertTrade", "UpdateOrder",
// "InsertOrder", "GetOrderForUpdate", "EligibleOrders") return err.
func (s *Store) FailNext(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err := s.faults[op]
	delete(s.faults, op)
	return err
}

// InTx runs fn against a staged view and applies it atomically when fn succeeds
func (s *Store) InTx(ctx context.Context, fn func(tx exchange.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s, orders: make(map[string]models.Order)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	s.trades = append(s.trades, tx.trades...)
	return nil
}

// EligibleOrders returns confirmed, processed orders of side, oldest first
func (s *Store) EligibleOrders(ctx context.Context, side models.Side) ([]models.Order, error) {
	if err := s.fault("EligibleOrders"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Order
	for _, o := range s.orders {
		if o.Side == side && o.Status == models.StatusConfirmed && o.Processed {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

// GetOrder returns the committed order
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, exchange.ErrOrderNotFound
	}
	return &o, nil
}

// ListOrders returns the orders matching f, oldest first
func (s *Store) ListOrders(ctx context.Context, f exchange.OrderFilter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Order{}
	for _, o := range s.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if !inWindow(o.CreatedAt, f.CreatedFrom, f.CreatedBefore) {
			continue
		}
		out = append(out, o)
	}
	sortOrders(out)
	return out, nil
}

// ListTrades returns all trades with both orders' current quantities
func (s *Store) ListTrades(ctx context.Context) ([]models.TradeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TradeView, 0, len(s.trades))
	for _, t := range s.trades {
		v := models.TradeView{Trade: t}
		if b, ok := s.orders[t.BuyOrderID]; ok {
			v.BuyAmount, v.BuyRemainingAmount = &b.Amount, &b.RemainingAmount
		}
		if sl, ok := s.orders[t.SellOrderID]; ok {
			v.SellAmount, v.SellRemainingAmount = &sl.Amount, &sl.RemainingAmount
		}
		out = append(out, v)
	}
	return out, nil
}

// TradesBetween returns trades created in [from, to), oldest first
func (s *Store) TradesBetween(ctx context.Context, from, to time.Time) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Trade
	for _, t := range s.trades {
		if inWindow(t.CreatedAt, from, to) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpsertDailyStat stores stat under its date
func (s *Store) UpsertDailyStat(ctx context.Context, stat models.DailyStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stat.Date] = stat
	return nil
}

// GetDailyStat returns the stat of date, or nil when none was saved
func (s *Store) GetDailyStat(ctx context.Context, date string) (*models.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.stats[date]
	if !ok {
		return nil, nil
	}
	return &stat, nil
}

// ListDailyStats returns stats ordered by date; limit <= 0 means no limit
func (s *Store) ListDailyStats(ctx context.Context, offset, limit int, newestFirst bool) ([]models.DailyStat, error) {
	s.mu.RLock()
	out := make([]models.DailyStat, 0, len(s.stats))
	for _, stat := range s.stats {
		out = append(out, stat)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].Date > out[j].Date
		}
		return out[i].Date < out[j].Date
	})
	if offset >= len(out) {
		return []models.DailyStat{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// TradingEnabled returns the switch and whether it was ever set
func (s *Store) TradingEnabled(ctx context.Context) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tradingEnabled == nil {
		return false, false, nil
	}
	return *s.tradingEnabled, true, nil
}

// SetTradingEnabled stores the switch
func (s *Store) SetTradingEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradingEnabled = &enabled
	return nil
}

type memTx struct {
	store  *Store
	orders map[string]models.Order // staged writes
	trades []models.Trade
}

func (tx *memTx) get(id string) (models.Order, bool) {
	if o, ok := tx.orders[id]; ok {
		return o, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	o, ok := tx.store.orders[id]
	return o, ok
}

func (tx *memTx) GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error) {
	if err := tx.store.fault("GetOrderForUpdate"); err != nil {
		return nil, err
	}
	o, ok := tx.get(id)
	if !ok {
		return nil, exchange.ErrOrderNotFound
	}
	return &o, nil
}

// LockOrderDay is a no-op: the transaction already holds the store-wide write lock
func (tx *memTx) LockOrderDay(ctx context.Context, day time.Time) error {
	return nil
}

func (tx *memTx) CountOrdersCreated(ctx context.Context, from, to time.Time) (int, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	n := 0
	for id, o := range tx.store.orders {
		if _, staged := tx.orders[id]; staged {
			continue
		}
		if inWindow(o.CreatedAt, from, to) {
			n++
		}
	}
	for _, o := range tx.orders {
		if inWindow(o.CreatedAt, from, to) {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	if err := tx.store.fault("InsertOrder"); err != nil {
		return err
	}
	tx.orders[o.ID] = *o
	return nil
}

func (tx *memTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	if err := tx.store.fault("UpdateOrder"); err != nil {
		return err
	}
	cur, ok := tx.get(o.ID)
	if !ok {
		return exchange.ErrOrderNotFound
	}
	cur.Status = o.Status
	cur.RemainingAmount = o.RemainingAmount
	cur.Processed = o.Processed
	cur.CancellationReason = o.CancellationReason
	cur.UpdatedAt = o.UpdatedAt
	tx.orders[o.ID] = cur
	return nil
}

func (tx *memTx) InsertTrade(ctx context.Context, t *models.Trade) error {
	if err := tx.store.fault("InsertTrade"); err != nil {
		return err
	}
	tx.trades = append(tx.trades, *t)
	return nil
}

func sortOrders(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].OrderNumber < orders[j].OrderNumber
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

func inWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
