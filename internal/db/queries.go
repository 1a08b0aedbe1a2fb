package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/models"
)

// EligibleOrders retrieves confirmed, processed orders of side in time priority
func (db *DB) EligibleOrders(ctx context.Context, side models.Side) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE type = $1 AND status = 1 AND processed
		ORDER BY created_at ASC, order_number ASC`, side)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible orders: %w", err)
	}
	return collectOrders(rows)
}

// GetOrder retrieves one order
func (db *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	key, err := orderID(id)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(db.Pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", key))
	if err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, err
}

// ListOrders retrieves the orders matching f, oldest first
func (db *DB) ListOrders(ctx context.Context, f exchange.OrderFilter) ([]models.Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= $%d", f.CreatedFrom)
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at < $%d", f.CreatedBefore)
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, order_number ASC"

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

const tradeColumns = `t.id, t.buy_order_id, t.sell_order_id, t.amount, t.price,
	t.buyer_phone_number, t.buyer_account_number, t.buyer_blockchain_address,
	t.buyer_bank_name, t.buyer_nickname, t.buyer_username,
	t.seller_phone_number, t.seller_account_number, t.seller_blockchain_address,
	t.seller_bank_name, t.seller_nickname, t.seller_username,
	t.created_at`

func tradeDest(tr *models.Trade) []any {
	return []any{
		&tr.ID, &tr.BuyOrderID, &tr.SellOrderID, &tr.Amount, &tr.Price,
		&tr.Buy.PhoneNumber, &tr.Buy.AccountNumber, &tr.Buy.BlockchainAddress,
		&tr.Buy.BankName, &tr.Buy.Nickname, &tr.Buy.Username,
		&tr.Sell.PhoneNumber, &tr.Sell.AccountNumber, &tr.Sell.BlockchainAddress,
		&tr.Sell.BankName, &tr.Sell.Nickname, &tr.Sell.Username,
		&tr.CreatedAt,
	}
}

// ListTrades retrieves every trade with both orders' current quantities
func (db *DB) ListTrades(ctx context.Context) ([]models.TradeView, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+tradeColumns+`, b.amount, b.remaining_amount, s.amount, s.remaining_amount
		FROM trades t
		LEFT JOIN orders b ON b.id = t.buy_order_id
		LEFT JOIN orders s ON s.id = t.sell_order_id
		ORDER BY t.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	trades := []models.TradeView{}
	for rows.Next() {
		var (
			v                      models.TradeView
			bAmt, bRem, sAmt, sRem decimal.NullDecimal
		)
		dest := append(tradeDest(&v.Trade), &bAmt, &bRem, &sAmt, &sRem)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		v.BuyAmount, v.BuyRemainingAmount = nullable(bAmt), nullable(bRem)
		v.SellAmount, v.SellRemainingAmount = nullable(sAmt), nullable(sRem)
		trades = append(trades, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}

// TradesBetween retrieves trades created in [from, to), oldest first
func (db *DB) TradesBetween(ctx context.Context, from, to time.Time) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades t
		WHERE t.created_at >= $1 AND t.created_at < $2
		ORDER BY t.created_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		var tr models.Trade
		if err := rows.Scan(tradeDest(&tr)...); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

const statColumns = `date, average_price, open_price, high_price, low_price, close_price,
	total_amount, total_price, open_price_btc, high_price_btc, low_price_btc, close_price_btc`

func scanStat(row pgx.Row) (*models.DailyStat, error) {
	var (
		s                      models.DailyStat
		oBTC, hBTC, lBTC, cBTC decimal.NullDecimal
	)
	err := row.Scan(&s.Date, &s.AveragePrice, &s.OpenPrice, &s.HighPrice, &s.LowPrice, &s.ClosePrice,
		&s.TotalAmount, &s.TotalPrice, &oBTC, &hBTC, &lBTC, &cBTC)
	if err != nil {
		return nil, err
	}
	s.OpenPriceBTC, s.HighPriceBTC = nullable(oBTC), nullable(hBTC)
	s.LowPriceBTC, s.ClosePriceBTC = nullable(lBTC), nullable(cBTC)
	return &s, nil
}

// UpsertDailyStat inserts or replaces the stat of its date
func (db *DB) UpsertDailyStat(ctx context.Context, s models.DailyStat) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO daily_stats (`+statColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (date) DO UPDATE SET
			average_price = EXCLUDED.average_price,
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			total_amount = EXCLUDED.total_amount,
			total_price = EXCLUDED.total_price,
			open_price_btc = EXCLUDED.open_price_btc,
			high_price_btc = EXCLUDED.high_price_btc,
			low_price_btc = EXCLUDED.low_price_btc,
			close_price_btc = EXCLUDED.close_price_btc`,
		s.Date, s.AveragePrice, s.OpenPrice, s.HighPrice, s.LowPrice, s.ClosePrice,
		s.TotalAmount, s.TotalPrice,
		nullDecimal(s.OpenPriceBTC), nullDecimal(s.HighPriceBTC), nullDecimal(s.LowPriceBTC), nullDecimal(s.ClosePriceBTC))
	if err != nil {
		return fmt.Errorf("failed to save daily stat: %w", err)
	}
	return nil
}

// GetDailyStat retrieves the stat of date, or nil when none exists
func (db *DB) GetDailyStat(ctx context.Context, date string) (*models.DailyStat, error) {
	s, err := scanStat(db.Pool.QueryRow(ctx, "SELECT "+statColumns+" FROM daily_stats WHERE date = $1", date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stat: %w", err)
	}
	return s, nil
}

// ListDailyStats retrieves stats ordered by date; limit <= 0 means all
func (db *DB) ListDailyStats(ctx context.Context, offset, limit int, newestFirst bool) ([]models.DailyStat, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	query := "SELECT " + statColumns + " FROM daily_stats ORDER BY date " + order + " OFFSET $1"
	args := []any{offset}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily stats: %w", err)
	}
	defer rows.Close()

	stats := []models.DailyStat{}
	for rows.Next() {
		s, err := scanStat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, *s)
	}
	return stats, rows.Err()
}

// TradingEnabled reads the trading switch row
func (db *DB) TradingEnabled(ctx context.Context) (bool, bool, error) {
	var enabled bool
	err := db.Pool.QueryRow(ctx, "SELECT enabled FROM trading_switch WHERE id = 1").Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to get trading switch: %w", err)
	}
	return enabled, true, nil
}

// SetTradingEnabled writes the trading switch row, creating it on first use
func (db *DB) SetTradingEnabled(ctx context.Context, enabled bool) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO trading_switch (id, enabled, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		enabled)
	if err != nil {
		return fmt.Errorf("failed to set trading switch: %w", err)
	}
	return nil
}
