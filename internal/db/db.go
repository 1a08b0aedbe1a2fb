// Package db implements the exchange, stats and trading switch stores on
// PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/models"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate executes a schema script. The scripts are idempotent.
func (db *DB) Migrate(ctx context.Context, script string) error {
	if _, err := db.Pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// InTx runs fn in a read committed transaction
func (db *DB) InTx(ctx context.Context, fn func(tx exchange.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", exchange.ErrPersistence, err)
	}
	return nil
}

const orderColumns = `id, order_number, type, amount, remaining_amount, price, status, processed,
	cancellation_reason, phone_number, account_number, blockchain_address, bank_name, nickname,
	username, created_at, updated_at`

// orderID parses id for the UUID primary key. Anything that is not a UUID
// cannot name an order, so it is reported as not found rather than left
// to fail the server side cast.
func orderID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, exchange.ErrOrderNotFound
	}
	return parsed, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.Side,
		&o.Amount,
		&o.RemainingAmount,
		&o.Price,
		&o.Status,
		&o.Processed,
		&o.CancellationReason,
		&o.PhoneNumber,
		&o.AccountNumber,
		&o.BlockchainAddress,
		&o.BankName,
		&o.Nickname,
		&o.Username,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, exchange.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()
	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

type pgTx struct {
	tx pgx.Tx
}

// GetOrderForUpdate locks the order row until the transaction ends
func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error) {
	key, err := orderID(id)
	if err != nil {
		return nil, err
	}
	return scanOrder(t.tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", key))
}

// LockOrderDay takes a transaction scoped advisory lock for the day's order numbers
func (t *pgTx) LockOrderDay(ctx context.Context, day time.Time) error {
	key := "order_number:" + day.Format("20060102")
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return fmt.Errorf("failed to lock order day: %w", err)
	}
	return nil
}

func (t *pgTx) CountOrdersCreated(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM orders WHERE created_at >= $1 AND created_at < $2", from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		o.ID, o.OrderNumber, o.Side, o.Amount, o.RemainingAmount, o.Price, o.Status, o.Processed,
		o.CancellationReason, o.PhoneNumber, o.AccountNumber, o.BlockchainAddress, o.BankName,
		o.Nickname, o.Username, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, remaining_amount = $3, processed = $4, cancellation_reason = $5, updated_at = $6
		WHERE id = $1`,
		o.ID, o.Status, o.RemainingAmount, o.Processed, o.CancellationReason, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return exchange.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *models.Trade) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trades (
			id, buy_order_id, sell_order_id, amount, price,
			buyer_phone_number, buyer_account_number, buyer_blockchain_address,
			buyer_bank_name, buyer_nickname, buyer_username,
			seller_phone_number, seller_account_number, seller_blockchain_address,
			seller_bank_name, seller_nickname, seller_username,
			created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		tr.ID, tr.BuyOrderID, tr.SellOrderID, tr.Amount, tr.Price,
		tr.Buy.PhoneNumber, tr.Buy.AccountNumber, tr.Buy.BlockchainAddress,
		tr.Buy.BankName, tr.Buy.Nickname, tr.Buy.Username,
		tr.Sell.PhoneNumber, tr.Sell.AccountNumber, tr.Sell.BlockchainAddress,
		tr.Sell.BankName, tr.Sell.Nickname, tr.Sell.Username,
		tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}
