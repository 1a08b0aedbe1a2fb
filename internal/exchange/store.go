package exchange

import (
	"context"
	"time"

	"github.com/xtrntr/otcexchange/internal/models"
)

// Store is the transactional persistence the engine runs against. It is
// passed explicitly to New so tests can substitute an in-memory store.
//
// Implementations return ErrOrderNotFound for unknown order ids.
type Store interface {
	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; fn's error is returned as is.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// EligibleOrders returns orders of the given side with status 1 and
	// processed set, oldest first. It reads outside any transaction.
	EligibleOrders(ctx context.Context, side models.Side) ([]models.Order, error)

	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	ListTrades(ctx context.Context) ([]models.TradeView, error)
}

// Tx is the set of row operations performed inside one transaction
type Tx interface {
	// GetOrderForUpdate reads the order and holds a row lock until the transaction ends
	GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error)
	// LockOrderDay serializes order-number allocation for the KST day starting at day
	LockOrderDay(ctx context.Context, day time.Time) error
	// CountOrdersCreated counts orders with from <= created_at < to
	CountOrdersCreated(ctx context.Context, from, to time.Time) (int, error)
	InsertOrder(ctx context.Context, o *models.Order) error
	// UpdateOrder writes the mutable columns: status, remaining amount,
	// processed, cancellation reason and updated_at
	UpdateOrder(ctx context.Context, o *models.Order) error
	InsertTrade(ctx context.Context, t *models.Trade) error
}

// OrderFilter narrows ListOrders. Zero values mean no constraint.
type OrderFilter struct {
	Status        *models.Status
	CreatedFrom   time.Time // inclusive
	CreatedBefore time.Time // exclusive
}

// Publisher receives settled trades after their transaction commits
type Publisher interface {
	PublishTrade(ctx context.Context, trade models.Trade) error
}

type nopPublisher struct{}

func (nopPublisher) PublishTrade(context.Context, models.Trade) error { return nil }
