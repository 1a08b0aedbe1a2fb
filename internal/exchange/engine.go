// Package exchange is the order matching and settlement engine: the order
// state machine, the settlement executor and the batch and directed matchers.
package exchange

import (
	"time"

	"github.com/xtrntr/otcexchange/internal/kst"
	"go.uber.org/zap"
)

// Exchange runs matching and order lifecycle operations against a Store.
// It holds no order state of its own; every decision is made from rows read
// inside the settlement transaction.
type Exchange struct {
	store     Store
	cfg       Config
	logger    *zap.Logger
	publisher Publisher
	now       func() time.Time
}

// Option customizes an Exchange
type Option func(*Exchange)

// WithPublisher sets the sink notified of committed trades
func WithPublisher(p Publisher) Option {
	return func(e *Exchange) { e.publisher = p }
}

// WithClock overrides the time source used for order numbers and trade timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Exchange) { e.now = now }
}

// NewExchange creates a new exchange
func NewExchange(store Store, cfg Config, logger *zap.Logger, opts ...Option) (*Exchange, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exchange{
		store:     store,
		cfg:       cfg,
		logger:    logger,
		publisher: nopPublisher{},
		now:       kst.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}
