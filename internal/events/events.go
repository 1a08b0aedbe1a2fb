// Package events delivers settled trades to downstream consumers: a Kafka
// topic and the websocket trade feed.
package events

import (
	"context"
	"errors"

	"github.com/xtrntr/otcexchange/internal/metrics"
	"github.com/xtrntr/otcexchange/internal/models"
	"go.uber.org/zap"
)

// TypeTradeSettled is the event type of a committed settlement
const TypeTradeSettled = "trade.settled"

// Event is the envelope written to every sink
type Event struct {
	Type  string       `json:"type"`
	Trade models.Trade `json:"trade"`
}

// Sink is one delivery target
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Fanout publishes each trade to all sinks. A failing sink does not stop
// delivery to the others.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewFanout creates a publisher over sinks
func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

// PublishTrade sends a trade.settled event to every sink
func (f *Fanout) PublishTrade(ctx context.Context, trade models.Trade) error {
	ev := Event{Type: TypeTradeSettled, Trade: trade}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Send(ctx, ev); err != nil {
			metrics.PublishFailures.WithLabelValues(s.Name()).Inc()
			f.logger.Warn("trade event delivery failed",
				zap.String("sink", s.Name()),
				zap.String("trade_id", trade.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
