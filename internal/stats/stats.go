// Package stats aggregates settled trades into daily OHLC summaries and
// serves the today/yesterday price views.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/kst"
	"github.com/xtrntr/otcexchange/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidStat is returned for malformed uploaded stats
var ErrInvalidStat = errors.New("invalid daily stat")

// Store is the persistence the stats service reads trades from and writes summaries to
type Store interface {
	// TradesBetween returns trades created in [from, to), oldest first
	TradesBetween(ctx context.Context, from, to time.Time) ([]models.Trade, error)
	UpsertDailyStat(ctx context.Context, stat models.DailyStat) error
	// GetDailyStat returns nil without error when no stat exists for date
	GetDailyStat(ctx context.Context, date string) (*models.DailyStat, error)
	// ListDailyStats returns stats ordered by date; limit <= 0 means all
	ListDailyStats(ctx context.Context, offset, limit int, newestFirst bool) ([]models.DailyStat, error)
}

// Service computes and stores daily trade statistics
type Service struct {
	store    Store
	rates    RateSource
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a stats service. rates may be nil, in which case
// saving a day always fails for lack of a BTC rate.
func NewService(store Store, rates RateSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		rates:    rates,
		logger:   logger,
		validate: validator.New(),
		now:      kst.Now,
	}
}

// TodayStats compares today's live volume-weighted average with yesterday's stored one
type TodayStats struct {
	TodayAvgPrice     decimal.Decimal  `json:"todayAvgPrice"`
	YesterdayAvgPrice *decimal.Decimal `json:"yesterdayAvgPrice"`
	Difference        *decimal.Decimal `json:"difference"`
	PercentageChange  *decimal.Decimal `json:"percentageChange"`
}

// TodayMatch summarizes today's settled trades
type TodayMatch struct {
	TodayAvgPrice    decimal.Decimal `json:"todayAvgPrice"`
	HighestPrice     decimal.Decimal `json:"highestPrice"`
	LowestPrice      decimal.Decimal `json:"lowestPrice"`
	TotalMatchAmount decimal.Decimal `json:"totalMatchAmount"`
}

// SaveTodayStats stores the summary of the current KST day
func (s *Service) SaveTodayStats(ctx context.Context) (*models.DailyStat, error) {
	return s.SaveDayStats(ctx, s.now())
}

// SaveDayStats aggregates the trades of the KST day containing day and
// upserts the summary. It returns nil without storing anything when the
// BTC/KRW rate cannot be fetched.
func (s *Service) SaveDayStats(ctx context.Context, day time.Time) (*models.DailyStat, error) {
	from, to := kst.DayBounds(day)
	trades, err := s.store.TradesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	rate, err := s.rate(ctx)
	if err != nil {
		s.logger.Warn("skipping daily stats, BTC/KRW rate unavailable",
			zap.String("date", kst.DateString(day)), zap.Error(err))
		return nil, nil
	}

	stat := Aggregate(kst.DateString(day), trades, &rate)
	if err := s.store.UpsertDailyStat(ctx, stat); err != nil {
		return nil, fmt.Errorf("save daily stat %s: %w", stat.Date, err)
	}
	s.logger.Info("daily stats saved",
		zap.String("date", stat.Date),
		zap.Int("trades", len(trades)),
		zap.Stringer("average_price", stat.AveragePrice),
	)
	return &stat, nil
}

func (s *Service) rate(ctx context.Context) (decimal.Decimal, error) {
	if s.rates == nil {
		return decimal.Zero, errors.New("no rate source configured")
	}
	rate, err := s.rates.BTCKRW(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive BTC/KRW rate %s", rate)
	}
	return rate, nil
}

// DailyStats returns every stored stat, oldest first
func (s *Service) DailyStats(ctx context.Context) ([]models.DailyStat, error) {
	return s.store.ListDailyStats(ctx, 0, 0, false)
}

// PaginatedDailyStats returns one page of stored stats, newest first. page starts at 1.
func (s *Service) PaginatedDailyStats(ctx context.Context, page, limit int) ([]models.DailyStat, error) {
	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("%w: page and limit must be positive", ErrInvalidStat)
	}
	return s.store.ListDailyStats(ctx, (page-1)*limit, limit, true)
}

// TodayStats computes today's average live and compares it with yesterday's stored stat
func (s *Service) TodayStats(ctx context.Context) (*TodayStats, error) {
	now := s.now()
	from, to := kst.DayBounds(now)
	trades, err := s.store.TradesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	yesterday, err := s.store.GetDailyStat(ctx, kst.DateString(from.Add(-time.Hour)))
	if err != nil {
		return nil, fmt.Errorf("load yesterday stat: %w", err)
	}

	res := &TodayStats{}
	if yesterday != nil {
		avg := yesterday.AveragePrice
		res.YesterdayAvgPrice = &avg
	}
	if len(trades) == 0 {
		return res, nil
	}

	res.TodayAvgPrice = Aggregate(kst.DateString(now), trades, nil).AveragePrice
	if yesterday == nil {
		return res, nil
	}
	diff := res.TodayAvgPrice.Sub(yesterday.AveragePrice)
	res.Difference = &diff
	if !yesterday.AveragePrice.IsZero() {
		pct := diff.Div(yesterday.AveragePrice).Mul(decimal.NewFromInt(100))
		res.PercentageChange = &pct
	}
	return res, nil
}

// TodayMatch summarizes today's trades; all fields are zero when there are none
func (s *Service) TodayMatch(ctx context.Context) (*TodayMatch, error) {
	now := s.now()
	from, to := kst.DayBounds(now)
	trades, err := s.store.TradesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	stat := Aggregate(kst.DateString(now), trades, nil)
	return &TodayMatch{
		TodayAvgPrice:    stat.AveragePrice,
		HighestPrice:     stat.HighPrice,
		LowestPrice:      stat.LowPrice,
		TotalMatchAmount: stat.TotalAmount,
	}, nil
}

// UploadDailyStats validates and upserts externally prepared stats
func (s *Service) UploadDailyStats(ctx context.Context, stats []models.DailyStat) error {
	for i, stat := range stats {
		if err := s.validate.Struct(stat); err != nil {
			return fmt.Errorf("%w: entry %d: %w", ErrInvalidStat, i, err)
		}
	}
	for _, stat := range stats {
		if err := s.store.UpsertDailyStat(ctx, stat); err != nil {
			return fmt.Errorf("save daily stat %s: %w", stat.Date, err)
		}
	}
	s.logger.Info("daily stats uploaded", zap.Int("count", len(stats)))
	return nil
}
