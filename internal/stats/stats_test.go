package stats

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/kst"
	"github.com/xtrntr/otcexchange/internal/memstore"
	"github.com/xtrntr/otcexchange/internal/models"
)

type fixedRate struct {
	rate  decimal.Decimal
	err   error
	calls int
	done  chan struct{}
}

func (f *fixedRate) BTCKRW(context.Context) (decimal.Decimal, error) {
	f.calls++
	if f.done != nil {
		defer func() {
			select {
			case f.done <- struct{}{}:
			default:
			}
		}()
	}
	return f.rate, f.err
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(at time.Time, amount, price string) models.Trade {
	return models.Trade{ID: at.String(), Amount: d(amount), Price: d(price), CreatedAt: at}
}

func insertTrades(t *testing.T, store *memstore.Store, trades ...models.Trade) {
	t.Helper()
	err := store.InTx(context.Background(), func(tx exchange.Tx) error {
		for i := range trades {
			if err := tx.InsertTrade(context.Background(), &trades[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

var today = time.Date(2024, 6, 1, 15, 0, 0, 0, kst.Zone)

func newTestService(t *testing.T, rates RateSource) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	s := NewService(store, rates, nil)
	s.now = func() time.Time { return today }
	return s, store
}

func TestAggregate(t *testing.T) {
	base := time.Date(2024, 6, 1, 1, 0, 0, 0, kst.Zone)
	rate := d("50000000")

	tests := []struct {
		name   string
		trades []models.Trade
		rate   *decimal.Decimal
		want   models.DailyStat
	}{
		{
			name: "EmptyDay",
			want: models.DailyStat{Date: "2024-06-01"},
		},
		{
			name: "VolumeWeightedOHLC",
			trades: []models.Trade{
				trade(base, "1", "100"),
				trade(base.Add(time.Hour), "3", "120"),
				trade(base.Add(2*time.Hour), "1", "90"),
			},
			want: models.DailyStat{
				Date:         "2024-06-01",
				AveragePrice: d("110"),
				OpenPrice:    d("100"),
				HighPrice:    d("120"),
				LowPrice:     d("90"),
				ClosePrice:   d("90"),
				TotalAmount:  d("5"),
				TotalPrice:   d("550"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("2024-06-01", tt.trades, tt.rate)
			assert.Equal(t, tt.want.Date, got.Date)
			for name, pair := range map[string][2]decimal.Decimal{
				"average": {tt.want.AveragePrice, got.AveragePrice},
				"open":    {tt.want.OpenPrice, got.OpenPrice},
				"high":    {tt.want.HighPrice, got.HighPrice},
				"low":     {tt.want.LowPrice, got.LowPrice},
				"close":   {tt.want.ClosePrice, got.ClosePrice},
				"amount":  {tt.want.TotalAmount, got.TotalAmount},
				"total":   {tt.want.TotalPrice, got.TotalPrice},
			} {
				assert.True(t, pair[0].Equal(pair[1]), "%s: want %s got %s", name, pair[0], pair[1])
			}
			assert.Nil(t, got.OpenPriceBTC)
		})
	}

	t.Run("BTCPrices", func(t *testing.T) {
		got := Aggregate("2024-06-01", []models.Trade{
			trade(base, "1", "100000000"),
			trade(base.Add(time.Hour), "1", "25000000"),
		}, &rate)
		require.NotNil(t, got.OpenPriceBTC)
		assert.True(t, got.OpenPriceBTC.Equal(d("2")))
		assert.True(t, got.HighPriceBTC.Equal(d("2")))
		assert.True(t, got.LowPriceBTC.Equal(d("0.5")))
		assert.True(t, got.ClosePriceBTC.Equal(d("0.5")))
	})
}

func TestSaveTodayStats(t *testing.T) {
	rates := &fixedRate{rate: d("50000000")}
	s, store := newTestService(t, rates)
	insertTrades(t, store,
		trade(today.Add(-time.Hour), "2", "100"),
		trade(kst.StartOfDay(today).Add(-time.Second), "5", "999"), // yesterday
	)

	stat, err := s.SaveTodayStats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, "2024-06-01", stat.Date)
	assert.True(t, stat.TotalAmount.Equal(d("2")))

	stored, err := store.GetDailyStat(context.Background(), "2024-06-01")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.AveragePrice.Equal(d("100")))
}

func TestSaveTodayStats_NoRate(t *testing.T) {
	s, store := newTestService(t, &fixedRate{err: errors.New("upstream down")})
	insertTrades(t, store, trade(today, "1", "100"))

	stat, err := s.SaveTodayStats(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stat)

	stored, err := store.GetDailyStat(context.Background(), "2024-06-01")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestTodayStats(t *testing.T) {
	ctx := context.Background()

	t.Run("NoTradesNoYesterday", func(t *testing.T) {
		s, _ := newTestService(t, nil)
		got, err := s.TodayStats(ctx)
		require.NoError(t, err)
		assert.True(t, got.TodayAvgPrice.IsZero())
		assert.Nil(t, got.YesterdayAvgPrice)
		assert.Nil(t, got.Difference)
	})

	t.Run("ComparedWithYesterday", func(t *testing.T) {
		s, store := newTestService(t, nil)
		require.NoError(t, store.UpsertDailyStat(ctx, models.DailyStat{Date: "2024-05-31", AveragePrice: d("100")}))
		insertTrades(t, store, trade(today, "1", "110"))

		got, err := s.TodayStats(ctx)
		require.NoError(t, err)
		assert.True(t, got.TodayAvgPrice.Equal(d("110")))
		require.NotNil(t, got.Difference)
		assert.True(t, got.Difference.Equal(d("10")))
		require.NotNil(t, got.PercentageChange)
		assert.True(t, got.PercentageChange.Equal(d("10")))
	})

	t.Run("NoTradesWithYesterday", func(t *testing.T) {
		s, store := newTestService(t, nil)
		require.NoError(t, store.UpsertDailyStat(ctx, models.DailyStat{Date: "2024-05-31", AveragePrice: d("100")}))
		got, err := s.TodayStats(ctx)
		require.NoError(t, err)
		require.NotNil(t, got.YesterdayAvgPrice)
		assert.True(t, got.YesterdayAvgPrice.Equal(d("100")))
		assert.Nil(t, got.PercentageChange)
	})
}

func TestTodayMatch(t *testing.T) {
	s, store := newTestService(t, nil)
	insertTrades(t, store,
		trade(today.Add(-2*time.Hour), "1", "100"),
		trade(today.Add(-time.Hour), "1", "200"),
	)
	got, err := s.TodayMatch(context.Background())
	require.NoError(t, err)
	assert.True(t, got.TodayAvgPrice.Equal(d("150")))
	assert.True(t, got.HighestPrice.Equal(d("200")))
	assert.True(t, got.LowestPrice.Equal(d("100")))
	assert.True(t, got.TotalMatchAmount.Equal(d("2")))
}

func TestPaginatedDailyStats(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t, nil)
	for _, date := range []string{"2024-05-28", "2024-05-29", "2024-05-30", "2024-05-31"} {
		require.NoError(t, store.UpsertDailyStat(ctx, models.DailyStat{Date: date}))
	}

	page, err := s.PaginatedDailyStats(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "2024-05-28", page[0].Date)

	all, err := s.DailyStats(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2024-05-28", all[0].Date)

	_, err = s.PaginatedDailyStats(ctx, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidStat)
}

func TestUploadDailyStats(t *testing.T) {
	ctx := context.Background()
	s, store := newTestService(t, nil)

	err := s.UploadDailyStats(ctx, []models.DailyStat{{Date: "2024-05-01"}, {Date: "May 2"}})
	assert.ErrorIs(t, err, ErrInvalidStat)
	stored, err := store.GetDailyStat(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Nil(t, stored, "nothing is written when any entry is invalid")

	require.NoError(t, s.UploadDailyStats(ctx, []models.DailyStat{{Date: "2024-05-01", AveragePrice: d("7")}}))
	stored, err = store.GetDailyStat(ctx, "2024-05-01")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.AveragePrice.Equal(d("7")))
}

func TestRunDaily(t *testing.T) {
	rates := &fixedRate{rate: d("1"), done: make(chan struct{}, 1)}
	s, store := newTestService(t, rates)
	s.now = func() time.Time { return kst.NextMidnight(today).Add(-20 * time.Millisecond) }
	insertTrades(t, store, trade(today, "1", "100"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunDaily(ctx)

	select {
	case <-rates.done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not run")
	}
	cancel()

	require.Eventually(t, func() bool {
		stat, err := store.GetDailyStat(context.Background(), "2024-06-01")
		return err == nil && stat != nil
	}, time.Second, 10*time.Millisecond)
}

func TestUpbitClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"market":"KRW-BTC","trade_price":91234000.5}]`))
	}))
	defer srv.Close()

	rate, err := NewUpbitClient(srv.URL).BTCKRW(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(d("91234000.5")))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer failing.Close()
	_, err = NewUpbitClient(failing.URL).BTCKRW(context.Background())
	assert.Error(t, err)
}

func TestCachedRates(t *testing.T) {
	addr := os.Getenv("EXCHANGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EXCHANGE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Del(ctx, rateCacheKey).Err())

	source := &fixedRate{rate: d("90000000")}
	cached := NewCachedRates(source, client, time.Minute, nil)
	for i := 0; i < 3; i++ {
		rate, err := cached.BTCKRW(ctx)
		require.NoError(t, err)
		assert.True(t, rate.Equal(d("90000000")))
	}
	assert.Equal(t, 1, source.calls)
}
