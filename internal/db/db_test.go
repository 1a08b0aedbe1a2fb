package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/models"
)

var testDB *DB

func TestMain(m *testing.M) {
	url := os.Getenv("EXCHANGE_TEST_DATABASE_URL")
	if url == "" {
		fmt.Fprintln(os.Stderr, "EXCHANGE_TEST_DATABASE_URL not set, skipping database tests")
		os.Exit(0)
	}

	var err error
	testDB, err = NewDB(context.Background(), url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer testDB.Close()

	migration, err := os.ReadFile("../../migrations/001_init.sql")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read migration: %v\n", err)
		os.Exit(1)
	}
	if err := testDB.Migrate(context.Background(), string(migration)); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to apply migration: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func reset(t *testing.T) {
	t.Helper()
	_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE trades, orders, daily_stats, trading_switch")
	if err != nil {
		t.Fatalf("Failed to clean up database: %v", err)
	}
}

func newExchange(t *testing.T) *exchange.Exchange {
	t.Helper()
	ex, err := exchange.NewExchange(testDB, exchange.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create exchange: %v", err)
	}
	return ex
}

func confirmedOrder(t *testing.T, ex *exchange.Exchange, side models.Side, amount, price int64) *models.Order {
	t.Helper()
	ctx := context.Background()
	o, err := ex.CreateOrder(ctx, exchange.NewOrder{
		Side:    side,
		Amount:  decimal.NewFromInt(amount),
		Price:   decimal.NewFromInt(price),
		Contact: models.Contact{Username: "user-" + string(side), BankName: "bank"},
	})
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	status := models.StatusConfirmed
	if _, err := ex.UpdateOrderStatus(ctx, o.ID, exchange.StatusUpdate{Status: &status}); err != nil {
		t.Fatalf("Failed to confirm order: %v", err)
	}
	o, err = ex.SetProcessed(ctx, o.ID, true)
	if err != nil {
		t.Fatalf("Failed to process order: %v", err)
	}
	return o
}

func TestDB_CreateOrder_Concurrent(t *testing.T) {
	reset(t)
	ex := newExchange(t)

	var wg sync.WaitGroup
	n := 10
	wg.Add(n)
	numbers := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			o, err := ex.CreateOrder(context.Background(), exchange.NewOrder{
				Side:   models.SideBuy,
				Amount: decimal.NewFromInt(1),
				Price:  decimal.NewFromInt(100),
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			numbers <- o.OrderNumber
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		if seen[num] {
			t.Errorf("duplicate order number %s", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct order numbers, got %d", n, len(seen))
	}
}

func TestDB_GetOrder(t *testing.T) {
	reset(t)
	ex := newExchange(t)
	created := confirmedOrder(t, ex, models.SideSell, 5, 100)

	tests := []struct {
		name      string
		id        string
		expectErr error
	}{
		{name: "Success", id: created.ID},
		{name: "NotFound", id: "00000000-0000-0000-0000-000000000000", expectErr: exchange.ErrOrderNotFound},
		{name: "MalformedID", id: "missing", expectErr: exchange.ErrOrderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := testDB.GetOrder(context.Background(), tt.id)
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Errorf("expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !o.Price.Equal(decimal.NewFromInt(100)) || o.Status != models.StatusConfirmed || !o.Processed {
				t.Errorf("unexpected order %+v", o)
			}
		})
	}
}

func TestDB_MalformedOrderID(t *testing.T) {
	reset(t)
	ex := newExchange(t)
	buy := confirmedOrder(t, ex, models.SideBuy, 10, 100)
	ctx := context.Background()

	if _, err := ex.RunDirectedMatch(ctx, "missing", buy.ID); !errors.Is(err, exchange.ErrOrderNotFound) {
		t.Errorf("directed match: expected %v, got %v", exchange.ErrOrderNotFound, err)
	}
	if _, err := ex.SetProcessed(ctx, "missing", true); !errors.Is(err, exchange.ErrOrderNotFound) {
		t.Errorf("set processed: expected %v, got %v", exchange.ErrOrderNotFound, err)
	}
	if _, err := ex.Settle(ctx, buy.ID, "not-a-uuid", decimal.NewFromInt(1), decimal.NewFromInt(100)); !errors.Is(err, exchange.ErrOrderNotFound) {
		t.Errorf("settle: expected %v, got %v", exchange.ErrOrderNotFound, err)
	}
}

func TestDB_DirectedMatch_Concurrent(t *testing.T) {
	reset(t)
	ex := newExchange(t)
	buy := confirmedOrder(t, ex, models.SideBuy, 10, 100)
	sell := confirmedOrder(t, ex, models.SideSell, 10, 100)

	var wg sync.WaitGroup
	n := 10
	wg.Add(n)
	successCount := 0
	mu := sync.Mutex{}

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			trade, err := ex.RunDirectedMatch(context.Background(), sell.ID, buy.ID)
			if err == nil && trade != nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successCount != 1 {
		t.Errorf("expected exactly 1 successful settlement, got %d", successCount)
	}

	trades, err := testDB.ListTrades(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.BuyRemainingAmount == nil || !tr.BuyRemainingAmount.IsZero() {
		t.Errorf("expected buy remaining 0, got %v", tr.BuyRemainingAmount)
	}
	if tr.Buy.Username != "user-BUY" || tr.Sell.Username != "user-SELL" {
		t.Errorf("contact snapshot not stored: %+v", tr.Trade)
	}
}

func TestDB_TradeSurvivesOrderDeletion(t *testing.T) {
	reset(t)
	ex := newExchange(t)
	ctx := context.Background()
	buy := confirmedOrder(t, ex, models.SideBuy, 10, 100)
	sell := confirmedOrder(t, ex, models.SideSell, 10, 100)
	if _, err := ex.RunDirectedMatch(ctx, sell.ID, buy.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := testDB.Pool.Exec(ctx, "DELETE FROM orders WHERE id = $1", sell.ID); err != nil {
		t.Fatalf("Failed to delete settled order: %v", err)
	}

	trades, err := testDB.ListTrades(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.SellOrderID != sell.ID || tr.SellAmount != nil || tr.SellRemainingAmount != nil {
		t.Errorf("expected dangling sell reference without quantities, got %+v", tr)
	}
	if tr.Sell.Username != "user-SELL" || tr.BuyAmount == nil {
		t.Errorf("expected snapshot and live buy quantities, got %+v", tr)
	}
}

func TestDB_BatchMatch(t *testing.T) {
	reset(t)
	ex := newExchange(t)
	buy := confirmedOrder(t, ex, models.SideBuy, 10, 100)
	confirmedOrder(t, ex, models.SideSell, 4, 100)
	confirmedOrder(t, ex, models.SideSell, 4, 101)

	res, err := ex.RunBatchMatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}

	o, err := testDB.GetOrder(context.Background(), buy.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.RemainingAmount.Equal(decimal.NewFromInt(6)) || o.Status != models.StatusConfirmed || o.Processed {
		t.Errorf("unexpected buy order after partial fill: %+v", o)
	}
}

func TestDB_ListOrders(t *testing.T) {
	reset(t)
	ex := newExchange(t)
	confirmedOrder(t, ex, models.SideBuy, 1, 100)
	if _, err := ex.CreateOrder(context.Background(), exchange.NewOrder{
		Side: models.SideSell, Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	confirmed := models.StatusConfirmed
	tests := []struct {
		name        string
		filter      exchange.OrderFilter
		expectCount int
	}{
		{name: "All", expectCount: 2},
		{name: "ByStatus", filter: exchange.OrderFilter{Status: &confirmed}, expectCount: 1},
		{name: "FutureWindow", filter: exchange.OrderFilter{CreatedFrom: time.Now().Add(time.Hour)}, expectCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := testDB.ListOrders(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(orders) != tt.expectCount {
				t.Errorf("expected %d orders, got %d", tt.expectCount, len(orders))
			}
		})
	}
}

func TestDB_DailyStats(t *testing.T) {
	reset(t)
	ctx := context.Background()
	btc := decimal.RequireFromString("0.0000012")
	for _, s := range []models.DailyStat{
		{Date: "2024-05-30", AveragePrice: decimal.NewFromInt(90)},
		{Date: "2024-05-31", AveragePrice: decimal.NewFromInt(95), OpenPriceBTC: &btc},
		{Date: "2024-05-31", AveragePrice: decimal.NewFromInt(100), OpenPriceBTC: &btc},
	} {
		if err := testDB.UpsertDailyStat(ctx, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	s, err := testDB.GetDailyStat(ctx, "2024-05-31")
	if err != nil || s == nil {
		t.Fatalf("expected stat, got %v, %v", s, err)
	}
	if !s.AveragePrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("upsert did not replace average: %s", s.AveragePrice)
	}
	if s.OpenPriceBTC == nil || !s.OpenPriceBTC.Equal(btc) || s.HighPriceBTC != nil {
		t.Errorf("unexpected BTC prices: %v %v", s.OpenPriceBTC, s.HighPriceBTC)
	}

	missing, err := testDB.GetDailyStat(ctx, "2000-01-01")
	if err != nil || missing != nil {
		t.Errorf("expected no stat, got %v, %v", missing, err)
	}

	page, err := testDB.ListDailyStats(ctx, 0, 1, true)
	if err != nil || len(page) != 1 || page[0].Date != "2024-05-31" {
		t.Errorf("unexpected newest page: %v, %v", page, err)
	}
}

func TestDB_TradingSwitch(t *testing.T) {
	reset(t)
	ctx := context.Background()

	if _, found, err := testDB.TradingEnabled(ctx); err != nil || found {
		t.Fatalf("expected no switch row, found=%v err=%v", found, err)
	}
	for _, want := range []bool{false, true} {
		if err := testDB.SetTradingEnabled(ctx, want); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, found, err := testDB.TradingEnabled(ctx)
		if err != nil || !found || got != want {
			t.Errorf("expected %v, got %v (found=%v err=%v)", want, got, found, err)
		}
	}
}
