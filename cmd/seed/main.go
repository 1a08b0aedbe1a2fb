package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/otcexchange/internal/config"
	"github.com/xtrntr/otcexchange/internal/db"
	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/kst"
	"github.com/xtrntr/otcexchange/internal/logging"
	"github.com/xtrntr/otcexchange/internal/models"
	"github.com/xtrntr/otcexchange/internal/stats"
)

type seedPair struct {
	daysAgo int
	amount  string
	price   string
}

var pairs = []seedPair{
	{daysAgo: 3, amount: "0.1", price: "1400"},
	{daysAgo: 2, amount: "0.2", price: "1410"},
	{daysAgo: 1, amount: "0.15", price: "1395"},
}

// Seed the database with settled demo trades and their daily stats
func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()
	ctx := context.Background()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	database, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// First check if we already have trades
	trades, err := database.ListTrades(ctx)
	if err != nil {
		log.Fatalf("Failed to check trades: %v", err)
	}
	if len(trades) > 0 {
		fmt.Printf("Database already has %d trades. No need to seed.\n", len(trades))
		os.Exit(0)
	}

	statsService := stats.NewService(database, stats.NewUpbitClient(cfg.Stats.UpbitURL), logger)
	for i, p := range pairs {
		day := kst.StartOfDay(kst.Now()).AddDate(0, 0, -p.daysAgo).Add(10 * time.Hour)
		clock := day
		ex, err := exchange.NewExchange(database, cfg.Engine(), logger, exchange.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}))
		if err != nil {
			log.Fatalf("Failed to create exchange: %v", err)
		}

		buy := placeConfirmed(ctx, ex, models.SideBuy, p, "trader1")
		sell := placeConfirmed(ctx, ex, models.SideSell, p, "trader2")
		trade, err := ex.RunDirectedMatch(ctx, sell.ID, buy.ID)
		if err != nil || trade == nil {
			log.Fatalf("Failed to create trade %d: %v", i+1, err)
		}

		stat, err := statsService.SaveDayStats(ctx, day)
		if err != nil {
			log.Fatalf("Failed to save stats for %s: %v", kst.DateString(day), err)
		}
		if stat == nil {
			fmt.Printf("BTC/KRW rate unavailable, skipped stats for %s\n", kst.DateString(day))
		}
	}

	fmt.Println("Successfully seeded the database with test trades!")
}

func placeConfirmed(ctx context.Context, ex *exchange.Exchange, side models.Side, p seedPair, user string) *models.Order {
	o, err := ex.CreateOrder(ctx, exchange.NewOrder{
		Side:   side,
		Amount: decimal.RequireFromString(p.amount),
		Price:  decimal.RequireFromString(p.price),
		Contact: models.Contact{
			PhoneNumber:       "010-0000-0000",
			AccountNumber:     "110-000-000000",
			BlockchainAddress: "0x0000000000000000000000000000000000000000",
			BankName:          "Shinhan",
			Nickname:          user,
			Username:          user,
		},
	})
	if err != nil {
		log.Fatalf("Failed to create %s order: %v", side, err)
	}
	status := models.StatusConfirmed
	if _, err := ex.UpdateOrderStatus(ctx, o.ID, exchange.StatusUpdate{Status: &status}); err != nil {
		log.Fatalf("Failed to confirm order %s: %v", o.OrderNumber, err)
	}
	return o
}
