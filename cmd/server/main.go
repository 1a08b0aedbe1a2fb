package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/xtrntr/otcexchange/internal/api"
	"github.com/xtrntr/otcexchange/internal/auth"
	"github.com/xtrntr/otcexchange/internal/config"
	"github.com/xtrntr/otcexchange/internal/db"
	"github.com/xtrntr/otcexchange/internal/events"
	"github.com/xtrntr/otcexchange/internal/exchange"
	"github.com/xtrntr/otcexchange/internal/logging"
	"github.com/xtrntr/otcexchange/internal/memstore"
	"github.com/xtrntr/otcexchange/internal/stats"
	"github.com/xtrntr/otcexchange/internal/switchboard"
	"go.uber.org/zap"
)

// store is what every service needs from persistence
type store interface {
	exchange.Store
	stats.Store
	switchboard.Store
}

// Main entry point: loads config, wires the engine and its collaborators, serves HTTP
func main() {
	configFile := flag.String("config", "", "path to config file (default ./config.yaml if present)")
	migrations := flag.String("migrate", "", "schema script to apply on startup")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *migrations, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, migrations string, logger *zap.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, migrations, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Trade feed: websocket always, Kafka when configured
	hub := events.NewHub(logger)
	sinks := []events.Sink{hub}
	if cfg.Kafka.Enabled {
		kafkaSink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		logger.Info("publishing trades to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	ex, err := exchange.NewExchange(st, cfg.Engine(), logger.Named("exchange"),
		exchange.WithPublisher(events.NewFanout(logger, sinks...)))
	if err != nil {
		return err
	}

	authService, err := auth.NewAuthService(cfg.Auth.AdminCode, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	var rates stats.RateSource = stats.NewUpbitClient(cfg.Stats.UpbitURL)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate cache will fall through", zap.Error(err))
		}
		rates = stats.NewCachedRates(rates, rdb, cfg.Redis.RateTTL, logger)
	}
	statsService := stats.NewService(st, rates, logger.Named("stats"))
	if cfg.Stats.ScheduleEnabled {
		go statsService.RunDaily(ctx)
	}

	sw := switchboard.New(st, cfg.Trading.EnabledByDefault, logger)
	handler := api.NewHandler(ex, authService, sw, statsService, logger.Named("api"))
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TradeFeed:      hub,
		Metrics:        promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Database.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, migrations string, logger *zap.Logger) (store, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		return memstore.New(), func() {}, nil
	}

	database, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if migrations != "" {
		script, err := os.ReadFile(migrations)
		if err != nil {
			database.Close()
			return nil, nil, err
		}
		if err := database.Migrate(ctx, string(script)); err != nil {
			database.Close()
			return nil, nil, err
		}
		logger.Info("schema applied", zap.String("file", migrations))
	}
	return database, database.Close, nil
}
