package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultUpbitURL is the public KRW-BTC ticker endpoint
const DefaultUpbitURL = "https://api.upbit.com/v1/ticker?markets=KRW-BTC"

// RateSource returns the current BTC price in KRW
type RateSource interface {
	BTCKRW(ctx context.Context) (decimal.Decimal, error)
}

type upbitTicker struct {
	Market     string          `json:"market"`
	TradePrice decimal.Decimal `json:"trade_price"`
}

// UpbitClient fetches the BTC/KRW rate from the Upbit ticker API
type UpbitClient struct {
	url    string
	client *http.Client
}

// NewUpbitClient creates a client for the ticker at url
func NewUpbitClient(url string) *UpbitClient {
	if url == "" {
		url = DefaultUpbitURL
	}
	return &UpbitClient{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

// BTCKRW returns the last trade price of the KRW-BTC market
func (c *UpbitClient) BTCKRW(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch ticker: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch ticker: unexpected status %d", resp.StatusCode)
	}

	var tickers []upbitTicker
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}
	if len(tickers) == 0 {
		return decimal.Zero, errors.New("empty ticker response")
	}
	return tickers[0].TradePrice, nil
}

const rateCacheKey = "otc:rate:btc-krw"

// CachedRates keeps the last fetched rate in Redis for ttl so the stats
// endpoints do not hit the upstream API on every call. Redis failures fall
// through to the upstream source.
type CachedRates struct {
	source RateSource
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRates wraps source with a Redis cache
func NewCachedRates(source RateSource, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedRates {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRates{source: source, client: client, ttl: ttl, logger: logger}
}

// BTCKRW returns the cached rate, fetching and storing it on a miss
func (c *CachedRates) BTCKRW(ctx context.Context) (decimal.Decimal, error) {
	cached, err := c.client.Get(ctx, rateCacheKey).Result()
	switch {
	case err == nil:
		if rate, perr := decimal.NewFromString(cached); perr == nil {
			return rate, nil
		}
		c.logger.Warn("discarding malformed cached rate", zap.String("value", cached))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("rate cache unavailable", zap.Error(err))
	}

	rate, err := c.source.BTCKRW(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.client.Set(ctx, rateCacheKey, rate.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache rate", zap.Error(err))
	}
	return rate, nil
}
