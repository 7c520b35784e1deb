// Package cache provides a Redis read-through cache in front of the candle store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trogers1052/crypto-portfolio/internal/metrics"
	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// DefaultTTL is how long a cached candle series is served before re-reading the store.
const DefaultTTL = time.Hour

// CandleStore is the primary (PostgreSQL) candle storage
type CandleStore interface {
	Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error)
	IngestCandles(ctx context.Context, symbol string, period models.Period, candles []models.Candle) (int, error)
}

// CandleCache wraps a CandleStore with a Redis read-through cache. Ingestion goes to the
// primary store and invalidates the cached series; Redis failures fall back to the store.
type CandleCache struct {
	primary CandleStore
	rdb     *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCandleCache creates a cached wrapper around a candle store.
func NewCandleCache(primary CandleStore, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CandleCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CandleCache{primary: primary, rdb: rdb, ttl: ttl, logger: logger}
}

// Candles returns the cached series or reads it through from the store.
// Empty series are not cached so newly ingested data shows up immediately.
func (c *CandleCache) Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error) {
	key := candlesKey(symbol, period)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var candles []models.Candle
		if json.Unmarshal(data, &candles) == nil {
			metrics.CacheHits.Inc()
			return candles, nil
		}
	case err != redis.Nil:
		c.logger.Warn("candle cache read failed", "symbol", symbol, "period", period, "err", err)
	}
	metrics.CacheMisses.Inc()

	candles, err := c.primary.Candles(ctx, symbol, period)
	if err != nil {
		metrics.CandleFetches.WithLabelValues("database", "error").Inc()
		return nil, err
	}
	metrics.CandleFetches.WithLabelValues("database", "ok").Inc()

	if len(candles) > 0 {
		if data, err := json.Marshal(candles); err == nil {
			if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
				c.logger.Warn("candle cache write failed", "symbol", symbol, "period", period, "err", err)
			}
		}
	}
	return candles, nil
}

// IngestCandles writes through to the store and drops the cached series.
func (c *CandleCache) IngestCandles(ctx context.Context, symbol string, period models.Period, candles []models.Candle) (int, error) {
	n, err := c.primary.IngestCandles(ctx, symbol, period, candles)
	if err != nil {
		return 0, err
	}
	c.Invalidate(ctx, symbol, period)
	return n, nil
}

// Invalidate removes the cached series for symbol and period.
func (c *CandleCache) Invalidate(ctx context.Context, symbol string, period models.Period) {
	if err := c.rdb.Del(ctx, candlesKey(symbol, period)).Err(); err != nil {
		c.logger.Warn("candle cache invalidate failed", "symbol", symbol, "period", period, "err", err)
	}
}

func candlesKey(symbol string, period models.Period) string {
	return fmt.Sprintf("candles:%s:%s", symbol, period)
}
