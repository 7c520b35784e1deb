package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// MockCandleStore counts reads and keeps candles in memory
type MockCandleStore struct {
	mu          sync.Mutex
	candles     map[string][]models.Candle
	CandleCalls int
	IngestCalls int
	err         error
}

func NewMockCandleStore() *MockCandleStore {
	return &MockCandleStore{candles: make(map[string][]models.Candle)}
}

func (m *MockCandleStore) Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandleCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.candles[candlesKey(symbol, period)], nil
}

func (m *MockCandleStore) IngestCandles(ctx context.Context, symbol string, period models.Period, candles []models.Candle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IngestCalls++
	key := candlesKey(symbol, period)
	m.candles[key] = append(m.candles[key], candles...)
	return len(candles), nil
}

func testCandles() []models.Candle {
	return []models.Candle{{
		Symbol: "BTC",
		Period: models.PeriodDaily,
		Date:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Open:   decimal.NewFromInt(68000),
		High:   decimal.NewFromInt(69500),
		Low:    decimal.NewFromInt(67000),
		Close:  decimal.RequireFromString("69001.25"),
	}}
}

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCandleCache_RedisDownFallsBack(t *testing.T) {
	store := NewMockCandleStore()
	_, err := store.IngestCandles(context.Background(), "BTC", models.PeriodDaily, testCandles())
	require.NoError(t, err)

	rdb := unreachableClient()
	defer rdb.Close()
	c := NewCandleCache(store, rdb, time.Minute, nil)

	candles, err := c.Candles(context.Background(), "BTC", models.PeriodDaily)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 1, store.CandleCalls)

	_, err = c.IngestCandles(context.Background(), "BTC", models.PeriodDaily, testCandles())
	require.NoError(t, err, "invalidate failure must not fail ingestion")
}

func TestCandleCache_PrimaryError(t *testing.T) {
	store := NewMockCandleStore()
	store.err = errors.New("database down")
	rdb := unreachableClient()
	defer rdb.Close()

	_, err := NewCandleCache(store, rdb, 0, nil).Candles(context.Background(), "BTC", models.PeriodDaily)
	assert.Error(t, err)
}

func TestCandlesKey(t *testing.T) {
	assert.Equal(t, "candles:ETH:WEEKLY", candlesKey("ETH", models.PeriodWeekly))
}

func TestCandleCache_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	defer rdb.Close()

	t.Run("hit after miss", func(t *testing.T) {
		require.NoError(t, rdb.FlushAll(ctx).Err())
		store := NewMockCandleStore()
		_, _ = store.IngestCandles(ctx, "BTC", models.PeriodDaily, testCandles())
		c := NewCandleCache(store, rdb, time.Minute, nil)

		first, err := c.Candles(ctx, "BTC", models.PeriodDaily)
		require.NoError(t, err)
		second, err := c.Candles(ctx, "BTC", models.PeriodDaily)
		require.NoError(t, err)

		assert.Equal(t, 1, store.CandleCalls)
		require.Len(t, second, 1)
		assert.True(t, first[0].Close.Equal(second[0].Close))
		assert.True(t, first[0].Date.Equal(second[0].Date))

		ttl, err := rdb.TTL(ctx, "candles:BTC:DAILY").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("empty series is not cached", func(t *testing.T) {
		require.NoError(t, rdb.FlushAll(ctx).Err())
		store := NewMockCandleStore()
		c := NewCandleCache(store, rdb, time.Minute, nil)

		_, err := c.Candles(ctx, "ETH", models.PeriodWeekly)
		require.NoError(t, err)
		_, err = c.Candles(ctx, "ETH", models.PeriodWeekly)
		require.NoError(t, err)
		assert.Equal(t, 2, store.CandleCalls)
	})

	t.Run("ingest invalidates", func(t *testing.T) {
		require.NoError(t, rdb.FlushAll(ctx).Err())
		store := NewMockCandleStore()
		_, _ = store.IngestCandles(ctx, "BTC", models.PeriodDaily, testCandles())
		c := NewCandleCache(store, rdb, time.Minute, nil)

		_, err := c.Candles(ctx, "BTC", models.PeriodDaily)
		require.NoError(t, err)

		more := testCandles()
		more[0].Date = more[0].Date.AddDate(0, 0, 1)
		_, err = c.IngestCandles(ctx, "BTC", models.PeriodDaily, more)
		require.NoError(t, err)

		candles, err := c.Candles(ctx, "BTC", models.PeriodDaily)
		require.NoError(t, err)
		assert.Len(t, candles, 2)
		assert.Equal(t, 2, store.CandleCalls)
	})
}
