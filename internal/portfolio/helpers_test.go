package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// 2024-03-10 is a Sunday.
var testToday = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testToday }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func daysAgo(n int) time.Time { return models.Day(testToday).AddDate(0, 0, -n) }

func newTestStore() *MemoryStore {
	s := NewMemoryStore()
	s.AddAsset(models.Asset{Symbol: "BTC", Name: "Bitcoin"})
	s.AddAsset(models.Asset{Symbol: "ETH", Name: "Ethereum"})
	return s
}

// mockPublisher records published position events
type mockPublisher struct {
	mu     sync.Mutex
	events []*models.PositionEvent
	err    error
}

func (m *mockPublisher) PublishPositionEvent(ctx context.Context, e *models.PositionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType + ":" + e.Symbol
	}
	return out
}

// dailyCandles returns one candle per day ending today with constant prices.
func dailyCandles(symbol string, days int, open, high, low, close string) []models.Candle {
	var candles []models.Candle
	for i := days - 1; i >= 0; i-- {
		candles = append(candles, models.Candle{
			Symbol: symbol,
			Period: models.PeriodDaily,
			Date:   daysAgo(i),
			Open:   dec(open),
			High:   dec(high),
			Low:    dec(low),
			Close:  dec(close),
		})
	}
	return candles
}
