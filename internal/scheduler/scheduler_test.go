package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/crypto-portfolio/internal/models"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
)

var sweepTime = time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)

type fakeSource struct {
	candles map[string][]models.Candle
	assets  []*models.Asset
	fail    map[string]bool
	calls   []string
}

func (f *fakeSource) Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error) {
	f.calls = append(f.calls, symbol+"/"+string(period))
	if f.fail[symbol] {
		return nil, errors.New("provider down")
	}
	return f.candles[symbol], nil
}

func (f *fakeSource) Assets(ctx context.Context) ([]*models.Asset, error) {
	if f.assets == nil {
		return nil, errors.New("provider down")
	}
	return f.assets, nil
}

type fakeSink struct {
	ingested map[string]int
}

func (f *fakeSink) IngestCandles(ctx context.Context, symbol string, period models.Period, candles []models.Candle) (int, error) {
	if f.ingested == nil {
		f.ingested = make(map[string]int)
	}
	f.ingested[symbol+"/"+string(period)] += len(candles)
	return len(candles), nil
}

type fakeStore struct {
	symbols   []string
	positions []*models.Position
	closes    map[string]decimal.Decimal
	alerts    []*models.AlertHistory
	sent      []int64
	assets    []*models.Asset
	prunedAt  time.Time
}

func (f *fakeStore) HeldSymbols(ctx context.Context) ([]string, error) { return f.symbols, nil }

func (f *fakeStore) UpsertAssets(ctx context.Context, assets []*models.Asset) (int, int, error) {
	f.assets = append(f.assets, assets...)
	return len(assets), 0, nil
}

func (f *fakeStore) ListAllPositions(ctx context.Context) ([]*models.Position, error) {
	return f.positions, nil
}

func (f *fakeStore) LatestClose(ctx context.Context, symbol string, period models.Period) (decimal.Decimal, time.Time, error) {
	c, ok := f.closes[symbol]
	if !ok {
		return decimal.Zero, time.Time{}, fmt.Errorf("no candles: %w", portfolio.ErrPriceDataUnavailable)
	}
	return c, sweepTime, nil
}

func (f *fakeStore) AlertTriggeredSince(ctx context.Context, owner, symbol, ruleType string, since time.Time) (bool, error) {
	for _, a := range f.alerts {
		if a.Owner == owner && a.Symbol == symbol && a.RuleType == ruleType && !a.TriggeredAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateAlertHistory(ctx context.Context, h *models.AlertHistory) error {
	h.ID = int64(len(f.alerts) + 1)
	f.alerts = append(f.alerts, h)
	return nil
}

func (f *fakeStore) MarkNotificationSent(ctx context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeStore) DeleteAlertHistoryOlderThan(ctx context.Context, date time.Time) (int64, error) {
	f.prunedAt = date
	return 0, nil
}

type fakePublisher struct {
	events []*models.AlertEvent
	err    error
}

func (f *fakePublisher) PublishAlertEvent(ctx context.Context, event *models.AlertEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func newScheduler(source *fakeSource, sink *fakeSink, store *fakeStore, pub *fakePublisher) *Scheduler {
	var publisher AlertPublisher
	if pub != nil {
		publisher = pub
	}
	s := New(context.Background(), source, sink, store, publisher, "USD", nil)
	s.now = func() time.Time { return sweepTime }
	return s
}

func position(owner, symbol, low, high string) *models.Position {
	return &models.Position{
		Owner:          owner,
		Symbol:         symbol,
		Quantity:       decimal.NewFromInt(1),
		LowPriceLevel:  decimal.RequireFromString(low),
		HighPriceLevel: decimal.RequireFromString(high),
	}
}

func TestRefreshCandles(t *testing.T) {
	candle := models.Candle{Date: sweepTime, Close: decimal.NewFromInt(1)}
	source := &fakeSource{candles: map[string][]models.Candle{
		"BTC": {candle, candle},
		"ETH": {candle},
	}}
	sink := &fakeSink{}
	store := &fakeStore{symbols: []string{"BTC", "ETH", "USD", "XYZ"}}

	s := newScheduler(source, sink, store, nil)
	require.NoError(t, s.RefreshCandles(context.Background(), models.PeriodWeekly))

	assert.Equal(t, []string{"BTC/WEEKLY", "ETH/WEEKLY", "XYZ/WEEKLY"}, source.calls)
	assert.Equal(t, map[string]int{"BTC/WEEKLY": 2, "ETH/WEEKLY": 1}, sink.ingested)
}

func TestRefreshCandles_ContinuesPastFailures(t *testing.T) {
	source := &fakeSource{
		candles: map[string][]models.Candle{"ETH": {{Date: sweepTime}}},
		fail:    map[string]bool{"BTC": true},
	}
	sink := &fakeSink{}
	store := &fakeStore{symbols: []string{"BTC", "ETH"}}

	s := newScheduler(source, sink, store, nil)
	err := s.RefreshCandles(context.Background(), models.PeriodDaily)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Equal(t, 1, sink.ingested["ETH/DAILY"])
}

func TestRefreshAssets(t *testing.T) {
	source := &fakeSource{assets: []*models.Asset{{Symbol: "BTC", Name: "Bitcoin"}}}
	store := &fakeStore{}

	s := newScheduler(source, &fakeSink{}, store, nil)
	require.NoError(t, s.RefreshAssets(context.Background()))
	assert.Len(t, store.assets, 1)

	s.source = &fakeSource{}
	assert.Error(t, s.RefreshAssets(context.Background()))
}

func TestSweepAlerts(t *testing.T) {
	store := &fakeStore{
		positions: []*models.Position{
			position("alice", "BTC", "90", "110"),
			position("bob", "BTC", "50", "70"),
			position("alice", "ETH", "1000", "2000"),
			position("alice", "DOGE", "1", "2"),
			position("alice", "USD", "1", "1"),
			position("carol", "ETH", "0", "0"),
		},
		closes: map[string]decimal.Decimal{
			"BTC": decimal.NewFromInt(80),
			"ETH": decimal.NewFromInt(2500),
		},
	}
	pub := &fakePublisher{}

	s := newScheduler(&fakeSource{}, &fakeSink{}, store, pub)
	require.NoError(t, s.SweepAlerts(context.Background()))

	require.Len(t, store.alerts, 3)
	assert.Equal(t, "alice", store.alerts[0].Owner)
	assert.Equal(t, models.RuleTypeBelowLow, store.alerts[0].RuleType)
	assert.Equal(t, "bob", store.alerts[1].Owner)
	assert.Equal(t, models.RuleTypeAboveHigh, store.alerts[1].RuleType)
	assert.Equal(t, "ETH", store.alerts[2].Symbol)
	assert.Equal(t, models.RuleTypeAboveHigh, store.alerts[2].RuleType)

	require.Len(t, pub.events, 3)
	assert.Equal(t, models.EventThresholdCrossed, pub.events[0].EventType)
	assert.NotEmpty(t, pub.events[0].EventID)
	assert.Equal(t, []int64{1, 2, 3}, store.sent)
	assert.Equal(t, sweepTime.Add(-alertRetention), store.prunedAt)
}

func TestSweepAlerts_Cooldown(t *testing.T) {
	store := &fakeStore{
		positions: []*models.Position{position("alice", "BTC", "90", "110")},
		closes:    map[string]decimal.Decimal{"BTC": decimal.NewFromInt(80)},
	}
	pub := &fakePublisher{}
	s := newScheduler(&fakeSource{}, &fakeSink{}, store, pub)

	require.NoError(t, s.SweepAlerts(context.Background()))
	require.NoError(t, s.SweepAlerts(context.Background()))
	assert.Len(t, store.alerts, 1)

	s.now = func() time.Time { return sweepTime.Add(alertCooldown + time.Minute) }
	require.NoError(t, s.SweepAlerts(context.Background()))
	assert.Len(t, store.alerts, 2)
	assert.Len(t, pub.events, 2)
}

func TestSweepAlerts_PublishFailureKeepsAlert(t *testing.T) {
	store := &fakeStore{
		positions: []*models.Position{position("alice", "BTC", "90", "110")},
		closes:    map[string]decimal.Decimal{"BTC": decimal.NewFromInt(120)},
	}
	s := newScheduler(&fakeSource{}, &fakeSink{}, store, &fakePublisher{err: errors.New("broker down")})

	require.NoError(t, s.SweepAlerts(context.Background()))
	assert.Len(t, store.alerts, 1)
	assert.Empty(t, store.sent)
}

func TestRegisterAll(t *testing.T) {
	s := newScheduler(&fakeSource{}, &fakeSink{}, &fakeStore{}, nil)
	require.NoError(t, s.RegisterAll("0 15 0 * * *", "0 30 0 * * 1", "0 0 3 * * 0"))
	assert.Len(t, s.cron.Entries(), 3)

	s = newScheduler(&fakeSource{}, &fakeSink{}, &fakeStore{}, nil)
	assert.Error(t, s.RegisterAll("not a cron", "0 30 0 * * 1", "0 0 3 * * 0"))
}
