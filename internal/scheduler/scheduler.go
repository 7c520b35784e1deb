// Package scheduler runs the periodic candle, asset and alert jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/metrics"
	"github.com/trogers1052/crypto-portfolio/internal/models"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
)

const (
	alertCooldown  = 24 * time.Hour
	alertRetention = 90 * 24 * time.Hour
)

// PriceSource fetches candles and the asset catalogue from the market data provider.
type PriceSource interface {
	Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error)
	Assets(ctx context.Context) ([]*models.Asset, error)
}

// CandleSink stores fetched candles.
type CandleSink interface {
	IngestCandles(ctx context.Context, symbol string, period models.Period, candles []models.Candle) (int, error)
}

// Store is the persistence the jobs read and write.
type Store interface {
	HeldSymbols(ctx context.Context) ([]string, error)
	UpsertAssets(ctx context.Context, assets []*models.Asset) (upserted, skipped int, err error)
	ListAllPositions(ctx context.Context) ([]*models.Position, error)
	LatestClose(ctx context.Context, symbol string, period models.Period) (decimal.Decimal, time.Time, error)
	AlertTriggeredSince(ctx context.Context, owner, symbol, ruleType string, since time.Time) (bool, error)
	CreateAlertHistory(ctx context.Context, h *models.AlertHistory) error
	MarkNotificationSent(ctx context.Context, id int64) error
	DeleteAlertHistoryOlderThan(ctx context.Context, date time.Time) (int64, error)
}

// AlertPublisher announces threshold crossings.
type AlertPublisher interface {
	PublishAlertEvent(ctx context.Context, event *models.AlertEvent) error
}

// Scheduler manages the cron jobs
type Scheduler struct {
	cron        *cron.Cron
	source      PriceSource
	sink        CandleSink
	store       Store
	publisher   AlertPublisher
	quoteSymbol string
	logger      *slog.Logger
	now         func() time.Time
	ctx         context.Context
}

// New creates a Scheduler. publisher may be nil.
func New(ctx context.Context, source PriceSource, sink CandleSink, store Store, publisher AlertPublisher, quoteSymbol string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		source:      source,
		sink:        sink,
		store:       store,
		publisher:   publisher,
		quoteSymbol: quoteSymbol,
		logger:      logger,
		now:         time.Now,
		ctx:         ctx,
	}
}

// RegisterAll registers the daily, weekly and asset refresh jobs.
func (s *Scheduler) RegisterAll(dailyCron, weeklyCron, assetsCron string) error {
	if _, err := s.cron.AddFunc(dailyCron, func() { s.run("daily_candles", s.DailyRefresh) }); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	if _, err := s.cron.AddFunc(weeklyCron, func() { s.run("weekly_candles", s.WeeklyRefresh) }); err != nil {
		return fmt.Errorf("register weekly task: %w", err)
	}
	if _, err := s.cron.AddFunc(assetsCron, func() { s.run("assets", s.RefreshAssets) }); err != nil {
		return fmt.Errorf("register asset task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the cron and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(job string, fn func(ctx context.Context) error) {
	start := time.Now()
	if err := fn(s.ctx); err != nil {
		metrics.JobRuns.WithLabelValues(job, "error").Inc()
		s.logger.Error("scheduled job failed", "job", job, "err", err)
		return
	}
	metrics.JobRuns.WithLabelValues(job, "ok").Inc()
	s.logger.Info("scheduled job finished", "job", job, "duration", time.Since(start))
}

// DailyRefresh ingests daily candles for every held asset and then sweeps alerts.
func (s *Scheduler) DailyRefresh(ctx context.Context) error {
	if err := s.RefreshCandles(ctx, models.PeriodDaily); err != nil {
		return err
	}
	return s.SweepAlerts(ctx)
}

func (s *Scheduler) WeeklyRefresh(ctx context.Context) error {
	return s.RefreshCandles(ctx, models.PeriodWeekly)
}

// RefreshCandles fetches and stores candles of period for every held non-quote asset.
// A failing asset is logged and does not stop the others; the returned error reports
// how many failed.
func (s *Scheduler) RefreshCandles(ctx context.Context, period models.Period) error {
	symbols, err := s.store.HeldSymbols(ctx)
	if err != nil {
		return fmt.Errorf("list held symbols: %w", err)
	}

	failed := 0
	for _, symbol := range symbols {
		if symbol == s.quoteSymbol {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		candles, err := s.source.Candles(ctx, symbol, period)
		if err != nil {
			failed++
			s.logger.Error("failed to fetch candles", "symbol", symbol, "period", period, "err", err)
			continue
		}
		if len(candles) == 0 {
			continue
		}
		n, err := s.sink.IngestCandles(ctx, symbol, period, candles)
		if err != nil {
			failed++
			s.logger.Error("failed to store candles", "symbol", symbol, "period", period, "err", err)
			continue
		}
		s.logger.Debug("candles ingested", "symbol", symbol, "period", period, "stored", n)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d %s candle refreshes failed", failed, len(symbols), period)
	}
	return nil
}

// RefreshAssets reloads the asset catalogue from the provider.
func (s *Scheduler) RefreshAssets(ctx context.Context) error {
	assets, err := s.source.Assets(ctx)
	if err != nil {
		return err
	}
	upserted, skipped, err := s.store.UpsertAssets(ctx, assets)
	if err != nil {
		return fmt.Errorf("upsert assets: %w", err)
	}
	s.logger.Info("asset catalogue refreshed", "upserted", upserted, "skipped", skipped)
	return nil
}

// SweepAlerts checks every position against the latest daily close. A crossing already
// recorded for the same owner, asset and rule within the cooldown is not repeated.
// Alert history past retention is pruned afterwards.
func (s *Scheduler) SweepAlerts(ctx context.Context) error {
	positions, err := s.store.ListAllPositions(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	now := s.now()
	closes := make(map[string]decimal.Decimal)
	for _, pos := range positions {
		if pos.Symbol == s.quoteSymbol {
			continue
		}

		price, ok := closes[pos.Symbol]
		if !ok {
			price, _, err = s.store.LatestClose(ctx, pos.Symbol, models.PeriodDaily)
			if errors.Is(err, portfolio.ErrPriceDataUnavailable) {
				continue
			}
			if err != nil {
				return err
			}
			closes[pos.Symbol] = price
		}

		alert := portfolio.CheckThresholds(pos, price, now)
		if alert == nil {
			continue
		}
		if err := s.recordAlert(ctx, alert, now); err != nil {
			return err
		}
	}

	pruned, err := s.store.DeleteAlertHistoryOlderThan(ctx, now.Add(-alertRetention))
	if err != nil {
		return fmt.Errorf("prune alert history: %w", err)
	}
	if pruned > 0 {
		s.logger.Info("pruned alert history", "rows", pruned)
	}
	return nil
}

func (s *Scheduler) recordAlert(ctx context.Context, alert *models.AlertHistory, now time.Time) error {
	seen, err := s.store.AlertTriggeredSince(ctx, alert.Owner, alert.Symbol, alert.RuleType, now.Add(-alertCooldown))
	if err != nil {
		return fmt.Errorf("check alert cooldown: %w", err)
	}
	if seen {
		return nil
	}

	if err := s.store.CreateAlertHistory(ctx, alert); err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	metrics.AlertsTriggered.WithLabelValues(alert.RuleType).Inc()
	s.logger.Info("threshold crossed", "owner", alert.Owner, "symbol", alert.Symbol,
		"rule_type", alert.RuleType, "close", alert.TriggeredValue.String())

	if s.publisher == nil {
		return nil
	}
	event := &models.AlertEvent{
		EventID:   uuid.NewString(),
		EventType: models.EventThresholdCrossed,
		Alert:     alert,
		Timestamp: now,
	}
	if err := s.publisher.PublishAlertEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish alert", "owner", alert.Owner, "symbol", alert.Symbol, "err", err)
		return nil
	}
	if err := s.store.MarkNotificationSent(ctx, alert.ID); err != nil {
		s.logger.Warn("failed to mark alert sent", "id", alert.ID, "err", err)
	}
	return nil
}
