package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/metrics"
	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// overviewDailyRows is how many daily rows the overview keeps for the recent-activity chart.
const overviewDailyRows = 30

// Engine turns cached positions and price candles into value series.
type Engine struct {
	store  Store
	prices CandleProvider
	opts   options
}

func NewEngine(store Store, prices CandleProvider, opts ...Option) *Engine {
	return &Engine{store: store, prices: prices, opts: newOptions(opts)}
}

// ReconstructValueSeries builds the value series of one position: its holdings are
// expanded to a dense daily series and joined onto the asset's price candles. The
// quote asset is priced at 1 on every candle date without asking the provider.
// A provider with no candles for the asset yields ErrPriceDataUnavailable.
func (e *Engine) ReconstructValueSeries(ctx context.Context, pos *models.Position, period models.Period) (*models.ValueSeries, error) {
	return e.valueSeries(ctx, pos, period, nil)
}

// valueSeries is ReconstructValueSeries with the quote asset priced on quoteDates
// when they are given, so cash lines up with the dates other assets have prices for.
func (e *Engine) valueSeries(ctx context.Context, pos *models.Position, period models.Period, quoteDates []time.Time) (*models.ValueSeries, error) {
	holdings, err := Reconstruct(pos.Transactions, e.opts.today())
	if err != nil {
		metrics.ValueSeriesBuilds.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("reconstruct %s: %w", pos.Symbol, err)
	}

	var candles []models.Candle
	if pos.Symbol == e.opts.quote {
		if quoteDates != nil {
			candles = quoteCandlesOn(pos.Symbol, period, quoteDates)
		} else {
			candles = QuoteCandles(pos.Symbol, period, holdings[0].Date, holdings[len(holdings)-1].Date)
		}
	} else {
		candles, err = e.prices.Candles(ctx, pos.Symbol, period)
		if err != nil {
			metrics.ValueSeriesBuilds.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("candles %s/%s: %w", pos.Symbol, period, err)
		}
		if len(candles) == 0 {
			metrics.ValueSeriesBuilds.WithLabelValues("no_price").Inc()
			return nil, fmt.Errorf("%w: %s/%s", ErrPriceDataUnavailable, pos.Symbol, period)
		}
	}

	rows, err := Merge(holdings, candles)
	if err != nil {
		metrics.ValueSeriesBuilds.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("merge %s/%s: %w", pos.Symbol, period, err)
	}
	metrics.ValueSeriesBuilds.WithLabelValues("ok").Inc()
	return &models.ValueSeries{Symbol: pos.Symbol, Period: period, Rows: rows}, nil
}

// PositionSeries loads the owner's position in symbol and reconstructs its value series.
func (e *Engine) PositionSeries(ctx context.Context, owner, symbol string, period models.Period) (*models.ValueSeries, error) {
	pos, err := e.store.GetPosition(ctx, owner, symbol)
	if err != nil {
		return nil, err
	}
	return e.ReconstructValueSeries(ctx, pos, period)
}

// PortfolioSeries is a combined value series plus the symbols that fed it.
type PortfolioSeries struct {
	Series   *models.ValueSeries `json:"series"`
	Included []string            `json:"included"`
	// Skipped lists positions left out because the provider had no candles for them.
	Skipped []string `json:"skipped"`
}

// PortfolioSeries combines the value series of every position the owner holds.
// Positions without price data are skipped rather than zero-filled. The quote asset
// is valued on the dates the other included positions have candles for, falling back
// to the period calendar when it is the only position valued. The result is
// ErrNoPositions when there is nothing to value and ErrPriceDataUnavailable when
// every position was skipped.
func (e *Engine) PortfolioSeries(ctx context.Context, owner string, period models.Period, includeQuote bool) (*PortfolioSeries, error) {
	positions, err := e.store.ListPositions(ctx, owner)
	if err != nil {
		return nil, err
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	out := &PortfolioSeries{Included: []string{}, Skipped: []string{}}
	var (
		series []*models.ValueSeries
		quote  *models.Position
	)
	for _, pos := range positions {
		if pos.Symbol == e.opts.quote {
			if includeQuote {
				quote = pos
			}
			continue
		}
		s, err := e.valueSeries(ctx, pos, period, nil)
		if errors.Is(err, ErrPriceDataUnavailable) {
			e.opts.logger.Warn("skipping position without price data",
				"owner", owner, "symbol", pos.Symbol, "period", period)
			out.Skipped = append(out.Skipped, pos.Symbol)
			continue
		}
		if err != nil {
			return nil, err
		}
		series = append(series, s)
		out.Included = append(out.Included, pos.Symbol)
	}

	if quote != nil {
		s, err := e.valueSeries(ctx, quote, period, seriesDates(series))
		if err != nil {
			return nil, err
		}
		series = append(series, s)
		out.Included = append(out.Included, quote.Symbol)
		sort.Strings(out.Included)
	}

	if len(series) == 0 {
		if len(out.Skipped) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrPriceDataUnavailable, out.Skipped)
		}
		return nil, fmt.Errorf("%s: %w", owner, ErrNoPositions)
	}

	combined, err := Combine(series)
	if err != nil {
		return nil, err
	}
	out.Series = combined
	return out, nil
}

// seriesDates is the ascending union of row dates across series, or nil when there
// are no series.
func seriesDates(series []*models.ValueSeries) []time.Time {
	if len(series) == 0 {
		return nil
	}
	seen := make(map[time.Time]struct{})
	dates := []time.Time{}
	for _, s := range series {
		for _, r := range s.Rows {
			day := models.Day(r.Date)
			if _, ok := seen[day]; !ok {
				seen[day] = struct{}{}
				dates = append(dates, day)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Overview is the portfolio landing view.
type Overview struct {
	// Weekly excludes the quote asset and carries invested capital in TotalMoney.
	Weekly *models.ValueSeries `json:"weekly,omitempty"`
	// WeeklyDelta includes cash so sales show as a flat line rather than a drop.
	WeeklyDelta *models.ValueSeries `json:"weekly_delta,omitempty"`
	DailyDelta  *models.ValueSeries `json:"daily_delta,omitempty"`
	// CurrentBalance is the close of the latest valid daily row.
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Skipped        []string        `json:"skipped"`
}

// Overview builds the weekly and recent daily portfolio views for owner.
// It fails with ErrNoPositions only when the owner has no positions at all; a view
// that cannot be built because of missing prices is left nil.
func (e *Engine) Overview(ctx context.Context, owner string) (*Overview, error) {
	positions, err := e.store.ListPositions(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%s: %w", owner, ErrNoPositions)
	}

	ov := &Overview{CurrentBalance: decimal.Zero}
	skipped := make(map[string]struct{})

	build := func(period models.Period, includeQuote bool) (*models.ValueSeries, error) {
		ps, err := e.PortfolioSeries(ctx, owner, period, includeQuote)
		if errors.Is(err, ErrPriceDataUnavailable) || errors.Is(err, ErrNoPositions) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, s := range ps.Skipped {
			skipped[s] = struct{}{}
		}
		return ps.Series, nil
	}

	if ov.Weekly, err = build(models.PeriodWeekly, false); err != nil {
		return nil, err
	}
	if ov.WeeklyDelta, err = build(models.PeriodWeekly, true); err != nil {
		return nil, err
	}
	daily, err := build(models.PeriodDaily, true)
	if err != nil {
		return nil, err
	}
	if daily != nil {
		ov.DailyDelta = daily.Last(overviewDailyRows)
		if row, ok := daily.Latest(); ok {
			ov.CurrentBalance = row.Close
		}
	}

	ov.Skipped = make([]string, 0, len(skipped))
	for s := range skipped {
		ov.Skipped = append(ov.Skipped, s)
	}
	sort.Strings(ov.Skipped)
	return ov, nil
}
