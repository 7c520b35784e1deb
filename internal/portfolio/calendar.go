package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// Calendar returns the candle dates of a period between from and to inclusive.
// Daily candles fall on every day. Weekly candles close on Sundays, and the week in
// progress is keyed by its latest day, so to is always included.
func Calendar(period models.Period, from, to time.Time) []time.Time {
	from, to = models.Day(from), models.Day(to)
	if to.Before(from) {
		return nil
	}

	var dates []time.Time
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if period == models.PeriodWeekly && day.Weekday() != time.Sunday && !day.Equal(to) {
			continue
		}
		dates = append(dates, day)
	}
	return dates
}

// QuoteCandles synthesises the quote asset's price series over the period calendar:
// every OHLC field is 1.
func QuoteCandles(symbol string, period models.Period, from, to time.Time) []models.Candle {
	return quoteCandlesOn(symbol, period, Calendar(period, from, to))
}

// quoteCandlesOn prices the quote asset at 1 on each of dates.
func quoteCandlesOn(symbol string, period models.Period, dates []time.Time) []models.Candle {
	one := decimal.NewFromInt(1)
	candles := make([]models.Candle, len(dates))
	for i, day := range dates {
		candles[i] = models.Candle{
			Symbol: symbol,
			Period: period,
			Date:   models.Day(day),
			Open:   one,
			High:   one,
			Low:    one,
			Close:  one,
		}
	}
	return candles
}
