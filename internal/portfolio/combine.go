package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// Combine sums value series into one portfolio series.
//
// Series are outer-joined on date: the result has a row for every date present in any
// input, and a series without a valid row on a date contributes zero to it. A result
// row is valid when at least one input row on that date is valid. Open, High, Low,
// Close and TotalMoney are summed; Total is left at zero because quantities of
// different assets do not add up. Inputs are not modified.
//
// A series that has no row on a date while its previous row held a non-zero
// quantity has no price for a holding it still owns. Such a date is incomplete:
// its result row is invalid and carries zeros, so a lagging price feed never shows
// up as a drop in value.
func Combine(series []*models.ValueSeries) (*models.ValueSeries, error) {
	if len(series) == 0 {
		return nil, ErrNoSeries
	}

	period := series[0].Period
	acc := make(map[time.Time]*models.ValueRow)
	for _, s := range series {
		if s.Period != period {
			return nil, fmt.Errorf("%w: cannot combine %s with %s series", ErrMalformedSeries, period, s.Period)
		}
		for i, r := range s.Rows {
			if i > 0 && !r.Date.After(s.Rows[i-1].Date) {
				return nil, fmt.Errorf("%w: %s rows are not strictly date ascending at %s",
					ErrMalformedSeries, s.Symbol, models.FormatDate(r.Date))
			}
			day := models.Day(r.Date)
			row, ok := acc[day]
			if !ok {
				row = &models.ValueRow{
					Date:       day,
					Total:      decimal.Zero,
					TotalMoney: decimal.Zero,
					Open:       decimal.Zero,
					High:       decimal.Zero,
					Low:        decimal.Zero,
					Close:      decimal.Zero,
				}
				acc[day] = row
			}
			if !r.Valid {
				continue
			}
			row.Valid = true
			row.Open = row.Open.Add(r.Open)
			row.High = row.High.Add(r.High)
			row.Low = row.Low.Add(r.Low)
			row.Close = row.Close.Add(r.Close)
			row.TotalMoney = row.TotalMoney.Add(r.TotalMoney)
		}
	}

	out := &models.ValueSeries{Period: period, Rows: make([]models.ValueRow, 0, len(acc))}
	for _, row := range acc {
		out.Rows = append(out.Rows, *row)
	}
	sort.Slice(out.Rows, func(i, j int) bool { return out.Rows[i].Date.Before(out.Rows[j].Date) })

	for _, s := range series {
		markIncomplete(out.Rows, s.Rows)
	}
	return out, nil
}

// markIncomplete resets every combined row on which rows has a gap while its last
// valid row still held something. Both slices are date ascending.
func markIncomplete(combined, rows []models.ValueRow) {
	next := 0
	var prev *models.ValueRow
	for i := range combined {
		day := combined[i].Date
		if next < len(rows) && models.Day(rows[next].Date).Equal(day) {
			prev = &rows[next]
			next++
			continue
		}
		if prev != nil && prev.Valid && !prev.Total.IsZero() {
			combined[i] = models.ValueRow{
				Date:       day,
				Total:      decimal.Zero,
				TotalMoney: decimal.Zero,
				Open:       decimal.Zero,
				High:       decimal.Zero,
				Low:        decimal.Zero,
				Close:      decimal.Zero,
			}
		}
	}
}
