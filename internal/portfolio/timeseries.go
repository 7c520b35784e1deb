package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

type dayDelta struct {
	quantity decimal.Decimal
	cashFlow decimal.Decimal
}

// Reconstruct expands a position's transaction snapshot into one HoldingsRow per
// calendar day from the earliest transaction date through today.
//
// Transactions sharing a date collapse into one delta. Days without a transaction
// get a zero delta, and Total/TotalMoney carry the running sums, so the last row
// holds the position's quantity and invested capital. If a snapshot entry is dated
// after today the range is extended to it so no delta is dropped.
func Reconstruct(entries []models.SnapshotEntry, today time.Time) ([]models.HoldingsRow, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyLedger
	}

	deltas := make(map[time.Time]*dayDelta, len(entries))
	var first, last time.Time
	for i, e := range entries {
		day, err := models.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformedSeries, i, err)
		}
		d, ok := deltas[day]
		if !ok {
			d = &dayDelta{}
			deltas[day] = d
		}
		d.quantity = d.quantity.Add(e.Quantity)
		d.cashFlow = d.cashFlow.Add(e.CashFlow)

		if first.IsZero() || day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}

	end := models.Day(today)
	if last.After(end) {
		end = last
	}

	rows := make([]models.HoldingsRow, 0, models.DaysBetween(first, end)+1)
	total := decimal.Zero
	totalMoney := decimal.Zero
	for day := first; !day.After(end); day = day.AddDate(0, 0, 1) {
		row := models.HoldingsRow{Date: day, Quantity: decimal.Zero, CashFlow: decimal.Zero}
		if d, ok := deltas[day]; ok {
			row.Quantity = d.quantity
			row.CashFlow = d.cashFlow
		}
		total = total.Add(row.Quantity)
		totalMoney = totalMoney.Add(row.CashFlow)
		row.Total = total
		row.TotalMoney = totalMoney
		rows = append(rows, row)
	}
	return rows, nil
}
