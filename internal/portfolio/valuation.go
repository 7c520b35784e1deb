package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// Merge left-joins holdings onto a price series. Only candle dates survive; each
// candle's OHLC is multiplied by the holdings Total of that day so the row describes
// the position's value range over the period. Candle dates with no holdings row give
// an invalid row. Duplicate candle dates are rejected with ErrMalformedSeries.
func Merge(holdings []models.HoldingsRow, candles []models.Candle) ([]models.ValueRow, error) {
	byDate := make(map[time.Time]models.HoldingsRow, len(holdings))
	for _, h := range holdings {
		byDate[models.Day(h.Date)] = h
	}

	ordered := make([]models.Candle, len(candles))
	copy(ordered, candles)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	rows := make([]models.ValueRow, 0, len(ordered))
	for i, c := range ordered {
		day := models.Day(c.Date)
		if i > 0 && day.Equal(models.Day(ordered[i-1].Date)) {
			return nil, fmt.Errorf("%w: duplicate candle on %s", ErrMalformedSeries, models.FormatDate(day))
		}

		h, ok := byDate[day]
		if !ok {
			rows = append(rows, models.ValueRow{
				Date:       day,
				Total:      decimal.Zero,
				TotalMoney: decimal.Zero,
				Open:       decimal.Zero,
				High:       decimal.Zero,
				Low:        decimal.Zero,
				Close:      decimal.Zero,
			})
			continue
		}
		rows = append(rows, models.ValueRow{
			Date:       day,
			Valid:      true,
			Total:      h.Total,
			TotalMoney: h.TotalMoney,
			Open:       c.Open.Mul(h.Total),
			High:       c.High.Mul(h.Total),
			Low:        c.Low.Mul(h.Total),
			Close:      c.Close.Mul(h.Total),
		})
	}
	return rows, nil
}
