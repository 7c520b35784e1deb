package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

func row(day time.Time, close, money string) models.ValueRow {
	return models.ValueRow{
		Date:       day,
		Valid:      true,
		Total:      dec("1"),
		TotalMoney: dec(money),
		Open:       dec(close),
		High:       dec(close),
		Low:        dec(close),
		Close:      dec(close),
	}
}

func TestCombine(t *testing.T) {
	t.Run("aligned series add up", func(t *testing.T) {
		a := &models.ValueSeries{Symbol: "BTC", Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(1), "10", "5"), row(daysAgo(0), "12", "5"),
		}}
		b := &models.ValueSeries{Symbol: "ETH", Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(1), "3", "2"), row(daysAgo(0), "4", "2"),
		}}

		out, err := Combine([]*models.ValueSeries{a, b})
		require.NoError(t, err)
		require.Len(t, out.Rows, 2)
		assert.True(t, dec("13").Equal(out.Rows[0].Close))
		assert.True(t, dec("16").Equal(out.Rows[1].High))
		assert.True(t, dec("7").Equal(out.Rows[1].TotalMoney))
		assert.True(t, out.Rows[1].Total.IsZero())
		assert.Empty(t, out.Symbol)

		assert.True(t, dec("10").Equal(a.Rows[0].Close), "inputs must not be modified")
	})

	t.Run("shorter history is zero filled", func(t *testing.T) {
		long := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(3), "1", "1"), row(daysAgo(2), "2", "1"), row(daysAgo(1), "3", "1"), row(daysAgo(0), "4", "1"),
		}}
		short := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(1), "10", "4"), row(daysAgo(0), "20", "4"),
		}}

		out, err := Combine([]*models.ValueSeries{short, long})
		require.NoError(t, err)
		require.Len(t, out.Rows, 4)

		dates := make([]time.Time, len(out.Rows))
		for i, r := range out.Rows {
			dates[i] = r.Date
			assert.True(t, r.Valid)
		}
		assert.Equal(t, []time.Time{daysAgo(3), daysAgo(2), daysAgo(1), daysAgo(0)}, dates)
		assert.True(t, dec("1").Equal(out.Rows[0].Close))
		assert.True(t, dec("13").Equal(out.Rows[2].Close))
		assert.True(t, dec("24").Equal(out.Rows[3].Close))
	})

	t.Run("lagging prices leave the date incomplete", func(t *testing.T) {
		lagging := &models.ValueSeries{Symbol: "BTC", Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(2), "100", "50"), row(daysAgo(1), "100", "50"),
		}}
		current := &models.ValueSeries{Symbol: "ETH", Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(2), "5", "5"), row(daysAgo(1), "5", "5"), row(daysAgo(0), "6", "5"),
		}}

		out, err := Combine([]*models.ValueSeries{lagging, current})
		require.NoError(t, err)
		require.Len(t, out.Rows, 3)
		assert.True(t, out.Rows[1].Valid)
		assert.True(t, dec("105").Equal(out.Rows[1].Close))

		today := out.Rows[2]
		assert.Equal(t, daysAgo(0), today.Date)
		assert.False(t, today.Valid)
		assert.True(t, today.Close.IsZero())
		assert.True(t, today.TotalMoney.IsZero())

		latest, ok := out.Latest()
		require.True(t, ok)
		assert.True(t, dec("105").Equal(latest.Close))
	})

	t.Run("gap in the middle of a held series", func(t *testing.T) {
		gappy := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(2), "10", "1"), row(daysAgo(0), "10", "1"),
		}}
		dense := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(2), "1", "1"), row(daysAgo(1), "1", "1"), row(daysAgo(0), "1", "1"),
		}}

		out, err := Combine([]*models.ValueSeries{gappy, dense})
		require.NoError(t, err)
		require.Len(t, out.Rows, 3)
		assert.True(t, out.Rows[0].Valid)
		assert.False(t, out.Rows[1].Valid)
		assert.True(t, out.Rows[2].Valid)
		assert.True(t, dec("11").Equal(out.Rows[2].Close))
	})

	t.Run("sold out series may end early", func(t *testing.T) {
		sold := row(daysAgo(1), "0", "0")
		sold.Total = dec("0")
		closed := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(2), "10", "10"), sold,
		}}
		open := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(1), "3", "3"), row(daysAgo(0), "4", "3"),
		}}

		out, err := Combine([]*models.ValueSeries{closed, open})
		require.NoError(t, err)
		require.Len(t, out.Rows, 3)
		assert.True(t, out.Rows[2].Valid)
		assert.True(t, dec("4").Equal(out.Rows[2].Close))
	})

	t.Run("invalid rows contribute nothing", func(t *testing.T) {
		invalid := models.ValueRow{Date: daysAgo(0), Close: dec("99")}
		a := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{invalid}}
		b := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			{Date: daysAgo(0)}, row(daysAgo(-1), "2", "2"),
		}}

		out, err := Combine([]*models.ValueSeries{a, b})
		require.NoError(t, err)
		require.Len(t, out.Rows, 2)
		assert.False(t, out.Rows[0].Valid)
		assert.True(t, out.Rows[0].Close.IsZero())
		assert.True(t, out.Rows[1].Valid)
	})

	t.Run("single series", func(t *testing.T) {
		a := &models.ValueSeries{Symbol: "BTC", Period: models.PeriodWeekly, Rows: []models.ValueRow{row(daysAgo(0), "5", "1")}}
		out, err := Combine([]*models.ValueSeries{a})
		require.NoError(t, err)
		assert.Equal(t, models.PeriodWeekly, out.Period)
		assert.True(t, dec("5").Equal(out.Rows[0].Close))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Combine(nil)
		assert.ErrorIs(t, err, ErrNoSeries)

		unsorted := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(0), "1", "1"), row(daysAgo(1), "1", "1"),
		}}
		_, err = Combine([]*models.ValueSeries{unsorted})
		assert.ErrorIs(t, err, ErrMalformedSeries)

		dup := &models.ValueSeries{Period: models.PeriodDaily, Rows: []models.ValueRow{
			row(daysAgo(1), "1", "1"), row(daysAgo(1), "1", "1"),
		}}
		_, err = Combine([]*models.ValueSeries{dup})
		assert.ErrorIs(t, err, ErrMalformedSeries)

		daily := &models.ValueSeries{Period: models.PeriodDaily}
		weekly := &models.ValueSeries{Period: models.PeriodWeekly}
		_, err = Combine([]*models.ValueSeries{daily, weekly})
		assert.ErrorIs(t, err, ErrMalformedSeries)
	})
}
