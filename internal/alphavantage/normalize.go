package alphavantage

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

// Column names, market-specific first, then the newer single-currency layout.
var (
	openKeys  = []string{"1b. open (USD)", "1a. open (USD)", "1. open"}
	highKeys  = []string{"2b. high (USD)", "2a. high (USD)", "2. high"}
	lowKeys   = []string{"3b. low (USD)", "3a. low (USD)", "3. low"}
	closeKeys = []string{"4b. close (USD)", "4a. close (USD)", "4. close"}
)

// normalizeCandles turns an API body into ascending candles. Rows with a bad date or
// missing price column are skipped and counted.
func normalizeCandles(symbol string, period models.Period, body []byte) ([]models.Candle, int, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, 0, err
	}
	delete(doc, "Meta Data")

	var series json.RawMessage
	for key, raw := range doc {
		if strings.HasPrefix(key, "Time Series") {
			series = raw
			break
		}
	}
	if series == nil {
		return nil, 0, errors.New("response has no time series")
	}

	var rows map[string]map[string]string
	if err := json.Unmarshal(series, &rows); err != nil {
		return nil, 0, err
	}

	candles := make([]models.Candle, 0, len(rows))
	skipped := 0
	for date, fields := range rows {
		day, err := models.ParseDate(date)
		if err != nil {
			skipped++
			continue
		}
		c := models.Candle{Symbol: symbol, Period: period, Date: day}
		var ok bool
		if c.Open, ok = pick(fields, openKeys); !ok {
			skipped++
			continue
		}
		if c.High, ok = pick(fields, highKeys); !ok {
			skipped++
			continue
		}
		if c.Low, ok = pick(fields, lowKeys); !ok {
			skipped++
			continue
		}
		if c.Close, ok = pick(fields, closeKeys); !ok {
			skipped++
			continue
		}
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles, skipped, nil
}

func pick(fields map[string]string, keys []string) (decimal.Decimal, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return decimal.Zero, false
			}
			return d, true
		}
	}
	return decimal.Zero, false
}
