// Package alphavantage fetches digital currency candles and the currency catalogue
// from the Alpha Vantage API.
package alphavantage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/trogers1052/crypto-portfolio/internal/config"
	"github.com/trogers1052/crypto-portfolio/internal/metrics"
	"github.com/trogers1052/crypto-portfolio/internal/models"
)

const (
	market         = "USD"
	maxNameLength  = 50
	defaultTimeout = 30 * time.Second
)

// errNoData marks a response the API answered without usable data.
var errNoData = errors.New("no data")

// Client talks to Alpha Vantage. Requests are retried with exponential backoff on
// transport errors and 5xx responses, behind a circuit breaker.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	maxRetries uint64
	initial    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithRetry sets the retry count and initial backoff interval.
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(cl *Client) {
		cl.maxRetries = maxRetries
		cl.initial = initial
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// New creates a Client from configuration.
func New(cfg config.AlphaVantageConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		maxRetries: 3,
		initial:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alphavantage",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Candles fetches the full candle history of symbol for period, ascending by date.
// A response without price data yields an empty slice and a nil error.
func (c *Client) Candles(ctx context.Context, symbol string, period models.Period) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("function", "DIGITAL_CURRENCY_"+string(period))
	q.Set("symbol", symbol)
	q.Set("market", market)
	q.Set("apikey", c.apiKey)

	body, err := c.get(ctx, c.baseURL+"/query?"+q.Encode())
	if errors.Is(err, errNoData) || (err == nil && !bytes.Contains(body, []byte("close"))) {
		metrics.CandleFetches.WithLabelValues("alphavantage", "no_data").Inc()
		c.logger.Warn("price provider returned no data", "symbol", symbol, "period", period)
		return []models.Candle{}, nil
	}
	if err != nil {
		metrics.CandleFetches.WithLabelValues("alphavantage", "error").Inc()
		return nil, fmt.Errorf("fetch %s/%s candles: %w", symbol, period, err)
	}

	candles, skipped, err := normalizeCandles(symbol, period, body)
	if err != nil {
		metrics.CandleFetches.WithLabelValues("alphavantage", "error").Inc()
		return nil, fmt.Errorf("decode %s/%s candles: %w", symbol, period, err)
	}
	if skipped > 0 {
		c.logger.Warn("skipped malformed candles", "symbol", symbol, "period", period, "count", skipped)
	}
	metrics.CandleFetches.WithLabelValues("alphavantage", "ok").Inc()
	return candles, nil
}

// Assets downloads the digital currency list (CSV "currency code,currency name").
func (c *Client) Assets(ctx context.Context) ([]*models.Asset, error) {
	body, err := c.get(ctx, c.baseURL+"/digital_currency_list/")
	if err != nil {
		return nil, fmt.Errorf("fetch currency list: %w", err)
	}
	return parseAssets(body)
}

func parseAssets(body []byte) ([]*models.Asset, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse currency list: %w", err)
	}

	assets := make([]*models.Asset, 0, len(records))
	for i, rec := range records {
		if i == 0 || len(rec) < 2 {
			continue // header
		}
		symbol := strings.TrimSpace(rec[0])
		name := strings.TrimSpace(rec[1])
		if symbol == "" {
			continue
		}
		if runes := []rune(name); len(runes) > maxNameLength {
			name = string(runes[:maxNameLength])
		}
		assets = append(assets, &models.Asset{Symbol: symbol, Name: name})
	}
	return assets, nil
}

// get performs a GET through the breaker with retries. Non-200 responses other than
// 5xx are reported as errNoData.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	var body []byte
	operation := func() error {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, rawURL)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || errors.Is(err, errNoData) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		body = out.([]byte)
		return nil
	}

	if err := backoff.Retry(operation, retry); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s", errNoData, resp.Status)
	}
	return body, nil
}
