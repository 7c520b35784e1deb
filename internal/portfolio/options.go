package portfolio

import (
	"log/slog"
	"time"

	"github.com/trogers1052/crypto-portfolio/internal/models"
)

type options struct {
	quote     string
	now       func() time.Time
	logger    *slog.Logger
	publisher EventPublisher
}

// Option configures a Ledger, Aggregator or Engine.
type Option func(*options)

// WithQuoteSymbol sets the settlement asset (default USD).
func WithQuoteSymbol(symbol string) Option {
	return func(o *options) { o.quote = symbol }
}

// WithClock overrides time.Now, which decides "today" for reconstruction.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPublisher makes the Ledger announce position changes.
func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func newOptions(opts []Option) options {
	o := options{
		quote:  models.QuoteSymbol,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o options) today() time.Time {
	return models.Day(o.now())
}
