package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/crypto-portfolio/internal/metrics"
	"github.com/trogers1052/crypto-portfolio/internal/models"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
)

// sourceKafka tags ledger entries that arrived on the transactions topic
const sourceKafka = "kafka"

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// TransactionRecorder appends trades to the ledger
type TransactionRecorder interface {
	Record(ctx context.Context, req portfolio.RecordRequest) (*portfolio.RecordResult, error)
}

// Consumer reads submitted transactions from Kafka and records them in the ledger.
// Redelivered events are recognised by (source, event_id) and skipped.
type Consumer struct {
	reader   messageReader
	recorder TransactionRecorder
	logger   *slog.Logger
}

// NewConsumer creates a new Kafka consumer for transaction events
func NewConsumer(brokers []string, topic, groupID string, recorder TransactionRecorder, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:   reader,
		recorder: recorder,
		logger:   logger,
	}
}

// Start consumes messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting kafka consumer", "topic", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.logger.Error("error reading message", "err", err)
				continue
			}

			outcome, err := c.processMessage(ctx, msg)
			metrics.EventsConsumed.WithLabelValues(outcome).Inc()
			if err != nil {
				// a bad event must not block the partition
				c.logger.Error("error processing message",
					"partition", msg.Partition, "offset", msg.Offset, "err", err)
			}
		}
	}
}

// processMessage handles one message and returns the outcome label for metrics.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) (string, error) {
	var event models.TransactionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return "invalid", fmt.Errorf("failed to unmarshal transaction event: %w", err)
	}

	if event.EventType != models.EventTransactionSubmitted {
		c.logger.Debug("ignoring event type", "event_type", event.EventType)
		return "ignored", nil
	}

	req, err := toRecordRequest(event)
	if err != nil {
		return "invalid", err
	}

	result, err := c.recorder.Record(ctx, req)
	switch {
	case errors.Is(err, portfolio.ErrDuplicateTransaction):
		c.logger.Info("transaction already recorded, skipping", "event_id", event.EventID, "source", req.Source)
		return "duplicate", nil
	case errors.Is(err, portfolio.ErrInvalidTransaction),
		errors.Is(err, portfolio.ErrUnknownAsset):
		return "rejected", fmt.Errorf("event %s rejected: %w", event.EventID, err)
	case err != nil:
		return "error", fmt.Errorf("failed to record event %s: %w", event.EventID, err)
	}

	if !result.Stored() {
		c.logger.Info("disposal with nothing held, skipping",
			"event_id", event.EventID, "owner", req.Owner, "symbol", req.Symbol)
		return "clamped", nil
	}

	c.logger.Info("recorded transaction",
		"owner", req.Owner, "symbol", req.Symbol,
		"transaction_id", result.Transaction.ID, "clamped", result.Clamped)
	return "recorded", nil
}

func toRecordRequest(event models.TransactionEvent) (portfolio.RecordRequest, error) {
	if event.EventID == "" {
		return portfolio.RecordRequest{}, errors.New("event_id is required")
	}

	quantity, err := decimal.NewFromString(event.Quantity)
	if err != nil {
		return portfolio.RecordRequest{}, fmt.Errorf("invalid quantity %s: %w", event.Quantity, err)
	}
	price, err := decimal.NewFromString(event.Price)
	if err != nil {
		return portfolio.RecordRequest{}, fmt.Errorf("invalid price %s: %w", event.Price, err)
	}

	var date time.Time
	if event.Date != "" {
		if date, err = models.ParseDate(event.Date); err != nil {
			return portfolio.RecordRequest{}, err
		}
	}

	source := event.Source
	if source == "" {
		source = sourceKafka
	}
	return portfolio.RecordRequest{
		Owner:      event.Owner,
		Symbol:     event.Symbol,
		Date:       date,
		Quantity:   quantity,
		Price:      price,
		Source:     source,
		ExternalID: event.EventID,
	}, nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
