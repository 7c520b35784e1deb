package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trogers1052/crypto-portfolio/internal/alphavantage"
	"github.com/trogers1052/crypto-portfolio/internal/api"
	"github.com/trogers1052/crypto-portfolio/internal/cache"
	"github.com/trogers1052/crypto-portfolio/internal/config"
	"github.com/trogers1052/crypto-portfolio/internal/database"
	"github.com/trogers1052/crypto-portfolio/internal/kafka"
	"github.com/trogers1052/crypto-portfolio/internal/logging"
	"github.com/trogers1052/crypto-portfolio/internal/portfolio"
	"github.com/trogers1052/crypto-portfolio/internal/scheduler"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	opts := []portfolio.Option{
		portfolio.WithQuoteSymbol(cfg.QuoteSymbol),
		portfolio.WithLogger(logger),
	}

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PositionsTopic)
		cleanup = append(cleanup, func() { producer.Close() })
		opts = append(opts, portfolio.WithPublisher(producer))
	}

	var (
		store  portfolio.Store
		reader api.Reader
		prices portfolio.CandleProvider
		pinger api.Pinger
		sched  *scheduler.Scheduler
	)

	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory store, data will not persist")
		mem := portfolio.NewMemoryStore()
		store, reader, prices = mem, mem, mem

	default:
		db, err := database.New(cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func() { db.Close() })
		logger.Info("connected to PostgreSQL", "host", cfg.Database.Host, "database", cfg.Database.DBName)

		if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
			return err
		}
		store, reader, pinger = db, db, db

		var sink scheduler.CandleSink = db
		prices = db
		if cfg.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			cleanup = append(cleanup, func() { rdb.Close() })
			candleCache := cache.NewCandleCache(db, rdb, cfg.Redis.CandleTTL, logger)
			prices, sink = candleCache, candleCache
			logger.Info("redis candle cache enabled", "addr", cfg.Redis.Addr)
		}

		if cfg.AlphaVantage.APIKey != "" {
			var alertPublisher scheduler.AlertPublisher
			if producer != nil {
				alertPublisher = producer
			}
			client := alphavantage.New(cfg.AlphaVantage, alphavantage.WithLogger(logger))
			sched = scheduler.New(ctx, client, sink, db, alertPublisher, cfg.QuoteSymbol, logger)
			if err := sched.RegisterAll(cfg.Schedule.DailyCron, cfg.Schedule.WeeklyCron, cfg.Schedule.AssetsCron); err != nil {
				return err
			}
		} else {
			logger.Warn("ALPHAVANTAGE_KEY not set, price refresh disabled")
		}
	}

	ledger := portfolio.NewLedger(store, opts...)
	engine := portfolio.NewEngine(store, prices, opts...)
	aggregator := portfolio.NewAggregator(store, opts...)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TransactionsTopic, cfg.Kafka.GroupID, ledger, logger)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("kafka consumer stopped", "err", err)
			}
		}()
	}

	if sched != nil {
		sched.Start()
		cleanup = append(cleanup, sched.Stop)
	}

	handler := api.NewHandler(ledger, aggregator, engine, reader, pinger, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      api.SetupRoutes(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("crypto-portfolio listening", "addr", srv.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down crypto-portfolio")
	return srv.Shutdown(shutdownCtx)
}
