package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	AlphaVantage AlphaVantageConfig `yaml:"alphavantage"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Log          LogConfig          `yaml:"log"`
	// QuoteSymbol is the settlement asset every trade is paired against
	QuoteSymbol string `yaml:"quote_symbol"`
	// Storage selects the ledger backend: postgres or memory
	Storage string `yaml:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"name"`
	SSLMode        string `yaml:"sslmode"`
	MigrationsPath string `yaml:"migrations_path"`
}

// RedisConfig holds the candle cache configuration. An empty Addr disables the cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	CandleTTL time.Duration `yaml:"candle_ttl"`
}

// KafkaConfig holds Kafka configuration. No brokers disables the consumer and producer.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	TransactionsTopic string   `yaml:"transactions_topic"`
	PositionsTopic    string   `yaml:"positions_topic"`
	GroupID           string   `yaml:"group_id"`
}

// AlphaVantageConfig holds the price provider configuration
type AlphaVantageConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ScheduleConfig holds cron specs (with seconds) for background jobs
type ScheduleConfig struct {
	DailyCron  string `yaml:"daily_cron"`
	WeeklyCron string `yaml:"weekly_cron"`
	AssetsCron string `yaml:"assets_cron"`
}

// LogConfig holds logger configuration. When File is set logs are also written to a
// rotating file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           "5432",
			User:           "postgres",
			Password:       "postgres",
			DBName:         "portfolio",
			SSLMode:        "disable",
			MigrationsPath: "db/migrations",
		},
		Redis: RedisConfig{
			CandleTTL: time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:           []string{"localhost:9092"},
			TransactionsTopic: "portfolio-transactions",
			PositionsTopic:    "portfolio-positions",
			GroupID:           "crypto-portfolio",
		},
		AlphaVantage: AlphaVantageConfig{
			BaseURL: "https://www.alphavantage.co",
			Timeout: 30 * time.Second,
		},
		Schedule: ScheduleConfig{
			DailyCron:  "0 15 0 * * *",
			WeeklyCron: "0 30 0 * * 1",
			AssetsCron: "0 0 3 * * 0",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		QuoteSymbol: "USD",
		Storage:     StoragePostgres,
	}
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

// LoadFile reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.Database.MigrationsPath)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.CandleTTL = getEnvDuration("CANDLE_CACHE_TTL", cfg.Redis.CandleTTL)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.TransactionsTopic = getEnv("KAFKA_TRANSACTIONS_TOPIC", cfg.Kafka.TransactionsTopic)
	cfg.Kafka.PositionsTopic = getEnv("KAFKA_POSITIONS_TOPIC", cfg.Kafka.PositionsTopic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.AlphaVantage.APIKey = getEnv("ALPHAVANTAGE_KEY", cfg.AlphaVantage.APIKey)
	cfg.AlphaVantage.BaseURL = getEnv("ALPHAVANTAGE_BASE_URL", cfg.AlphaVantage.BaseURL)
	cfg.AlphaVantage.Timeout = getEnvDuration("ALPHAVANTAGE_TIMEOUT", cfg.AlphaVantage.Timeout)

	cfg.Schedule.DailyCron = getEnv("CRON_DAILY", cfg.Schedule.DailyCron)
	cfg.Schedule.WeeklyCron = getEnv("CRON_WEEKLY", cfg.Schedule.WeeklyCron)
	cfg.Schedule.AssetsCron = getEnv("CRON_ASSETS", cfg.Schedule.AssetsCron)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.QuoteSymbol = getEnv("QUOTE_SYMBOL", cfg.QuoteSymbol)
	cfg.Storage = getEnv("STORAGE", cfg.Storage)
}

// Validate checks that required fields are set and cron specs parse.
func (c *Config) Validate() error {
	if c.QuoteSymbol == "" {
		return fmt.Errorf("quote_symbol is required")
	}
	switch c.Storage {
	case StoragePostgres:
		if c.Database.DBName == "" {
			return fmt.Errorf("database.name is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	specs := map[string]string{
		"schedule.daily_cron":  c.Schedule.DailyCron,
		"schedule.weekly_cron": c.Schedule.WeeklyCron,
		"schedule.assets_cron": c.Schedule.AssetsCron,
	}
	for name, spec := range specs {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Address returns host:port for the HTTP listener
func (s *ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
