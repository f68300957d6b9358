// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// maxTopSymbols is the hard ceiling on the ranking size.
const maxTopSymbols = 100

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// LogLevel is a logrus level name ("debug", "info", ...).
	LogLevel string

	// Exchange is the exchange identifier every component works against.
	Exchange string

	// DBDSN is the ClickHouse connection string of the time-series sink.
	DBDSN string

	// Redis contains connection settings for the Control Channel and stores.
	Redis RedisConfig

	// Keys contains the channel and key names shared through Redis.
	Keys KeysConfig

	// Kafka contains Ingestion Queue settings.
	Kafka KafkaConfig

	// Minion contains settings for the orchestrator, adapters and ranking loop.
	Minion MinionConfig

	// Hopper contains settings for the consumer worker pool.
	Hopper HopperConfig
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is optional.
	Password string

	// DB is the logical database number.
	DB int
}

// KeysConfig holds the Redis channel and key names.
type KeysConfig struct {
	// ControlChannel is the pub/sub channel carrying control messages.
	ControlChannel string

	// ReplyChannel receives list_watch replies.
	ReplyChannel string

	// Watches is the persisted list of watched symbols.
	Watches string

	// TopSymbols is the persisted last-published ranking.
	TopSymbols string

	// Intervals is the persisted default kline interval set.
	Intervals string
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses (comma-separated in env).
	Brokers []string

	// Topic is the ingestion topic carrying normalized records.
	Topic string

	// DeadLetterTopic receives records that exhausted their attempts.
	DeadLetterTopic string

	// GroupID is the consumer group shared by all hopper workers.
	GroupID string
}

// MinionConfig holds orchestration settings.
type MinionConfig struct {
	// QuoteAsset filters ranked symbols by suffix (e.g. "usdt").
	QuoteAsset string

	// TopCount is the number of symbols kept by the ranking loop.
	TopCount int

	// TickerInterval is the ranking loop period.
	TickerInterval time.Duration

	// KlineIntervals are the kline granularities subscribed by default.
	KlineIntervals []string

	// DrainGrace bounds how long a stopping adapter waits for in-flight writes.
	DrainGrace time.Duration
}

// HopperConfig holds worker pool settings.
type HopperConfig struct {
	// Workers is the number of competing consumers.
	Workers int

	// ReportInterval is how often counters are logged and reset.
	ReportInterval time.Duration

	// MaxAttempts bounds redelivery before a record is dead-lettered.
	MaxAttempts int

	// PollTimeout bounds a single fetch so the stop flag is checked regularly.
	PollTimeout time.Duration
}

// getDatabaseDSN constructs the ClickHouse DSN from environment variables.
func getDatabaseDSN() string {
	dbUser := getEnv("CLICKHOUSE_USER", "default")
	dbPassword := getEnv("CLICKHOUSE_PASSWORD", "")
	dbHost := getEnv("CLICKHOUSE_HOST", "localhost")
	dbPort := getEnv("CLICKHOUSE_TCP_PORT", "9000")
	dbName := getEnv("CLICKHOUSE_DB", "minions")

	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%s/%s?dial_timeout=10s&read_timeout=20s",
		dbUser, dbPassword, dbHost, dbPort, dbName,
	)
}

// getKeysConfig derives channel and key names from the two namespace roots.
func getKeysConfig() KeysConfig {
	minionChan := getEnv("MINION_CHAN", "system:minions")
	configKey := getEnv("CONFIG_KEY", "system:config")

	return KeysConfig{
		ControlChannel: minionChan,
		ReplyChannel:   getEnv("MINION_REPLY_CHAN", minionChan+":watches"),
		Watches:        configKey + ":websockets",
		TopSymbols:     configKey + ":top_symbols",
		Intervals:      configKey + ":intervals",
	}
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	topCount := getEnvInt("TOP_SYMBOLS_COUNT", 20)
	if topCount < 1 {
		topCount = 1
	}
	if topCount > maxTopSymbols {
		topCount = maxTopSymbols
	}

	return &AppConfig{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Exchange: getEnv("EXCHANGE", "binance"),
		DBDSN:    getDatabaseDSN(),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Keys: getKeysConfig(),
		Kafka: KafkaConfig{
			Brokers:         getEnvList("KAFKA_BROKER", []string{"localhost:9092"}),
			Topic:           getEnv("KAFKA_TOPIC", "ws-binance"),
			DeadLetterTopic: getEnv("KAFKA_DLQ_TOPIC", "ws-binance-dlq"),
			GroupID:         getEnv("KAFKA_GROUP_ID", "hopper"),
		},
		Minion: MinionConfig{
			QuoteAsset:     strings.ToUpper(getEnv("MONITOR_SYMBOL", "usdt")),
			TopCount:       topCount,
			TickerInterval: getEnvDuration("TICKER_INTERVAL", 15*time.Second),
			KlineIntervals: getEnvList("KLINES_INTERVALS", []string{"2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w"}),
			DrainGrace:     getEnvDuration("DRAIN_GRACE", 6*time.Second),
		},
		Hopper: HopperConfig{
			Workers:        max(getEnvInt("HOPPER_WORKERS", 4), 1),
			ReportInterval: getEnvDuration("HOPPER_REPORT_INTERVAL", 10*time.Second),
			MaxAttempts:    max(getEnvInt("HOPPER_MAX_ATTEMPTS", 3), 1),
			PollTimeout:    getEnvDuration("HOPPER_POLL_TIMEOUT", 2*time.Second),
		},
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go durations ("15s") or plain milliseconds ("15000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		if ms <= 0 {
			return defaultValue
		}
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
