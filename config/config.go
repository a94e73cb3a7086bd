package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Ledger   LedgerConfig
	Session  SessionConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Receipt  ReceiptConfig
	Observ   ObservabilityConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type LedgerConfig struct {
	URL             string
	SubmitURL       string
	CatalogSheet    string
	HistorySheet    string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	PushStock       bool
}

type SessionConfig struct {
	StartToken        string
	StockCheckMode    string
	SubmittedTTL      time.Duration
	SubmissionLockTTL time.Duration
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicOrder    string
	ConsumerGroup string
}

type ReceiptConfig struct {
	Dir      string
	Header   string
	Footer   string
	Timezone string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

func Load() *Config {
	_ = godotenv.Load()

	ledgerURL := getEnv("LEDGER_URL", "")

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", ""),
		},
		Ledger: LedgerConfig{
			URL:             ledgerURL,
			SubmitURL:       getEnv("LEDGER_SUBMIT_URL", ledgerURL),
			CatalogSheet:    getEnv("LEDGER_CATALOG_SHEET", "Inventario"),
			HistorySheet:    getEnv("LEDGER_HISTORY_SHEET", "Pedidos"),
			Timeout:         getSeconds("LEDGER_TIMEOUT_SECONDS", 20),
			BreakerFailures: uint32(getInt("LEDGER_BREAKER_FAILURES", 3)),
			BreakerCooldown: getSeconds("LEDGER_BREAKER_COOLDOWN_SECONDS", 30),
			PushStock:       getBool("LEDGER_PUSH_STOCK", false),
		},
		Session: SessionConfig{
			StartToken:        getEnv("ORDER_START_TOKEN", "TG-0000001"),
			StockCheckMode:    getEnv("STOCK_CHECK_MODE", "per_call"),
			SubmittedTTL:      getSeconds("SUBMITTED_TTL_SECONDS", 30*24*60*60),
			SubmissionLockTTL: getSeconds("SUBMISSION_LOCK_TTL_SECONDS", 60),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			TopicOrder:    getEnv("KAFKA_TOPIC_ORDER_EVENTS", "pos-order-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "pos-receipt-worker"),
		},
		Receipt: ReceiptConfig{
			Dir:      getEnv("RECEIPT_DIR", "receipts"),
			Header:   getEnv("RECEIPT_HEADER", ""),
			Footer:   getEnv("RECEIPT_FOOTER", "Thank you for your purchase"),
			Timezone: getEnv("RECEIPT_TIMEZONE", "UTC"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, ledger=%t", cfg.Server.Env, cfg.Server.Port, cfg.Ledger.URL != "")
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func getSeconds(key string, defaultVal int) time.Duration {
	return time.Duration(getInt(key, defaultVal)) * time.Second
}

func getBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return b
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
