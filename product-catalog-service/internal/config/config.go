package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/jacobmousa/OrderCatalog/pkg/database"
)

type Config struct {
	Port string

	DBDialect        database.Dialect
	DBDSN            string
	DBConnectRetries int
	DBConnectDelay   time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	RedisAddr     string
	CacheTTL      time.Duration
	WarmCacheOnUp bool

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel  string
	LogPretty bool
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dialect, err := database.ParseDialect(os.Getenv("DB_DRIVER"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		DBDialect:    dialect,
		DBDSN:        getEnv("DB_DSN", defaultDSN(dialect)),
		KafkaBrokers: splitBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_ORDER_TOPIC", "order-topic"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "product-service-group"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	var errs []error
	cfg.DBConnectRetries = getInt("DB_CONNECT_RETRIES", 10, &errs)
	cfg.DBConnectDelay = getDuration("DB_CONNECT_DELAY", 3*time.Second, &errs)
	cfg.CacheTTL = getDuration("CACHE_TTL", 10*time.Minute, &errs)
	cfg.WarmCacheOnUp = getBool("CACHE_WARM_ON_START", false, &errs)
	cfg.RateLimitRPS = getFloat("RATE_LIMIT_RPS", 0, &errs)
	cfg.RateLimitBurst = getInt("RATE_LIMIT_BURST", 20, &errs)
	cfg.LogPretty = getBool("LOG_PRETTY", false, &errs)
	if len(errs) > 0 {
		return nil, errs[0]
	}

	return cfg, nil
}

func defaultDSN(d database.Dialect) string {
	if d == database.SQLite {
		return "./products.db"
	}
	return "root:@tcp(127.0.0.1:3306)/product-db"
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func getFloat(k string, def float64, errs *[]error) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return f
}

func getBool(k string, def bool, errs *[]error) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}

func getDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}
