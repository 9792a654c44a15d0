package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // ORDER_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string

	CartCookieSecret string
	CartCookieMaxAge time.Duration

	Freight           decimal.Decimal
	LedgerMaxAttempts int
	OrderTimeZone     *time.Location // zone order IDs are stamped in

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	LogLevel  string
	LogPretty bool
}

// Load reads the process environment, after merging an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		GRPCPort:         getEnv("GRPC_PORT", "50060"),
		DBDriver:         getEnv("DB_DRIVER", "postgres"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBUser:           getEnv("DB_USER", "mall"),
		DBPassword:       getEnv("DB_PASSWORD", "mall"),
		DBName:           getEnv("DB_NAME", "meiduo"),
		SQLitePath:       getEnv("SQLITE_PATH", "meiduo.db"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		CartCookieSecret: getEnv("CART_COOKIE_SECRET", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	cfg.DBPort, errs = parseInt("DB_PORT", "5432", errs)
	cfg.RedisDB, errs = parseInt("REDIS_DB", "0", errs)
	cfg.LedgerMaxAttempts, errs = parseInt("LEDGER_MAX_ATTEMPTS", "0", errs)
	cfg.CartCookieMaxAge, errs = parseDuration("CART_COOKIE_MAX_AGE", "8760h", errs)
	cfg.RequestTimeout, errs = parseDuration("REQUEST_TIMEOUT", "30s", errs)
	cfg.ShutdownTimeout, errs = parseDuration("SHUTDOWN_TIMEOUT", "10s", errs)

	pretty, err := strconv.ParseBool(getEnv("LOG_PRETTY", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_PRETTY: %w", err))
	}
	cfg.LogPretty = pretty

	freight, err := decimal.NewFromString(getEnv("FREIGHT", "10.00"))
	if err != nil {
		errs = append(errs, fmt.Errorf("FREIGHT: %w", err))
	}
	cfg.Freight = freight

	loc, err := time.LoadLocation(getEnv("ORDER_TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Errorf("ORDER_TIMEZONE: %w", err))
	}
	cfg.OrderTimeZone = loc

	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", cfg.DBDriver))
	}
	if len(cfg.CartCookieSecret) < 32 {
		errs = append(errs, errors.New("CART_COOKIE_SECRET: must be at least 32 bytes"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key, def string, errs []error) (int, []error) {
	v, err := strconv.Atoi(getEnv(key, def))
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s: %w", key, err))
	}
	return v, errs
}

func parseDuration(key, def string, errs []error) (time.Duration, []error) {
	v, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s: %w", key, err))
	}
	return v, errs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
