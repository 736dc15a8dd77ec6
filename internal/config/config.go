// Package config reads service settings from the environment. A .env file in
// the working directory is loaded first when present; real environment
// variables win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	SequencerStore = "postgres"
	SequencerRedis = "redis"
)

type Config struct {
	Port           string
	DatabaseURL    string
	Store          string
	TaxRate        decimal.Decimal
	Sequencer      string
	RedisAddr      string
	PaymentURL     string
	KafkaBrokers   string
	KafkaTopic     string
	OutboxPoll     time.Duration
	JWTSecret      string
	CheckoutRPS    float64
	CheckoutBurst  int
	RequestTimeout time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()
	return read()
}

func read() (Config, error) {
	cfg := Config{
		Port:         getenv("PORT", "8080"),
		DatabaseURL:  getenv("DATABASE_URL", ""),
		Sequencer:    strings.ToLower(getenv("SEQUENCER", SequencerStore)),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		PaymentURL:   strings.TrimRight(getenv("PAYMENT_BASE_URL", ""), "/"),
		KafkaBrokers: getenv("KAFKA_BROKERS", ""),
		KafkaTopic:   getenv("KAFKA_TOPIC", "quickmart.orders"),
		JWTSecret:    getenv("JWT_SECRET", ""),
	}

	cfg.Store = strings.ToLower(getenv("STORE", ""))
	if cfg.Store == "" {
		cfg.Store = StoreMemory
		if cfg.DatabaseURL != "" {
			cfg.Store = StorePostgres
		}
	}
	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for STORE=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	switch cfg.Sequencer {
	case SequencerStore:
	case SequencerRedis:
		if cfg.RedisAddr == "" {
			return Config{}, errors.New("REDIS_ADDR is required for SEQUENCER=redis")
		}
	default:
		return Config{}, fmt.Errorf("unknown SEQUENCER %q", cfg.Sequencer)
	}

	rate, err := decimal.NewFromString(getenv("TAX_RATE", "0.05"))
	if err != nil || rate.IsNegative() {
		return Config{}, fmt.Errorf("invalid TAX_RATE %q", os.Getenv("TAX_RATE"))
	}
	cfg.TaxRate = rate

	pollMS, err := strconv.Atoi(getenv("OUTBOX_POLL_MS", "1000"))
	if err != nil || pollMS <= 0 {
		return Config{}, fmt.Errorf("invalid OUTBOX_POLL_MS %q", os.Getenv("OUTBOX_POLL_MS"))
	}
	cfg.OutboxPoll = time.Duration(pollMS) * time.Millisecond

	cfg.CheckoutRPS, err = strconv.ParseFloat(getenv("CHECKOUT_RATE_RPS", "50"), 64)
	if err != nil || cfg.CheckoutRPS < 0 {
		return Config{}, fmt.Errorf("invalid CHECKOUT_RATE_RPS %q", os.Getenv("CHECKOUT_RATE_RPS"))
	}
	cfg.CheckoutBurst, err = strconv.Atoi(getenv("CHECKOUT_RATE_BURST", "100"))
	if err != nil || cfg.CheckoutBurst < 0 {
		return Config{}, fmt.Errorf("invalid CHECKOUT_RATE_BURST %q", os.Getenv("CHECKOUT_RATE_BURST"))
	}

	toutMS, err := strconv.Atoi(getenv("REQUEST_TIMEOUT_MS", "5000"))
	if err != nil || toutMS <= 0 {
		return Config{}, fmt.Errorf("invalid REQUEST_TIMEOUT_MS %q", os.Getenv("REQUEST_TIMEOUT_MS"))
	}
	cfg.RequestTimeout = time.Duration(toutMS) * time.Millisecond
	return cfg, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
