package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string
	Env      string
	LogLevel string

	BackendURL string

	TossSecretKey   string
	TossClientKey   string
	TossCustomerKey string
	TossAPIURL      string

	KafkaBrokers []string

	DatabaseURL string
	LedgerPath  string
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		Addr:     EnvDefault("ADDR", ":3000"),
		Env:      EnvDefault("ENV", "development"),
		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		BackendURL: os.Getenv("BACKEND_URL"),

		TossSecretKey:   os.Getenv("TOSS_SECRET_KEY"),
		TossClientKey:   os.Getenv("TOSS_CLIENT_KEY"),
		TossCustomerKey: os.Getenv("TOSS_CUSTOMER_KEY"),
		TossAPIURL:      EnvDefault("TOSS_API_URL", "https://api.tosspayments.com"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		LedgerPath:  EnvDefault("LEDGER_PATH", "payments.db"),
	}

	MustNonEmpty(cfg.BackendURL, "BACKEND_URL")
	MustNonEmpty(cfg.TossSecretKey, "TOSS_SECRET_KEY")

	return cfg
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}
