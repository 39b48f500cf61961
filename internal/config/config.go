package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port        string
	Storage     string
	DatabaseURL string
	DataDir     string
	// Engine policy
	RatesTTL        time.Duration
	PivotCurrency   string
	BaseCurrency    string
	StalePolicy     string
	StartingBalance string
	// Providers
	Provider            string
	CoinGeckoBase       string
	ExchangeRateAPIBase string
	ExchangeRateAPIKey  string
	RequestTimeout      time.Duration
	// Worker
	RefreshInterval time.Duration
	// Redis (idempotency)
	IdempotencyBackend string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisTTL           time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:                 getEnv("ENV", "local"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Port:                getEnv("PORT", "8080"),
		Storage:             getEnv("STORAGE", "json"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DataDir:             getEnv("DATA_DIR", "data"),
		RatesTTL:            time.Duration(atoiDef(getEnv("RATES_TTL_SECONDS", "300"), 300)) * time.Second,
		PivotCurrency:       getEnv("PIVOT_CURRENCY", "USD"),
		BaseCurrency:        getEnv("BASE_CURRENCY", "USD"),
		StalePolicy:         getEnv("STALE_POLICY", "warn"),
		StartingBalance:     getEnv("STARTING_BALANCE", "1000"),
		Provider:            getEnv("PROVIDER", "fake"),
		CoinGeckoBase:       getEnv("COINGECKO_API_BASE", "https://api.coingecko.com"),
		ExchangeRateAPIBase: getEnv("EXCHANGERATE_API_BASE", "https://v6.exchangerate-api.com"),
		ExchangeRateAPIKey:  getEnv("EXCHANGERATE_API_KEY", ""),
		RequestTimeout:      time.Duration(atoiDef(getEnv("REQUEST_TIMEOUT_MS", "10000"), 10000)) * time.Millisecond,
		RefreshInterval:     time.Duration(atoiDef(getEnv("REFRESH_INTERVAL_SECONDS", "300"), 300)) * time.Second,
		IdempotencyBackend:  getEnv("IDEMPOTENCY_BACKEND", "none"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             atoiDef(getEnv("REDIS_DB", "0"), 0),
		RedisTTL:            time.Duration(atoiDef(getEnv("IDEMPOTENCY_TTL_MS", "86400000"), 86400000)) * time.Millisecond,
	}
}
