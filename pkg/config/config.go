package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// MockAPIKeySentinel switches the fiat rate provider into deterministic
// mock mode when used as the ExchangeRate-API key.
const MockAPIKeySentinel = "MOCK_KEY_FOR_NOW"

// Config holds the core runtime configuration for a service instance.
// It is built once at process start and passed by pointer into every
// component constructor; nothing reads the environment after Load.
type Config struct {
	ServiceName string // e.g. "valutatrade-hub"
	Env         string // "dev", "uat", "prod"
	LogLevel    string // "debug", "info", ...
	Port        int    // HTTP API port

	// Persistence layout. All documents live under DataDir as JSON files
	// unless a Redis or Postgres backend is configured.
	DataDir        string
	UsersFile      string
	PortfoliosFile string
	RatesFile      string
	HistoryFile    string
	BackupCount    int // rotating .bak copies kept per document

	// Optional backends.
	RedisAddr   string // rates document in Redis when set
	RedisDB     int
	DatabaseURL string // rate history in Postgres when set
	NATSURL     string // event publishing when set
	AWSRegion   string

	// Trading rules.
	BaseCurrency   string
	MinTradeAmount decimal.Decimal
	CommissionRate decimal.Decimal

	// Rate cache and providers.
	RatesTTL            time.Duration
	RefreshInterval     time.Duration // background refresh; 0 = on demand only
	RequestTimeout      time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	ProviderRPS         int
	ProviderBurst       int
	CoinGeckoURL        string
	ExchangeRateURL     string
	ExchangeRateAPIKey  string
	ExchangeRateSecret  string // AWS Secrets Manager key holding the API key
	FiatCurrencies      []string
	CryptoCurrencies    []string
	CryptoIDMap         map[string]string
	HistoryRetention    int // observations kept per pair in the JSON history file
	PublishSubjectBase  string
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: GetEnv("SERVICE_NAME", "valutatrade-hub"),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		Port:        GetEnvInt("PORT", 9040),

		DataDir:        GetEnv("DATA_DIR", "data"),
		UsersFile:      GetEnv("USERS_FILE", "users.json"),
		PortfoliosFile: GetEnv("PORTFOLIOS_FILE", "portfolios.json"),
		RatesFile:      GetEnv("RATES_FILE", "rates.json"),
		HistoryFile:    GetEnv("HISTORY_FILE", "exchange_rates.json"),
		BackupCount:    GetEnvInt("BACKUP_COUNT", 3),

		RedisAddr:   GetEnv("REDIS_ADDR", ""),
		RedisDB:     GetEnvInt("REDIS_DB", 0),
		DatabaseURL: GetEnv("DATABASE_URL", ""),
		NATSURL:     GetEnv("NATS_URL", ""),
		AWSRegion:   GetEnv("AWS_REGION", "us-east-2"),

		BaseCurrency:   GetEnv("BASE_CURRENCY", "USD"),
		MinTradeAmount: GetEnvDecimal("MIN_TRADE_AMOUNT", "0.0001"),
		CommissionRate: GetEnvDecimal("COMMISSION_RATE", "0.001"),

		RatesTTL:           GetEnvDuration("RATES_TTL", 5*time.Minute),
		RefreshInterval:    GetEnvDuration("REFRESH_INTERVAL", 0),
		RequestTimeout:     GetEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		MaxRetries:         GetEnvInt("MAX_RETRIES", 3),
		RetryDelay:         GetEnvDuration("RETRY_DELAY", 2*time.Second),
		ProviderRPS:        GetEnvInt("PROVIDER_RPS", 5),
		ProviderBurst:      GetEnvInt("PROVIDER_BURST", 10),
		CoinGeckoURL:       GetEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3/simple/price"),
		ExchangeRateURL:    GetEnv("EXCHANGERATE_URL", "https://v6.exchangerate-api.com/v6"),
		ExchangeRateAPIKey: GetEnv("EXCHANGERATE_API_KEY", MockAPIKeySentinel),
		ExchangeRateSecret: GetEnv("EXCHANGERATE_SECRET_NAME", ""),
		FiatCurrencies:     GetEnvList("FIAT_CURRENCIES", []string{"EUR", "GBP", "RUB", "JPY", "CHF"}),
		CryptoCurrencies:   GetEnvList("CRYPTO_CURRENCIES", []string{"BTC", "ETH", "LTC", "XRP", "ADA", "SOL", "DOT"}),
		CryptoIDMap: map[string]string{
			"BTC": "bitcoin",
			"ETH": "ethereum",
			"LTC": "litecoin",
			"XRP": "ripple",
			"ADA": "cardano",
			"SOL": "solana",
			"DOT": "polkadot",
		},
		HistoryRetention:   GetEnvInt("HISTORY_RETENTION", 100),
		PublishSubjectBase: GetEnv("OUTBOUND_SUBJECT_BASE", "evt.hub"),
	}

	return cfg
}

// MockMode reports whether the fiat provider should run against fixed rates
// instead of the real ExchangeRate-API.
func (c *Config) MockMode() bool {
	return c.ExchangeRateAPIKey == MockAPIKeySentinel
}
