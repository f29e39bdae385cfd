package config

import (
	"os"
	"strconv"
	"time"

	"chaintix/internal/ledger/gateway"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Ledger configuration
	LedgerBackend string // redis | memory | gateway
	LedgerTimeout time.Duration

	// Listing configuration
	ListingFee decimal.Decimal

	// Gateway configuration (only used when LedgerBackend == "gateway")
	Gateway gateway.Config

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Gate server
	GatePort string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Ledger
		LedgerBackend: getEnv("LEDGER_BACKEND", "redis"),
		LedgerTimeout: getEnvAsDuration("LEDGER_TIMEOUT", "5s"),

		// Listing
		ListingFee: getEnvAsDecimal("LISTING_FEE", "0.01"),

		// Gateway
		Gateway: gateway.Config{
			BaseURL:     getEnv("GATEWAY_BASE_URL", ""),
			PartnerID:   getEnv("GATEWAY_PARTNER_ID", ""),
			ClientID:    getEnv("GATEWAY_CLIENT_ID", ""),
			ClientKey:   getEnv("GATEWAY_CLIENT_KEY", ""),
			HMACKey:     getEnv("GATEWAY_HMAC_KEY", ""),
			PNSubKey:    getEnv("GATEWAY_PN_SUBKEY", ""),
			PNSubSecret: getEnv("GATEWAY_PN_SUBSECRET", ""),
			PNUUID:      getEnv("GATEWAY_PN_UUID", ""),
			PNChannel:   getEnv("GATEWAY_PN_CHANNEL", ""),
		},

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Gate server
		GatePort: getEnv("GATE_PORT", "8091"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	value, _ := decimal.NewFromString(defaultValue)
	return value
}
