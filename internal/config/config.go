package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Rent     RentConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	PhonePe  PhonePeConfig
}

// RentConfig tunes selection accrual and write behavior.
type RentConfig struct {
	Timezone          string
	OptimisticRetries int
	PlanSeedFile      string
}

type RedisConfig struct {
	Enabled            bool
	Addr               string
	Password           string
	DB                 int
	LockTTLSeconds     int
	LockWaitMillis     int
	WebhookRate        float64
	WebhookBurst       int
	WebhookRateEnabled bool
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// PhonePeConfig carries the callback credentials agreed with the gateway.
type PhonePeConfig struct {
	MerchantID      string
	WebhookUsername string
	WebhookPassword string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "fleetrent"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fleetrent"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		Rent: RentConfig{
			Timezone:          getenv("RENT_TIMEZONE", "Asia/Kolkata"),
			OptimisticRetries: int(getenvInt64("RENT_OPTIMISTIC_RETRIES", 3)),
			PlanSeedFile:      strings.TrimSpace(getenv("RENT_PLAN_SEED_FILE", "")),
		},
		Redis: RedisConfig{
			Enabled:            getenvBool("REDIS_ENABLED", false),
			Addr:               strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password:           strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:                 int(getenvInt64("REDIS_DB", 0)),
			LockTTLSeconds:     int(getenvInt64("REDIS_LOCK_TTL_SECONDS", 10)),
			LockWaitMillis:     int(getenvInt64("REDIS_LOCK_WAIT_MILLIS", 2000)),
			WebhookRateEnabled: getenvBool("WEBHOOK_RATE_LIMIT_ENABLED", false),
			WebhookRate:        getenvFloat("WEBHOOK_RATE_PER_SECOND", 20),
			WebhookBurst:       int(getenvInt64("WEBHOOK_RATE_BURST", 40)),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      strings.TrimSpace(getenv("RABBITMQ_URL", "")),
			Exchange: getenv("RABBITMQ_EXCHANGE", "fleetrent_events"),
		},
		PhonePe: PhonePeConfig{
			MerchantID:      strings.TrimSpace(getenv("PHONEPE_MERCHANT_ID", "")),
			WebhookUsername: strings.TrimSpace(getenv("PHONEPE_WEBHOOK_USERNAME", "")),
			WebhookPassword: strings.TrimSpace(getenv("PHONEPE_WEBHOOK_PASSWORD", "")),
		},
	}

	if cfg.Rent.OptimisticRetries <= 0 {
		cfg.Rent.OptimisticRetries = 1
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
