package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port          string
	Environment   string
	AllowedOrigin string

	DatabaseURL    string
	DBMaxRetries   int
	DBAutoMigrate  bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration
	KafkaBrokers   []string
	KafkaTopic     string

	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string

	ParkedCartTTL               time.Duration
	ExpiryOverrideEnabled       bool
	AdjustmentApprovalThreshold decimal.Decimal
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	retries, err := strconv.Atoi(getEnv("DB_MAX_RETRIES", "3"))
	if err != nil || retries < 0 {
		retries = 3
	}
	threshold, err := decimal.NewFromString(getEnv("ADJUSTMENT_APPROVAL_THRESHOLD", "10"))
	if err != nil || threshold.IsNegative() {
		threshold = decimal.NewFromInt(10)
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		Environment:   getEnv("APP_ENV", "development"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxRetries:   retries,
		DBAutoMigrate:  getBool("DB_AUTO_MIGRATE", true),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        redisDB,
		IdempotencyTTL: getDuration("IDEMPOTENCY_CACHE_TTL", 24*time.Hour),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "pos.events"),

		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),

		ParkedCartTTL:               getDuration("PARKED_CART_TTL", 4*time.Hour),
		ExpiryOverrideEnabled:       getBool("EXPIRY_OVERRIDE_ENABLED", false),
		AdjustmentApprovalThreshold: threshold,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	out := make([]string, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
