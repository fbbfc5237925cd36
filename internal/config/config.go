package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Bot      BotConfig
	Server   ServerConfig
	Database DatabaseConfig
	Payment  PaymentConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Feed     FeedConfig
}

type BotConfig struct {
	Token    string
	AdminIDs []int64
	Debug    bool
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// IsPostgres reports whether URL points at PostgreSQL; anything else is a SQLite path.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://")
}

type PaymentConfig struct {
	Provider            string
	YooKassaShopID      string
	YooKassaSecretKey   string
	YooKassaBaseURL     string
	ReturnURL           string
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	Timeout             time.Duration
	PollSpec            string
	LockTTL             time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	EventSubmitted string
	EventModerated string
	PromoPaid      string
}

type FeedConfig struct {
	Limit    int
	Timezone string
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Bot: BotConfig{
			Token:    getEnv("BOT_TOKEN", ""),
			AdminIDs: parseIDs(getEnv("ADMIN_IDS", "")),
			Debug:    getEnvBool("BOT_DEBUG", false),
		},
		Server: ServerConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", "eventsnow.db"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Payment: PaymentConfig{
			Provider:            strings.ToLower(getEnv("PAYMENT_PROVIDER", "yookassa")),
			YooKassaShopID:      getEnv("YOOKASSA_SHOP_ID", ""),
			YooKassaSecretKey:   getEnv("YOOKASSA_SECRET_KEY", ""),
			YooKassaBaseURL:     getEnv("YOOKASSA_BASE_URL", "https://api.yookassa.ru/v3"),
			ReturnURL:           getEnv("PAYMENT_RETURN_URL", "https://t.me/"),
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:            getEnv("PAYMENT_CURRENCY", "RUB"),
			Timeout:             getEnvDuration("PAYMENT_TIMEOUT", 20*time.Second),
			PollSpec:            getEnv("PAYMENT_POLL_SPEC", "0 */2 * * * *"),
			LockTTL:             time.Duration(getEnvInt("PAYMENT_LOCK_TTL_SECONDS", 60)) * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				EventSubmitted: getEnv("KAFKA_TOPIC_EVENT_SUBMITTED", "eventsnow.event.submitted"),
				EventModerated: getEnv("KAFKA_TOPIC_EVENT_MODERATED", "eventsnow.event.moderated"),
				PromoPaid:      getEnv("KAFKA_TOPIC_PROMO_PAID", "eventsnow.promo.paid"),
			},
		},
		Feed: FeedConfig{
			Limit:    getEnvInt("FEED_LIMIT", 10),
			Timezone: getEnv("FEED_TIMEZONE", "Europe/Moscow"),
		},
	}
}

// IsAdmin reports whether the Telegram user id is listed in ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Bot.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
