package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (provisioning queue, sweep dedup keys, advisory locks)
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// YooKassa
	YooKassaShopID        string
	YooKassaSecretKey     string
	YooKassaWebhookSecret string
	YooKassaAllowedCIDRs  []string
	PaymentReturnURL      string

	// 3x-ui panels
	PanelTimeout time.Duration

	// Provisioning queue
	QueueWorkers    int
	QueueMaxRetries int

	// Expiry sweep
	SweepInterval time.Duration

	// Public subscription feed
	PublicBaseURL  string
	FeedNamePrefix string

	// Admin
	AdminEmails string
	AdminToken  string

	// Server
	Port        string
	CORSOrigins string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment")
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "safesurf"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		YooKassaShopID:        getEnv("YOOKASSA_SHOP_ID", ""),
		YooKassaSecretKey:     getEnv("YOOKASSA_SECRET_KEY", ""),
		YooKassaWebhookSecret: getEnv("YOOKASSA_WEBHOOK_SECRET", ""),
		// YooKassa notification source ranges.
		YooKassaAllowedCIDRs: parseCSV(getEnv("YOOKASSA_ALLOWED_CIDRS",
			"185.71.76.0/27,185.71.77.0/27,77.75.153.0/25,77.75.156.224/28,77.75.154.128/25,2a02:5180::/32")),
		PaymentReturnURL: getEnv("PAYMENT_RETURN_URL", "https://safesurf.tech/profile"),

		PanelTimeout: parseDuration(getEnv("PANEL_TIMEOUT", "10s"), 10*time.Second),

		QueueWorkers:    parseInt(getEnv("QUEUE_WORKERS", "3"), 3),
		QueueMaxRetries: parseInt(getEnv("QUEUE_MAX_RETRIES", "5"), 5),

		SweepInterval: parseDuration(getEnv("SWEEP_INTERVAL", "10m"), 10*time.Minute),

		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "https://safesurf.tech"),
		FeedNamePrefix: getEnv("FEED_NAME_PREFIX", "safesurf"),

		AdminEmails: getEnv("ADMIN_EMAILS", ""),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
