package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN         string
		AutoMigrate bool
	}
	API struct {
		Port      string
		BasePath  string
		RateLimit string // ulule formatted rate, e.g. "300-M"
	}
	Kafka struct {
		Broker        string
		LocationTopic string
		AlertTopic    string
		GroupID       string
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	RateLimit struct {
		PanicMax       int
		PanicWindow    time.Duration
		LocationMax    int
		LocationWindow time.Duration
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Dispatch struct {
		Enabled   bool
		Providers []string
		OpsEmails []string
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	Email struct {
		SMTPServer  string
		SMTPPort    int
		Username    string
		Password    string
		FromName    string
		FromAddress string
	}
	Telegram struct {
		BotToken      string
		ChatID        int64
		RatePerSecond float64
	}
	Security struct {
		EncryptionKey string
		AdminAPIKey   string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Scheduler struct {
		ScoreRefresh string
		LimiterPrune string
	}
	Seed struct {
		ZonesFile string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Database
	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.DB.AutoMigrate = boolEnv("DB_AUTO_MIGRATE", true)

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	cfg.API.RateLimit = os.Getenv("HTTP_RATE_LIMIT")

	// Kafka settings. An empty broker disables Kafka.
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.LocationTopic = os.Getenv("KAFKA_LOCATION_TOPIC")
	cfg.Kafka.AlertTopic = os.Getenv("KAFKA_ALERT_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Notification worker settings
	cfg.Notification.QueueSize = intEnv("QUEUE_SIZE", 500)
	cfg.Notification.MaxWorkers = intEnv("MAX_WORKERS", 10)

	// Engine limiters
	cfg.RateLimit.PanicMax = intEnv("PANIC_RATE_MAX", 3)
	cfg.RateLimit.PanicWindow = durationEnv("PANIC_RATE_WINDOW", 60*time.Second)
	cfg.RateLimit.LocationMax = intEnv("LOCATION_RATE_MAX", 120)
	cfg.RateLimit.LocationWindow = durationEnv("LOCATION_RATE_WINDOW", 300*time.Second)

	// Redis backs the HTTP throttle when set
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = intEnv("REDIS_DB", 0)

	// Emergency dispatch
	cfg.Dispatch.Enabled = boolEnv("SAFETY_DISPATCH_ENABLED", false)
	cfg.Dispatch.Providers = providers(os.Getenv("SAFETY_DISPATCH_PROVIDER"))
	cfg.Dispatch.OpsEmails = list(os.Getenv("SAFETY_DISPATCH_TO_EMAILS"))

	cfg.SMS.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")

	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = intEnv("EMAIL_SMTP_PORT", 587)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")
	cfg.Email.FromAddress = os.Getenv("SAFETY_DISPATCH_FROM_EMAIL")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}
	if r, err := strconv.ParseFloat(os.Getenv("TELEGRAM_RATE_PER_SECOND"), 64); err == nil {
		cfg.Telegram.RatePerSecond = r
	}

	cfg.Security.EncryptionKey = os.Getenv("SAFETY_ENCRYPTION_KEY")
	cfg.Security.AdminAPIKey = os.Getenv("ADMIN_API_KEY")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	cfg.Scheduler.ScoreRefresh = os.Getenv("SCORE_REFRESH_SPEC")
	cfg.Scheduler.LimiterPrune = os.Getenv("LIMITER_PRUNE_SPEC")

	cfg.Seed.ZonesFile = os.Getenv("RISK_ZONES_FILE")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Dispatch.Enabled && cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api"
	}
	if cfg.API.RateLimit == "" {
		cfg.API.RateLimit = "600-M"
	}
	if cfg.Kafka.LocationTopic == "" {
		cfg.Kafka.LocationTopic = "tourist_locations"
	}
	if cfg.Kafka.AlertTopic == "" {
		cfg.Kafka.AlertTopic = "safety_alerts"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "safety-service"
	}
	if cfg.Telegram.RatePerSecond <= 0 {
		cfg.Telegram.RatePerSecond = 1
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Scheduler.ScoreRefresh == "" {
		cfg.Scheduler.ScoreRefresh = "@every 15m"
	}
	if cfg.Scheduler.LimiterPrune == "" {
		cfg.Scheduler.LimiterPrune = "@every 5m"
	}

	return cfg, nil
}

// ProviderEnabled reports whether dispatch is on and name is one of the configured providers.
func (c Config) ProviderEnabled(name string) bool {
	if !c.Dispatch.Enabled {
		return false
	}
	for _, p := range c.Dispatch.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Warnings lists settings that leave the service running in a weaker mode.
func (c Config) Warnings() []string {
	var out []string
	if c.Security.EncryptionKey == "" {
		out = append(out, "SAFETY_ENCRYPTION_KEY not set, tourist PII is stored in plain text")
	}
	if c.Security.AdminAPIKey == "" {
		out = append(out, "ADMIN_API_KEY not set, any caller sending X-Actor-Role: admin is treated as admin and X-Actor-ID is trusted as is")
	}
	return out
}

func intEnv(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func boolEnv(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func list(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// providers maps vendor names to channels so "twilio" and "sendgrid" keep working.
func providers(raw string) []string {
	var out []string
	for _, p := range list(strings.ToLower(raw)) {
		switch p {
		case "twilio":
			p = "sms"
		case "sendgrid", "smtp":
			p = "email"
		}
		out = append(out, p)
	}
	return out
}
