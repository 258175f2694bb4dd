package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	// ApplicationName and StatementTimeout are set as session parameters on every connection.
	ApplicationName  string
	StatementTimeout time.Duration
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds delivery channel settings.
type NotificationConfig struct {
	DefaultChannel string
	EmailFrom      string
	WebhookURL     string
	SlackBotToken  string
	SlackChannelID string
	SendTimeout    time.Duration
}

// SLAConfig tunes the alert scanner and workload balancer.
type SLAConfig struct {
	ScanInterval       time.Duration
	ScanLockTTL        time.Duration
	WarningRatio       float64
	RebalanceSchedule  string
	RebalanceThreshold int
	SeedFile           string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	warningRatio, err := strconv.ParseFloat(getEnv("SLA_WARNING_RATIO", "0.8"), 64)
	if err != nil || warningRatio <= 0 || warningRatio >= 1 {
		return nil, fmt.Errorf("invalid SLA_WARNING_RATIO: must be between 0 and 1")
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-sla"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),

			ApplicationName:  getEnv("POSTGRES_APPLICATION_NAME", getEnv("APP_NAME", "helpdesk-sla")),
			StatementTimeout: getEnvAsDuration("POSTGRES_STATEMENT_TIMEOUT", 15*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			DefaultChannel: getEnv("NOTIFY_DEFAULT_CHANNEL", "internal"),
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			SlackBotToken:  os.Getenv("NOTIFY_SLACK_BOT_TOKEN"),
			SlackChannelID: os.Getenv("NOTIFY_SLACK_CHANNEL_ID"),
			SendTimeout:    getEnvAsDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
		},
		SLA: SLAConfig{
			ScanInterval:       getEnvAsDuration("SLA_SCAN_INTERVAL", 60*time.Second),
			ScanLockTTL:        getEnvAsDuration("SLA_SCAN_LOCK_TTL", 55*time.Second),
			WarningRatio:       warningRatio,
			RebalanceSchedule:  getEnv("SLA_REBALANCE_SCHEDULE", "*/15 * * * *"),
			RebalanceThreshold: getEnvAsInt("SLA_REBALANCE_THRESHOLD", 5),
			SeedFile:           os.Getenv("SLA_SEED_FILE"),
		},
	}

	if cfg.SLA.ScanInterval <= 0 {
		return nil, fmt.Errorf("invalid SLA_SCAN_INTERVAL: must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SlackConfigured reports whether a Slack bot token is present.
func (n NotificationConfig) SlackConfigured() bool {
	return n.SlackBotToken != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
