package config

import (
	"log/slog"
	"strings"
	"time"
)

// Recovery modes applied to unfinished deployments at startup.
const (
	RecoveryRequeue = "requeue"
	RecoveryFail    = "fail"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment          string
	Addr                 string
	LogLevel             slog.Level
	DatabaseURL          string
	MigrationsDir        string
	JWTSecret            string
	EnvEncryptionKey     string
	BuilderURL           string
	BuilderAuthToken     string
	BuilderTimeout       time.Duration
	CancelAckTimeout     time.Duration
	ExecutionTimeout     time.Duration
	DefaultMaxConcurrent int
	RecoveryMode         string
	ProjectsManifest     string
	RateLimitRedisAddr   string
	RateLimitRedisPass   string
	RateLimitRedisDB     int
	NotifyRedisAddr      string
	NotifyRedisPass      string
	NotifyRedisDB        int
	NotifyChannelPrefix  string
}

// LoadAPIConfig constructs an APIConfig from the environment and an optional CONFIG_FILE.
func LoadAPIConfig() APIConfig {
	if path := GetString("CONFIG_FILE", ""); path != "" {
		if err := LoadFile(path); err != nil {
			slog.Warn("config file not loaded", "path", path, "error", err)
		}
	}
	mode := strings.ToLower(GetString("RECOVERY_MODE", RecoveryRequeue))
	if mode != RecoveryFail {
		mode = RecoveryRequeue
	}
	return APIConfig{
		Environment:          GetString("APP_ENV", "development"),
		Addr:                 GetString("API_ADDR", ":4000"),
		LogLevel:             ParseLevel(GetString("LOG_LEVEL", "info")),
		DatabaseURL:          GetString("DATABASE_URL", ""),
		MigrationsDir:        GetString("DB_MIGRATIONS_DIR", ""),
		JWTSecret:            GetString("JWT_SECRET", "supersecuresecret"),
		EnvEncryptionKey:     GetString("ENV_ENCRYPTION_KEY", "supersecuresecret"),
		BuilderURL:           GetString("BUILDER_URL", "http://builder:5000"),
		BuilderAuthToken:     GetString("BUILDER_AUTH_TOKEN", ""),
		BuilderTimeout:       GetDuration("BUILDER_TIMEOUT_SECONDS", 10, time.Second),
		CancelAckTimeout:     GetDuration("CANCEL_ACK_TIMEOUT_SECONDS", 30, time.Second),
		ExecutionTimeout:     GetDuration("EXECUTION_TIMEOUT_MINUTES", 30, time.Minute),
		DefaultMaxConcurrent: GetInt("DEFAULT_MAX_CONCURRENT", 1),
		RecoveryMode:         mode,
		ProjectsManifest:     GetString("PROJECTS_MANIFEST", ""),
		RateLimitRedisAddr:   GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:   GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:     GetInt("RATE_LIMIT_REDIS_DB", 0),
		NotifyRedisAddr:      GetString("NOTIFY_REDIS_ADDR", ""),
		NotifyRedisPass:      GetString("NOTIFY_REDIS_PASSWORD", ""),
		NotifyRedisDB:        GetInt("NOTIFY_REDIS_DB", 0),
		NotifyChannelPrefix:  GetString("NOTIFY_CHANNEL_PREFIX", "deployments"),
	}
}

// ParseLevel maps a textual level to slog, defaulting to info.
func ParseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}
