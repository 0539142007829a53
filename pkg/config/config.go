package config

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	mu  sync.RWMutex
	env = newViper()
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadFile merges a YAML, JSON or TOML file beneath the environment.
// Environment variables keep precedence over values from the file.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	env.SetConfigFile(path)
	return env.MergeInConfig()
}

func lookup(key string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if !env.IsSet(key) {
		return "", false
	}
	return env.GetString(key), true
}

// GetString retrieves a configuration value or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves a configuration value as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := lookup(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			slog.Warn("invalid config value", "key", key, "error", err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves a configuration value as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := lookup(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			slog.Warn("invalid config value", "key", key, "error", err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetDuration reads an integer count of unit, e.g. GetDuration("X_SECONDS", 30, time.Second).
func GetDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(GetInt(key, fallback)) * unit
}
