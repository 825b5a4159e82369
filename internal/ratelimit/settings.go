package ratelimit

import (
	"strings"
	"time"

	"github.com/cloudbsd/admin-panel/internal/config"
)

// DefaultRedisPrefix namespaces limiter keys in a shared Redis.
const DefaultRedisPrefix = "cloudbsd:ratelimit"

// SettingsConfig captures the limiter settings in effect.
type SettingsConfig struct {
	Limit         int
	Window        time.Duration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsFromConfig derives limiter settings from the server configuration.
// Redis is used when an address is configured.
func SettingsFromConfig(cfg config.RateLimitConfig) SettingsConfig {
	out := SettingsConfig{
		Limit:         cfg.LoginPerMinute,
		Window:        time.Minute,
		RedisAddr:     strings.TrimSpace(cfg.RedisAddr),
		RedisPassword: strings.TrimSpace(cfg.RedisPassword),
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   DefaultRedisPrefix,
	}
	out.RedisEnabled = out.RedisAddr != ""
	if out.RedisDB < 0 {
		out.RedisDB = 0
	}
	if out.Limit < 0 {
		out.Limit = 0
	}
	return out
}
