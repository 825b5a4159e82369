package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath     = "CONFIG_PATH"
	EnvPort           = "PORT"
	EnvDBConnection   = "DB_CONNECTION"
	EnvJWTSecret      = "JWT_SECRET"
	EnvJWTExpiry      = "JWT_EXPIRY"
	EnvDemoMode       = "DEMO_MODE"
	EnvLogLevel       = "LOG_LEVEL"
	EnvRedisAddr      = "REDIS_ADDR"
	EnvTrustedProxies = "TRUSTED_PROXIES" // comma-separated IPs or CIDRs
)

// DefaultSecretKey is the placeholder signing key shipped in the sample config.
const DefaultSecretKey = "your-secret-key-change-me"

// systemConfigDir is where packaged installations keep their configuration.
const systemConfigDir = "/usr/local/etc/cloudbsd/admin-panel"

// SSLConfig controls HTTPS serving.
type SSLConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertPath string `yaml:"certPath"`
	KeyPath  string `yaml:"keyPath"`
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// RateLimitConfig controls login throttling. LoginPerMinute of zero disables it.
type RateLimitConfig struct {
	LoginPerMinute int    `yaml:"loginPerMinute"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	RedisDB        int    `yaml:"redisDb"`
}

// Config is the resolved server configuration. Keys match the config.json
// layout of existing installations; YAML and JSON files are both accepted.
type Config struct {
	Port              int             `yaml:"port"`
	ServerName        string          `yaml:"servername"`
	SecretKey         string          `yaml:"secretKey"`
	DBPath            string          `yaml:"dbPath"`
	DemoMode          bool            `yaml:"demoMode"`
	SSL               SSLConfig       `yaml:"ssl"`
	JWT               JWTConfig       `yaml:"jwt"`
	LogLevel          string          `yaml:"logLevel"`
	LogFile           string          `yaml:"logFile"`
	RateLimit         RateLimitConfig `yaml:"rateLimit"`
	HeartbeatInterval time.Duration   `yaml:"heartbeatInterval"`

	// WatchInterval is how often a shared PostgreSQL database is polled for
	// changes made by other instances. Zero disables polling.
	WatchInterval time.Duration `yaml:"watchInterval"`

	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the peer address is the
	// client address.
	TrustedProxies []string `yaml:"trustedProxies"`

	// Path is the file the configuration was read from; empty for defaults.
	Path string `yaml:"-"`
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 8 * time.Hour

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:       3001,
		ServerName: "localhost",
		SecretKey:  DefaultSecretKey,
		DBPath:     "data/admin.db",
		DemoMode:   true,
		SSL: SSLConfig{
			CertPath: filepath.Join(systemConfigDir, "ssl", "cert.pem"),
			KeyPath:  filepath.Join(systemConfigDir, "ssl", "key.pem"),
		},
		JWT:               JWTConfig{Expiry: defaultJWTExpiry},
		LogLevel:          "info",
		RateLimit:         RateLimitConfig{LoginPerMinute: 10},
		HeartbeatInterval: 5 * time.Second,
		WatchInterval:     2 * time.Second,
	}
}

// SearchPaths returns the candidate config files in lookup order.
func SearchPaths() []string {
	return []string{
		filepath.Join("etc", "config.yaml"),
		filepath.Join("etc", "config.json"),
		filepath.Join(systemConfigDir, "config.yaml"),
		filepath.Join(systemConfigDir, "config.json"),
	}
}

// ErrConfigNotFound indicates an explicitly requested config file is missing.
var ErrConfigNotFound = errors.New("config file not found")

// Load resolves the configuration. An explicit path (from a flag or
// CONFIG_PATH) must exist; otherwise the first existing search path is used,
// and defaults apply when none exist. Environment variables override files.
func Load(explicitPath string) (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(explicitPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		if _, errStat := os.Stat(path); errStat != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
	} else {
		for _, candidate := range SearchPaths() {
			if _, errStat := os.Stat(candidate); errStat == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, errRead := os.ReadFile(path)
		if errRead != nil {
			return Config{}, fmt.Errorf("read config file: %w", errRead)
		}
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, errUnmarshal)
		}
		if abs, errAbs := filepath.Abs(path); errAbs == nil {
			path = abs
		}
		cfg.Path = path
	}

	if errEnv := applyEnv(&cfg); errEnv != nil {
		return Config{}, errEnv
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv(EnvPort)); raw != "" {
		port, errParse := strconv.Atoi(raw)
		if errParse != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, errParse)
		}
		cfg.Port = port
	}
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DBPath = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvDemoMode)); raw != "" {
		demo, errParse := strconv.ParseBool(raw)
		if errParse != nil {
			return fmt.Errorf("invalid %s: %w", EnvDemoMode, errParse)
		}
		cfg.DemoMode = demo
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		cfg.LogLevel = level
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.RateLimit.RedisAddr = addr
	}
	if raw := strings.TrimSpace(os.Getenv(EnvTrustedProxies)); raw != "" {
		cfg.TrustedProxies = nil
		for _, part := range strings.Split(raw, ",") {
			if proxy := strings.TrimSpace(part); proxy != "" {
				cfg.TrustedProxies = append(cfg.TrustedProxies, proxy)
			}
		}
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.HeartbeatInterval < 0 {
		cfg.HeartbeatInterval = 0
	}
	if cfg.WatchInterval < 0 {
		cfg.WatchInterval = 0
	}
	return nil
}

// Validate checks values that would prevent the server from starting.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("missing dbPath")
	}
	if strings.TrimSpace(c.JWTSecret()) == "" {
		return fmt.Errorf("missing secretKey")
	}
	if c.RateLimit.LoginPerMinute < 0 {
		return fmt.Errorf("invalid rateLimit.loginPerMinute %d", c.RateLimit.LoginPerMinute)
	}
	for _, proxy := range c.TrustedProxies {
		if _, _, errCIDR := net.ParseCIDR(proxy); errCIDR == nil {
			continue
		}
		if net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid trustedProxies entry %q", proxy)
		}
	}
	return nil
}

// JWTSecret returns the token signing key: jwt.secret when set, else secretKey.
func (c Config) JWTSecret() string {
	if secret := strings.TrimSpace(c.JWT.Secret); secret != "" {
		return secret
	}
	return c.SecretKey
}

// UsesDefaultSecret reports whether tokens are signed with the sample key.
func (c Config) UsesDefaultSecret() bool {
	return c.JWTSecret() == DefaultSecretKey
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
