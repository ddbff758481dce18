package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// AuthConfig holds the authentication endpoint and client credentials.
type AuthConfig struct {
	TokenURL     string        `toml:"token_url"`
	GrantType    string        `toml:"grant_type"`
	ClientID     string        `toml:"client_id"`
	ClientSecret string        `toml:"client_secret,omitempty"`
	Scope        string        `toml:"scope"`
	Timeout      time.Duration `toml:"timeout"`
}

// SessionConfig controls refresh scheduling and session persistence.
type SessionConfig struct {
	// RefreshRatio is the fraction of the remaining TTL to wait before refreshing.
	RefreshRatio    float64       `toml:"refresh_ratio"`
	MinRefreshDelay time.Duration `toml:"min_refresh_delay"`
	// DefaultTTL applies when the endpoint reports no expiry and the token carries no exp claim.
	DefaultTTL time.Duration `toml:"default_ttl"`
	// Store is "none", "file" or "redis".
	Store string `toml:"store"`
	Path  string `toml:"path"`
}

// RedisConfig holds the Redis session store connection.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Key      string `toml:"key"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig controls the /metrics and /healthz listener.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// GatewayConfig points at the downstream API gateway.
type GatewayConfig struct {
	URL string `toml:"url"`
}

// Config holds all catalogauth configuration.
type Config struct {
	Auth    AuthConfig    `toml:"auth"`
	Session SessionConfig `toml:"session"`
	Redis   RedisConfig   `toml:"redis"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	Gateway GatewayConfig `toml:"gateway"`
}

const (
	defaultGrantType       = "client_credentials"
	defaultAuthTimeout     = 15 * time.Second
	defaultRefreshRatio    = 0.5
	defaultMinRefreshDelay = time.Second
	defaultTTL             = time.Hour
	defaultStore           = "none"
	defaultRedisKey        = "catalogauth:session"
)

// GrantTypeOrDefault returns Auth.GrantType if set, otherwise client_credentials.
func (c Config) GrantTypeOrDefault() string {
	if c.Auth.GrantType != "" {
		return c.Auth.GrantType
	}
	return defaultGrantType
}

// AuthTimeoutOrDefault returns Auth.Timeout if positive, otherwise 15s.
func (c Config) AuthTimeoutOrDefault() time.Duration {
	if c.Auth.Timeout > 0 {
		return c.Auth.Timeout
	}
	return defaultAuthTimeout
}

// RefreshRatioOrDefault returns Session.RefreshRatio if it lies in (0, 1], otherwise 0.5.
func (c Config) RefreshRatioOrDefault() float64 {
	if c.Session.RefreshRatio > 0 && c.Session.RefreshRatio <= 1 {
		return c.Session.RefreshRatio
	}
	return defaultRefreshRatio
}

// MinRefreshDelayOrDefault returns Session.MinRefreshDelay if positive, otherwise 1s.
func (c Config) MinRefreshDelayOrDefault() time.Duration {
	if c.Session.MinRefreshDelay > 0 {
		return c.Session.MinRefreshDelay
	}
	return defaultMinRefreshDelay
}

// DefaultTTLOrDefault returns Session.DefaultTTL if positive, otherwise 1h.
func (c Config) DefaultTTLOrDefault() time.Duration {
	if c.Session.DefaultTTL > 0 {
		return c.Session.DefaultTTL
	}
	return defaultTTL
}

// StoreOrDefault returns Session.Store if set, otherwise "none".
func (c Config) StoreOrDefault() string {
	if c.Session.Store != "" {
		return c.Session.Store
	}
	return defaultStore
}

// SessionPathOrDefault returns Session.Path if set, otherwise session.toml next to the config file.
func (c Config) SessionPathOrDefault(configPath string) string {
	if c.Session.Path != "" {
		return c.Session.Path
	}
	return filepath.Join(filepath.Dir(configPath), "session.toml")
}

// RedisKeyOrDefault returns Redis.Key if set, otherwise "catalogauth:session".
func (c Config) RedisKeyOrDefault() string {
	if c.Redis.Key != "" {
		return c.Redis.Key
	}
	return defaultRedisKey
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - CATALOGAUTH_TOKEN_URL     overrides auth.token_url
//   - CATALOGAUTH_CLIENT_ID     overrides auth.client_id
//   - CATALOGAUTH_CLIENT_SECRET overrides auth.client_secret
//   - CATALOGAUTH_SCOPE         overrides auth.scope
//   - CATALOGAUTH_LOG_LEVEL     overrides log.level
//   - CATALOGAUTH_REDIS_ADDR    overrides redis.addr
func LoadFrom(path string) (Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func loadFile(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decoding config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// DefaultConfigPath returns the default path for the catalogauth config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "catalogauth", "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CATALOGAUTH_TOKEN_URL"); v != "" {
		cfg.Auth.TokenURL = v
	}
	if v := os.Getenv("CATALOGAUTH_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("CATALOGAUTH_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("CATALOGAUTH_SCOPE"); v != "" {
		cfg.Auth.Scope = v
	}
	if v := os.Getenv("CATALOGAUTH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CATALOGAUTH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
// The client secret is never written.
func Save(path string, cfg Config) error {
	cfg.Auth.ClientSecret = ""
	return write(path, cfg)
}

// SaveLogin records the non-secret login fields in the file at path. Everything
// else is taken from the file as it is on disk, so environment overrides are not
// persisted and a secret the file already holds is left in place.
func SaveLogin(path, grantType, clientID, scope string) error {
	cfg, err := loadFile(path)
	if err != nil {
		return err
	}
	cfg.Auth.GrantType = grantType
	cfg.Auth.ClientID = clientID
	cfg.Auth.Scope = scope
	return write(path, cfg)
}

func write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
