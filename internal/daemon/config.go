// Package daemon holds the server configuration. Config is a TOML file with
// one section per concern; a missing file means defaults, a present file
// overrides only the keys it sets.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Store     StoreConfig     `toml:"store"`
	Auth      AuthConfig      `toml:"auth"`
	Nonce     NonceConfig     `toml:"nonce"`
	Redis     RedisConfig     `toml:"redis"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Reward    RewardConfig    `toml:"reward"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// AuthConfig configures signed-request verification.
type AuthConfig struct {
	// WindowSeconds bounds |now - timestamp| for accepted signatures.
	WindowSeconds int `toml:"window_seconds"`
	// AdminToken is the shared admin secret. Empty disables /admin.
	AdminToken string `toml:"admin_token"`
}

// Window returns the signature validity window as a duration.
func (c AuthConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// NonceConfig selects the replay-guard backend: "memory" or "redis".
type NonceConfig struct {
	Backend string `toml:"backend"`
}

// RedisConfig configures the redis replay-guard backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// RateLimitConfig configures the advisory per-caller limiter.
type RateLimitConfig struct {
	// RequestsPerMinute of 0 disables limiting.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// RewardConfig configures system-funded incentives.
type RewardConfig struct {
	// SignupBonus is minted once on first registration. 0 disables it.
	SignupBonus int64 `toml:"signup_bonus"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8642,
			Metrics: true,
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultHome(), "credit.db"),
		},
		Auth: AuthConfig{
			WindowSeconds: 300,
		},
		Nonce: NonceConfig{
			Backend: "memory",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
		},
		Reward: RewardConfig{
			SignupBonus: 0,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(defaultHome(), "config.toml")
}

func defaultHome() string {
	if h := os.Getenv("CREDITD_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".creditd"
	}
	return filepath.Join(home, ".creditd")
}

// Load reads the config at path, layered over DefaultConfig. A missing file
// is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Auth.WindowSeconds <= 0 {
		return fmt.Errorf("auth.window_seconds must be positive")
	}
	switch c.Nonce.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("nonce.backend must be memory or redis, got %q", c.Nonce.Backend)
	}
	return nil
}

// ListenAddr returns the host:port the API should bind.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
