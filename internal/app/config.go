package app

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kakioki/internal/bus"
	"kakioki/internal/crypto"
	"kakioki/internal/domain"
	"kakioki/internal/services/history"
)

// Session password stores.
const (
	SecretStoreMemory = "memory"
	SecretStoreRedis  = "redis"
	SecretStoreNone   = "none"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KAKIOKI_"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home        string           `yaml:"home"`      // config directory, e.g. $HOME/.kakioki
	RelayURL    string           `yaml:"relay_url"` // relay base URL, e.g. http://127.0.0.1:8080
	RedisAddr   string           `yaml:"redis_addr"`
	UserID      domain.UserID    `yaml:"user_id"`
	LogLevel    string           `yaml:"log_level"`
	PageSize    int              `yaml:"page_size"`
	MetricsAddr string           `yaml:"metrics_addr"`
	Session     SessionConfig    `yaml:"session"`
	KDF         crypto.KDFParams `yaml:"kdf"`
	Realtime    RealtimeConfig   `yaml:"realtime"`

	HTTP *http.Client `yaml:"-"` // optional; defaults to http.DefaultClient
}

// SessionConfig controls how long the unlock password is retained and where.
type SessionConfig struct {
	PasswordTTL time.Duration `yaml:"password_ttl"`
	Store       string        `yaml:"store"`
}

type RealtimeConfig struct {
	PayloadCeiling int `yaml:"payload_ceiling"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	home := ".kakioki"
	if dir, err := os.UserHomeDir(); err == nil {
		home = filepath.Join(dir, ".kakioki")
	}
	return Config{
		Home:     home,
		RelayURL: "http://127.0.0.1:8080",
		LogLevel: "info",
		PageSize: history.DefaultPageSize,
		Session: SessionConfig{
			PasswordTTL: 15 * time.Minute,
			Store:       SecretStoreMemory,
		},
		KDF:      crypto.DefaultKDFParams(),
		Realtime: RealtimeConfig{PayloadCeiling: bus.DefaultPayloadCeiling},
	}
}

// Load builds the effective configuration. A .env file in the working
// directory is loaded first, then defaults are overlaid by the YAML file at
// path (a missing file is not an error) and finally by KAKIOKI_* variables.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("HOME", &cfg.Home)
	str("RELAY_URL", &cfg.RelayURL)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("METRICS_ADDR", &cfg.MetricsAddr)
	str("SESSION_STORE", &cfg.Session.Store)

	var uid int
	if err := num("USER_ID", &uid); err != nil {
		return err
	}
	if uid != 0 {
		cfg.UserID = domain.UserID(uid)
	}
	if err := num("PAGE_SIZE", &cfg.PageSize); err != nil {
		return err
	}
	if err := num("PAYLOAD_CEILING", &cfg.Realtime.PayloadCeiling); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvPrefix + "PASSWORD_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sPASSWORD_TTL: %w", EnvPrefix, err)
		}
		cfg.Session.PasswordTTL = d
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Home == "" {
		return errors.New("home directory is required")
	}
	switch c.Session.Store {
	case SecretStoreMemory, SecretStoreNone:
	case SecretStoreRedis:
		if c.RedisAddr == "" {
			return errors.New("session.store redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown session.store %q", c.Session.Store)
	}
	if c.Session.PasswordTTL < 0 {
		return errors.New("session.password_ttl must not be negative")
	}
	if c.PageSize < 1 || c.PageSize > history.MaxPageSize {
		return fmt.Errorf("page_size must be between 1 and %d", history.MaxPageSize)
	}
	if c.Realtime.PayloadCeiling < 0 {
		return errors.New("realtime.payload_ceiling must not be negative")
	}
	return nil
}
