// Package config loads the service settings from defaults, an optional
// mira.yaml file and MIRA_-prefixed environment variables, in increasing
// order of precedence. A nested key such as store.backend is read from
// MIRA_STORE_BACKEND.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/miraassistant/mira/internal/google"
	"github.com/miraassistant/mira/internal/logging"
)

const (
	envPrefix  = "MIRA"
	configName = "mira"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// OAuth state backends.
const (
	StateNone   = "none"
	StateMemory = "memory"
	StateRedis  = "redis"
)

type Config struct {
	Google   GoogleConfig   `mapstructure:"google"`
	Frontend FrontendConfig `mapstructure:"frontend"`
	Store    StoreConfig    `mapstructure:"store"`
	State    StateConfig    `mapstructure:"oauth_state"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

type FrontendConfig struct {
	// RedirectURL receives the browser after the OAuth callback.
	RedirectURL string `mapstructure:"redirect_url"`
}

type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

type StateConfig struct {
	// Backend is none, memory or redis. Use redis when more than one
	// replica serves the callback.
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaultConfig = Config{
	Store: StoreConfig{
		Backend:       BackendSQLite,
		SQLitePath:    defaultSQLitePath(),
		MongoDatabase: "mira",
	},
	State: StateConfig{
		Backend: StateMemory,
		TTL:     10 * time.Minute,
	},
	Redis: RedisConfig{
		Addr: "localhost:6379",
	},
	HTTP: HTTPConfig{
		Addr:            ":8080",
		RateLimit:       5,
		RateBurst:       10,
		ShutdownTimeout: 30 * time.Second,
	},
	Metrics: MetricsConfig{
		Enabled: true,
		Addr:    ":9090",
	},
	Log: LogConfig{
		Level:  "info",
		Format: "text",
	},
}

// Default returns the built-in settings.
func Default() Config {
	return defaultConfig
}

// Load reads the configuration. An explicit path must exist; otherwise
// mira.yaml is looked up in the working directory and the user config
// directory, and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "mira"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "")
	v.SetDefault("frontend.redirect_url", "")

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("store.mongo_database", d.Store.MongoDatabase)

	v.SetDefault("oauth_state.backend", d.State.Backend)
	v.SetDefault("oauth_state.ttl", d.State.TTL)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.rate_limit", d.HTTP.RateLimit)
	v.SetDefault("http.rate_burst", d.HTTP.RateBurst)
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func defaultSQLitePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mira", "mira.db")
	}
	return "mira.db"
}

// GoogleOAuth returns the OAuth client settings.
func (c *Config) GoogleOAuth() google.Config {
	return google.Config{
		ClientID:     c.Google.ClientID,
		ClientSecret: c.Google.ClientSecret,
		RedirectURL:  c.Google.RedirectURL,
	}
}

// Validate checks everything `mira serve` needs.
func (c *Config) Validate() error {
	if err := c.GoogleOAuth().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Frontend.RedirectURL) == "" {
		return fmt.Errorf("frontend redirect url is required")
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}

	switch c.State.Backend {
	case StateNone, StateMemory:
	case StateRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for the redis oauth state backend")
		}
	default:
		return fmt.Errorf("unknown oauth state backend %q", c.State.Backend)
	}

	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http rate limit must not be negative")
	}
	return c.ValidateLogging()
}

// ValidateStore checks the identity store settings only. Commands that never
// talk to Google, such as migrate, use it instead of Validate.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store sqlite_path is required")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store postgres_dsn is required")
		}
	case BackendMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return fmt.Errorf("store mongo_uri and mongo_database are required")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// ValidateLogging checks the log level and format.
func (c *Config) ValidateLogging() error {
	_, err := logging.New(io.Discard, c.Log.Format, c.Log.Level)
	return err
}
