package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"imagestudio/imagehost"
	"imagestudio/middleware"
	"imagestudio/providers"
	"imagestudio/storage"
	"imagestudio/types"
)

// DefaultFile is read when Load is called without an explicit path.
const DefaultFile = "conf.json"

// envPrefix prefixes every environment override.
const envPrefix = "IMAGESTUDIO_"

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" json:"max_upload_bytes"`
	// WorkspaceIdleTTL and MaxWorkspaces bound the in-memory per-client workspaces.
	WorkspaceIdleTTL time.Duration `yaml:"workspace_idle_ttl" json:"workspace_idle_ttl"`
	MaxWorkspaces    int           `yaml:"max_workspaces" json:"max_workspaces"`
}

// LogConfig selects the zap level and encoding.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // json or console
}

// DefaultsConfig is the settings a new client starts with.
type DefaultsConfig struct {
	Provider types.ProviderID `yaml:"provider" json:"provider"`
	Model    string           `yaml:"model" json:"model"`
}

// Config holds the entire application configuration.
type Config struct {
	Server       ServerConfig                 `yaml:"server" json:"server"`
	Storage      storage.Config               `yaml:"storage" json:"storage"`
	Pollinations providers.PollinationsConfig `yaml:"pollinations" json:"pollinations"`
	Gemini       providers.GeminiConfig       `yaml:"gemini" json:"gemini"`
	ImageHost    imagehost.Config             `yaml:"image_host" json:"image_host"`
	Session      middleware.SessionConfig     `yaml:"session" json:"session"`
	RateLimit    middleware.RateLimitConfig   `yaml:"rate_limit" json:"rate_limit"`
	Log          LogConfig                    `yaml:"log" json:"log"`
	Defaults     DefaultsConfig               `yaml:"defaults" json:"defaults"`
}

// Default returns the built-in configuration.
func Default() *Config {
	def := types.DefaultSettings()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  10 << 20,

			WorkspaceIdleTTL: 30 * time.Minute,
			MaxWorkspaces:    10000,
		},
		Storage:      storage.DefaultConfig(),
		Pollinations: providers.DefaultPollinationsConfig(),
		Gemini:       providers.DefaultGeminiConfig(),
		ImageHost:    imagehost.DefaultConfig(),
		Session:      middleware.DefaultSessionConfig(),
		RateLimit:    middleware.DefaultRateLimitConfig(),
		Log:          LogConfig{Level: "info", Format: "json"},
		Defaults:     DefaultsConfig{Provider: def.Provider, Model: def.Model},
	}
}

// Load builds the configuration from defaults, the config file, .env and environment
// variables, each layer overriding the previous one. An empty path reads conf.json if it
// exists; an explicit path must exist. The file may be JSON or YAML.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	// JSON is valid YAML, so one decoder serves both.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: failed to decode %s: %w", path, err)
	}
	return nil
}

// loadFromEnv overrides values from environment variables.
func (c *Config) loadFromEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	// Server
	str(envPrefix+"ADDR", &c.Server.Addr)
	duration(envPrefix+"SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	duration(envPrefix+"WORKSPACE_IDLE_TTL", &c.Server.WorkspaceIdleTTL)
	integer(envPrefix+"MAX_WORKSPACES", &c.Server.MaxWorkspaces)
	if v := os.Getenv(envPrefix + "MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sMAX_UPLOAD_BYTES: %w", envPrefix, err))
		} else {
			c.Server.MaxUploadBytes = n
		}
	}

	// Storage
	str(envPrefix+"STORAGE_DRIVER", &c.Storage.Driver)
	str(envPrefix+"STORAGE_DIR", &c.Storage.Dir)
	str(envPrefix+"STORAGE_DSN", &c.Storage.DSN)
	str(envPrefix+"REDIS_ADDR", &c.Storage.Redis.Addr)
	str(envPrefix+"REDIS_PASSWORD", &c.Storage.Redis.Password)
	integer(envPrefix+"REDIS_DB", &c.Storage.Redis.DB)

	// Providers
	str(envPrefix+"POLLINATIONS_URL", &c.Pollinations.BaseURL)
	integer(envPrefix+"POLLINATIONS_MAX_ATTEMPTS", &c.Pollinations.MaxAttempts)
	duration(envPrefix+"POLLINATIONS_RETRY_INTERVAL", &c.Pollinations.RetryInterval)
	str(envPrefix+"GEMINI_URL", &c.Gemini.BaseURL)

	// Image host; the unprefixed name is kept for existing deployments.
	str("NODEIMAGE_API_KEY", &c.ImageHost.APIKey)
	str(envPrefix+"NODEIMAGE_API_KEY", &c.ImageHost.APIKey)

	// Session
	str("SESSION_SECRET", &c.Session.Secret)
	str(envPrefix+"SESSION_SECRET", &c.Session.Secret)
	boolean(envPrefix+"SESSION_SECURE", &c.Session.Secure)

	// Rate limit
	if v := os.Getenv(envPrefix + "RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sRATE_LIMIT_RPS: %w", envPrefix, err))
		} else {
			c.RateLimit.RPS = f
		}
	}
	integer(envPrefix+"RATE_LIMIT_BURST", &c.RateLimit.Burst)

	// Log
	str(envPrefix+"LOG_LEVEL", &c.Log.Level)
	str(envPrefix+"LOG_FORMAT", &c.Log.Format)

	// Defaults
	if v := os.Getenv(envPrefix + "DEFAULT_PROVIDER"); v != "" {
		c.Defaults.Provider = types.ProviderID(v)
	}
	str(envPrefix+"DEFAULT_MODEL", &c.Defaults.Model)

	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot start with. An unknown default model
// is replaced by the provider default rather than rejected.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "file", "redis", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.Storage.Driver)
	}
	if !c.Defaults.Provider.Valid() {
		return fmt.Errorf("config: unsupported default provider %q", c.Defaults.Provider)
	}
	if !types.ValidModel(c.Defaults.Provider, c.Defaults.Model) {
		c.Defaults.Model = types.DefaultModel(c.Defaults.Provider)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unsupported log format %q", c.Log.Format)
	}
	if c.Server.MaxUploadBytes < 0 {
		return errors.New("config: max_upload_bytes must not be negative")
	}
	if c.Server.WorkspaceIdleTTL < 0 || c.Server.MaxWorkspaces < 0 {
		return errors.New("config: workspace_idle_ttl and max_workspaces must not be negative")
	}
	return nil
}

// DefaultSettings is the settings value new clients start with.
func (c *Config) DefaultSettings() types.Settings {
	return types.Settings{Provider: c.Defaults.Provider, Model: c.Defaults.Model}
}
