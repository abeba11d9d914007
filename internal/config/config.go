// Package config defines the root service configuration: a base
// config.toml, an optional TAILOR_ENV overlay, and TAILOR_* environment
// variable overrides applied during finalization.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/atelier-systems/tailor/internal/capability"
	"github.com/atelier-systems/tailor/pkg/database"
	"github.com/atelier-systems/tailor/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvTailorEnv             = "TAILOR_ENV"
	EnvTailorShutdownTimeout = "TAILOR_SHUTDOWN_TIMEOUT"
	EnvTailorVersion         = "TAILOR_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "TAILOR_DB_HOST",
	Port:            "TAILOR_DB_PORT",
	Name:            "TAILOR_DB_NAME",
	User:            "TAILOR_DB_USER",
	Password:        "TAILOR_DB_PASSWORD",
	SSLMode:         "TAILOR_DB_SSL_MODE",
	MaxOpenConns:    "TAILOR_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TAILOR_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TAILOR_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TAILOR_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "TAILOR_STORAGE_CONTAINER_NAME",
	ConnectionString: "TAILOR_STORAGE_CONNECTION_STRING",
	MaxListSize:      "TAILOR_STORAGE_MAX_LIST_SIZE",
}

var capabilityEnv = &capability.Env{
	ParseURL:    "TAILOR_CAPABILITY_PARSE_URL",
	EmbedURL:    "TAILOR_CAPABILITY_EMBED_URL",
	RetrieveURL: "TAILOR_CAPABILITY_RETRIEVE_URL",
	GenerateURL: "TAILOR_CAPABILITY_GENERATE_URL",
	RenderURL:   "TAILOR_CAPABILITY_RENDER_URL",
	APIKey:      "TAILOR_CAPABILITY_API_KEY",
	Timeout:     "TAILOR_CAPABILITY_TIMEOUT",
	TopK:        "TAILOR_CAPABILITY_TOP_K",
}

// Config is the root configuration for the Tailor service.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	Capability      capability.Config `toml:"capability"`
	Pipeline        PipelineConfig    `toml:"pipeline"`
	API             APIConfig         `toml:"api"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the TAILOR_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvTailorEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Capability.Merge(&overlay.Capability)
	c.Pipeline.Merge(&overlay.Pipeline)
	c.API.Merge(&overlay.API)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Capability.Finalize(capabilityEnv); err != nil {
		return fmt.Errorf("capability: %w", err)
	}
	if err := c.Pipeline.Finalize(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvTailorShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvTailorVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvTailorEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
