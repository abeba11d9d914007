package capability

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds the provider endpoints and shared HTTP client settings for
// the capability adapters.
type Config struct {
	ParseURL    string `toml:"parse_url"`
	EmbedURL    string `toml:"embed_url"`
	RetrieveURL string `toml:"retrieve_url"`
	GenerateURL string `toml:"generate_url"`
	RenderURL   string `toml:"render_url"`
	APIKey      string `toml:"api_key"`
	Timeout     string `toml:"timeout"`
	TopK        int    `toml:"top_k"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	ParseURL    string
	EmbedURL    string
	RetrieveURL string
	GenerateURL string
	RenderURL   string
	APIKey      string
	Timeout     string
	TopK        string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.ParseURL != "" {
		c.ParseURL = overlay.ParseURL
	}
	if overlay.EmbedURL != "" {
		c.EmbedURL = overlay.EmbedURL
	}
	if overlay.RetrieveURL != "" {
		c.RetrieveURL = overlay.RetrieveURL
	}
	if overlay.GenerateURL != "" {
		c.GenerateURL = overlay.GenerateURL
	}
	if overlay.RenderURL != "" {
		c.RenderURL = overlay.RenderURL
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.TopK != 0 {
		c.TopK = overlay.TopK
	}
}

func (c *Config) loadDefaults() {
	if c.Timeout == "" {
		c.Timeout = "90s"
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
}

func (c *Config) loadEnv(env *Env) {
	fields := []struct {
		name   string
		target *string
	}{
		{env.ParseURL, &c.ParseURL},
		{env.EmbedURL, &c.EmbedURL},
		{env.RetrieveURL, &c.RetrieveURL},
		{env.GenerateURL, &c.GenerateURL},
		{env.RenderURL, &c.RenderURL},
		{env.APIKey, &c.APIKey},
		{env.Timeout, &c.Timeout},
	}
	for _, f := range fields {
		if f.name == "" {
			continue
		}
		if v := os.Getenv(f.name); v != "" {
			*f.target = v
		}
	}
}

func (c *Config) validate() error {
	endpoints := map[string]string{
		"parse_url":    c.ParseURL,
		"embed_url":    c.EmbedURL,
		"retrieve_url": c.RetrieveURL,
		"generate_url": c.GenerateURL,
		"render_url":   c.RenderURL,
	}
	for name, endpoint := range endpoints {
		if endpoint == "" {
			return fmt.Errorf("%s required", name)
		}
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive")
	}
	return nil
}
