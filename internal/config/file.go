// Package config handles pagesnap configuration from YAML files.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pagesnap configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Timing   TimingConfig   `yaml:"timing"`
	Capture  CaptureConfig  `yaml:"capture"`
	Server   ServerConfig   `yaml:"server"`
	Resolver ResolverConfig `yaml:"resolver"`
}

// BrowserConfig controls how a Chrome session is started.
type BrowserConfig struct {
	Remote         string `yaml:"remote"` // ws:// URL of an external Chrome; empty = launch locally
	Bin            string `yaml:"bin"`
	Sandbox        bool   `yaml:"sandbox"` // false launches Chrome with --no-sandbox
	Stealth        *bool  `yaml:"stealth"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	// DrainTimeout bounds how long teardown waits for in-flight response
	// bodies after the event loop has stopped.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// StealthEnabled reports whether pages are opened through go-rod/stealth.
func (b BrowserConfig) StealthEnabled() bool {
	return b.Stealth == nil || *b.Stealth
}

// TimingConfig holds the settle heuristics.
type TimingConfig struct {
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	ScrollStep        int           `yaml:"scroll_step"` // pixels
	ScrollInterval    time.Duration `yaml:"scroll_interval"`
	ScrollGrace       time.Duration `yaml:"scroll_grace"`
	ScrollTimeout     time.Duration `yaml:"scroll_timeout"`
	LazyGrace         time.Duration `yaml:"lazy_grace"`
	LazyAttributes    []string      `yaml:"lazy_attributes"`
}

// CaptureConfig controls asset capture and materialization.
type CaptureConfig struct {
	MaxAssetBytes int64 `yaml:"max_asset_bytes"`
	WriteWorkers  int   `yaml:"write_workers"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	DownloadsDir   string        `yaml:"downloads_dir"`
	DBPath         string        `yaml:"db_path"`
	ShallowTimeout time.Duration `yaml:"shallow_timeout"`
	DeepTimeout    time.Duration `yaml:"deep_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	BlockPrivate   bool          `yaml:"block_private"`
}

// ResolverConfig controls the keyword resolver.
type ResolverConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"` // nil = DefaultMaxRetries, 0 = no retry
	Backoff    time.Duration `yaml:"backoff"`
}

// DefaultMaxRetries applies when max_retries is not set.
const DefaultMaxRetries = 3

// Retries returns the configured retry count. An explicit 0 is kept.
func (r ResolverConfig) Retries() int {
	if r.MaxRetries == nil {
		return DefaultMaxRetries
	}
	if *r.MaxRetries < 0 {
		return 0
	}
	return *r.MaxRetries
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultLazyAttributes are the deferred-source attributes copied into src,
// in lookup order.
var DefaultLazyAttributes = []string{"data-src", "data-original", "data-lazy"}

func (c *Config) applyDefaults() {
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1920
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 1080
	}
	if c.Browser.DrainTimeout <= 0 {
		c.Browser.DrainTimeout = 5 * time.Second
	}

	if c.Timing.NavigationTimeout <= 0 {
		c.Timing.NavigationTimeout = 45 * time.Second
	}
	if c.Timing.SettleDelay <= 0 {
		c.Timing.SettleDelay = 3 * time.Second
	}
	if c.Timing.ScrollStep <= 0 {
		c.Timing.ScrollStep = 300
	}
	if c.Timing.ScrollInterval <= 0 {
		c.Timing.ScrollInterval = 200 * time.Millisecond
	}
	if c.Timing.ScrollGrace <= 0 {
		c.Timing.ScrollGrace = time.Second
	}
	if c.Timing.ScrollTimeout <= 0 {
		c.Timing.ScrollTimeout = 30 * time.Second
	}
	if c.Timing.LazyGrace <= 0 {
		c.Timing.LazyGrace = 2 * time.Second
	}
	if len(c.Timing.LazyAttributes) == 0 {
		c.Timing.LazyAttributes = append([]string(nil), DefaultLazyAttributes...)
	}

	if c.Capture.MaxAssetBytes <= 0 {
		c.Capture.MaxAssetBytes = 50 << 20
	}
	if c.Capture.WriteWorkers <= 0 {
		c.Capture.WriteWorkers = 8
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":3001"
	}
	if c.Server.DownloadsDir == "" {
		c.Server.DownloadsDir = "downloads"
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "db/pagesnap.db"
	}
	if c.Server.ShallowTimeout <= 0 {
		c.Server.ShallowTimeout = 100 * time.Second
	}
	if c.Server.DeepTimeout <= 0 {
		c.Server.DeepTimeout = 300 * time.Second
	}
	if c.Server.MaxConcurrent <= 0 {
		c.Server.MaxConcurrent = 2
	}

	if c.Resolver.BaseURL == "" {
		c.Resolver.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	}
	if c.Resolver.Model == "" {
		c.Resolver.Model = "gemini-2.0-flash"
	}
	if c.Resolver.Timeout <= 0 {
		c.Resolver.Timeout = 30 * time.Second
	}
	if c.Resolver.Backoff <= 0 {
		c.Resolver.Backoff = time.Second
	}
}
