package snapshot

import (
	"github.com/hazyhaar/pagesnap/internal/config"
	"github.com/hazyhaar/pagesnap/snapshot/internal/browser"
)

// Config is the top-level pagesnap configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls how Chrome sessions are started.
type BrowserConfig = config.BrowserConfig

// TimingConfig holds the settle heuristics.
type TimingConfig = config.TimingConfig

// CaptureConfig controls asset capture and materialization.
type CaptureConfig = config.CaptureConfig

// ServerConfig controls the HTTP API.
type ServerConfig = config.ServerConfig

// ResolverConfig controls the keyword resolver.
type ResolverConfig = config.ResolverConfig

// Launcher starts browser sessions. The default is a local or remote
// Chrome built from BrowserConfig.
type Launcher = browser.Launcher

// Session is one isolated browser tab.
type Session = browser.Session

// Response is a network response observed during a session.
type Response = browser.Response

// ResponseFunc observes responses.
type ResponseFunc = browser.ResponseFunc

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every field at its default.
func DefaultConfig() *Config {
	return config.Default()
}
