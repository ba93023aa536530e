package config

import "fmt"

const (
	// DefaultListenAddr is used when no explicit health listener address is injected.
	DefaultListenAddr   = "127.0.0.1:50551"
	DefaultLocale       = "en-US"
	DefaultTargetLocale = "en"
	DefaultLogLevel     = "info"
	DefaultDataDir      = "data"
	DefaultSampleRate   = 16000
)

// Config captures bootstrap configuration extracted from environment variables,
// an injected JSON payload (`VOICELOG_CONFIG`), or a YAML config file.
type Config struct {
	ListenAddr string
	// Locale is the requested recognition locale (BCP 47). The coordinator may
	// fall back to the engine default when it is unsupported.
	Locale string
	// TargetLocale is the translation target language.
	TargetLocale string
	LogLevel     string
	// DataDir holds the journal database, recordings, and downloaded models.
	DataDir string
	// EngineURL points at a remote recognition service; empty selects the stub.
	EngineURL     string
	UseStubEngine bool
	// SampleRate is the recognition sample rate in Hz.
	SampleRate int
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
	if c.TargetLocale == "" {
		c.TargetLocale = DefaultTargetLocale
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.SampleRate < 8000 {
		return fmt.Errorf("config: sample rate must be >= 8000, got %d", c.SampleRate)
	}
	return nil
}
