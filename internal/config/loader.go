package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup to inject deterministic maps and ReadFile to avoid touching disk.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load retrieves the daemon configuration and validates it. Precedence, lowest
// first: YAML file (`VOICELOG_CONFIG_FILE`), JSON payload (`VOICELOG_CONFIG`),
// individual environment variables.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := l.Lookup("VOICELOG_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := l.applyYAML(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, err
		}
	}

	if raw, ok := l.Lookup("VOICELOG_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "VOICELOG_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "VOICELOG_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "VOICELOG_LOCALE", &cfg.Locale)
	overrideString(l.Lookup, "VOICELOG_TARGET_LOCALE", &cfg.TargetLocale)
	overrideString(l.Lookup, "VOICELOG_DATA_DIR", &cfg.DataDir)
	overrideString(l.Lookup, "VOICELOG_ENGINE_URL", &cfg.EngineURL)
	overrideBool(l.Lookup, "VOICELOG_USE_STUB_ENGINE", &cfg.UseStubEngine)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// filePayload mirrors the subset of Config that may be set from a file.
type filePayload struct {
	ListenAddr    string `json:"listen_addr" yaml:"listen_addr"`
	Locale        string `json:"locale" yaml:"locale"`
	TargetLocale  string `json:"target_locale" yaml:"target_locale"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	DataDir       string `json:"data_dir" yaml:"data_dir"`
	EngineURL     string `json:"engine_url" yaml:"engine_url"`
	UseStubEngine *bool  `json:"use_stub_engine" yaml:"use_stub_engine"`
	SampleRate    int    `json:"sample_rate" yaml:"sample_rate"`
}

func (l Loader) applyYAML(path string, cfg *Config) error {
	raw, err := l.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var payload filePayload
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	payload.apply(cfg)
	return nil
}

func applyJSON(raw string, cfg *Config) error {
	var payload filePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("config: decode VOICELOG_CONFIG: %w", err)
	}
	payload.apply(cfg)
	return nil
}

func (p filePayload) apply(cfg *Config) {
	if p.ListenAddr != "" {
		cfg.ListenAddr = p.ListenAddr
	}
	if p.Locale != "" {
		cfg.Locale = p.Locale
	}
	if p.TargetLocale != "" {
		cfg.TargetLocale = p.TargetLocale
	}
	if p.LogLevel != "" {
		cfg.LogLevel = p.LogLevel
	}
	if p.DataDir != "" {
		cfg.DataDir = p.DataDir
	}
	if p.EngineURL != "" {
		cfg.EngineURL = p.EngineURL
	}
	if p.UseStubEngine != nil {
		cfg.UseStubEngine = *p.UseStubEngine
	}
	if p.SampleRate != 0 {
		cfg.SampleRate = p.SampleRate
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}
