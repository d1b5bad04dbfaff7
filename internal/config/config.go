// Package config implements the layered configuration loader: defaults,
// then a YAML file, then HARVEST_* environment variables, then explicit
// per-call overrides — the highest-precedence layer applied last, per
// spec.md §6.4. Adapted from the teacher's guardrails.LoadConfig /
// applyDefaults pattern.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harvestcore/harvest/internal/errs"
)

// ProviderConfig is one llm.providers.{name} entry.
type ProviderConfig struct {
	APIKey     string `yaml:"apiKey"`
	Model      string `yaml:"model"`
	TimeoutMs  int    `yaml:"timeout"`
	MaxRetries int    `yaml:"maxRetries"`
}

// LLMConfig is the llm.* surface.
type LLMConfig struct {
	Provider  string                    `yaml:"provider"`
	Model     string                    `yaml:"model"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// SessionConfig is the session.* surface.
type SessionConfig struct {
	MaxSessions                     int `yaml:"maxSessions"`
	TimeoutMinutes                  int `yaml:"timeoutMinutes"`
	CleanupIntervalMinutes          int `yaml:"cleanupIntervalMinutes"`
	CompletedSessionCacheTTLMinutes int `yaml:"completedSessionCacheTTLMinutes"`
}

// PathsConfig is the paths.* surface.
type PathsConfig struct {
	SharedDir      string `yaml:"sharedDir"`
	OutputDir      string `yaml:"outputDir"`
	TempDir        string `yaml:"tempDir"`
	CookiesDir     string `yaml:"cookiesDir"`
	ScreenshotsDir string `yaml:"screenshotsDir"`
	HarDir         string `yaml:"harDir"`
}

// LoggingConfig is the logging.* surface.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MemoryConfig is the memory.* surface.
type MemoryConfig struct {
	MonitoringEnabled  bool `yaml:"monitoringEnabled"`
	MaxHeapSizeMB      int  `yaml:"maxHeapSizeMB"`
	WarningThresholdMB int  `yaml:"warningThresholdMB"`
	SnapshotIntervalMs int  `yaml:"snapshotIntervalMs"`
}

// Config is the full recognized configuration surface, per spec.md §6.4.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Session SessionConfig `yaml:"session"`
	Paths   PathsConfig   `yaml:"paths"`
	Logging LoggingConfig `yaml:"logging"`
	Memory  MemoryConfig  `yaml:"memory"`
}

func defaults() Config {
	return Config{
		Session: SessionConfig{
			MaxSessions:                     100,
			TimeoutMinutes:                  30,
			CleanupIntervalMinutes:          5,
			CompletedSessionCacheTTLMinutes: 60,
		},
		Logging: LoggingConfig{Level: "info"},
		Memory: MemoryConfig{
			MonitoringEnabled:  true,
			MaxHeapSizeMB:      1024,
			WarningThresholdMB: 512,
			SnapshotIntervalMs: 30000,
		},
	}
}

var (
	initialized bool
	current     Config
	mu          sync.RWMutex
)

// Load builds a Config by layering defaults, an optional YAML file at
// path (skipped if path is empty or unreadable-as-absent), environment
// variables, and overrides, in that precedence order.
func Load(path string, overrides Config) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, errs.Wrap(errs.KindIoError, err, "reading config file %s", path)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errs.Wrap(errs.KindInvalidHarFormat, err, "parsing config file %s", path)
		}
	}

	applyEnv(&cfg)
	applyOverrides(&cfg, overrides)
	expandHome(&cfg.Paths)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Initialize is the process-wide singleton entry point: it loads and
// freezes configuration, failing with AlreadyInitialized on a second call,
// per spec.md §5's shared-resource policy.
func Initialize(path string, overrides Config) (Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return Config{}, errs.New(errs.KindAlreadyInitialized, "configuration already initialized")
	}
	cfg, err := Load(path, overrides)
	if err != nil {
		return Config{}, err
	}
	current = cfg
	initialized = true
	return cfg, nil
}

// Current returns the frozen process-wide configuration snapshot.
func Current() (Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return current, initialized
}

// resetForTest clears singleton state; only used by this package's tests.
func resetForTest() {
	mu.Lock()
	defer mu.Unlock()
	initialized = false
	current = Config{}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HARVEST_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("HARVEST_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("HARVEST_SESSION_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxSessions = n
		}
	}
	if v := os.Getenv("HARVEST_SESSION_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.TimeoutMinutes = n
		}
	}
	if v := os.Getenv("HARVEST_PATHS_OUTPUT_DIR"); v != "" {
		cfg.Paths.OutputDir = v
	}
	if v := os.Getenv("HARVEST_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HARVEST_OPENAI_API_KEY"); v != "" {
		setProviderKey(cfg, "openai", v)
	}
	if v := os.Getenv("HARVEST_GEMINI_API_KEY"); v != "" {
		setProviderKey(cfg, "gemini", v)
	}
}

func setProviderKey(cfg *Config, provider, key string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderConfig{}
	}
	p := cfg.LLM.Providers[provider]
	p.APIKey = key
	cfg.LLM.Providers[provider] = p
}

// applyOverrides merges any non-zero field of o into cfg; overrides win
// over everything else.
func applyOverrides(cfg *Config, o Config) {
	if o.LLM.Provider != "" {
		cfg.LLM.Provider = o.LLM.Provider
	}
	if o.LLM.Model != "" {
		cfg.LLM.Model = o.LLM.Model
	}
	for name, pc := range o.LLM.Providers {
		if cfg.LLM.Providers == nil {
			cfg.LLM.Providers = map[string]ProviderConfig{}
		}
		cfg.LLM.Providers[name] = pc
	}
	if o.Session.MaxSessions != 0 {
		cfg.Session.MaxSessions = o.Session.MaxSessions
	}
	if o.Session.TimeoutMinutes != 0 {
		cfg.Session.TimeoutMinutes = o.Session.TimeoutMinutes
	}
	if o.Session.CleanupIntervalMinutes != 0 {
		cfg.Session.CleanupIntervalMinutes = o.Session.CleanupIntervalMinutes
	}
	if o.Session.CompletedSessionCacheTTLMinutes != 0 {
		cfg.Session.CompletedSessionCacheTTLMinutes = o.Session.CompletedSessionCacheTTLMinutes
	}
	if o.Paths.OutputDir != "" {
		cfg.Paths.OutputDir = o.Paths.OutputDir
	}
	if o.Paths.SharedDir != "" {
		cfg.Paths.SharedDir = o.Paths.SharedDir
	}
	if o.Paths.TempDir != "" {
		cfg.Paths.TempDir = o.Paths.TempDir
	}
	if o.Paths.CookiesDir != "" {
		cfg.Paths.CookiesDir = o.Paths.CookiesDir
	}
	if o.Paths.HarDir != "" {
		cfg.Paths.HarDir = o.Paths.HarDir
	}
	if o.Paths.ScreenshotsDir != "" {
		cfg.Paths.ScreenshotsDir = o.Paths.ScreenshotsDir
	}
	if o.Logging.Level != "" {
		cfg.Logging.Level = o.Logging.Level
	}
	if o.Memory.MonitoringEnabled {
		cfg.Memory.MonitoringEnabled = true
	}
	if o.Memory.MaxHeapSizeMB != 0 {
		cfg.Memory.MaxHeapSizeMB = o.Memory.MaxHeapSizeMB
	}
	if o.Memory.WarningThresholdMB != 0 {
		cfg.Memory.WarningThresholdMB = o.Memory.WarningThresholdMB
	}
	if o.Memory.SnapshotIntervalMs != 0 {
		cfg.Memory.SnapshotIntervalMs = o.Memory.SnapshotIntervalMs
	}
}

func expandHome(p *PathsConfig) {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(s string) string {
		if strings.HasPrefix(s, "~") {
			return filepath.Join(home, strings.TrimPrefix(s, "~"))
		}
		return s
	}
	p.SharedDir = expand(p.SharedDir)
	p.OutputDir = expand(p.OutputDir)
	p.TempDir = expand(p.TempDir)
	p.CookiesDir = expand(p.CookiesDir)
	p.ScreenshotsDir = expand(p.ScreenshotsDir)
	p.HarDir = expand(p.HarDir)
}

func validate(cfg Config) error {
	if cfg.Session.MaxSessions < 1 || cfg.Session.MaxSessions > 1000 {
		return errs.New(errs.KindInvalidHarFormat, "session.maxSessions out of range [1,1000]: %d", cfg.Session.MaxSessions)
	}
	if cfg.Session.TimeoutMinutes < 1 || cfg.Session.TimeoutMinutes > 1440 {
		return errs.New(errs.KindInvalidHarFormat, "session.timeoutMinutes out of range [1,1440]: %d", cfg.Session.TimeoutMinutes)
	}
	for name, p := range cfg.LLM.Providers {
		if p.TimeoutMs != 0 && (p.TimeoutMs < 1000 || p.TimeoutMs > 300000) {
			return errs.New(errs.KindInvalidHarFormat, "llm.providers.%s.timeout out of range [1000,300000]ms: %d", name, p.TimeoutMs)
		}
		if p.MaxRetries < 0 || p.MaxRetries > 10 {
			return errs.New(errs.KindInvalidHarFormat, "llm.providers.%s.maxRetries out of range [0,10]: %d", name, p.MaxRetries)
		}
	}
	return nil
}

// ProviderTimeout returns the configured timeout for provider as a
// time.Duration, falling back to 30s.
func ProviderTimeout(cfg Config, provider string) time.Duration {
	if p, ok := cfg.LLM.Providers[provider]; ok && p.TimeoutMs > 0 {
		return time.Duration(p.TimeoutMs) * time.Millisecond
	}
	return 30 * time.Second
}
