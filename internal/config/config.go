// Package config loads the orchestration core's configuration from YAML,
// with environment-variable expansion, in the style of the teacher
// repository's internal/config package (trimmed of its $include recursion
// and json5 dual-format support, which this module has no use for).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig configures one LLM provider backend.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

// Config is the root configuration for the orchestration core.
type Config struct {
	// StorageRoot is the base directory under which bot_data/ and
	// data/plugins/ are rooted (spec §6 persistent layout).
	StorageRoot string `yaml:"storage_root"`

	// DefaultProvider names the ProviderConfig.Name used when a user has
	// no preferred model (spec §4.1 step 1).
	DefaultProvider string           `yaml:"default_provider"`
	Providers       []ProviderConfig `yaml:"providers"`

	// MaxLoops bounds the reason-act loop (spec §4.1 step 15). Default 5.
	MaxLoops int `yaml:"max_loops"`

	// WorkerPoolSize bounds concurrent plugin executions (spec §5). Default 4.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	// SchedulerTick is how often the Task Scheduler wakes (spec §4.7). Default 60s.
	SchedulerTick time.Duration `yaml:"scheduler_tick"`

	// CredentialPollTimeout bounds the request_key wait of spec §4.1 step 2. Default 60s.
	CredentialPollTimeout time.Duration `yaml:"credential_poll_timeout"`

	// PluginInstallTimeout bounds the orchestrator's background refresh of a
	// stale pre_request action. Dependency installs use the execution engine's
	// own fixed deadline instead. Default 120s.
	PluginInstallTimeout time.Duration `yaml:"plugin_install_timeout"`

	// SessionTokenSecret signs the CLI's local /user /pass session token.
	SessionTokenSecret string `yaml:"session_token_secret"`

	LogLevel string `yaml:"log_level"`
}

// Default returns a Config with every spec-mandated default populated.
func Default() Config {
	return Config{
		StorageRoot:           ".",
		MaxLoops:              5,
		WorkerPoolSize:        4,
		SchedulerTick:         60 * time.Second,
		CredentialPollTimeout: 60 * time.Second,
		PluginInstallTimeout:  120 * time.Second,
		LogLevel:              "info",
	}
}

// Load reads and parses a YAML config file, applying environment-variable
// expansion to the raw document (mirroring the teacher loader's
// os.ExpandEnv pass) and filling in defaults for anything left zero.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxLoops <= 0 {
		c.MaxLoops = 5
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 4
	}
	if c.SchedulerTick <= 0 {
		c.SchedulerTick = 60 * time.Second
	}
	if c.CredentialPollTimeout <= 0 {
		c.CredentialPollTimeout = 60 * time.Second
	}
	if c.PluginInstallTimeout <= 0 {
		c.PluginInstallTimeout = 120 * time.Second
	}
	if c.StorageRoot == "" {
		c.StorageRoot = "."
	}
}

// Provider looks up a named provider config.
func (c Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
