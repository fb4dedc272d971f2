package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-defuse/internal/log"
)

// Config holds all configuration for gdu
type Config struct {
	// Workers bounds the goals scored concurrently, 0 means one per CPU
	Workers int `yaml:"workers" toml:"workers" env:"GDU_WORKERS"`

	// Aliases enables detection of goals whose definition and use reach
	// the same object under different names
	Aliases bool `yaml:"aliases" toml:"aliases" env:"GDU_ALIASES"`

	// AlternativeSuiteFitness selects the experimental suite fitness
	AlternativeSuiteFitness bool `yaml:"alternative_suite_fitness" toml:"alternative_suite_fitness" env:"GDU_ALTERNATIVE_SUITE_FITNESS"`

	// Verify cross-checks every fitness value against a direct coverage check
	Verify bool `yaml:"verify" toml:"verify" env:"GDU_VERIFY"`

	// Logging
	LogLevel string `yaml:"log_level" toml:"log_level" env:"GDU_LOG_LEVEL"`
	JSONLogs bool   `yaml:"json_logs" toml:"json_logs" env:"GDU_JSON_LOGS"`

	// Goal cache
	CacheDir  string `yaml:"cache_dir" toml:"cache_dir" env:"GDU_CACHE_DIR"`
	CacheSize int    `yaml:"cache_size" toml:"cache_size" env:"GDU_CACHE_SIZE"`

	// JDKPureMethods names a YAML file of extra pure standard library
	// signatures
	JDKPureMethods string `yaml:"jdk_pure_methods" toml:"jdk_pure_methods" env:"GDU_JDK_PURE_METHODS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:                 0,
		Aliases:                 false,
		AlternativeSuiteFitness: false,
		Verify:                  false,
		LogLevel:                "info",
		JSONLogs:                false,
		CacheDir:                defaultCacheDir(),
		CacheSize:               64,
		JDKPureMethods:          "",
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gdu", "cache")
	}
	return filepath.Join(home, ".gdu", "cache")
}

// globalConfigFilePath returns the global config file path (~/.gdu/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gdu/config.yaml"
	}
	return filepath.Join(home, ".gdu", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.gdu/config.yaml)
func ProjectConfigFilePath() string {
	return ".gdu/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.gdu/config.yaml)
// 3. Global config (~/.gdu/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{globalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML or TOML file path.
// Files ending in .toml are decoded as TOML.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GDU_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("GDU_ALIASES"); v != "" {
		cfg.Aliases = parseBool(v)
	}
	if v := os.Getenv("GDU_ALTERNATIVE_SUITE_FITNESS"); v != "" {
		cfg.AlternativeSuiteFitness = parseBool(v)
	}
	if v := os.Getenv("GDU_VERIFY"); v != "" {
		cfg.Verify = parseBool(v)
	}
	if v := os.Getenv("GDU_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GDU_JSON_LOGS"); v != "" {
		cfg.JSONLogs = parseBool(v)
	}
	if v := os.Getenv("GDU_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("GDU_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("GDU_JDK_PURE_METHODS"); v != "" {
		cfg.JDKPureMethods = v
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.JDKPureMethods != "" {
		if _, err := os.Stat(c.JDKPureMethods); err != nil {
			return fmt.Errorf("jdk_pure_methods: %w", err)
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() log.Level {
	l, _ := log.ParseLevel(c.LogLevel)
	return l
}

// CacheEnabled reports whether goals are cached on disk.
func (c *Config) CacheEnabled() bool {
	return c.CacheDir != "" && c.CacheSize > 0
}

// parseBool accepts the spellings the environment commonly uses for true
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
