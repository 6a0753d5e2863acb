package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for opflow
type Config struct {
	// FlowAnalysis enables control flow graph construction. When false,
	// parsed units refuse graph construction and commands degrade to
	// listing functions.
	FlowAnalysis bool `yaml:"flow_analysis" env:"OPFLOW_FLOW_ANALYSIS"`

	// MaxBlocks caps the number of basic blocks a single graph may have.
	MaxBlocks int `yaml:"max_blocks" env:"OPFLOW_MAX_BLOCKS"`

	// CacheDir is where the summary cache file lives.
	CacheDir string `yaml:"cache_dir" env:"OPFLOW_CACHE_DIR"`

	// CacheMaxEntries is the summary cache capacity; 0 disables caching.
	CacheMaxEntries int `yaml:"cache_max_entries" env:"OPFLOW_CACHE_MAX_ENTRIES"`

	// Workers is the number of concurrent lowerings in batch mode.
	// 0 means one per CPU.
	Workers int `yaml:"workers" env:"OPFLOW_WORKERS"`

	// Logging
	Verbose bool `yaml:"verbose" env:"OPFLOW_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FlowAnalysis:    true,
		MaxBlocks:       50000,
		CacheDir:        defaultCacheDir(),
		CacheMaxEntries: 4096,
		Workers:         0,
		Verbose:         false,
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opflow"
	}
	return filepath.Join(home, ".opflow")
}

// globalConfigFilePath returns the global config file path (~/.opflow/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opflow/config.yaml"
	}
	return filepath.Join(home, ".opflow", "config.yaml")
}

// projectConfigFilePath returns the project-level config file path (./.opflow/config.yaml)
func projectConfigFilePath() string {
	return ".opflow/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.opflow/config.yaml)
// 3. Global config (~/.opflow/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	globalConfigPath := globalConfigFilePath()
	if data, err := os.ReadFile(globalConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", globalConfigPath, err)
		}
	}

	projectConfigPath := projectConfigFilePath()
	if data, err := os.ReadFile(projectConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", projectConfigPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
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

// SaveGlobal writes the configuration to the global config path.
func (c *Config) SaveGlobal() error {
	return c.Save(globalConfigFilePath())
}

// CacheFile returns the path of the persisted summary cache.
func (c *Config) CacheFile() string {
	return filepath.Join(c.CacheDir, "summaries.msgpack")
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPFLOW_FLOW_ANALYSIS"); v != "" {
		cfg.FlowAnalysis = parseBool(v)
	}
	if v := os.Getenv("OPFLOW_MAX_BLOCKS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxBlocks = i
		}
	}
	if v := os.Getenv("OPFLOW_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("OPFLOW_CACHE_MAX_ENTRIES"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.CacheMaxEntries = i
		}
	}
	if v := os.Getenv("OPFLOW_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("OPFLOW_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.MaxBlocks <= 0 {
		return fmt.Errorf("max_blocks must be positive")
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("cache_max_entries must be non-negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	return nil
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}

// parseBool reports whether the string spells an affirmative value
func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}
