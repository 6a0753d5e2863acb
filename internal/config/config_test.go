package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"FlowAnalysis", cfg.FlowAnalysis, true},
		{"MaxBlocks", cfg.MaxBlocks, 50000},
		{"CacheMaxEntries", cfg.CacheMaxEntries, 4096},
		{"Workers", cfg.Workers, 0},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if cfg.CacheDir == "" {
		t.Error("DefaultConfig().CacheDir is empty")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			FlowAnalysis:    true,
			MaxBlocks:       1000,
			CacheDir:        "/tmp/opflow",
			CacheMaxEntries: 100,
			Workers:         4,
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errContains string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:        "non-positive max_blocks",
			mutate:      func(c *Config) { c.MaxBlocks = 0 },
			wantErr:     true,
			errContains: "max_blocks must be positive",
		},
		{
			name:        "negative cache_max_entries",
			mutate:      func(c *Config) { c.CacheMaxEntries = -1 },
			wantErr:     true,
			errContains: "cache_max_entries must be non-negative",
		},
		{
			name:        "negative workers",
			mutate:      func(c *Config) { c.Workers = -2 },
			wantErr:     true,
			errContains: "workers must be non-negative",
		},
		{
			name:        "empty cache_dir",
			mutate:      func(c *Config) { c.CacheDir = "" },
			wantErr:     true,
			errContains: "cache_dir must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errContains)
				} else if !contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		envVars     map[string]string
		checkCfg    func(*testing.T, *Config)
		wantErr     bool
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
flow_analysis: false
max_blocks: 1234
cache_dir: /var/cache/opflow
cache_max_entries: 99
workers: 8
verbose: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.FlowAnalysis {
					t.Error("FlowAnalysis = true, want false")
				}
				if cfg.MaxBlocks != 1234 {
					t.Errorf("MaxBlocks = %v, want 1234", cfg.MaxBlocks)
				}
				if cfg.CacheDir != "/var/cache/opflow" {
					t.Errorf("CacheDir = %v, want /var/cache/opflow", cfg.CacheDir)
				}
				if cfg.CacheMaxEntries != 99 {
					t.Errorf("CacheMaxEntries = %v, want 99", cfg.CacheMaxEntries)
				}
				if cfg.Workers != 8 {
					t.Errorf("Workers = %v, want 8", cfg.Workers)
				}
				if !cfg.Verbose {
					t.Error("Verbose = false, want true")
				}
			},
		},
		{
			name: "env var overrides file values",
			configYAML: `
max_blocks: 1234
workers: 2
`,
			envVars: map[string]string{
				"OPFLOW_MAX_BLOCKS": "777",
			},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.MaxBlocks != 777 {
					t.Errorf("MaxBlocks = %v, want 777 (from env)", cfg.MaxBlocks)
				}
				if cfg.Workers != 2 {
					t.Errorf("Workers = %v, want 2 (from file)", cfg.Workers)
				}
			},
		},
		{
			name: "invalid yaml",
			configYAML: `
max_blocks: 1
  invalid: indent
`,
			wantErr:     true,
			errContains: "failed to parse",
		},
		{
			name: "invalid values rejected",
			configYAML: `
max_blocks: -5
`,
			wantErr:     true,
			errContains: "max_blocks must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			cfg, err := LoadFromFile(configPath)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errContains)
				} else if !contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.checkCfg != nil {
				tt.checkCfg(t, cfg)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	envKeys := []string{
		"OPFLOW_FLOW_ANALYSIS",
		"OPFLOW_MAX_BLOCKS",
		"OPFLOW_CACHE_DIR",
		"OPFLOW_CACHE_MAX_ENTRIES",
		"OPFLOW_WORKERS",
		"OPFLOW_VERBOSE",
	}

	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *Config)
	}{
		{
			name:    "flow analysis off",
			envVars: map[string]string{"OPFLOW_FLOW_ANALYSIS": "0"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.FlowAnalysis {
					t.Error("FlowAnalysis = true, want false")
				}
			},
		},
		{
			name:    "verbose accepts yes",
			envVars: map[string]string{"OPFLOW_VERBOSE": "yes"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Verbose {
					t.Error("Verbose = false, want true (from 'yes')")
				}
			},
		},
		{
			name:    "cache dir override",
			envVars: map[string]string{"OPFLOW_CACHE_DIR": "/scratch/opflow"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.CacheDir != "/scratch/opflow" {
					t.Errorf("CacheDir = %v, want /scratch/opflow", cfg.CacheDir)
				}
			},
		},
		{
			name:    "numeric overrides",
			envVars: map[string]string{"OPFLOW_MAX_BLOCKS": "2048", "OPFLOW_WORKERS": "16"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MaxBlocks != 2048 {
					t.Errorf("MaxBlocks = %v, want 2048", cfg.MaxBlocks)
				}
				if cfg.Workers != 16 {
					t.Errorf("Workers = %v, want 16", cfg.Workers)
				}
			},
		},
		{
			name:    "invalid int ignored",
			envVars: map[string]string{"OPFLOW_MAX_BLOCKS": "not-an-int"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MaxBlocks != 50000 {
					t.Errorf("MaxBlocks = %v, want 50000 (default)", cfg.MaxBlocks)
				}
			},
		},
		{
			name:    "negative values ignored",
			envVars: map[string]string{"OPFLOW_MAX_BLOCKS": "-100"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MaxBlocks != 50000 {
					t.Errorf("MaxBlocks = %v, want 50000 (default)", cfg.MaxBlocks)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range envKeys {
				os.Unsetenv(k)
			}
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}
			defer func() {
				for _, k := range envKeys {
					os.Unsetenv(k)
				}
			}()

			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			tt.check(t, cfg)
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"0", 0},
		{"100", 100},
		{"512", 512},
		{"invalid", 0},
		{"", 0},
		{"abc123", 0},
		{"10.5", 10}, // Will parse 10 from 10.5
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseInt(tt.input)
			if result != tt.expected {
				t.Errorf("parseInt(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := &Config{
		FlowAnalysis:    true,
		MaxBlocks:       4096,
		CacheDir:        "/tmp/opflow-test",
		CacheMaxEntries: 50,
		Workers:         3,
	}

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if loadedCfg.MaxBlocks != cfg.MaxBlocks {
		t.Errorf("MaxBlocks mismatch: got %d, want %d", loadedCfg.MaxBlocks, cfg.MaxBlocks)
	}
	if loadedCfg.CacheDir != cfg.CacheDir {
		t.Errorf("CacheDir mismatch: got %s, want %s", loadedCfg.CacheDir, cfg.CacheDir)
	}
	if loadedCfg.CacheMaxEntries != cfg.CacheMaxEntries {
		t.Errorf("CacheMaxEntries mismatch: got %d, want %d", loadedCfg.CacheMaxEntries, cfg.CacheMaxEntries)
	}
	if loadedCfg.Workers != cfg.Workers {
		t.Errorf("Workers mismatch: got %d, want %d", loadedCfg.Workers, cfg.Workers)
	}
}

func TestConfigSaveCreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dirs", "config.yaml")

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() failed to create parent dirs: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}
}

func TestCacheFile(t *testing.T) {
	cfg := &Config{CacheDir: "/var/cache/opflow"}
	want := filepath.Join("/var/cache/opflow", "summaries.msgpack")
	if got := cfg.CacheFile(); got != want {
		t.Errorf("CacheFile() = %q, want %q", got, want)
	}
}

// Helper functions

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsAt(s, substr))
}

func containsAt(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
