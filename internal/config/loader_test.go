package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalName    string
		globalConfig  string
		projectName   string
		projectConfig string
		check         func(t *testing.T, cfg *Config)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Storage.Backend != "json" || cfg.Scheduler.QueueLimit != 5 {
					t.Errorf("defaults not applied: %+v", cfg)
				}
			},
		},
		{
			name:         "Global JSON overrides only the keys it names",
			globalName:   "global.json",
			globalConfig: `{"scheduler": {"queue_limit": 10}}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Scheduler.QueueLimit != 10 {
					t.Errorf("queue_limit = %d, want 10", cfg.Scheduler.QueueLimit)
				}
				if cfg.Scheduler.DefaultComplexity != 5 {
					t.Errorf("default_complexity = %g, want default 5", cfg.Scheduler.DefaultComplexity)
				}
			},
		},
		{
			name:          "Project overrides global - project wins",
			globalName:    "global.json",
			globalConfig:  `{"lifecycle": {"default_user": "alice", "strict_start": true}}`,
			projectName:   "project.json",
			projectConfig: `{"lifecycle": {"default_user": "bob"}}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Lifecycle.DefaultUser != "bob" {
					t.Errorf("default_user = %q, want bob", cfg.Lifecycle.DefaultUser)
				}
				if !cfg.Lifecycle.StrictStart {
					t.Error("strict_start from global config was lost")
				}
			},
		},
		{
			name:        "YAML project config",
			projectName: "project.yaml",
			projectConfig: strings.Join([]string{
				"storage:",
				"  backend: sqlite",
				"  path: tasks.db",
				"runner:",
				"  concurrency: 2",
				"  retry:",
				"    initial_interval: 250ms",
				"  breaker:",
				"    timeout: 1m",
			}, "\n"),
			check: func(t *testing.T, cfg *Config) {
				if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "tasks.db" {
					t.Errorf("storage = %+v", cfg.Storage)
				}
				if cfg.Runner.Concurrency != 2 {
					t.Errorf("concurrency = %d, want 2", cfg.Runner.Concurrency)
				}
				if got := cfg.Runner.Retry.InitialInterval.Std(); got != 250*time.Millisecond {
					t.Errorf("initial_interval = %v, want 250ms", got)
				}
				if got := cfg.Runner.Retry.MaxInterval.Std(); got != 30*time.Second {
					t.Errorf("max_interval = %v, want default 30s", got)
				}
				if got := cfg.Runner.Breaker.Timeout.Std(); got != time.Minute {
					t.Errorf("breaker timeout = %v, want 1m", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalName != "" {
				globalPath = filepath.Join(tmpDir, tt.globalName)
				writeFile(t, globalPath, tt.globalConfig)
			}
			projectPath := ""
			if tt.projectName != "" {
				projectPath = filepath.Join(tmpDir, tt.projectName)
				writeFile(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_MalformedFiles(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"json", "global.json", "{invalid json"},
		{"yaml", "global.yaml", "storage: [unclosed"},
		{"bad duration", "global.json", `{"runner": {"breaker": {"timeout": "soon"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writeFile(t, path, tt.content)

			_, err := Load(path, "")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), path) {
				t.Errorf("error %q does not name the file", err)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	writeFile(t, path, `{"storage": {"backend": "postgres"}}`)

	if _, err := Load("", path); err == nil || !strings.Contains(err.Error(), "storage.backend") {
		t.Fatalf("Load() error = %v, want storage.backend complaint", err)
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if cfg.Runner.Concurrency != DefaultConfig().Runner.Concurrency {
		t.Errorf("concurrency = %d, want default", cfg.Runner.Concurrency)
	}
}

func TestFindConfigPrefersYAML(t *testing.T) {
	dir := t.TempDir()
	if got := findConfig(dir); got != filepath.Join(dir, "config.json") {
		t.Errorf("findConfig() on empty dir = %q", got)
	}

	writeFile(t, filepath.Join(dir, "config.yml"), "scheduler:\n  queue_limit: 3\n")
	if got := findConfig(dir); got != filepath.Join(dir, "config.yml") {
		t.Errorf("findConfig() = %q, want config.yml", got)
	}
}
