package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Keys absent from a file keep their previous value. Missing files are not
// errors; malformed files are.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.tascade/config.{yaml,yml,json}
// Project: .tascade/config.{yaml,yml,json} (relative to cwd)
func LoadDefault() (*Config, error) {
	globalPath, projectPath, err := Paths()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, projectPath)
}

// Paths returns the global and project config files LoadDefault reads.
func Paths() (global, project string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return findConfig(filepath.Join(homeDir, ".tascade")), findConfig(".tascade"), nil
}

// findConfig returns the first config file present in dir, or the JSON path
// when none exists.
func findConfig(dir string) string {
	for _, name := range []string{"config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, "config.json")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// mergeConfigFile decodes path over a copy of base and commits the copy only
// when the whole file parses.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	merged := *base
	if isYAML(path) {
		err = yaml.Unmarshal(data, &merged)
	} else {
		err = json.Unmarshal(data, &merged)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	*base = merged
	return nil
}
