package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the main configuration file within the config directory.
const ConfigFileName = "triago.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read triago.yaml from configDir (optional; built-ins apply if absent)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user config over built-in defaults
//  5. Build lookup indexes
//  6. Validate everything
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"tasks", stats.Tasks,
		"agents", stats.Agents,
		"lexicon_categories", stats.LexiconCategories,
		"weight_rows", stats.WeightRows)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	merged := builtinConfig()

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Warn("No configuration file found, using built-in defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		user := &TriagoYAMLConfig{}
		if err := yaml.Unmarshal(ExpandEnv(data), user); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidYAML, path, err)
		}
		// User values win over built-ins; built-ins fill the gaps.
		if err := mergo.Merge(user, merged); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
		merged = user
	}

	return fromYAML(merged), nil
}
