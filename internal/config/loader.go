package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load reads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CODEATLAS_MODEL_NAME, CODEATLAS_BUDGET_CONTEXT_TOKENS, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// The configPath parameter may be empty, in which case only environment
// variables and defaults apply. ANTHROPIC_API_KEY is honored as a shorthand
// for model.api_key.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables use the CODEATLAS_ prefix, underscore separator:
	// CODEATLAS_MODEL_NAME -> model.name
	// CODEATLAS_BUDGET_CONTEXT_TOKENS -> budget.context_tokens
	if err := k.Load(env.Provider("CODEATLAS_", ".", func(s string) string {
		trimmed := strings.ToLower(strings.TrimPrefix(s, "CODEATLAS_"))
		parts := strings.SplitN(trimmed, "_", 2)
		if len(parts) == 1 {
			return trimmed
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Model.Name == "" {
		cfg.Model.Name = "claude-sonnet-4-5"
	}
	if cfg.Model.MaxOutputTokens == 0 {
		cfg.Model.MaxOutputTokens = 8192
	}
	if cfg.Model.Temperature == 0 {
		cfg.Model.Temperature = 0.4
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 2 * time.Minute
	}

	if len(cfg.Analysis.IgnoreGlobs) == 0 {
		cfg.Analysis.IgnoreGlobs = []string{
			"**/node_modules/**",
			"**/vendor/**",
			"**/.git/**",
			"**/dist/**",
			"**/build/**",
			"**/*.min.js",
		}
	}
	if cfg.Analysis.MaxFileBytes == 0 {
		cfg.Analysis.MaxFileBytes = 256 * 1024
	}
	if cfg.Analysis.MaxModules == 0 {
		cfg.Analysis.MaxModules = 20
	}
	if cfg.Analysis.BatchSize == 0 {
		cfg.Analysis.BatchSize = 10
	}

	if cfg.Budget.ContextTokens == 0 {
		cfg.Budget.ContextTokens = 2000
	}
	if cfg.Budget.FileTokens == 0 {
		cfg.Budget.FileTokens = 60_000
	}
	if cfg.Budget.WarnUtilization == 0 {
		cfg.Budget.WarnUtilization = 0.85
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "codeatlas-docs"
	}
}
