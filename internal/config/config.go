// Package config provides configuration loading for codeatlas.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Model    ModelConfig    `koanf:"model"`
	Analysis AnalysisConfig `koanf:"analysis"`
	Budget   BudgetConfig   `koanf:"budget"`
	Logging  LoggingConfig  `koanf:"logging"`
	Output   OutputConfig   `koanf:"output"`
}

// ModelConfig configures the model-calling collaborator.
type ModelConfig struct {
	Name            string        `koanf:"name"`
	APIKey          string        `koanf:"api_key"`
	BaseURL         string        `koanf:"base_url"`
	MaxOutputTokens int           `koanf:"max_output_tokens"`
	Temperature     float64       `koanf:"temperature"`
	Timeout         time.Duration `koanf:"timeout"`
}

// AnalysisConfig configures static analysis and fan-out behavior.
type AnalysisConfig struct {
	IgnoreGlobs  []string `koanf:"ignore_globs"`
	MaxFileBytes int64    `koanf:"max_file_bytes"`
	MaxModules   int      `koanf:"max_modules"`
	BatchSize    int      `koanf:"batch_size"`
}

// BudgetConfig configures token budgets and accounting.
type BudgetConfig struct {
	// ContextTokens bounds each round's compressed context.
	ContextTokens int `koanf:"context_tokens"`
	// FileTokens bounds the packed file content per round prompt.
	FileTokens int `koanf:"file_tokens"`
	// WarnUtilization triggers a non-fatal warning when a round's input
	// exceeds this fraction of the model context window.
	WarnUtilization float64 `koanf:"warn_utilization"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// OutputConfig configures rendered document output.
type OutputConfig struct {
	Dir string `koanf:"dir"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Model.APIKey == "" {
		return fmt.Errorf("model.api_key is required (set ANTHROPIC_API_KEY or model.api_key)")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be in [0,1], got %v", c.Model.Temperature)
	}
	if c.Analysis.MaxModules <= 0 {
		return fmt.Errorf("analysis.max_modules must be positive, got %d", c.Analysis.MaxModules)
	}
	if c.Analysis.BatchSize <= 0 {
		return fmt.Errorf("analysis.batch_size must be positive, got %d", c.Analysis.BatchSize)
	}
	if c.Budget.ContextTokens <= 0 {
		return fmt.Errorf("budget.context_tokens must be positive, got %d", c.Budget.ContextTokens)
	}
	if c.Budget.WarnUtilization <= 0 || c.Budget.WarnUtilization > 1 {
		return fmt.Errorf("budget.warn_utilization must be in (0,1], got %v", c.Budget.WarnUtilization)
	}
	return nil
}
