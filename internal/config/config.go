// Package config handles bank-statement-agent configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// DataDir holds one directory per target with result.csv and the sample statement.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ParsersDir is where the generated parser for each target is written.
	ParsersDir string `yaml:"parsers_dir" mapstructure:"parsers_dir"`

	// MaxAttempts is the attempt budget for a run.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// LockTTL bounds how long a per-target run lock is honoured.
	LockTTL time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`

	Generator GeneratorConfig         `yaml:"generator" mapstructure:"generator"`
	Executor  ExecutorConfig          `yaml:"executor" mapstructure:"executor"`
	Targets   map[string]TargetConfig `yaml:"targets" mapstructure:"targets"`
	Logging   LoggingConfig           `yaml:"logging" mapstructure:"logging"`
	Server    ServerConfig            `yaml:"server" mapstructure:"server"`
	History   HistoryConfig           `yaml:"history" mapstructure:"history"`
}

// GeneratorConfig selects and tunes the code generation backend.
type GeneratorConfig struct {
	// Provider is one of groq, gemini, claude, replay.
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`

	GroqAPIKey   string `yaml:"groq_api_key" mapstructure:"groq_api_key"`
	GroqBaseURL  string `yaml:"groq_base_url" mapstructure:"groq_base_url"`
	GeminiAPIKey string `yaml:"gemini_api_key" mapstructure:"gemini_api_key"`
	ClaudeBin    string `yaml:"claude_bin" mapstructure:"claude_bin"`
	ReplayDir    string `yaml:"replay_dir" mapstructure:"replay_dir"`

	// SampleChars caps how much extracted statement text goes into a prompt.
	SampleChars int `yaml:"sample_chars" mapstructure:"sample_chars"`
	// ReferenceRows caps how many reference rows go into a prompt.
	ReferenceRows int `yaml:"reference_rows" mapstructure:"reference_rows"`
}

// ExecutorConfig controls how generated parsers are run.
type ExecutorConfig struct {
	// Mode is subprocess (isolated child process) or inprocess.
	Mode           string        `yaml:"mode" mapstructure:"mode"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxOutputBytes int64         `yaml:"max_output_bytes" mapstructure:"max_output_bytes"`
}

// TargetConfig holds per-target overrides.
type TargetConfig struct {
	// Keywords identify the institution in extracted statement text.
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
	// Template is a prompt template file used instead of the built-in one.
	Template string `yaml:"template" mapstructure:"template"`
	// Sample overrides the sample statement path.
	Sample string `yaml:"sample" mapstructure:"sample"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level        string `yaml:"level" mapstructure:"level"`
	Format       string `yaml:"format" mapstructure:"format"`
	EnableCaller bool   `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	// MaxUploadBytes limits statement uploads on the convert endpoint.
	MaxUploadBytes int `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// HistoryConfig controls the sqlite run journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     "data",
		ParsersDir:  "custom_parsers",
		MaxAttempts: 3,
		LockTTL:     15 * time.Minute,
		Generator: GeneratorConfig{
			Provider:      "groq",
			Model:         "",
			Temperature:   0.2,
			MaxTokens:     4096,
			Timeout:       2 * time.Minute,
			GroqBaseURL:   "https://api.groq.com/openai/v1",
			ClaudeBin:     "claude",
			SampleChars:   6000,
			ReferenceRows: 5,
		},
		Executor: ExecutorConfig{
			Mode:           "subprocess",
			Timeout:        30 * time.Second,
			MaxOutputBytes: 8 << 20,
		},
		Targets: map[string]TargetConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 32 << 20,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".bank-agent/history.db",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if strings.TrimSpace(c.ParsersDir) == "" {
		return fmt.Errorf("parsers_dir is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be positive")
	}

	switch strings.ToLower(c.Generator.Provider) {
	case "groq", "gemini", "claude", "replay":
	default:
		return fmt.Errorf("generator.provider must be one of groq, gemini, claude, replay")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("generator.temperature must be between 0 and 2")
	}
	if c.Generator.MaxTokens < 1 {
		return fmt.Errorf("generator.max_tokens must be at least 1")
	}
	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("generator.timeout must be positive")
	}

	switch strings.ToLower(c.Executor.Mode) {
	case "subprocess", "inprocess":
	default:
		return fmt.Errorf("executor.mode must be subprocess or inprocess")
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be positive")
	}
	if c.Executor.MaxOutputBytes <= 0 {
		return fmt.Errorf("executor.max_output_bytes must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console, json")
	}

	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	return nil
}

// Target returns the overrides for a target; the zero value if none.
func (c *Config) Target(name string) TargetConfig {
	if c.Targets == nil {
		return TargetConfig{}
	}
	return c.Targets[strings.ToLower(name)]
}
