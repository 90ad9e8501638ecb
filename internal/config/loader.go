package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load loads configuration with precedence:
// defaults < config file < env vars (CLI flags are applied by the caller).
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional unless explicitly specified.
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalizeTargets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("bank-agent")
	v.SetConfigType("yaml")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "bank-agent"))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		v.AddConfigPath(filepath.Join(home, ".config", "bank-agent"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("BANKAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys keep their conventional names.
	_ = v.BindEnv("generator.groq_api_key", "BANKAGENT_GENERATOR_GROQ_API_KEY", "GROQ_API_KEY")
	_ = v.BindEnv("generator.gemini_api_key", "BANKAGENT_GENERATOR_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("parsers_dir", cfg.ParsersDir)
	v.SetDefault("max_attempts", cfg.MaxAttempts)
	v.SetDefault("lock_ttl", cfg.LockTTL)

	v.SetDefault("generator.provider", cfg.Generator.Provider)
	v.SetDefault("generator.model", cfg.Generator.Model)
	v.SetDefault("generator.temperature", cfg.Generator.Temperature)
	v.SetDefault("generator.max_tokens", cfg.Generator.MaxTokens)
	v.SetDefault("generator.timeout", cfg.Generator.Timeout)
	v.SetDefault("generator.groq_base_url", cfg.Generator.GroqBaseURL)
	v.SetDefault("generator.claude_bin", cfg.Generator.ClaudeBin)
	v.SetDefault("generator.replay_dir", cfg.Generator.ReplayDir)
	v.SetDefault("generator.sample_chars", cfg.Generator.SampleChars)
	v.SetDefault("generator.reference_rows", cfg.Generator.ReferenceRows)

	v.SetDefault("executor.mode", cfg.Executor.Mode)
	v.SetDefault("executor.timeout", cfg.Executor.Timeout)
	v.SetDefault("executor.max_output_bytes", cfg.Executor.MaxOutputBytes)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.max_upload_bytes", cfg.Server.MaxUploadBytes)

	v.SetDefault("history.enabled", cfg.History.Enabled)
	v.SetDefault("history.path", cfg.History.Path)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && l.configFile == "" {
			return nil
		}
		return err
	}
	return nil
}

// normalizeTargets lower-cases target keys so lookups are case-insensitive.
func normalizeTargets(cfg *Config) {
	if len(cfg.Targets) == 0 {
		return
	}
	out := make(map[string]TargetConfig, len(cfg.Targets))
	for name, t := range cfg.Targets {
		out[strings.ToLower(strings.TrimSpace(name))] = t
	}
	cfg.Targets = out
}
