// Package cli implements the bank-agent command-line interface using Cobra.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/insightdelivered/bank-statement-agent/internal/config"
	"github.com/insightdelivered/bank-statement-agent/internal/logging"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	noColor      bool
	verbose      bool
	logLevel     string
	logFormat    string

	configLoader *config.Loader
	appConfig    *config.Config
	logger       zerolog.Logger

	buildVersion = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "bank-agent",
	Short: "Generate bank statement parsers with an LLM",
	Long: `bank-agent writes a parser for a bank's PDF statements.

For each target it asks a model for parser source, runs it against the
target's sample statement and compares the output with the expected CSV.
Failures are fed back into the next attempt until the parser matches or
the attempt budget runs out.

Expected layout:
  data/<target>/result.csv          expected output
  data/<target>/<target>_sample.pdf sample statement
  custom_parsers/<target>_parser.go generated parser`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute(version, commit, date string) error {
	buildVersion = version
	rootCmd.Version = formatVersion(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initConfig()
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./bank-agent.yaml)")
	flags.StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, yaml)")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
}

// initConfig loads configuration with precedence
// defaults < config file < env vars < CLI flags.
func initConfig() error {
	switch outputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}

	configLoader = config.NewLoader()
	if cfgFile != "" {
		configLoader.SetConfigFile(cfgFile)
	}

	cfg, err := configLoader.Load()
	if err != nil {
		return err
	}
	appConfig = cfg

	applyCLIOverrides()
	initLogging()

	if used := configLoader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("loaded config file")
	}
	return nil
}

func applyCLIOverrides() {
	flags := rootCmd.PersistentFlags()

	if flags.Changed("log-level") {
		appConfig.Logging.Level = logLevel
	} else if verbose {
		appConfig.Logging.Level = "debug"
	}
	if flags.Changed("log-format") {
		appConfig.Logging.Format = logFormat
	}
}

func initLogging() {
	logging.Init(logging.Config{
		Level:        appConfig.Logging.Level,
		Format:       appConfig.Logging.Format,
		EnableCaller: appConfig.Logging.EnableCaller,
	})
	logger = logging.Component("cli")
}

func formatVersion(version, commit, date string) string {
	return version + " (commit: " + commit + ", built: " + date + ")"
}
