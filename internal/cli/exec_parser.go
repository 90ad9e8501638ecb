package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/insightdelivered/bank-statement-agent/internal/executor"
)

func init() {
	rootCmd.AddCommand(execParserCmd)
}

// execParserCmd is the child side of the subprocess executor. It writes
// one JSON envelope to stdout and logs only warnings to stderr.
var execParserCmd = &cobra.Command{
	Use:    "exec-parser <artifact> <statement>",
	Hidden: true,
	Args:   cobra.ExactArgs(2),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Str("component", "exec-parser").Logger()
		return executor.RunChildStdout(cmd.Context(), args[0], args[1], log)
	},
}
