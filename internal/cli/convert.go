package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/bank-statement-agent/internal/artifact"
	"github.com/insightdelivered/bank-statement-agent/internal/executor"
	"github.com/insightdelivered/bank-statement-agent/internal/table"
	"github.com/insightdelivered/bank-statement-agent/internal/target"
)

var (
	convertTarget string
	convertOut    string
)

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVarP(&convertTarget, "target", "t", "", "target whose parser to use (auto-detected if omitted)")
	convertCmd.Flags().StringVar(&convertOut, "out", "", "output CSV path, '-' for stdout (default <statement>.csv)")
}

var convertCmd = &cobra.Command{
	Use:   "convert <statement> [statement...]",
	Short: "Convert statements to CSV with a generated parser",
	Example: `  bank-agent convert august.pdf
  bank-agent convert --target icici --out - august.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if convertOut != "" && len(args) > 1 {
			return fmt.Errorf("--out can only be used with a single statement")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		type converted struct {
			Statement string `json:"statement" yaml:"statement"`
			Target    string `json:"target" yaml:"target"`
			Output    string `json:"output" yaml:"output"`
			Rows      int    `json:"rows" yaml:"rows"`
			Warning   string `json:"warning,omitempty" yaml:"warning,omitempty"`
		}
		var done []converted

		for _, input := range args {
			id := convertTarget
			if id == "" {
				id, err = a.detect(ctx, input)
				if err != nil {
					return fmt.Errorf("%s: %w", input, err)
				}
				logger.Info().Str("statement", input).Str("target", id).Msg("auto-detected target")
			} else if id, err = target.Normalize(id); err != nil {
				return err
			}

			art, err := a.store.Read(id)
			if errors.Is(err, artifact.ErrNotFound) {
				return fmt.Errorf("no parser for %s yet; run 'bank-agent run %s' first", id, id)
			}
			if err != nil {
				return err
			}
			warning := a.acceptanceWarning(ctx, id)
			if warning != "" {
				logger.Warn().Str("target", id).Msg(warning)
			}

			t, err := a.executor.Execute(ctx, art, input)
			if err != nil {
				var ee *executor.ExecutionError
				if errors.As(err, &ee) {
					return fmt.Errorf("%s: %s", input, ee.Detail)
				}
				return err
			}
			if len(t.Rows) == 0 {
				logger.Warn().Str("statement", input).Msg("parser returned no rows")
			}

			out := convertOut
			if out == "" {
				out = csvPath(input)
			}
			if out == "-" {
				if err := table.Write(cmd.OutOrStdout(), t); err != nil {
					return err
				}
				continue
			}
			if err := table.WriteFile(a.fs, out, t); err != nil {
				return fmt.Errorf("CSV write failed: %w", err)
			}
			done = append(done, converted{Statement: input, Target: id, Output: out, Rows: len(t.Rows), Warning: warning})
		}

		if len(done) == 0 {
			return nil
		}
		return newFormatter(cmd.OutOrStdout()).Write(done, func(w io.Writer, s styles) error {
			for _, c := range done {
				fmt.Fprintf(w, "%s -> %s %s\n", c.Statement, c.Output,
					s.dim.Render(fmt.Sprintf("(%s, %d rows)", c.Target, c.Rows)))
				if c.Warning != "" {
					fmt.Fprintf(w, "  %s\n", s.warn.Render("warning: "+c.Warning))
				}
			}
			return nil
		})
	},
}
