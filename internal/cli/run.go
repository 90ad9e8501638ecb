package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

var (
	runMaxAttempts int
	runParallel    int
	runQuiet       bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&runMaxAttempts, "max-attempts", "n", 0, "attempt budget per target (default from config)")
	runCmd.Flags().IntVarP(&runParallel, "parallel", "p", 1, "targets to run at once")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "do not report attempts as they finish")
}

var runCmd = &cobra.Command{
	Use:   "run <target> [target...]",
	Short: "Generate a parser for each target",
	Long: `Run the generate, execute, validate loop for each target.

The command exits non-zero if any target does not end with a parser
that reproduces its expected CSV.`,
	Example: `  bank-agent run icici
  bank-agent run icici sbi --max-attempts 5 --parallel 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runMaxAttempts < 0 {
			return fmt.Errorf("--max-attempts must be positive")
		}
		if runParallel < 1 {
			return fmt.Errorf("--parallel must be at least 1")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		budget := runMaxAttempts
		if budget == 0 {
			budget = appConfig.MaxAttempts
		}
		var obs *progress
		if !runQuiet {
			obs = newProgress(cmd.ErrOrStderr(), budget, args)
		}
		loop, err := a.loop(budget, nil)
		if err != nil {
			return err
		}
		if obs != nil {
			loop.Observer = obs
		}

		results := make([]*models.LoopResult, len(args))
		var g errgroup.Group
		g.SetLimit(runParallel)
		for i, name := range args {
			g.Go(func() error {
				results[i] = loop.Run(ctx, name)
				return nil
			})
		}
		_ = g.Wait()

		err = newFormatter(cmd.OutOrStdout()).Write(resultsValue(results), func(w io.Writer, s styles) error {
			for _, res := range results {
				if err := renderResult(w, s, res); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		failed := 0
		for _, res := range results {
			if !res.Succeeded() {
				failed++
			}
		}
		if failed > 0 {
			return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d targets did not produce a parser", failed, len(results)), Printed: true}
		}
		return nil
	},
}

// resultsValue keeps single-target output unwrapped.
func resultsValue(results []*models.LoopResult) any {
	if len(results) == 1 {
		return results[0]
	}
	return results
}

