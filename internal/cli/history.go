package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
	"github.com/insightdelivered/bank-statement-agent/internal/target"
)

var (
	historyLimit int
	historyRun   string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show one run in full")
}

var historyCmd = &cobra.Command{
	Use:   "history [target]",
	Short: "Show recorded runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !appConfig.History.Enabled {
			return fmt.Errorf("run history is disabled (history.enabled: false)")
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		f := newFormatter(cmd.OutOrStdout())
		if historyRun != "" {
			res, err := a.history.Get(ctx, historyRun)
			if err != nil {
				return err
			}
			return f.Write(res, func(w io.Writer, s styles) error {
				return renderResult(w, s, res)
			})
		}

		var id string
		if len(args) == 1 {
			if id, err = target.Normalize(args[0]); err != nil {
				return err
			}
		}
		runs, err := a.history.List(ctx, id, historyLimit)
		if err != nil {
			return err
		}
		if runs == nil {
			runs = []*models.LoopResult{}
		}
		return f.Write(runs, func(w io.Writer, s styles) error {
			return renderRunList(w, s, runs)
		})
	},
}
