package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{
			"version": rootCmd.Version,
			"go":      runtime.Version(),
		}
		return newFormatter(cmd.OutOrStdout()).Write(info, func(w io.Writer, s styles) error {
			_, err := fmt.Fprintf(w, "bank-agent %s (%s)\n", rootCmd.Version, runtime.Version())
			return err
		})
	},
}
