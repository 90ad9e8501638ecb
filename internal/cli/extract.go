package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var extractPage int

func init() {
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(detectCmd)
	extractCmd.Flags().IntVar(&extractPage, "page", 0, "print only this page (1-based)")
}

var extractCmd = &cobra.Command{
	Use:   "extract <statement>",
	Short: "Print the text extracted from a statement",
	Long: `Print the text parsers and prompts see for a statement. Useful for
checking why a generated parser misreads a layout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		pages, err := a.extractor.Pages(ctx, args[0])
		if err != nil {
			return err
		}
		first := 1
		if extractPage != 0 {
			if extractPage < 1 || extractPage > len(pages) {
				return fmt.Errorf("page %d out of range (statement has %d pages)", extractPage, len(pages))
			}
			pages = pages[extractPage-1 : extractPage]
			first = extractPage
		}

		return newFormatter(cmd.OutOrStdout()).Write(pages, func(w io.Writer, s styles) error {
			for i, p := range pages {
				fmt.Fprintln(w, s.dim.Render(fmt.Sprintf("--- page %d ---", first+i)))
				fmt.Fprintln(w, p)
			}
			return nil
		})
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect <statement>",
	Short: "Identify which target a statement belongs to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.detect(ctx, args[0])
		if err != nil {
			return err
		}
		value := map[string]string{"statement": args[0], "target": id}
		return newFormatter(cmd.OutOrStdout()).Write(value, func(w io.Writer, s styles) error {
			_, err := fmt.Fprintln(w, id)
			return err
		})
	},
}
