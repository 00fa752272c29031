package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func importNumbersCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "import-numbers [file]",
		Short: "Load phone numbers from a text file into the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			result, err := st.container.NumberPoolService.ImportFromText(cmd.Context(), string(content), filepath.Base(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func statsCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show number pool statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := st.container.NumberPoolService.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
