package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/screener/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "screener %s\n", common.GetFullVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
