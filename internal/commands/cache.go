package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var clearMarket string

// cacheCmd groups the result cache administration commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache state and the active screening limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return printJSON(cmd.OutOrStdout(), a.PerformanceService.CacheStats(ctx))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached results of one market, or all results",
	Example: `  screener cache clear --market KOSPI
  screener cache clear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return printJSON(cmd.OutOrStdout(), a.PerformanceService.ClearCache(ctx, clearMarket))
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)

	cacheClearCmd.Flags().StringVarP(&clearMarket, "market", "m", "", "market to clear (default: all)")
}
