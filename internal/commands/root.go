// Package commands implements the screener command line.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bobmcallan/screener/internal/app"
	"github.com/bobmcallan/screener/internal/common"
)

var (
	configPath string
	logLevel   string
	envFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Market performance screening and fluctuation detection",
	Long: `Screener ranks the best and worst performers of a market over a period
and finds decline-then-rebound episodes across every listed stock.

Markets: KOSPI, KOSDAQ (EODHD), NASDAQ, NYSE, S&P500 (Yahoo Finance).

Run "screener serve" for the HTTP API, or the analysis commands for one-shot
results printed as JSON.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Note: %s not loaded: %v\n", envFile, err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = common.GetFullVersion()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $SCREENER_CONFIG, ./screener.toml, config/screener.toml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
}

// newApp loads the configuration, applies the global flag overrides and
// builds the application.
func newApp(ctx context.Context) (*app.App, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	return app.New(ctx, config, common.NewLoggerFromConfig(config.Logging))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
