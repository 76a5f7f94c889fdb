package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/server"
)

const shutdownTimeout = 10 * time.Second

var (
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Start the screener HTTP API together with the background scheduler
(universe refresh, cache probe) and the startup cache warm-up.

Examples:
  screener serve                  # Start with config defaults
  screener serve --port 9090      # Start on a custom port
  screener serve -l debug         # Enable debug logging`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveHost, "host", "H", "", "server host (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "server port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveHost != "" {
		a.Config.Server.Host = serveHost
	}
	if servePort != 0 {
		a.Config.Server.Port = servePort
	}

	common.PrintBanner(a.Config, a.Logger)

	if err := a.StartScheduler(); err != nil {
		return err
	}
	a.StartWarmCache()

	srv := server.NewServer(a)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or a failed listener
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.Logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errChan:
		a.Logger.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	common.PrintShutdownBanner(a.Logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	a.Logger.Info().Msg("Server stopped")
	return nil
}
