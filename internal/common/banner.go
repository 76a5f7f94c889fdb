package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner writes the startup banner to stderr and logs the startup summary.
func PrintBanner(config *Config, logger *Logger) {
	writeBanner(os.Stderr, config)

	logger.Info().
		Str("version", GetVersion()).
		Str("commit", GetGitCommit()).
		Str("environment", config.Environment).
		Str("service_url", serviceURL(config)).
		Str("cache_backend", config.Cache.Backend).
		Msg("Application started")
}

func serviceURL(config *Config) string {
	return fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
}

func writeBanner(w io.Writer, config *Config) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 60) + banner.ColorReset

	fmt.Fprintf(w, "\n%s\n\n", hr)
	fmt.Fprintf(w, "%s  SCREENER  market performance & fluctuation engine%s\n\n", textColor, banner.ColorReset)
	fmt.Fprintf(w, "%s\n\n", hr)

	cacheTarget := config.Redis.Addr
	if config.Cache.Backend == "surrealdb" {
		cacheTarget = config.Storage.Address
	} else if config.Cache.Backend == "memory" {
		cacheTarget = "in-process only"
	}

	kv := [][2]string{
		{"Version", GetVersion()},
		{"Commit", GetGitCommit()},
		{"Environment", config.Environment},
		{"Service URL", serviceURL(config)},
		{"Cache", config.Cache.Backend + " (" + cacheTarget + ")"},
		{"Cache TTL", config.Cache.GetTTL().String()},
	}
	for _, line := range kv {
		fmt.Fprintf(w, "%s  %-14s %s%s\n", textColor, line[0], line[1], banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s\n\n", hr)
}

// PrintShutdownBanner writes the shutdown banner to stderr.
func PrintShutdownBanner(logger *Logger) {
	hr := banner.ColorCyan + strings.Repeat("═", 42) + banner.ColorReset
	fmt.Fprintf(os.Stderr, "\n%s\n", hr)
	fmt.Fprintf(os.Stderr, "%s  SCREENER - SHUTTING DOWN%s\n", banner.ColorBold+banner.ColorWhite, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n\n", hr)

	logger.Info().Msg("Application shutting down")
}
