// Package main implements recapd, the report lifecycle service.
// It captures activity events over HTTP and periodically freezes them
// into immutable summarized reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/recaphq/recap/internal/app"
	"github.com/recaphq/recap/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		httpAddr    string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to YAML configuration file")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for the report database")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Recap - Activity Report Lifecycle Service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: recapd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  recapd --data-dir /data/recap\n")
		fmt.Fprintf(os.Stderr, "  recapd --config /etc/recap/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  RECAP_DATA_DIR         Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  RECAP_HTTP_ADDR        HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  RECAP_FREEZE_AUTO      Enable the periodic freeze daemon\n")
		fmt.Fprintf(os.Stderr, "  RECAP_FREEZE_INTERVAL  Reporting period length (e.g. 168h)\n")
		fmt.Fprintf(os.Stderr, "  RECAP_ARCHIVE_TYPE     Archive backend (local, s3)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("recapd version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recapd: %v\n", err)
		os.Exit(1)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
		cfg.Resolve()
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().Str("version", version).Str("data_dir", cfg.DataDir).Msg("starting recapd")

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize service")
	}

	if err := a.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("service exited with error")
	}
	logger.Info().Msg("recapd stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
