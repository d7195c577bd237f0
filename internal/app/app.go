// Package app wires the Recap service together: storage, lifecycle
// engine, freeze daemon, and HTTP API.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/recaphq/recap/internal/aggregate"
	httpapi "github.com/recaphq/recap/internal/api/http"
	"github.com/recaphq/recap/internal/archive"
	"github.com/recaphq/recap/internal/config"
	"github.com/recaphq/recap/internal/lifecycle"
	"github.com/recaphq/recap/internal/metrics"
	"github.com/recaphq/recap/internal/schedule"
	"github.com/recaphq/recap/internal/server"
	"github.com/recaphq/recap/internal/store"
)

// App is the assembled Recap service.
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	db      *store.DB
	events  store.EventStore
	reports store.ReportStore
	engine  *lifecycle.Engine
	daemon  *schedule.Daemon
	metrics *metrics.Metrics

	shutdown   *server.ShutdownManager
	httpServer *server.GracefulHTTPServer
}

// New builds the service from configuration. The returned App is not
// running; call Run.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("app: failed to open report database: %w", err)
	}

	a := &App{
		cfg:      cfg,
		log:      logger,
		db:       db,
		events:   store.NewEventStore(db),
		reports:  store.NewReportStore(db),
		metrics:  metrics.New(),
		shutdown: server.NewShutdownManager(server.ShutdownConfig{}),
	}

	engineOpts := []lifecycle.Option{lifecycle.WithMetrics(a.metrics)}
	if cfg.Archive.Enabled {
		archiver, err := a.buildArchiver(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		engineOpts = append(engineOpts, lifecycle.WithArchiver(archiver))
	}

	agg := aggregate.New(aggregate.DefaultLabels(), aggregate.WithLogger(logger))
	a.engine = lifecycle.New(db, a.events, a.reports, agg, logger, engineOpts...)

	if cfg.Freeze.Auto {
		a.daemon = schedule.NewDaemon(cfg.Freeze.Interval, a.engine, logger)
	}

	a.httpServer = server.NewGracefulHTTPServer(&http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      a.routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, a.shutdown)

	return a, nil
}

// buildArchiver constructs the configured archive backend.
func (a *App) buildArchiver(ctx context.Context) (*archive.Archiver, error) {
	var (
		objStore archive.ObjectStore
		err      error
	)
	switch a.cfg.Archive.Type {
	case "s3":
		objStore, err = archive.NewS3Store(ctx, a.cfg.Archive.S3.Bucket, archive.S3Config{
			Region:       a.cfg.Archive.S3.Region,
			Endpoint:     a.cfg.Archive.S3.Endpoint,
			UsePathStyle: a.cfg.Archive.S3.Endpoint != "",
		})
	default:
		objStore, err = archive.NewLocalStore(a.cfg.Archive.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("app: failed to build archive store: %w", err)
	}
	return archive.NewArchiver(objStore, a.log), nil
}

// routes assembles the HTTP mux with the full middleware chain.
func (a *App) routes() http.Handler {
	middleware := func(route string, h http.Handler) http.Handler {
		return httpapi.ChainMiddleware(
			httpapi.RecoveryMiddleware,
			server.ShutdownMiddleware(a.shutdown),
			httpapi.RequestIDMiddleware,
			httpapi.ContentTypeMiddleware,
			httpapi.MetricsMiddleware(a.metrics, route),
		)(h)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/events", middleware("/v1/events",
		httpapi.NewEventsHandler(a.events, a.metrics)))
	mux.Handle("/v1/reports", middleware("/v1/reports",
		httpapi.NewReportsHandler(a.engine, a.reports)))
	mux.Handle("/v1/reports/", middleware("/v1/reports",
		httpapi.NewReportsHandler(a.engine, a.reports)))
	mux.HandleFunc("/health", a.healthHandler())
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

// Run starts the service and blocks until shutdown: it opens the
// active report if none exists, starts the freeze daemon, and serves
// the API.
func (a *App) Run(ctx context.Context) error {
	reportID, err := a.engine.EnsureActiveReport(ctx)
	if err != nil {
		return fmt.Errorf("app: failed to ensure active report: %w", err)
	}
	a.log.Info().Int64("report_id", reportID).Msg("active report ready")

	if a.daemon != nil {
		if err := a.daemon.Start(ctx); err != nil {
			return err
		}
		a.shutdown.RegisterCloser(server.CloserFunc(a.daemon.Stop))
		a.log.Info().Dur("interval", a.cfg.Freeze.Interval).Msg("freeze daemon started")
	}

	// Closers run LIFO, so the database closes after the daemon stops.
	a.shutdown.RegisterCloser(server.CloserFunc(a.db.Close))

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.HTTP.Addr).Msg("http server listening")
		errCh <- a.httpServer.ListenAndServe()
	}()

	sigErrCh := make(chan error, 1)
	go func() {
		sigErrCh <- a.shutdown.ListenForSignals(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.shutdown.Shutdown(context.Background())
			return err
		}
		return <-sigErrCh
	case err := <-sigErrCh:
		return err
	}
}

// Stop triggers graceful shutdown.
func (a *App) Stop(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx)
}

func (a *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if a.shutdown.IsShuttingDown() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"shutting_down","service":"recap"}`)
			return
		}
		fmt.Fprint(w, `{"status":"healthy","service":"recap"}`)
	}
}
