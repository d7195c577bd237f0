// Package schedule runs the periodic freeze loop.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	recaperr "github.com/recaphq/recap/internal/errors"
)

// Freezer is the lifecycle operation the daemon drives.
type Freezer interface {
	FreezeCurrentReport(ctx context.Context) (int64, error)
	EnsureActiveReport(ctx context.Context) (int64, error)
}

// Daemon freezes the active report on a fixed interval. Freezing is
// idempotent at the engine level, so a manual freeze racing a scheduled
// one degrades to an ALREADY_FROZEN no-op rather than a double seal.
type Daemon struct {
	interval time.Duration
	engine   Freezer
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDaemon creates a freeze daemon.
func NewDaemon(interval time.Duration, engine Freezer, logger zerolog.Logger) *Daemon {
	return &Daemon{
		interval: interval,
		engine:   engine,
		log:      logger,
	}
}

// Start begins the freeze loop. It runs until the context is cancelled
// or Stop is called. Unlike most background loops it does not fire
// immediately: the first freeze happens one full interval after start,
// so the boot period accumulates events.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("schedule: daemon is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

// Stop gracefully stops the daemon, waiting for an in-flight freeze to
// finish.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.cancel()
	<-d.done
	d.running = false
	return nil
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single freeze cycle. Lifecycle conflicts (nothing
// active, or another caller froze first) are logged and absorbed; only
// unexpected failures are surfaced at error level.
func (d *Daemon) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	reportID, err := d.engine.FreezeCurrentReport(ctx)
	if err != nil {
		switch recaperr.GetCode(err) {
		case recaperr.CodeNoActiveReport, recaperr.CodeAlreadyFrozen:
			d.log.Warn().Err(err).Msg("scheduled freeze skipped")
		case recaperr.CodeRolloverFailed:
			d.log.Error().Err(err).Int64("report_id", reportID).
				Msg("scheduled freeze sealed the report but rollover failed")
			d.heal(ctx)
		default:
			d.log.Error().Err(err).Msg("scheduled freeze failed")
		}
		return
	}

	d.log.Info().Int64("report_id", reportID).Msg("scheduled freeze completed")
}

// heal reopens an active report after a failed rollover so the next
// cycle has a period to seal.
func (d *Daemon) heal(ctx context.Context) {
	if _, err := d.engine.EnsureActiveReport(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.log.Error().Err(err).Msg("failed to reopen active report after rollover failure")
	}
}
