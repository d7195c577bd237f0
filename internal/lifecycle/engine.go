// Package lifecycle implements the report state machine: one active
// report at a time, the atomic freeze transition that seals a period
// and claims its events, and the rollover to the next period.
package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/recaphq/recap/internal/aggregate"
	recaperr "github.com/recaphq/recap/internal/errors"
	"github.com/recaphq/recap/internal/metrics"
	"github.com/recaphq/recap/internal/store"
	"github.com/recaphq/recap/pkg/types"
)

// Archiver exports a frozen report's summary document. Archiving is
// best-effort: failures are logged and never fail a freeze.
type Archiver interface {
	ArchiveReport(ctx context.Context, report *types.Report) error
}

// Engine orchestrates report lifecycle transitions. It holds no state
// between calls: the active report is re-derived from storage on every
// invocation, so the single-active invariant lives in the database,
// not in process memory.
type Engine struct {
	db       *store.DB
	events   store.EventStore
	reports  store.ReportStore
	agg      *aggregate.Aggregator
	archiver Archiver
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchiver installs the best-effort report archiver.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithMetrics installs freeze metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the engine clock. Used by tests to pin period
// boundaries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a lifecycle engine.
func New(db *store.DB, events store.EventStore, reports store.ReportStore, agg *aggregate.Aggregator, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:      db,
		events:  events,
		reports: reports,
		agg:     agg,
		log:     logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateActiveReport opens a new active reporting period. It fails
// with ACTIVE_REPORT_EXISTS when one is already open; call sites must
// freeze first.
func (e *Engine) CreateActiveReport(ctx context.Context) (int64, error) {
	active, err := e.reports.GetActive(ctx)
	if err != nil {
		return 0, err
	}
	if active != nil {
		return 0, recaperr.NewInvariantViolation(
			fmt.Sprintf("report %d is already active", active.ID)).
			WithDetails(map[string]interface{}{"report_id": active.ID})
	}

	report, err := e.reports.CreateActive(ctx, e.now().UTC())
	if err != nil {
		return 0, err
	}

	e.log.Info().Int64("report_id", report.ID).
		Time("period_start", report.PeriodStart).
		Msg("opened active report")
	return report.ID, nil
}

// EnsureActiveReport opens an active report if none exists. Called at
// startup and used to self-heal after a failed rollover.
func (e *Engine) EnsureActiveReport(ctx context.Context) (int64, error) {
	active, err := e.reports.GetActive(ctx)
	if err != nil {
		return 0, err
	}
	if active != nil {
		return active.ID, nil
	}

	report, err := e.reports.CreateActive(ctx, e.now().UTC())
	if err != nil {
		return 0, err
	}
	e.log.Info().Int64("report_id", report.ID).Msg("opened active report")
	return report.ID, nil
}

// FreezeCurrentReport seals the active reporting period: it claims all
// unassigned events in [period_start, now], aggregates them against
// the previous report's totals, persists the frozen report in one
// transaction, and opens the next active period.
//
// Partial failures roll back: the report stays active with period_end
// unset, and retrying is safe because claiming is idempotent. A failed
// rollover leaves the report frozen but the call reports failure; the
// next invocation self-heals by opening a fresh active report.
func (e *Engine) FreezeCurrentReport(ctx context.Context) (int64, error) {
	started := e.now()

	frozenID, err := e.freeze(ctx)
	if e.metrics != nil {
		e.metrics.FreezeDuration.Observe(e.now().Sub(started).Seconds())
		e.metrics.FreezesTotal.WithLabelValues(freezeResult(err)).Inc()
	}
	return frozenID, err
}

func (e *Engine) freeze(ctx context.Context) (int64, error) {
	active, err := e.reports.GetActive(ctx)
	if err != nil {
		return 0, err
	}
	if active == nil {
		// Self-heal so the next trigger finds an open period, but the
		// original call still fails: there was nothing to freeze.
		if _, healErr := e.reports.CreateActive(ctx, e.now().UTC()); healErr != nil {
			e.log.Error().Err(healErr).Msg("failed to self-heal missing active report")
		} else {
			e.log.Warn().Msg("no active report found, opened a fresh one")
		}
		return 0, recaperr.NewNoActiveReport("freeze requested with no active report")
	}
	if active.PeriodEnd != nil {
		return 0, recaperr.NewAlreadyFrozen(
			fmt.Sprintf("report %d already has a sealed period", active.ID))
	}

	periodEnd := e.now().UTC()
	var (
		claimed int64
		summary *types.Summary
	)

	err = e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		claimed, err = e.events.ClaimForPeriodTx(ctx, tx, active.ID, active.PeriodStart, periodEnd)
		if err != nil {
			return err
		}

		// Re-included on retry: the listing covers events claimed by
		// this report in any earlier, failed attempt as well.
		periodEvents, err := e.events.ListByReportTx(ctx, tx, active.ID)
		if err != nil {
			return err
		}

		baseline, err := e.reports.LastFrozenTotalsTx(ctx, tx)
		if err != nil {
			return err
		}

		summary = e.agg.Summarize(ctx, periodEvents, baseline)

		blob, err := encodeSummary(summary)
		if err != nil {
			return err
		}

		sealErr := e.reports.SealTx(ctx, tx, active.ID, periodEnd, e.now().UTC(), int64(len(periodEvents)), blob)
		if errors.Is(sealErr, store.ErrNotActive) {
			return recaperr.NewAlreadyFrozen(
				fmt.Sprintf("report %d was frozen concurrently", active.ID))
		}
		return sealErr
	})
	if err != nil {
		return 0, err
	}

	if e.metrics != nil {
		e.metrics.EventsClaimedTotal.Add(float64(claimed))
	}
	e.log.Info().Int64("report_id", active.ID).
		Int64("events_claimed", claimed).
		Int("total_events", summary.TotalEvents).
		Time("period_end", periodEnd).
		Msg("froze report")

	// Open the next period immediately so producers never observe a
	// gap. If this fails the freeze is reported as failed even though
	// the seal committed; EnsureActiveReport recovers on the next call.
	if _, err := e.reports.CreateActive(ctx, e.now().UTC()); err != nil {
		e.log.Error().Err(err).Int64("frozen_report_id", active.ID).
			Msg("rollover failed, no active report is open")
		return active.ID, recaperr.Wrap(recaperr.ErrCategoryLifecycle, recaperr.CodeRolloverFailed,
			"report frozen but rollover to next period failed", err)
	}

	e.archive(ctx, active.ID)
	return active.ID, nil
}

// archive exports the frozen report document, best-effort.
func (e *Engine) archive(ctx context.Context, reportID int64) {
	if e.archiver == nil {
		return
	}

	report, err := e.reports.GetByID(ctx, reportID)
	if err != nil {
		e.log.Warn().Err(err).Int64("report_id", reportID).Msg("skipping archive, report reload failed")
		return
	}
	if err := e.archiver.ArchiveReport(ctx, report); err != nil {
		e.log.Warn().Err(err).Int64("report_id", reportID).Msg("report archive failed")
	}
}

func encodeSummary(summary *types.Summary) ([]byte, error) {
	blob, err := json.Marshal(summary)
	if err != nil {
		return nil, recaperr.Wrap(recaperr.ErrCategoryAggregation, recaperr.CodeUnexpected,
			"failed to serialize summary", err)
	}
	return blob, nil
}

func freezeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case recaperr.GetCode(err) == recaperr.CodeNoActiveReport:
		return "no_active_report"
	case recaperr.GetCode(err) == recaperr.CodeAlreadyFrozen:
		return "already_frozen"
	case recaperr.GetCode(err) == recaperr.CodeRolloverFailed:
		return "rollover_failed"
	default:
		return "error"
	}
}
