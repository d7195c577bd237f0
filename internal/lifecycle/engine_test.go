package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recaphq/recap/internal/aggregate"
	recaperr "github.com/recaphq/recap/internal/errors"
	"github.com/recaphq/recap/internal/store"
	"github.com/recaphq/recap/pkg/types"
)

type fixture struct {
	db      *store.DB
	events  *store.SQLiteEventStore
	reports *store.SQLiteReportStore
	engine  *Engine
	clock   *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "recap.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	events := store.NewEventStore(db)
	reports := store.NewReportStore(db)

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	engine := New(db, events, reports, aggregate.New(aggregate.DefaultLabels()), zerolog.Nop(), opts...)

	return &fixture{db: db, events: events, reports: reports, engine: engine, clock: clock}
}

func (f *fixture) append(t *testing.T, eventType string) {
	t.Helper()
	_, err := f.events.Append(context.Background(), &types.Event{
		EventType:      eventType,
		EventTimestamp: f.clock.now,
	})
	require.NoError(t, err)
}

func decodeSummary(t *testing.T, report *types.Report) *types.Summary {
	t.Helper()
	var summary types.Summary
	require.NoError(t, json.Unmarshal(report.SummaryData, &summary))
	return &summary
}

func TestCreateActiveReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.CreateActiveReport(ctx)
	require.NoError(t, err)
	assert.Positive(t, id)

	// A second active report violates the single-active invariant.
	_, err = f.engine.CreateActiveReport(ctx)
	require.Error(t, err)
	assert.Equal(t, recaperr.CodeActiveReportExists, recaperr.GetCode(err))
}

func TestEnsureActiveReportIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	second, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFreezeClaimsAndAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.append(t, "post_published")
	f.clock.Advance(time.Hour)
	f.append(t, "post_published")
	f.clock.Advance(time.Hour)
	f.append(t, "comment_posted")

	f.clock.Advance(time.Hour)
	frozenID, err := f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)

	frozen, err := f.reports.GetByID(ctx, frozenID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFrozen, frozen.Status)
	assert.Equal(t, int64(3), frozen.EventCount)
	require.NotNil(t, frozen.PeriodEnd)
	require.NotNil(t, frozen.FrozenAt)

	summary := decodeSummary(t, frozen)
	assert.Equal(t, 3, summary.TotalEvents)
	assert.Equal(t, map[string]int{"post_published": 2, "comment_posted": 1}, summary.Totals)
	assert.True(t, summary.FirstReport)
	assert.Empty(t, summary.Trends)

	claimed, err := f.events.ListByReport(ctx, &frozenID)
	require.NoError(t, err)
	assert.Len(t, claimed, 3)

	unassigned, err := f.events.CountUnassigned(ctx)
	require.NoError(t, err)
	assert.Zero(t, unassigned)
}

func TestFreezeRollsOverToNewActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	firstID, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	frozenID, err := f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstID, frozenID)

	active, err := f.reports.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.NotEqual(t, frozenID, active.ID)
	assert.Equal(t, f.clock.now, active.PeriodStart,
		"next period starts where the frozen one ended")
}

func TestFreezeEmptyPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	frozenID, err := f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)

	frozen, err := f.reports.GetByID(ctx, frozenID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), frozen.EventCount)

	summary := decodeSummary(t, frozen)
	assert.Zero(t, summary.TotalEvents)
	assert.Empty(t, summary.Highlights)
}

func TestFreezeComputesTrendsAgainstPreviousPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.append(t, "post_published")
	f.append(t, "post_published")
	f.clock.Advance(time.Hour)
	_, err = f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.append(t, "post_published")
	f.append(t, "post_published")
	f.append(t, "post_published")
	f.clock.Advance(time.Hour)
	secondID, err := f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)

	frozen, err := f.reports.GetByID(ctx, secondID)
	require.NoError(t, err)
	summary := decodeSummary(t, frozen)

	assert.False(t, summary.FirstReport)
	require.Contains(t, summary.Trends, "post_published")
	trend := summary.Trends["post_published"]
	assert.Equal(t, 3, trend.Current)
	assert.Equal(t, 2, trend.Previous)
	assert.InDelta(t, 50.0, trend.ChangePercent, 0.001)
	assert.Equal(t, types.TrendUp, trend.Direction)
}

func TestFreezeLeavesLaterEventsUnclaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.append(t, "post_published")

	freezeAt := f.clock.now.Add(time.Hour)

	// An event stamped after the freeze boundary stays unassigned.
	_, err = f.events.Append(ctx, &types.Event{
		EventType:      "comment_posted",
		EventTimestamp: freezeAt.Add(time.Minute),
	})
	require.NoError(t, err)

	f.clock.now = freezeAt
	frozenID, err := f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)

	frozen, err := f.reports.GetByID(ctx, frozenID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), frozen.EventCount)

	unassigned, err := f.events.CountUnassigned(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unassigned)
}

func TestFreezeWithNoActiveReportSelfHeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.FreezeCurrentReport(ctx)
	require.Error(t, err)
	assert.Equal(t, recaperr.CodeNoActiveReport, recaperr.GetCode(err))

	// The failed freeze opened a fresh active report.
	active, err := f.reports.GetActive(ctx)
	require.NoError(t, err)
	assert.NotNil(t, active)
}

// conflictingReportStore reports every seal as lost to a concurrent
// freeze.
type conflictingReportStore struct {
	store.ReportStore
}

func (s *conflictingReportStore) SealTx(ctx context.Context, tx *sql.Tx, id int64, periodEnd, frozenAt time.Time, eventCount int64, summary []byte) error {
	return store.ErrNotActive
}

func TestFreezeConcurrentSealConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	conflicted := New(f.db, f.events, &conflictingReportStore{ReportStore: f.reports},
		aggregate.New(aggregate.DefaultLabels()), zerolog.Nop(), WithClock(f.clock.Now))

	f.clock.Advance(time.Hour)
	_, err = conflicted.FreezeCurrentReport(ctx)
	require.Error(t, err)
	assert.Equal(t, recaperr.CodeAlreadyFrozen, recaperr.GetCode(err))
	assert.True(t, recaperr.IsRetryable(err))
}

// failingArchiver always fails; freezes must still succeed.
type failingArchiver struct{}

func (failingArchiver) ArchiveReport(ctx context.Context, report *types.Report) error {
	return errors.New("bucket unavailable")
}

func TestFreezeSurvivesArchiverFailure(t *testing.T) {
	f := newFixture(t, WithArchiver(failingArchiver{}))
	ctx := context.Background()

	_, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.append(t, "post_published")
	f.clock.Advance(time.Hour)

	frozenID, err := f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)

	frozen, err := f.reports.GetByID(ctx, frozenID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFrozen, frozen.Status)
}

func TestFrozenReportImmutableAcrossFreezes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EnsureActiveReport(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.append(t, "post_published")
	f.clock.Advance(time.Hour)
	firstID, err := f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)

	before, err := f.reports.GetByID(ctx, firstID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.append(t, "comment_posted")
	f.clock.Advance(time.Hour)
	_, err = f.engine.FreezeCurrentReport(ctx)
	require.NoError(t, err)

	after, err := f.reports.GetByID(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a frozen report never changes")
}
