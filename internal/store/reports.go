package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	recaperr "github.com/recaphq/recap/internal/errors"
	"github.com/recaphq/recap/pkg/types"
)

// ReportStore holds report records. Status transitions and the
// single-active invariant are owned by the lifecycle engine; the store
// only executes them.
type ReportStore interface {
	// CreateActive inserts a new active report with the given period
	// start and returns it.
	CreateActive(ctx context.Context, periodStart time.Time) (*types.Report, error)

	// GetActive returns the current active report, or nil when none.
	GetActive(ctx context.Context) (*types.Report, error)

	// GetByID returns a report, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*types.Report, error)

	// GetLastFrozen returns the most recently frozen report, or nil
	// when none has been frozen yet.
	GetLastFrozen(ctx context.Context) (*types.Report, error)

	// ListFrozen returns up to limit frozen reports, newest first.
	ListFrozen(ctx context.Context, limit int) ([]*types.Report, error)

	// SealTx freezes a report inside a transaction: sets status, period
	// end, frozen_at, event_count, and the summary document in one
	// write. Returns ErrNotActive when the row is no longer active,
	// which signals a concurrent freeze.
	SealTx(ctx context.Context, tx *sql.Tx, id int64, periodEnd, frozenAt time.Time, eventCount int64, summary []byte) error

	// LastFrozenTotalsTx returns the totals of the most recent frozen
	// report as the trend baseline; an empty map before the first freeze.
	LastFrozenTotalsTx(ctx context.Context, tx *sql.Tx) (map[string]int, error)

	// SetEmailed records delivery. Only the delivery collaborator calls
	// this; the lifecycle engine never touches the flag.
	SetEmailed(ctx context.Context, id int64, emailed bool) error
}

const reportColumns = `id, status, period_start, period_end, frozen_at, event_count, summary_data, emailed`

// SQLiteReportStore implements ReportStore on the shared report database.
type SQLiteReportStore struct {
	db *DB
}

// NewReportStore creates a report store on the given database.
func NewReportStore(db *DB) *SQLiteReportStore {
	return &SQLiteReportStore{db: db}
}

// CreateActive inserts a new active report.
func (s *SQLiteReportStore) CreateActive(ctx context.Context, periodStart time.Time) (*types.Report, error) {
	res, err := s.db.exec(ctx,
		`INSERT INTO reports (status, period_start) VALUES (?, ?)`,
		string(types.StatusActive), nanos(periodStart),
	)
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeWriteFailed, "failed to create active report", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeWriteFailed, "failed to read report id", err)
	}

	return &types.Report{
		ID:          id,
		Status:      types.StatusActive,
		PeriodStart: periodStart.UTC(),
	}, nil
}

// GetActive returns the single active report, or nil when none exists.
func (s *SQLiteReportStore) GetActive(ctx context.Context) (*types.Report, error) {
	row := s.db.readDB.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE status = ? ORDER BY id DESC LIMIT 1`,
		string(types.StatusActive),
	)

	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to load active report", err)
	}
	return report, nil
}

// GetByID returns a report by id.
func (s *SQLiteReportStore) GetByID(ctx context.Context, id int64) (*types.Report, error) {
	row := s.db.readDB.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)

	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to load report", err)
	}
	return report, nil
}

// GetLastFrozen returns the most recently frozen report, or nil.
func (s *SQLiteReportStore) GetLastFrozen(ctx context.Context) (*types.Report, error) {
	row := s.db.readDB.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE status = ? ORDER BY id DESC LIMIT 1`,
		string(types.StatusFrozen),
	)

	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to load last frozen report", err)
	}
	return report, nil
}

// ListFrozen returns frozen reports newest first.
func (s *SQLiteReportStore) ListFrozen(ctx context.Context, limit int) ([]*types.Report, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.readDB.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE status = ? ORDER BY id DESC LIMIT ?`,
		string(types.StatusFrozen), limit,
	)
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to list frozen reports", err)
	}
	defer rows.Close()

	var reports []*types.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to scan report", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "error iterating reports", err)
	}
	return reports, nil
}

// SealTx freezes a report in a single conditional write. The status
// guard makes a concurrent double-freeze observable as ErrNotActive
// instead of a double aggregation.
func (s *SQLiteReportStore) SealTx(ctx context.Context, tx *sql.Tx, id int64, periodEnd, frozenAt time.Time, eventCount int64, summary []byte) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE reports
		 SET status = ?, period_end = ?, frozen_at = ?, event_count = ?, summary_data = ?
		 WHERE id = ? AND status = ?`,
		string(types.StatusFrozen), nanos(periodEnd), nanos(frozenAt), eventCount, summary,
		id, string(types.StatusActive),
	)
	if err != nil {
		return recaperr.NewPersistenceError(recaperr.CodeSealFailed, "failed to seal report", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return recaperr.NewPersistenceError(recaperr.CodeSealFailed, "failed to confirm seal", err)
	}
	if affected == 0 {
		return ErrNotActive
	}
	return nil
}

// LastFrozenTotalsTx reads the previous frozen report's totals inside
// the freeze transaction. The report being sealed is still active at
// this point, so it can never be its own baseline.
func (s *SQLiteReportStore) LastFrozenTotalsTx(ctx context.Context, tx *sql.Tx) (map[string]int, error) {
	var blob []byte
	err := tx.QueryRowContext(ctx,
		`SELECT summary_data FROM reports WHERE status = ? ORDER BY id DESC LIMIT 1`,
		string(types.StatusFrozen),
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to load previous totals", err)
	}

	if len(blob) == 0 {
		return map[string]int{}, nil
	}

	var summary types.Summary
	if err := json.Unmarshal(blob, &summary); err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "corrupt summary on previous report", err)
	}
	if summary.Totals == nil {
		return map[string]int{}, nil
	}
	return summary.Totals, nil
}

// SetEmailed records delivery of a frozen report.
func (s *SQLiteReportStore) SetEmailed(ctx context.Context, id int64, emailed bool) error {
	res, err := s.db.exec(ctx,
		`UPDATE reports SET emailed = ? WHERE id = ?`, boolToInt(emailed), id)
	if err != nil {
		return recaperr.NewPersistenceError(recaperr.CodeWriteFailed, "failed to update emailed flag", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return recaperr.NewPersistenceError(recaperr.CodeWriteFailed, "failed to confirm emailed update", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(row scanner) (*types.Report, error) {
	var (
		report      types.Report
		status      string
		periodStart int64
		periodEnd   sql.NullInt64
		frozenAt    sql.NullInt64
		summary     []byte
		emailed     int
	)

	err := row.Scan(&report.ID, &status, &periodStart, &periodEnd, &frozenAt,
		&report.EventCount, &summary, &emailed)
	if err != nil {
		return nil, err
	}

	report.Status = types.ReportStatus(status)
	report.PeriodStart = fromNanos(periodStart)
	if periodEnd.Valid {
		t := fromNanos(periodEnd.Int64)
		report.PeriodEnd = &t
	}
	if frozenAt.Valid {
		t := fromNanos(frozenAt.Int64)
		report.FrozenAt = &t
	}
	report.SummaryData = summary
	report.Emailed = emailed != 0
	return &report, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
