package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	recaperr "github.com/recaphq/recap/internal/errors"
	"github.com/recaphq/recap/pkg/types"
)

// EventStore is the append-only log of activity events.
type EventStore interface {
	// Append inserts an event with no report assignment and returns the
	// store-assigned id.
	Append(ctx context.Context, event *types.Event) (int64, error)

	// ClaimForPeriod atomically assigns all currently-unassigned events
	// whose timestamp falls in [start, end] (inclusive both ends) to the
	// given report. Returns the number of rows claimed; zero matches is
	// not an error. Events already claimed are never reassigned, so the
	// operation is idempotent.
	ClaimForPeriod(ctx context.Context, reportID int64, start, end time.Time) (int64, error)

	// ClaimForPeriodTx is ClaimForPeriod inside an existing transaction.
	ClaimForPeriodTx(ctx context.Context, tx *sql.Tx, reportID int64, start, end time.Time) (int64, error)

	// ListByReport returns the events claimed by a report, newest first.
	// A nil reportID lists unassigned events.
	ListByReport(ctx context.Context, reportID *int64) ([]*types.Event, error)

	// ListByReportTx is ListByReport for a specific report inside an
	// existing transaction, so a freeze sees its own claim.
	ListByReportTx(ctx context.Context, tx *sql.Tx, reportID int64) ([]*types.Event, error)

	// CountByType groups a report's events (nil = unassigned) by type.
	CountByType(ctx context.Context, reportID *int64) (map[string]int, error)

	// LastEventFor returns the most recent event of a type for an
	// object, or nil when none exists. Used by producers to throttle
	// duplicate captures; the lifecycle engine does not call it.
	LastEventFor(ctx context.Context, eventType, objectID string) (*types.Event, error)

	// TotalAppended returns the number of events ever appended.
	TotalAppended(ctx context.Context) (int64, error)

	// CountUnassigned returns the number of events not yet claimed.
	CountUnassigned(ctx context.Context) (int64, error)
}

const eventColumns = `id, event_type, event_subtype, object_id, user_id, event_data, event_timestamp, report_id`

// SQLiteEventStore implements EventStore on the shared report database.
type SQLiteEventStore struct {
	db *DB

	// Read-through cache of the unassigned-events listing, invalidated
	// by every append and claim.
	cacheMu    sync.Mutex
	cache      []*types.Event
	cacheValid bool
}

// NewEventStore creates an event store on the given database.
func NewEventStore(db *DB) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

// Append inserts an event with report_id NULL.
func (s *SQLiteEventStore) Append(ctx context.Context, event *types.Event) (int64, error) {
	if event.EventType == "" {
		return 0, recaperr.NewValidationError(recaperr.CodeEmptyEventType, "event_type is required")
	}
	if event.EventTimestamp.IsZero() {
		event.EventTimestamp = time.Now().UTC()
	}

	var data interface{}
	if event.EventData != nil {
		encoded, err := json.Marshal(event.EventData)
		if err != nil {
			return 0, recaperr.NewValidationError(recaperr.CodeInvalidEvent, fmt.Sprintf("event_data is not serializable: %v", err))
		}
		data = string(encoded)
	}

	res, err := s.db.exec(ctx,
		`INSERT INTO events (event_type, event_subtype, object_id, user_id, event_data, event_timestamp, report_id)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		event.EventType, nullableString(event.EventSubtype), nullableString(event.ObjectID),
		nullableString(event.UserID), data, nanos(event.EventTimestamp),
	)
	if err != nil {
		return 0, recaperr.NewPersistenceError(recaperr.CodeAppendFailed, "failed to append event", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, recaperr.NewPersistenceError(recaperr.CodeAppendFailed, "failed to read event id", err)
	}
	event.ID = id

	s.invalidateCache()
	return id, nil
}

// ClaimForPeriod assigns unassigned events in the period to a report.
func (s *SQLiteEventStore) ClaimForPeriod(ctx context.Context, reportID int64, start, end time.Time) (int64, error) {
	res, err := s.db.exec(ctx, claimSQL, reportID, nanos(start), nanos(end))
	return s.finishClaim(res, err)
}

// ClaimForPeriodTx runs the claim inside an existing transaction.
func (s *SQLiteEventStore) ClaimForPeriodTx(ctx context.Context, tx *sql.Tx, reportID int64, start, end time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, claimSQL, reportID, nanos(start), nanos(end))
	return s.finishClaim(res, err)
}

const claimSQL = `
UPDATE events SET report_id = ?
WHERE report_id IS NULL AND event_timestamp >= ? AND event_timestamp <= ?`

func (s *SQLiteEventStore) finishClaim(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, recaperr.NewPersistenceError(recaperr.CodeClaimFailed, "failed to claim events for period", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return 0, recaperr.NewPersistenceError(recaperr.CodeClaimFailed, "failed to count claimed events", err)
	}
	s.invalidateCache()
	return claimed, nil
}

// ListByReport returns a report's events newest first; nil lists
// unassigned events through the read cache.
func (s *SQLiteEventStore) ListByReport(ctx context.Context, reportID *int64) ([]*types.Event, error) {
	if reportID == nil {
		return s.listUnassigned(ctx)
	}

	rows, err := s.db.readDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE report_id = ? ORDER BY event_timestamp DESC, id DESC`,
		*reportID,
	)
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to list events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByReportTx lists a report's events inside a transaction.
func (s *SQLiteEventStore) ListByReportTx(ctx context.Context, tx *sql.Tx, reportID int64) ([]*types.Event, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE report_id = ? ORDER BY event_timestamp DESC, id DESC`,
		reportID,
	)
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to list events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// listUnassigned serves the unassigned listing from the cache when valid.
func (s *SQLiteEventStore) listUnassigned(ctx context.Context) ([]*types.Event, error) {
	s.cacheMu.Lock()
	if s.cacheValid {
		cached := make([]*types.Event, len(s.cache))
		copy(cached, s.cache)
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	rows, err := s.db.readDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE report_id IS NULL ORDER BY event_timestamp DESC, id DESC`)
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to list unassigned events", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache = events
	s.cacheValid = true
	s.cacheMu.Unlock()

	result := make([]*types.Event, len(events))
	copy(result, events)
	return result, nil
}

// CountByType groups events by type for a report (nil = unassigned).
func (s *SQLiteEventStore) CountByType(ctx context.Context, reportID *int64) (map[string]int, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if reportID == nil {
		rows, err = s.db.readDB.QueryContext(ctx,
			`SELECT event_type, COUNT(*) FROM events WHERE report_id IS NULL GROUP BY event_type`)
	} else {
		rows, err = s.db.readDB.QueryContext(ctx,
			`SELECT event_type, COUNT(*) FROM events WHERE report_id = ? GROUP BY event_type`, *reportID)
	}
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to count events by type", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to scan type count", err)
		}
		counts[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "error iterating type counts", err)
	}
	return counts, nil
}

// LastEventFor returns the most recent event of a type for an object.
func (s *SQLiteEventStore) LastEventFor(ctx context.Context, eventType, objectID string) (*types.Event, error) {
	row := s.db.readDB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE event_type = ? AND object_id = ?
		 ORDER BY event_timestamp DESC, id DESC LIMIT 1`,
		eventType, objectID,
	)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to load last event", err)
	}
	return event, nil
}

// TotalAppended returns the number of events ever appended.
func (s *SQLiteEventStore) TotalAppended(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	if err != nil {
		return 0, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to count events", err)
	}
	return count, nil
}

// CountUnassigned returns the number of unclaimed events.
func (s *SQLiteEventStore) CountUnassigned(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE report_id IS NULL`).Scan(&count)
	if err != nil {
		return 0, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to count unassigned events", err)
	}
	return count, nil
}

func (s *SQLiteEventStore) invalidateCache() {
	s.cacheMu.Lock()
	s.cache = nil
	s.cacheValid = false
	s.cacheMu.Unlock()
}

// scanner abstracts sql.Row and sql.Rows for event scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*types.Event, error) {
	var (
		event     types.Event
		subtype   sql.NullString
		objectID  sql.NullString
		userID    sql.NullString
		data      sql.NullString
		timestamp int64
		reportID  sql.NullInt64
	)

	err := row.Scan(&event.ID, &event.EventType, &subtype, &objectID, &userID, &data, &timestamp, &reportID)
	if err != nil {
		return nil, err
	}

	event.EventSubtype = subtype.String
	event.ObjectID = objectID.String
	event.UserID = userID.String
	event.EventTimestamp = fromNanos(timestamp)
	if reportID.Valid {
		id := reportID.Int64
		event.ReportID = &id
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &event.EventData); err != nil {
			return nil, fmt.Errorf("store: corrupt event_data for event %d: %w", event.ID, err)
		}
	}
	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]*types.Event, error) {
	var events []*types.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "failed to scan event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, recaperr.NewPersistenceError(recaperr.CodeReadFailed, "error iterating events", err)
	}
	return events, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
