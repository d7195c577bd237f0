package store

// schemaSQL returns all schema statements in application order. All
// statements are idempotent so opening an existing database is safe.
func schemaSQL() []string {
	return []string{
		createReportsTableSQL,
		createEventsTableSQL,
		createEventsReportIndexSQL,
		createEventsTimestampIndexSQL,
		createEventsThrottleIndexSQL,
		createReportsStatusIndexSQL,
	}
}

const createReportsTableSQL = `
CREATE TABLE IF NOT EXISTS reports (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	status       TEXT NOT NULL CHECK (status IN ('active', 'frozen')),
	period_start INTEGER NOT NULL,
	period_end   INTEGER,
	frozen_at    INTEGER,
	event_count  INTEGER NOT NULL DEFAULT 0,
	summary_data BLOB,
	emailed      INTEGER NOT NULL DEFAULT 0
)`

const createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS events (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type      TEXT NOT NULL,
	event_subtype   TEXT,
	object_id       TEXT,
	user_id         TEXT,
	event_data      TEXT,
	event_timestamp INTEGER NOT NULL,
	report_id       INTEGER REFERENCES reports(id)
)`

const createEventsReportIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_events_report ON events(report_id)`

const createEventsTimestampIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(event_timestamp)`

const createEventsThrottleIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_events_type_object ON events(event_type, object_id, event_timestamp)`

const createReportsStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status)`
