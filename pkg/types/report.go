package types

import "time"

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

const (
	// StatusActive marks the single open reporting period currently
	// accumulating events. At most one report is active at any time.
	StatusActive ReportStatus = "active"

	// StatusFrozen marks a sealed, immutable report. Frozen is terminal:
	// no report is ever reopened or deleted.
	StatusFrozen ReportStatus = "frozen"
)

// Report is one reporting period. It is created active, transitions to
// frozen exactly once, and never changes again (apart from the Emailed
// flag owned by the delivery channel).
type Report struct {
	ID     int64        `json:"id"`
	Status ReportStatus `json:"status"`

	// PeriodStart is set at creation. PeriodEnd is nil while active and
	// set exactly once at freeze time.
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	// FrozenAt is set exactly once, at freeze.
	FrozenAt *time.Time `json:"frozen_at,omitempty"`

	// EventCount is the number of events claimed at freeze time.
	// Zero is valid: an empty period still freezes.
	EventCount int64 `json:"event_count"`

	// SummaryData is the serialized aggregation result, nil while
	// active and populated exactly once at freeze.
	SummaryData []byte `json:"-"`

	// Emailed is mutated only by the delivery collaborator.
	Emailed bool `json:"emailed"`
}

// IsActive reports whether this report is the open period.
func (r *Report) IsActive() bool {
	return r.Status == StatusActive
}

// IsFrozen reports whether this report has been sealed.
func (r *Report) IsFrozen() bool {
	return r.Status == StatusFrozen
}
