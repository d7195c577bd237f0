// Package types defines the domain types shared across Recap components.
package types

import "time"

// Event is a single discrete activity event captured by a producer.
// Events are append-only; once claimed by a report (ReportID set) they
// belong to that report forever.
type Event struct {
	// ID is assigned monotonically by the store on insert.
	ID int64 `json:"id"`

	// EventType is an open-ended string key such as "post_published".
	// Producers may introduce new types at any time.
	EventType    string `json:"event_type"`
	EventSubtype string `json:"event_subtype,omitempty"`

	// Optional correlation fields.
	ObjectID string `json:"object_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`

	// EventData is an arbitrary structured payload. The aggregator may
	// read the "action", "object", and "context" keys; those must
	// round-trip through serialization without loss.
	EventData map[string]interface{} `json:"event_data,omitempty"`

	// EventTimestamp is the creation time, immutable after insert.
	EventTimestamp time.Time `json:"event_timestamp"`

	// ReportID is nil while the event is unassigned. It is set exactly
	// once, when a freeze claims the event for a reporting period.
	ReportID *int64 `json:"report_id,omitempty"`
}

// Assigned reports whether the event has been claimed by a report.
func (e *Event) Assigned() bool {
	return e.ReportID != nil
}
