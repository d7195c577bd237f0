package types

// TrendDirection describes period-over-period movement of one event type.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendSame TrendDirection = "same"
)

// Trend is the period-over-period delta for a single event type.
// Trends are only computed against a non-zero baseline: types with no
// prior occurrence are omitted rather than reported as a
// divide-by-zero artifact.
type Trend struct {
	Current       int            `json:"current"`
	Previous      int            `json:"previous"`
	ChangePercent float64        `json:"change_percent"`
	Direction     TrendDirection `json:"direction"`
}

// Summary is the aggregation result persisted into a frozen report's
// summary_data column and read back by downstream renderers. Field
// names are part of the stored document contract and must not change.
type Summary struct {
	TotalEvents int              `json:"total_events"`
	Totals      map[string]int   `json:"totals"`
	Trends      map[string]Trend `json:"trends"`
	Highlights  []string         `json:"highlights"`

	// FirstReport is true when there was no frozen predecessor to
	// compare against; Trends is empty by construction in that case.
	FirstReport bool `json:"first_report,omitempty"`

	// Narrative is the optional enriched text produced by the narrative
	// collaborator. Absent when the collaborator is not configured, the
	// period was empty, or the collaborator failed.
	Narrative string `json:"narrative,omitempty"`
}

// NewSummary returns an empty summary with all collections initialized
// so the serialized document never contains JSON nulls.
func NewSummary() *Summary {
	return &Summary{
		Totals:     make(map[string]int),
		Trends:     make(map[string]Trend),
		Highlights: []string{},
	}
}
