// Package aggregate turns a batch of claimed events into the summary
// document stored on a frozen report: typed totals, period-over-period
// trends against the previous report's totals, and highlight lines.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/recaphq/recap/pkg/types"
)

// Narrator optionally enriches a summary with natural-language text.
// It must not mutate any store. A nil Narrator means the capability is
// disabled; a failing Narrator degrades to no narrative.
type Narrator func(ctx context.Context, events []*types.Event, totals map[string]int, trends map[string]types.Trend) (string, error)

// Aggregator is a stateless transform from (events, previous totals)
// to a summary. It owns no mutable state.
type Aggregator struct {
	labels   LabelTable
	narrator Narrator
	log      zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNarrator installs the optional narrative collaborator.
func WithNarrator(n Narrator) Option {
	return func(a *Aggregator) { a.narrator = n }
}

// WithLogger sets the logger used to report degraded narration.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = logger }
}

// New creates an aggregator with the given label table. A nil table
// renders every type with the generic fallback phrasing.
func New(labels LabelTable, opts ...Option) *Aggregator {
	a := &Aggregator{
		labels: labels,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summarize computes the summary for one reporting period.
// previousTotals is the prior frozen report's totals; an empty map
// marks the first report, which has no trend baseline.
func (a *Aggregator) Summarize(ctx context.Context, events []*types.Event, previousTotals map[string]int) *types.Summary {
	summary := types.NewSummary()
	summary.TotalEvents = len(events)
	summary.FirstReport = len(previousTotals) == 0

	for _, event := range events {
		summary.Totals[event.EventType]++
	}

	summary.Trends = computeTrends(summary.Totals, previousTotals)
	summary.Highlights = a.renderHighlights(summary.Totals)

	if a.narrator != nil && len(events) > 0 {
		narrative, err := a.narrator(ctx, events, summary.Totals, summary.Trends)
		if err != nil {
			a.log.Warn().Err(err).Msg("narrative collaborator failed, continuing without narrative")
		} else {
			summary.Narrative = narrative
		}
	}

	return summary
}

// computeTrends builds the trend map over the union of current and
// previous types. Types with no prior occurrence have no meaningful
// percentage change and are omitted rather than reported as a
// divide-by-zero artifact; with an empty baseline the result is empty
// by construction.
func computeTrends(totals, previousTotals map[string]int) map[string]types.Trend {
	trends := make(map[string]types.Trend)

	seen := make(map[string]bool, len(totals)+len(previousTotals))
	for eventType := range totals {
		seen[eventType] = true
	}
	for eventType := range previousTotals {
		seen[eventType] = true
	}

	for eventType := range seen {
		previous := previousTotals[eventType]
		if previous == 0 {
			continue
		}
		current := totals[eventType]

		change := float64(current-previous) / float64(previous) * 100
		change = math.Round(change*10) / 10

		direction := types.TrendSame
		switch {
		case change > 0:
			direction = types.TrendUp
		case change < 0:
			direction = types.TrendDown
		}

		trends[eventType] = types.Trend{
			Current:       current,
			Previous:      previous,
			ChangePercent: change,
			Direction:     direction,
		}
	}

	return trends
}

// renderHighlights produces one line per event type with a non-zero
// count, ordered by category priority and alphabetically within a
// category.
func (a *Aggregator) renderHighlights(totals map[string]int) []string {
	eventTypes := make([]string, 0, len(totals))
	for eventType, count := range totals {
		if count > 0 {
			eventTypes = append(eventTypes, eventType)
		}
	}

	sort.Slice(eventTypes, func(i, j int) bool {
		ci := a.categoryOf(eventTypes[i])
		cj := a.categoryOf(eventTypes[j])
		if ci != cj {
			return ci < cj
		}
		return eventTypes[i] < eventTypes[j]
	})

	highlights := make([]string, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		highlights = append(highlights, a.renderHighlight(eventType, totals[eventType]))
	}
	return highlights
}

func (a *Aggregator) categoryOf(eventType string) Category {
	if label, ok := a.labels[eventType]; ok {
		return label.Category
	}
	return CategoryUnknown
}

func (a *Aggregator) renderHighlight(eventType string, count int) string {
	label, ok := a.labels[eventType]
	if !ok {
		if count == 1 {
			return fmt.Sprintf("1 %s event", eventType)
		}
		return fmt.Sprintf("%d %s events", count, eventType)
	}

	noun := label.Plural
	if count == 1 {
		noun = label.Singular
	}
	return fmt.Sprintf("%d new %s %s", count, noun, label.Verb)
}
