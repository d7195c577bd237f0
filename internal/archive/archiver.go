package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/rs/zerolog"

	recaperr "github.com/recaphq/recap/internal/errors"
	"github.com/recaphq/recap/pkg/types"
)

// Document is the exported form of a frozen report. It carries the
// report metadata together with the decoded summary so a consumer does
// not need database access to read it.
type Document struct {
	ReportID    int64          `json:"report_id"`
	PeriodStart time.Time      `json:"period_start"`
	PeriodEnd   time.Time      `json:"period_end"`
	FrozenAt    time.Time      `json:"frozen_at"`
	EventCount  int64          `json:"event_count"`
	Summary     *types.Summary `json:"summary"`
}

// Archiver writes frozen report documents to an object store as
// snappy-compressed JSON under reports/<id>.json.sz.
type Archiver struct {
	store ObjectStore
	log   zerolog.Logger
}

// NewArchiver creates a report archiver on the given object store.
func NewArchiver(store ObjectStore, logger zerolog.Logger) *Archiver {
	return &Archiver{store: store, log: logger}
}

// ObjectPath returns the archive path for a report.
func ObjectPath(reportID int64) string {
	return fmt.Sprintf("reports/%d.json.sz", reportID)
}

// ArchiveReport exports a frozen report. Re-archiving an already
// exported report overwrites the object, so retries are safe.
func (a *Archiver) ArchiveReport(ctx context.Context, report *types.Report) error {
	if !report.IsFrozen() {
		return recaperr.New(recaperr.ErrCategoryArchive, recaperr.CodeUploadFailed,
			fmt.Sprintf("report %d is not frozen", report.ID))
	}

	doc, err := buildDocument(report)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return recaperr.NewInternalError(
			fmt.Sprintf("failed to encode document for report %d", report.ID), err)
	}

	compressed := snappy.Encode(nil, encoded)
	objectPath := ObjectPath(report.ID)
	if err := a.store.Put(ctx, objectPath, compressed); err != nil {
		return recaperr.NewArchiveError(recaperr.CodeUploadFailed,
			fmt.Sprintf("failed to upload report %d", report.ID), err)
	}

	a.log.Info().Int64("report_id", report.ID).
		Str("object_path", objectPath).
		Int("compressed_bytes", len(compressed)).
		Msg("archived frozen report")
	return nil
}

// LoadDocument reads an archived report document back.
func (a *Archiver) LoadDocument(ctx context.Context, reportID int64) (*Document, error) {
	compressed, err := a.store.Get(ctx, ObjectPath(reportID))
	if err != nil {
		return nil, err
	}

	decoded, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, recaperr.NewArchiveError(recaperr.CodeCorruptArchive,
			fmt.Sprintf("corrupt archive for report %d", reportID), err)
	}

	var doc Document
	if err := json.Unmarshal(decoded, &doc); err != nil {
		return nil, recaperr.NewArchiveError(recaperr.CodeCorruptArchive,
			fmt.Sprintf("failed to decode document for report %d", reportID), err)
	}
	return &doc, nil
}

func buildDocument(report *types.Report) (*Document, error) {
	var summary types.Summary
	if len(report.SummaryData) > 0 {
		if err := json.Unmarshal(report.SummaryData, &summary); err != nil {
			return nil, recaperr.NewArchiveError(recaperr.CodeCorruptArchive,
				fmt.Sprintf("corrupt summary on report %d", report.ID), err)
		}
	}

	doc := &Document{
		ReportID:    report.ID,
		PeriodStart: report.PeriodStart,
		EventCount:  report.EventCount,
		Summary:     &summary,
	}
	if report.PeriodEnd != nil {
		doc.PeriodEnd = *report.PeriodEnd
	}
	if report.FrozenAt != nil {
		doc.FrozenAt = *report.FrozenAt
	}
	return doc, nil
}
