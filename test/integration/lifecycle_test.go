// Package integration provides end-to-end tests for the Recap service.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/recaphq/recap/internal/aggregate"
	apihttp "github.com/recaphq/recap/internal/api/http"
	"github.com/recaphq/recap/internal/archive"
	"github.com/recaphq/recap/internal/lifecycle"
	"github.com/recaphq/recap/internal/store"
	"github.com/recaphq/recap/pkg/types"
)

// TestReportLifecycleFlow exercises the full flow:
// API capture → freeze → aggregation → archive → API read-back.
func TestReportLifecycleFlow(t *testing.T) {
	ctx := context.Background()

	tempDir, err := os.MkdirTemp("", "recap-lifecycle-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	db, err := store.Open(filepath.Join(tempDir, "recap.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	objStore, err := archive.NewLocalStore(filepath.Join(tempDir, "archive"))
	if err != nil {
		t.Fatalf("failed to create archive store: %v", err)
	}
	archiver := archive.NewArchiver(objStore, zerolog.Nop())

	events := store.NewEventStore(db)
	reports := store.NewReportStore(db)
	engine := lifecycle.New(db, events, reports,
		aggregate.New(aggregate.DefaultLabels()), zerolog.Nop(),
		lifecycle.WithArchiver(archiver))

	middleware := apihttp.ChainMiddleware(
		apihttp.RecoveryMiddleware,
		apihttp.RequestIDMiddleware,
		apihttp.ContentTypeMiddleware,
	)
	mux := http.NewServeMux()
	mux.Handle("/v1/events", middleware(apihttp.NewEventsHandler(events, nil)))
	reportsHandler := middleware(apihttp.NewReportsHandler(engine, reports))
	mux.Handle("/v1/reports", reportsHandler)
	mux.Handle("/v1/reports/", reportsHandler)

	if _, err := engine.EnsureActiveReport(ctx); err != nil {
		t.Fatalf("failed to open active report: %v", err)
	}

	// Period 1: capture two posts and a comment through the API.
	postEvent(t, mux, apihttp.EventRequest{EventType: "post_published", ObjectID: "1"})
	postEvent(t, mux, apihttp.EventRequest{EventType: "post_published", ObjectID: "2"})
	postEvent(t, mux, apihttp.EventRequest{EventType: "comment_posted", ObjectID: "1"})

	firstID := freeze(t, mux)

	// Period 2: capture three posts.
	for i := 0; i < 3; i++ {
		postEvent(t, mux, apihttp.EventRequest{EventType: "post_published"})
	}
	secondID := freeze(t, mux)

	if firstID == secondID {
		t.Fatalf("expected distinct report ids, got %d twice", firstID)
	}

	// Read the second report back through the API.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("latest report request failed: %d %s", rec.Code, rec.Body.String())
	}

	var latest apihttp.ReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &latest); err != nil {
		t.Fatalf("failed to decode latest report: %v", err)
	}

	if latest.ID != secondID {
		t.Errorf("latest report id = %d, want %d", latest.ID, secondID)
	}
	if latest.Status != types.StatusFrozen {
		t.Errorf("latest report status = %s, want frozen", latest.Status)
	}
	if latest.EventCount != 3 {
		t.Errorf("latest report event count = %d, want 3", latest.EventCount)
	}
	if latest.Summary == nil {
		t.Fatal("latest report has no summary")
	}
	if latest.Summary.FirstReport {
		t.Error("second report must not be marked first")
	}

	trend, ok := latest.Summary.Trends["post_published"]
	if !ok {
		t.Fatal("expected a post_published trend against the previous period")
	}
	if trend.Previous != 2 || trend.Current != 3 {
		t.Errorf("trend = %d -> %d, want 2 -> 3", trend.Previous, trend.Current)
	}
	if trend.ChangePercent != 50.0 {
		t.Errorf("trend change = %.1f, want 50.0", trend.ChangePercent)
	}
	if trend.Direction != types.TrendUp {
		t.Errorf("trend direction = %s, want up", trend.Direction)
	}

	// Both frozen reports were archived.
	for _, id := range []int64{firstID, secondID} {
		doc, err := archiver.LoadDocument(ctx, id)
		if err != nil {
			t.Fatalf("failed to load archived report %d: %v", id, err)
		}
		if doc.ReportID != id {
			t.Errorf("archived document id = %d, want %d", doc.ReportID, id)
		}
		if doc.Summary == nil {
			t.Errorf("archived report %d has no summary", id)
		}
	}

	// The rollover left exactly one active report.
	active, err := reports.GetActive(ctx)
	if err != nil {
		t.Fatalf("failed to load active report: %v", err)
	}
	if active == nil {
		t.Fatal("no active report after freezes")
	}

	// Every captured event is accounted for exactly once.
	total, err := events.TotalAppended(ctx)
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	unassigned, err := events.CountUnassigned(ctx)
	if err != nil {
		t.Fatalf("failed to count unassigned events: %v", err)
	}
	frozen, err := reports.ListFrozen(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list frozen reports: %v", err)
	}
	var claimed int64
	for _, report := range frozen {
		claimed += report.EventCount
	}
	if claimed+unassigned != total {
		t.Errorf("claimed %d + unassigned %d != total %d", claimed, unassigned, total)
	}
}

func postEvent(t *testing.T, handler http.Handler, req apihttp.EventRequest) {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to encode event request: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("event capture failed: %d %s", rec.Code, rec.Body.String())
	}
}

func freeze(t *testing.T, handler http.Handler) int64 {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reports/freeze", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("freeze failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp apihttp.FreezeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode freeze response: %v", err)
	}
	return resp.ReportID
}
