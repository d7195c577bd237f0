package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	recaperr "github.com/recaphq/recap/internal/errors"
	"github.com/recaphq/recap/internal/lifecycle"
	"github.com/recaphq/recap/internal/store"
	"github.com/recaphq/recap/pkg/types"
)

// ReportResponse is the API representation of a report, with the
// summary document decoded inline.
type ReportResponse struct {
	*types.Report
	Summary *types.Summary `json:"summary,omitempty"`
}

// FreezeResponse represents the result of a freeze request.
type FreezeResponse struct {
	ReportID  int64  `json:"report_id"`
	RequestID string `json:"request_id"`
}

// ReportsHandler handles the /v1/reports endpoints.
type ReportsHandler struct {
	engine  *lifecycle.Engine
	reports store.ReportStore
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(engine *lifecycle.Engine, reports store.ReportStore) *ReportsHandler {
	return &ReportsHandler{engine: engine, reports: reports}
}

// ServeHTTP dispatches the reports endpoints:
//
//	POST /v1/reports/freeze        freeze the active report
//	GET  /v1/reports               list frozen reports, newest first
//	GET  /v1/reports/latest        the most recently frozen report
//	GET  /v1/reports/{id}          a single report by id
//	POST /v1/reports/{id}/emailed  mark a frozen report as delivered
func (h *ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/reports"), "/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.list(w, r, requestID)
	case rest == "freeze" && r.Method == http.MethodPost:
		h.freeze(w, r, requestID)
	case rest == "latest" && r.Method == http.MethodGet:
		h.latest(w, r, requestID)
	case r.Method == http.MethodGet:
		h.get(w, r, rest, requestID)
	case r.Method == http.MethodPost && strings.HasSuffix(rest, "/emailed"):
		h.markEmailed(w, r, strings.TrimSuffix(rest, "/emailed"), requestID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
	}
}

func (h *ReportsHandler) freeze(w http.ResponseWriter, r *http.Request, requestID string) {
	reportID, err := h.engine.FreezeCurrentReport(r.Context())
	if err != nil {
		switch recaperr.GetCode(err) {
		case recaperr.CodeNoActiveReport:
			writeError(w, http.StatusConflict, "no active report to freeze", recaperr.CodeNoActiveReport, requestID)
		case recaperr.CodeAlreadyFrozen:
			writeError(w, http.StatusConflict, "report was already frozen", recaperr.CodeAlreadyFrozen, requestID)
		case recaperr.CodeRolloverFailed:
			// The seal committed; report the frozen id with the failure.
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:     fmt.Sprintf("report %d frozen but rollover failed", reportID),
				Code:      recaperr.CodeRolloverFailed,
				RequestID: requestID,
			})
		default:
			writeError(w, http.StatusInternalServerError, "freeze failed", recaperr.GetCode(err), requestID)
		}
		return
	}

	writeJSON(w, http.StatusOK, FreezeResponse{ReportID: reportID, RequestID: requestID})
}

func (h *ReportsHandler) list(w http.ResponseWriter, r *http.Request, requestID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "", requestID)
			return
		}
		limit = parsed
	}

	reports, err := h.reports.ListFrozen(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reports", recaperr.GetCode(err), requestID)
		return
	}

	resp := make([]*ReportResponse, 0, len(reports))
	for _, report := range reports {
		item, err := toReportResponse(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "", requestID)
			return
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ReportsHandler) latest(w http.ResponseWriter, r *http.Request, requestID string) {
	report, err := h.reports.GetLastFrozen(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load latest report", recaperr.GetCode(err), requestID)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "no frozen report exists yet", recaperr.CodeReportNotFound, requestID)
		return
	}
	h.writeReport(w, report, requestID)
}

func (h *ReportsHandler) get(w http.ResponseWriter, r *http.Request, rawID, requestID string) {
	id, ok := parseReportID(w, rawID, requestID)
	if !ok {
		return
	}

	report, err := h.reports.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report %d not found", id), recaperr.CodeReportNotFound, requestID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load report", recaperr.GetCode(err), requestID)
		return
	}
	h.writeReport(w, report, requestID)
}

func (h *ReportsHandler) markEmailed(w http.ResponseWriter, r *http.Request, rawID, requestID string) {
	id, ok := parseReportID(w, rawID, requestID)
	if !ok {
		return
	}

	report, err := h.reports.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report %d not found", id), recaperr.CodeReportNotFound, requestID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load report", recaperr.GetCode(err), requestID)
		return
	}
	if !report.IsFrozen() {
		writeError(w, http.StatusConflict, fmt.Sprintf("report %d is not frozen", id), "", requestID)
		return
	}

	if err := h.reports.SetEmailed(r.Context(), id, true); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark report emailed", recaperr.GetCode(err), requestID)
		return
	}

	report.Emailed = true
	h.writeReport(w, report, requestID)
}

func (h *ReportsHandler) writeReport(w http.ResponseWriter, report *types.Report, requestID string) {
	resp, err := toReportResponse(report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "", requestID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseReportID(w http.ResponseWriter, raw, requestID string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid report id %q", raw), "", requestID)
		return 0, false
	}
	return id, true
}

func toReportResponse(report *types.Report) (*ReportResponse, error) {
	resp := &ReportResponse{Report: report}
	if len(report.SummaryData) > 0 {
		var summary types.Summary
		if err := json.Unmarshal(report.SummaryData, &summary); err != nil {
			return nil, fmt.Errorf("corrupt summary on report %d", report.ID)
		}
		resp.Summary = &summary
	}
	return resp, nil
}
