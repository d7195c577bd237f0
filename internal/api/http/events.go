package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	recaperr "github.com/recaphq/recap/internal/errors"
	"github.com/recaphq/recap/internal/metrics"
	"github.com/recaphq/recap/internal/store"
	"github.com/recaphq/recap/pkg/types"
)

// EventRequest represents an event capture request.
type EventRequest struct {
	EventType      string                 `json:"event_type"`
	EventSubtype   string                 `json:"event_subtype,omitempty"`
	ObjectID       string                 `json:"object_id,omitempty"`
	UserID         string                 `json:"user_id,omitempty"`
	EventData      map[string]interface{} `json:"event_data,omitempty"`
	EventTimestamp string                 `json:"event_timestamp,omitempty"`
}

// EventResponse represents the capture response.
type EventResponse struct {
	EventID   int64  `json:"event_id"`
	RequestID string `json:"request_id"`
}

// EventsHandler handles POST /v1/events requests.
type EventsHandler struct {
	events  store.EventStore
	metrics *metrics.Metrics
}

// NewEventsHandler creates a new event capture handler.
func NewEventsHandler(events store.EventStore, m *metrics.Metrics) *EventsHandler {
	return &EventsHandler{events: events, metrics: m}
}

// ServeHTTP handles the event capture request.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}

	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required", recaperr.CodeEmptyEventType, requestID)
		return
	}

	event := &types.Event{
		EventType:    req.EventType,
		EventSubtype: req.EventSubtype,
		ObjectID:     req.ObjectID,
		UserID:       req.UserID,
		EventData:    req.EventData,
	}

	if req.EventTimestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.EventTimestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event_timestamp: %v", err), recaperr.CodeInvalidEvent, requestID)
			return
		}
		event.EventTimestamp = ts.UTC()
	}

	id, err := h.events.Append(r.Context(), event)
	if err != nil {
		var re *recaperr.RecapError
		if errors.As(err, &re) && re.Category == recaperr.ErrCategoryValidation {
			writeError(w, http.StatusBadRequest, re.Message, re.Code, requestID)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to append event", recaperr.GetCode(err), requestID)
		return
	}

	if h.metrics != nil {
		h.metrics.EventsAppendedTotal.Inc()
	}

	writeJSON(w, http.StatusCreated, EventResponse{EventID: id, RequestID: requestID})
}
