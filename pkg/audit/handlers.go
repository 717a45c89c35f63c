package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IBM/arcade/pkg/store"
)

// ListEventsHandler handles GET /audit/events
// Query params: principalId, recordKind, recordId, endpoint, pageSize, pageToken
func ListEventsHandler(s *AccessStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := EventFilter{
			RecordKind: q.Get("recordKind"),
			Endpoint:   q.Get("endpoint"),
		}
		for param, dst := range map[string]*uint{"principalId": &filter.PrincipalID, "recordId": &filter.RecordID} {
			if v := q.Get(param); v != "" {
				n, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", param, v))
					return
				}
				*dst = uint(n)
			}
		}

		records, nextToken, total, err := s.List(r.Context(), filter, pageSize(q.Get("pageSize")), q.Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to list access events: %v", err))
			return
		}
		writeEventPage(w, records, nextToken, total)
	}
}

// PrincipalEventsHandler handles GET /audit/principals/{principalId}/events
// Query params: pageSize, pageToken
func PrincipalEventsHandler(s *AccessStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "principalId")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid principal ID %q", raw))
			return
		}
		q := r.URL.Query()
		records, nextToken, total, err := s.ListByPrincipal(r.Context(), uint(id), pageSize(q.Get("pageSize")), q.Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to list access events: %v", err))
			return
		}
		writeEventPage(w, records, nextToken, total)
	}
}

func pageSize(raw string) int {
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return 20
}

func writeEventPage(w http.ResponseWriter, records []store.AccessEvent, nextToken string, total int) {
	events := make([]eventResponse, len(records))
	for i := range records {
		events[i] = eventToResponse(&records[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":        events,
		"nextPageToken": nextToken,
		"totalSize":     total,
	})
}

// GetEventHandler handles GET /audit/events/{eventId}
func GetEventHandler(s *AccessStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "eventId")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event ID %q", raw))
			return
		}

		ev, err := s.GetByID(r.Context(), uint(id))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get access event: %v", err))
			return
		}
		if ev == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("access event %d not found", id))
			return
		}

		writeJSON(w, http.StatusOK, eventToResponse(ev))
	}
}

// UserReportHandler handles GET /user_reports
func UserReportHandler(s *AccessStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := s.UserReport(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build user report: %v", err))
			return
		}
		if rows == nil {
			rows = []UserReport{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

type eventResponse struct {
	ID          uint   `json:"id"`
	PrincipalID uint   `json:"principalId"`
	Principal   string `json:"principal,omitempty"`
	RecordKind  string `json:"recordKind"`
	RecordID    uint   `json:"recordId"`
	Endpoint    string `json:"endpoint"`
	CreatedAt   string `json:"createdAt"`
}

func eventToResponse(ev *store.AccessEvent) eventResponse {
	resp := eventResponse{
		ID:          ev.ID,
		PrincipalID: ev.PrincipalID,
		RecordKind:  ev.RecordKind,
		RecordID:    ev.RecordID,
		Endpoint:    ev.Endpoint,
		CreatedAt:   ev.CreatedAt.Format(time.RFC3339),
	}
	if ev.Principal != nil {
		resp.Principal = ev.Principal.Name
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
