package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IBM/arcade/pkg/authz"
	"github.com/IBM/arcade/pkg/importer"
)

// GetJobHandler handles GET /imports/{jobId}
func GetJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if jobID == "" {
			writeError(w, http.StatusBadRequest, "missing job ID")
			return
		}

		job, err := store.Get(r.Context(), jobID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", jobID))
			return
		}

		writeJSON(w, http.StatusOK, jobToResponse(job))
	}
}

// ListJobsHandler handles GET /imports
// Query params: source, state, trigger, requestedBy, pageSize, pageToken
func ListJobsHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := JobListFilter{
			Source:      q.Get("source"),
			State:       q.Get("state"),
			Trigger:     q.Get("trigger"),
			RequestedBy: q.Get("requestedBy"),
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := store.List(r.Context(), filter, pageSize, q.Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to list jobs: %v", err))
			return
		}

		jobs := make([]jobResponse, len(records))
		for i := range records {
			jobs[i] = jobToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":          jobs,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

type enqueueRequest struct {
	Source string `json:"source"`
}

// EnqueueJobHandler handles POST /imports. It answers 202 with a new job, or
// 200 with the job already queued or running for the source.
func EnqueueJobHandler(store *JobStore, runner SourceRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if body.Source == "" {
			body.Source = AllSources
		}
		if !knownSource(runner, body.Source) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", body.Source))
			return
		}

		requestedBy := "anonymous"
		if id, ok := authz.IdentityFromContext(r.Context()); ok && id.User != "" {
			requestedBy = id.User
		}

		job, created, err := store.Enqueue(r.Context(), body.Source, requestedBy)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to enqueue job: %v", err))
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusAccepted
		}
		writeJSON(w, status, jobToResponse(job))
	}
}

func knownSource(runner SourceRunner, name string) bool {
	if name == AllSources {
		return true
	}
	for _, src := range runner.Sources() {
		if src.Name == name {
			return true
		}
	}
	return false
}

// CancelJobHandler handles POST /imports/{jobId}:cancel
func CancelJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if jobID == "" {
			writeError(w, http.StatusBadRequest, "missing job ID")
			return
		}

		if err := store.Cancel(r.Context(), jobID); err != nil {
			switch {
			case errors.Is(err, ErrJobNotFound):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, ErrNotCancelable):
				writeError(w, http.StatusConflict, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to cancel job: %v", err))
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status": "canceled",
			"jobId":  jobID,
		})
	}
}

// jobResponse is the API response for an import job.
type jobResponse struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Trigger      string         `json:"trigger"`
	RequestedBy  string         `json:"requestedBy"`
	RequestedAt  string         `json:"requestedAt"`
	State        string         `json:"state"`
	Message      string         `json:"message,omitempty"`
	StartedAt    string         `json:"startedAt,omitempty"`
	FinishedAt   string         `json:"finishedAt,omitempty"`
	AttemptCount int            `json:"attemptCount"`
	LastError    string         `json:"lastError,omitempty"`
	Stats        importer.Stats `json:"stats"`
	DurationMs   int64          `json:"durationMs,omitempty"`
}

func jobToResponse(job *ImportJob) jobResponse {
	resp := jobResponse{
		ID:           job.ID,
		Source:       job.Source,
		Trigger:      string(job.Trigger),
		RequestedBy:  job.RequestedBy,
		RequestedAt:  job.RequestedAt.Format(time.RFC3339),
		State:        string(job.State),
		Message:      job.Message,
		AttemptCount: job.AttemptCount,
		LastError:    job.LastError,
		Stats:        job.Stats.Data(),
		DurationMs:   job.DurationMs,
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.Format(time.RFC3339)
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
