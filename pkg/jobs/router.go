package jobs

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the import job API. Callers mount it behind
// their own authentication.
func Router(store *JobStore, runner SourceRunner) chi.Router {
	r := chi.NewRouter()
	r.Get("/", ListJobsHandler(store))
	r.Post("/", EnqueueJobHandler(store, runner))
	r.Get("/{jobId}", GetJobHandler(store))
	r.Post("/{jobId}:cancel", CancelJobHandler(store))
	return r
}
