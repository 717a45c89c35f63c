package audit

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the access log API. Callers mount it behind
// an admin check.
func Router(s *AccessStore) chi.Router {
	r := chi.NewRouter()
	r.Get("/events", ListEventsHandler(s))
	r.Get("/events/{eventId}", GetEventHandler(s))
	r.Get("/principals/{principalId}/events", PrincipalEventsHandler(s))
	return r
}
