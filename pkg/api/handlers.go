package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IBM/arcade/pkg/authz"
	"github.com/IBM/arcade/pkg/interpolate"
	"github.com/IBM/arcade/pkg/oem"
	"github.com/IBM/arcade/pkg/store"
)

// Endpoint names recorded on access events.
const (
	EndpointEphemeris   = "/ephemeris"
	EndpointInterpolate = "/interpolate"
	EndpointCompliance  = "/compliance"
)

type objectResponse struct {
	AsoID    string `json:"aso_id"`
	NoradID  string `json:"norad_id"`
	CosparID string `json:"cospar_id"`
	Name     string `json:"name"`
}

func objectToResponse(o *store.TrackedObject) objectResponse {
	return objectResponse{
		AsoID:    o.TrackingID,
		NoradID:  o.CatalogID,
		CosparID: o.InternationalDesignator,
		Name:     o.Name,
	}
}

type complianceResponse struct {
	AsoID       string `json:"aso_id"`
	IsCompliant bool   `json:"is_compliant"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listObjectsHandler(w http.ResponseWriter, r *http.Request) {
	var objs []store.TrackedObject
	if err := s.store.Find(r.Context(), &objs, store.QueryOptions{OrderBy: "tracking_id"}); err != nil {
		s.internalError(w, "list tracked objects", err)
		return
	}
	out := make([]objectResponse, len(objs))
	for i := range objs {
		out[i] = objectToResponse(&objs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getObjectHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "asoId")
	obj, err := s.evaluator.TrackedObject(r.Context(), id)
	if err != nil {
		s.internalError(w, "get tracked object", err)
		return
	}
	if obj == nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown object "+id)
		return
	}
	writeJSON(w, http.StatusOK, objectToResponse(obj))
}

// ephemerisHandler returns the latest record of every source the caller may
// read. Records from other sources are left out silently.
func (s *Server) ephemerisHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := authz.PrincipalFromContext(ctx)
	recs, err := s.evaluator.LatestRecords(ctx, chi.URLParam(r, "asoId"))
	if err != nil {
		s.internalError(w, "load latest records", err)
		return
	}
	out := make([]*oem.Record, 0, len(recs))
	for i := range recs {
		ok, err := s.evaluator.Read(ctx, p, &recs[i], EndpointEphemeris)
		if err != nil {
			s.internalError(w, "read record", err)
			return
		}
		if ok {
			out = append(out, recs[i].OEM())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) interpolateHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	step := interpolate.DefaultStep
	if v := r.URL.Query().Get("step_size"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			writeError(w, http.StatusBadRequest, "bad_request", "step_size must be a positive number of seconds")
			return
		}
		step = parsed
	}

	p := authz.PrincipalFromContext(ctx)
	recs, err := s.evaluator.LatestRecords(ctx, chi.URLParam(r, "asoId"))
	if err != nil {
		s.internalError(w, "load latest records", err)
		return
	}
	out := make([]*oem.Record, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		ok, err := s.evaluator.CanAccess(ctx, p, rec)
		if err != nil {
			s.internalError(w, "authorize record", err)
			return
		}
		if !ok {
			continue
		}
		res, err := s.interp.Interpolate(ctx, rec, step, interpolate.DefaultPoints)
		if errors.Is(err, interpolate.ErrTooManySamples) || errors.Is(err, interpolate.ErrInvalidStep) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if err != nil {
			s.internalError(w, "interpolate record", err)
			return
		}
		if _, err := s.evaluator.Read(ctx, p, rec, EndpointInterpolate); err != nil {
			s.internalError(w, "read record", err)
			return
		}
		out = append(out, res)
	}
	writeJSON(w, http.StatusOK, out)
}

// complianceHandler answers 404 both for a missing record and for one the
// caller may not read.
func (s *Server) complianceHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "asoId")
	rec, err := s.evaluator.Compliance(ctx, id)
	if err != nil {
		s.internalError(w, "load compliance", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not_found", "no compliance record for "+id)
		return
	}
	ok, err := s.evaluator.Read(ctx, authz.PrincipalFromContext(ctx), rec, EndpointCompliance)
	if err != nil {
		s.internalError(w, "read compliance", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no compliance record for "+id)
		return
	}
	writeJSON(w, http.StatusOK, complianceResponse{AsoID: id, IsCompliant: rec.IsCompliant})
}

type grantRequest struct {
	Source string `json:"source"`
}

// grantHandler handles POST /principals/{name}/grants.
func (s *Server) grantHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "body must name a source")
		return
	}
	p, err := authz.PrincipalByName(ctx, s.store, name)
	if err != nil {
		s.internalError(w, "load principal", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "no principal named "+name)
		return
	}
	if err := s.evaluator.Grant(ctx, p, req.Source); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		s.internalError(w, "grant source", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.logger.Error("request failed", "action", action, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", action+" failed")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
