package audit

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/IBM/arcade/pkg/authz"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// ManagementLogMiddleware logs every mutating request (enqueueing or
// canceling imports) with its caller and outcome. Reads of records are not
// logged here; they go to the access log.
func ManagementLogMiddleware(cfg *AuditConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || !cfg.Enabled || !isManagementRequest(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(capture, r)

			outcome := outcomeFromStatus(capture.statusCode)
			if outcome == "denied" && !cfg.LogDenied {
				return
			}

			actor := "anonymous"
			if id, ok := authz.IdentityFromContext(r.Context()); ok && id.User != "" {
				actor = id.User
			}

			logger.Info("management request",
				"actor", actor,
				"action", actionVerb(r.Method, r.URL.Path),
				"path", r.URL.Path,
				"outcome", outcome,
				"status", capture.statusCode,
				"requestID", middleware.GetReqID(r.Context()),
				"duration", time.Since(startTime).String())
		})
	}
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return "denied"
	default:
		return "failure"
	}
}

func isManagementRequest(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz":
		return true
	}
	return false
}

// actionVerb names the action of a request: the ":verb" suffix of the last
// path segment when present, else the method.
func actionVerb(method, path string) string {
	last := path[strings.LastIndex(path, "/")+1:]
	if i := strings.LastIndex(last, ":"); i > 0 && i < len(last)-1 {
		return last[i+1:]
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		return "patch"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}
