package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"github.com/joeychilson/cacheurl/logger"
)

// Logger returns a middleware that writes one structured record per request
// through httplog, tagged with the chi request ID when one is present.
// Successful health checks are not logged.
func Logger(log logger.Logger) func(next http.Handler) http.Handler {
	if log == nil {
		log = logger.Noop()
	}

	requestLogger := httplog.RequestLogger(log.Slog(), &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
		Skip: func(req *http.Request, respStatus int) bool {
			return req.URL.Path == "/health" && respStatus == http.StatusOK
		},
	})

	return func(next http.Handler) http.Handler {
		return requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				httplog.SetAttrs(r.Context(), slog.String("request_id", reqID))
			}
			next.ServeHTTP(w, r)
		}))
	}
}
