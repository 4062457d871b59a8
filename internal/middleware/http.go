package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID tags each request with an id, reusing an inbound one if present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = xid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestIDFrom returns the id set by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// AccessLog logs every request and records it in metrics, labelled by the
// route template router matches so caller ids in paths do not explode
// cardinality. It wraps the router itself so 404 and 405 responses are
// counted too.
func AccessLog(logger *logrus.Logger, metrics *Metrics, router *mux.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeLabel(router, r)
			rw := &responseWriter{ResponseWriter: w}

			next.ServeHTTP(rw, r)

			status := rw.status
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			if metrics != nil {
				metrics.RecordRequest(route, r.Method, status, duration)
			}

			entry := logger.WithFields(logrus.Fields{
				"request_id":  RequestIDFrom(r.Context()),
				"method":      r.Method,
				"route":       route,
				"status":      status,
				"duration":    duration,
				"remote_addr": r.RemoteAddr,
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("HTTP request completed")
			} else {
				entry.Info("HTTP request completed")
			}
		})
	}
}

func routeLabel(router *mux.Router, r *http.Request) string {
	if router == nil {
		return "unmatched"
	}

	var match mux.RouteMatch
	if !router.Match(r, &match) || match.Route == nil {
		if errors.Is(match.MatchErr, mux.ErrMethodMismatch) {
			return "method_not_allowed"
		}
		return "not_found"
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// MaxBody caps request bodies at n bytes.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
