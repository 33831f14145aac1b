package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type httpObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Logging logs request.start/request.complete and, when metrics is set,
// records the request under its chi route pattern.
func Logging(logg *logger.Logger, metrics httpObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				})
				logg.Info(ctx, "request.start")
			}

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			if metrics != nil {
				metrics.ObserveRequest(r.Method, routePattern(r), status, duration)
			}
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"status":      status,
					"duration_ms": duration.Milliseconds(),
				})
				logg.Info(ctx, "request.complete")
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}
