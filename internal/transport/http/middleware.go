// Package httptransport builds the HTTP server and the middleware chain around the API mux.
package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/auth"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
)

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first one listed is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			h = middlewares[i](h)
		}
	}
	return h
}

// CORS allows browser dashboards on the configured origins to call the API.
func CORS(origins []string) Middleware {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.APIKeyHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           300,
	})
}

// RateLimit throttles requests to the given paths per API key, or per client IP when
// no key is sent. A non-positive limit disables it.
func RateLimit(limit int, window time.Duration, paths ...string) Middleware {
	if limit <= 0 || window <= 0 {
		return nil
	}
	limited := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		limited[p] = struct{}{}
	}
	limiter := httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(keyByCredential),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"type":   "rate_limited",
				"detail": "too many requests, retry later",
			})
		}),
	)
	return func(next http.Handler) http.Handler {
		throttled := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := limited[r.URL.Path]; ok {
				throttled.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keyByCredential(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get(auth.APIKeyHeader)); key != "" {
		return "key:" + key, nil
	}
	return httprate.KeyByIP(r)
}

// RequestLogger logs each request once it completes and records its latency.
func RequestLogger(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			observeRequest(routeLabel(r, rec.status), r.Method, rec.status, elapsed)

			kv := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"bytes", rec.bytes,
			}
			switch {
			case rec.status >= http.StatusInternalServerError:
				log.Error("request completed", kv...)
			case rec.status >= http.StatusBadRequest:
				log.Warn("request completed", kv...)
			default:
				log.Debug("request completed", kv...)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// routeLabel keeps the metric label set bounded by folding unknown paths together.
func routeLabel(r *http.Request, status int) string {
	if status == http.StatusNotFound {
		return "unmatched"
	}
	return r.URL.Path
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
