package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
}

func TestChainOrderAndNilMiddlewares(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), tag("outer"), nil, tag("inner"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestRateLimitOnlyThrottlesListedPaths(t *testing.T) {
	h := Chain(okHandler(), RateLimit(2, time.Minute, "/v1/extension/heartbeat"))

	send := func(path, key string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if key != "" {
			req.Header.Set(auth.APIKeyHeader, key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusAccepted, send("/v1/extension/heartbeat", "key-a"))
	require.Equal(t, http.StatusAccepted, send("/v1/extension/heartbeat", "key-a"))
	require.Equal(t, http.StatusTooManyRequests, send("/v1/extension/heartbeat", "key-a"))

	// Separate key, separate budget.
	require.Equal(t, http.StatusAccepted, send("/v1/extension/heartbeat", "key-b"))

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusAccepted, send("/v1/profile", "key-a"))
	}
}

func TestRateLimitDisabled(t *testing.T) {
	require.Nil(t, RateLimit(0, time.Minute, "/x"))
}

func TestCORSPreflight(t *testing.T) {
	h := Chain(okHandler(), CORS([]string{"https://app.codingcam.dev"}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/profile", nil)
	req.Header.Set("Origin", "https://app.codingcam.dev")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", auth.APIKeyHeader)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, "https://app.codingcam.dev", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestLoggerCapturesStatus(t *testing.T) {
	h := Chain(http.NotFoundHandler(), RequestLogger(nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rec.WriteHeader(http.StatusTeapot)
	rec.WriteHeader(http.StatusOK)
	require.Equal(t, http.StatusTeapot, rec.status)
}

func TestNewServerAppliesConfig(t *testing.T) {
	srv := NewServer(DefaultServerConfig(":0"), okHandler())
	require.Equal(t, ":0", srv.Addr)
	require.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	require.Equal(t, 60*time.Second, srv.IdleTimeout)
}
