package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
)

// APIKeyHeader carries the extension API key.
const APIKeyHeader = "X-API-Key"

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// Middleware authenticates every request that the Skipper does not exempt.
type Middleware struct {
	Resolver *Resolver
	Skipper  Skipper
	Log      *logger.Logger
}

// NewMiddleware constructs a middleware with optional skipper.
func NewMiddleware(resolver *Resolver, skipper Skipper, log *logger.Logger) Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return Middleware{Resolver: resolver, Skipper: skipper, Log: log}
}

// SkipPaths exempts exact request paths.
func SkipPaths(paths ...string) Skipper {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// Wrap wraps an http.Handler with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		id, err := m.Resolver.ResolveCallerIdentity(r.Context(), CredentialFromRequest(r))
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				m.Log.Error("credential lookup failed", "path", r.URL.Path, "error", err)
				writeStatus(w, http.StatusServiceUnavailable, "unavailable", "credential lookup failed")
				return
			}
			writeStatus(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// CredentialFromRequest extracts the API key header and the bearer token.
func CredentialFromRequest(r *http.Request) Credential {
	cred := Credential{APIKey: r.Header.Get(APIKeyHeader)}
	header := r.Header.Get("Authorization")
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		cred.Bearer = strings.TrimSpace(header[len("Bearer "):])
	}
	return cred
}

func writeStatus(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": code, "detail": message})
}
