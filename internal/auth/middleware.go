package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const callerContextKey contextKey = iota

// ContextWithCaller returns a new context carrying the given caller.
func ContextWithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

// CallerFromContext extracts the caller from the context, or nil.
func CallerFromContext(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerContextKey).(*Caller)
	return c
}

// MetricsRecorder is an optional sink for auth outcomes.
type MetricsRecorder interface {
	IncAuthSuccess()
	IncAuthFailure()
}

// Middleware authenticates requests with an API key carried either as a
// bearer token or in the X-API-Key header. On success the caller is injected
// into the request context.
func Middleware(keys *Keyring, metrics MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractKey(r)
			if apiKey == "" {
				if metrics != nil {
					metrics.IncAuthFailure()
				}
				writeUnauthorized(w, "missing api key")
				return
			}

			caller, ok := keys.Verify(apiKey)
			if !ok {
				if metrics != nil {
					metrics.IncAuthFailure()
				}
				writeUnauthorized(w, "invalid api key")
				return
			}

			if metrics != nil {
				metrics.IncAuthSuccess()
			}
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}

func extractKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "unauthorized",
			"message": message,
		},
	})
}
