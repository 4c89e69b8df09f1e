package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type countingMetrics struct {
	successes, failures int
}

func (c *countingMetrics) IncAuthSuccess() { c.successes++ }
func (c *countingMetrics) IncAuthFailure() { c.failures++ }

func protectedHandler(t *testing.T, wantCaller string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFromContext(r.Context())
		if caller == nil {
			t.Error("caller missing from context")
		} else if caller.ID != wantCaller {
			t.Errorf("unexpected caller: %q", caller.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddlewareBearer(t *testing.T) {
	k, _ := NewKeyring([]string{"amztec_ab:secret"})
	metrics := &countingMetrics{}
	h := Middleware(k, metrics)(protectedHandler(t, "amztec_ab"))

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer amztec_ab:secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if metrics.successes != 1 || metrics.failures != 0 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestMiddlewareAPIKeyHeader(t *testing.T) {
	k, _ := NewKeyring([]string{"amztec_ab:secret"})
	h := Middleware(k, nil)(protectedHandler(t, "amztec_ab"))

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	req.Header.Set("X-API-Key", "amztec_ab:secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	k, _ := NewKeyring([]string{"amztec_ab:secret"})
	metrics := &countingMetrics{}
	h := Middleware(k, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run for unauthenticated requests")
	}))

	// Missing key.
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tools", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing key, got %d", rr.Code)
	}

	// Wrong key.
	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer amztec_ab:wrong")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", rr.Code)
	}

	if metrics.failures != 2 {
		t.Fatalf("expected 2 recorded failures, got %d", metrics.failures)
	}
}
