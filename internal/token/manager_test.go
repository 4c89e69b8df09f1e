package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wilketob/amztec-mcp-server/internal/credential"
)

// fakeExchanger counts exchanges and hands out tokens with a fixed lifetime.
type fakeExchanger struct {
	mu       sync.Mutex
	calls    int32
	delay    time.Duration
	err      error
	lifetime time.Duration
	now      func() time.Time
}

func (f *fakeExchanger) Exchange(ctx context.Context, cs credential.Set) (AccessToken, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{
		TenantID:  cs.TenantID,
		Value:     fmt.Sprintf("token-%d", n),
		ExpiresAt: f.now().Add(f.lifetime),
	}, nil
}

func (f *fakeExchanger) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func testCreds(tenant string) credential.Set {
	return credential.Set{
		TenantID:        tenant,
		RefreshToken:    "refresh",
		LWAAppID:        "app",
		LWAClientSecret: "secret",
	}
}

func TestEnsureTokenCaches(t *testing.T) {
	now := time.Now()
	ex := &fakeExchanger{lifetime: time.Hour, now: func() time.Time { return now }}
	m := NewManager(ex, time.Minute)
	m.now = func() time.Time { return now }

	tok1, err := m.EnsureToken(context.Background(), testCreds("default"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tok2, err := m.EnsureToken(context.Background(), testCreds("default"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok1.Value != tok2.Value {
		t.Fatalf("expected cached token, got %q then %q", tok1.Value, tok2.Value)
	}
	if got := atomic.LoadInt32(&ex.calls); got != 1 {
		t.Fatalf("expected 1 exchange, got %d", got)
	}
}

func TestEnsureTokenRefreshesInsideMargin(t *testing.T) {
	now := time.Now()
	ex := &fakeExchanger{lifetime: time.Hour, now: func() time.Time { return now }}
	m := NewManager(ex, time.Minute)

	current := now
	m.now = func() time.Time { return current }

	if _, err := m.EnsureToken(context.Background(), testCreds("default")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Within the safety margin of expiry: must refresh, not reuse.
	current = now.Add(time.Hour - 30*time.Second)
	tok, err := m.EnsureToken(context.Background(), testCreds("default"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Value != "token-2" {
		t.Fatalf("expected a refreshed token, got %q", tok.Value)
	}
	if got := atomic.LoadInt32(&ex.calls); got != 2 {
		t.Fatalf("expected 2 exchanges, got %d", got)
	}
}

func TestEnsureTokenSingleFlight(t *testing.T) {
	now := time.Now()
	ex := &fakeExchanger{lifetime: time.Hour, delay: 20 * time.Millisecond, now: func() time.Time { return now }}
	m := NewManager(ex, time.Minute)
	m.now = func() time.Time { return now }

	const workers = 20
	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.EnsureToken(context.Background(), testCreds("default"))
			tokens[i], errs[i] = tok.Value, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: unexpected error: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Fatalf("worker %d got %q, want %q", i, tokens[i], tokens[0])
		}
	}
	if got := atomic.LoadInt32(&ex.calls); got != 1 {
		t.Fatalf("expected exactly 1 exchange for %d concurrent callers, got %d", workers, got)
	}
}

func TestEnsureTokenFailureNotCached(t *testing.T) {
	now := time.Now()
	ex := &fakeExchanger{lifetime: time.Hour, now: func() time.Time { return now }}
	m := NewManager(ex, time.Minute)
	m.now = func() time.Time { return now }

	ex.setErr(errors.New("lwa unavailable"))
	if _, err := m.EnsureToken(context.Background(), testCreds("default")); err == nil {
		t.Fatal("expected an error")
	}

	// The failure must not be cached; the next call exchanges again.
	ex.setErr(nil)
	tok, err := m.EnsureToken(context.Background(), testCreds("default"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Value == "" {
		t.Fatal("expected a token after recovery")
	}
	if got := atomic.LoadInt32(&ex.calls); got != 2 {
		t.Fatalf("expected 2 exchanges, got %d", got)
	}
}

func TestEnsureTokenPerTenantIsolation(t *testing.T) {
	now := time.Now()
	ex := &fakeExchanger{lifetime: time.Hour, now: func() time.Time { return now }}
	m := NewManager(ex, time.Minute)
	m.now = func() time.Time { return now }

	tokA, err := m.EnsureToken(context.Background(), testCreds("tenant-a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tokB, err := m.EnsureToken(context.Background(), testCreds("tenant-b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokA.Value == tokB.Value {
		t.Fatal("tenants must not share tokens")
	}
	if got := atomic.LoadInt32(&ex.calls); got != 2 {
		t.Fatalf("expected 2 exchanges, got %d", got)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	now := time.Now()
	ex := &fakeExchanger{lifetime: time.Hour, now: func() time.Time { return now }}
	m := NewManager(ex, time.Minute)
	m.now = func() time.Time { return now }

	tok1, _ := m.EnsureToken(context.Background(), testCreds("default"))
	m.Invalidate("default")
	tok2, err := m.EnsureToken(context.Background(), testCreds("default"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok1.Value == tok2.Value {
		t.Fatal("expected a new token after invalidation")
	}
}

func TestOnRefreshHook(t *testing.T) {
	now := time.Now()
	ex := &fakeExchanger{lifetime: time.Hour, now: func() time.Time { return now }}
	m := NewManager(ex, time.Minute)
	m.now = func() time.Time { return now }

	var mu sync.Mutex
	var seen []string
	m.OnRefresh = func(tenantID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		status := "ok"
		if err != nil {
			status = "error"
		}
		seen = append(seen, tenantID+":"+status)
	}

	_, _ = m.EnsureToken(context.Background(), testCreds("default"))
	ex.setErr(errors.New("boom"))
	m.Invalidate("default")
	_, _ = m.EnsureToken(context.Background(), testCreds("default"))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "default:ok" || seen[1] != "default:error" {
		t.Fatalf("unexpected refresh hook calls: %v", seen)
	}
}
