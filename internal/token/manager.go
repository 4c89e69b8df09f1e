package token

import (
	"context"
	"sync"
	"time"

	"github.com/wilketob/amztec-mcp-server/internal/credential"
)

// Exchanger trades a refresh credential for a fresh access token. Implemented
// by the upstream LWA client so the exchange shares its retry policy.
type Exchanger interface {
	Exchange(ctx context.Context, cs credential.Set) (AccessToken, error)
}

// Manager caches one live access token per tenant and refreshes it ahead of
// expiry. At most one refresh is in flight per tenant; concurrent callers for
// the same tenant wait for that refresh instead of issuing their own.
type Manager struct {
	exchanger Exchanger
	margin    time.Duration

	mu      sync.Mutex // guards tenants map, not token state
	tenants map[string]*entry

	now func() time.Time // injectable clock for testing

	// OnRefresh, when set, is called after every completed exchange.
	OnRefresh func(tenantID string, err error)
}

type entry struct {
	mu       sync.Mutex
	tok      AccessToken
	inflight *inflight
}

type inflight struct {
	done chan struct{}
	tok  AccessToken
	err  error
}

// NewManager creates a Manager that refuses to hand out tokens closer than
// margin to their expiry.
func NewManager(exchanger Exchanger, margin time.Duration) *Manager {
	return &Manager{
		exchanger: exchanger,
		margin:    margin,
		tenants:   make(map[string]*entry),
		now:       time.Now,
	}
}

func (m *Manager) entryFor(tenantID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tenants[tenantID]
	if !ok {
		e = &entry{}
		m.tenants[tenantID] = e
	}
	return e
}

// EnsureToken returns a cached token if it is still comfortably valid,
// otherwise refreshes. A failed refresh caches nothing; the next call
// tries again.
func (m *Manager) EnsureToken(ctx context.Context, cs credential.Set) (AccessToken, error) {
	e := m.entryFor(cs.TenantID)

	for {
		e.mu.Lock()
		if e.tok.Value != "" && m.now().Before(e.tok.ExpiresAt.Add(-m.margin)) {
			tok := e.tok
			e.mu.Unlock()
			return tok, nil
		}

		if fl := e.inflight; fl != nil {
			e.mu.Unlock()
			select {
			case <-fl.done:
				if fl.err != nil {
					return AccessToken{}, fl.err
				}
				return fl.tok, nil
			case <-ctx.Done():
				return AccessToken{}, ctx.Err()
			}
		}

		fl := &inflight{done: make(chan struct{})}
		e.inflight = fl
		e.mu.Unlock()

		tok, err := m.exchanger.Exchange(ctx, cs)

		e.mu.Lock()
		if err == nil {
			e.tok = tok
		}
		e.inflight = nil
		e.mu.Unlock()

		fl.tok, fl.err = tok, err
		close(fl.done)

		if m.OnRefresh != nil {
			m.OnRefresh(cs.TenantID, err)
		}
		if err != nil {
			return AccessToken{}, err
		}
		return tok, nil
	}
}

// Invalidate drops the cached token for a tenant so the next EnsureToken
// refreshes. Used after the upstream rejects a token out-of-band.
func (m *Manager) Invalidate(tenantID string) {
	e := m.entryFor(tenantID)
	e.mu.Lock()
	e.tok = AccessToken{}
	e.mu.Unlock()
}
