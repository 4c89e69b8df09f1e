package metering

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeStore records batches handed to BatchInsert.
type fakeStore struct {
	mu      sync.Mutex
	batches [][]Event
}

func (f *fakeStore) BatchInsert(ctx context.Context, events []Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]Event, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func event(tenant string) Event {
	return Event{
		TenantID:  tenant,
		Tool:      "get_amazon_product_info",
		Operation: "catalog",
		Outcome:   "success",
		Timestamp: time.Now().UTC(),
	}
}

func TestCollectorFlushesAtBatchSize(t *testing.T) {
	store := &fakeStore{}
	c := NewCollector(store, 3, time.Hour)

	c.Record(event("a"))
	c.Record(event("a"))
	if store.total() != 0 {
		t.Fatal("no flush expected below the batch size")
	}
	c.Record(event("a"))
	if store.total() != 3 {
		t.Fatalf("expected 3 flushed events, got %d", store.total())
	}
}

func TestCollectorFlushesOnStop(t *testing.T) {
	store := &fakeStore{}
	c := NewCollector(store, 100, time.Hour)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	c.Record(event("a"))
	c.Record(event("b"))
	c.Stop()
	<-done

	if store.total() != 2 {
		t.Fatalf("expected 2 events after stop, got %d", store.total())
	}
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	store := &fakeStore{}
	c := NewCollector(store, 100, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	c.Record(event("a"))

	deadline := time.Now().Add(time.Second)
	for store.total() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("timer flush never happened, total=%d", store.total())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type gaugeValue struct {
	mu sync.Mutex
	v  float64
}

func (g *gaugeValue) Set(v float64) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

func (g *gaugeValue) get() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

func TestCollectorGauge(t *testing.T) {
	store := &fakeStore{}
	c := NewCollector(store, 3, time.Hour)
	g := &gaugeValue{}
	c.SetGauge(g)

	c.Record(event("a"))
	c.Record(event("a"))
	if g.get() != 2 {
		t.Fatalf("expected gauge 2, got %g", g.get())
	}
	c.Record(event("a"))
	if g.get() != 0 {
		t.Fatalf("expected gauge reset after flush, got %g", g.get())
	}
}
