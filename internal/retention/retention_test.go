package retention

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakeStore) DeleteClosedBefore(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 2, f.err
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestPruneNowUsesMaxAge(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, Config{Interval: time.Hour, MaxAge: 24 * time.Hour})
	fixed := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	n, err := svc.PruneNow()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 pruned, got %d", n)
	}

	want := fixed.Add(-24 * time.Hour)
	if !store.cutoffs[0].Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, store.cutoffs[0])
	}
}

func TestPruneNowReturnsStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	svc := New(store, DefaultConfig())

	if _, err := svc.PruneNow(); err == nil {
		t.Error("Expected store error")
	}
}

func TestStartPrunesImmediately(t *testing.T) {
	store := &fakeStore{}
	svc := New(store, Config{Interval: time.Hour, MaxAge: time.Hour})

	svc.Start()
	deadline := time.Now().Add(time.Second)
	for store.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()

	if store.calls() == 0 {
		t.Error("Service should prune once on start")
	}
}
