package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) PruneTelegrams(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 37, 12, 0, time.UTC)
	got := Cutoff(now, 30*24*time.Hour)
	want := time.Date(2026, 2, 8, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Cutoff = %s, want %s", got, want)
	}
}

func TestCleanup(t *testing.T) {
	p := &fakePruner{}
	now := time.Date(2026, 3, 10, 14, 37, 0, 0, time.UTC)

	n, err := Cleanup(context.Background(), p, 24*time.Hour, now)
	if err != nil || n != 3 {
		t.Fatalf("Cleanup = %d, %v", n, err)
	}
	if !p.cutoffs[0].Equal(time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("cutoff = %s", p.cutoffs[0])
	}

	if n, _ := Cleanup(context.Background(), p, 0, now); n != 0 || p.calls() != 1 {
		t.Error("zero retention must not prune")
	}

	p.err = errors.New("database is locked")
	if _, err := Cleanup(context.Background(), p, time.Hour, now); err == nil {
		t.Error("expected prune error")
	}
}

func TestRun(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, p, time.Hour, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for p.calls() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run = %v", err)
	}
	if p.calls() < 3 {
		t.Errorf("pruned %d times, want at least 3", p.calls())
	}
}

func TestRun_Disabled(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, p, 0, time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	if p.calls() != 0 {
		t.Errorf("disabled retention pruned %d times", p.calls())
	}
}
