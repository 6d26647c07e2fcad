package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"gantry/api/model"
)

type fakeEngine struct {
	mu       sync.Mutex
	releases []model.Release
	ticks    map[string]int
	errs     map[string]error
	panics   map[string]bool
}

func (f *fakeEngine) ActiveReleases(ctx context.Context) ([]model.Release, error) {
	return f.releases, nil
}

func (f *fakeEngine) Tick(ctx context.Context, releaseID string) error {
	f.mu.Lock()
	f.ticks[releaseID]++
	f.mu.Unlock()
	if f.panics[releaseID] {
		panic("evaluation blew up")
	}
	return f.errs[releaseID]
}

func (f *fakeEngine) tickCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks[id]
}

func TestSweepTicksEveryActiveRelease(t *testing.T) {
	eng := &fakeEngine{
		releases: []model.Release{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}},
		ticks:    map[string]int{},
		errs:     map[string]error{"r2": model.ErrReleaseBusy},
		panics:   map[string]bool{"r3": true},
	}
	c := New(eng, time.Second)

	// A busy release and a panicking release must not stop the sweep.
	c.Sweep()
	c.Sweep()

	for _, id := range []string{"r1", "r2", "r3"} {
		if got := eng.tickCount(id); got != 2 {
			t.Errorf("release %s ticked %d times, want 2", id, got)
		}
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	c := New(&fakeEngine{ticks: map[string]int{}}, 0)
	if c.interval != 30*time.Second {
		t.Fatalf("interval = %s, want 30s default", c.interval)
	}
}
