package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jambot/internal/eventbus"
	logx "jambot/pkg/logx"
)

type memState struct {
	mu   sync.Mutex
	last map[string]time.Time
	err  error
}

func newMemState() *memState { return &memState{last: map[string]time.Time{}} }

func (m *memState) LastFired(_ context.Context, name string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return time.Time{}, false, m.err
	}
	t, ok := m.last[name]
	return t, ok, nil
}

func (m *memState) MarkFired(_ context.Context, name string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.last[name] = at
	return nil
}

func (m *memState) get(name string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[name]
}

const weeklySpec = "25 15 * * 2"

// Tuesday 2025-06-03 15:25 UTC is a slot of weeklySpec.
var slot = time.Date(2025, 6, 3, 15, 25, 0, 0, time.UTC)

func newTestService(t *testing.T, st StateStore, now time.Time, grace time.Duration) (*Service, *atomic.Int32, chan Run) {
	t.Helper()
	s := New(Config{Enabled: true, Timezone: "UTC", MisfireGrace: grace}, st, logx.Nop(), nil)
	s.now = func() time.Time { return now }
	var calls atomic.Int32
	runs := make(chan Run, 4)
	if err := s.AddCron("jam.create", weeklySpec, func(ctx context.Context, r Run) error {
		calls.Add(1)
		runs <- r
		return nil
	}); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, &calls, runs
}

func TestFireAtMostOncePerSlot(t *testing.T) {
	t.Parallel()
	st := newMemState()
	s, calls, _ := newTestService(t, st, slot, time.Hour)
	d := s.defs[0]

	s.fire(d, slot, "cron")
	s.fire(d, slot.Add(30*time.Second), "cron")
	s.fire(d, slot.Add(-7*24*time.Hour), "catchup")
	if n := calls.Load(); n != 1 {
		t.Fatalf("job ran %d times, want 1", n)
	}
	if got := st.get("jam.create"); !got.Equal(slot) {
		t.Fatalf("last fired = %v, want %v", got, slot)
	}

	next := slot.Add(7 * 24 * time.Hour)
	s.fire(d, next, "cron")
	if n := calls.Load(); n != 2 {
		t.Fatalf("job ran %d times after next slot, want 2", n)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Runs != 2 || snap.Schedules[0].Skipped != 2 {
		t.Fatalf("snapshot = %+v", snap.Schedules)
	}
}

func TestFireSkipsWhenStateUnavailable(t *testing.T) {
	t.Parallel()
	st := newMemState()
	st.err = errors.New("db down")
	s, calls, _ := newTestService(t, st, slot, time.Hour)

	s.fire(s.defs[0], slot, "cron")
	if n := calls.Load(); n != 0 {
		t.Fatalf("job ran %d times without state, want 0", n)
	}
}

func TestFirePublishesEvent(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{Enabled: true, Timezone: "UTC"}, newMemState(), logx.Nop(), bus)
	if err := s.AddCron("jam.reminder", "32 15 * * 2", func(context.Context, Run) error { return nil }); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	s.fire(s.defs[0], slot, "cron")

	select {
	case e := <-ch:
		r, ok := e.Data.(Run)
		if e.Type != eventbus.TypeSchedulerFired || !ok || r.Name != "jam.reminder" || r.ID == "" {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no scheduler.fired event")
	}
}

func TestStartRunsMissedSlotWithinGrace(t *testing.T) {
	t.Parallel()
	st := newMemState()
	st.last["jam.create"] = slot.Add(-7 * 24 * time.Hour)
	s, calls, runs := newTestService(t, st, slot.Add(25*time.Minute), time.Hour)

	s.Start(context.Background())
	select {
	case r := <-runs:
		if !r.Slot.Equal(slot) || r.Reason != "catchup" {
			t.Fatalf("run = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("missed slot was not run")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d", n)
	}
}

func TestStartSkipsMissedSlotBeyondGrace(t *testing.T) {
	t.Parallel()
	st := newMemState()
	before := slot.Add(-7 * 24 * time.Hour)
	st.last["jam.create"] = before
	s, calls, _ := newTestService(t, st, slot.Add(2*time.Hour), time.Hour)

	s.Start(context.Background())
	if n := calls.Load(); n != 0 {
		t.Fatalf("calls = %d, want 0", n)
	}
	if got := st.get("jam.create"); !got.Equal(before) {
		t.Fatalf("state changed to %v", got)
	}
}

func TestStartRecordsBaselineWithoutState(t *testing.T) {
	t.Parallel()
	st := newMemState()
	now := slot.Add(3*time.Hour + 10*time.Second)
	s, calls, _ := newTestService(t, st, now, time.Hour)

	s.Start(context.Background())
	if n := calls.Load(); n != 0 {
		t.Fatalf("calls = %d, want 0", n)
	}
	base := st.get("jam.create")
	if base.IsZero() || !base.Before(now) || now.Sub(base) > time.Minute {
		t.Fatalf("baseline = %v, now %v", base, now)
	}

	snap := s.Snapshot()
	if !snap.Running || snap.Timezone != "UTC" || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStartDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, newMemState(), logx.Nop(), nil)
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatal("disabled scheduler started")
	}
	s.Stop(context.Background())
}

func TestAddCronReplacesByName(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, nil, logx.Nop(), nil)
	job := func(context.Context, Run) error { return nil }
	if err := s.AddCron("jam.create", weeklySpec, job); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if err := s.AddCron("jam.create", "0 18 * * 5", job); err != nil {
		t.Fatalf("AddCron replace: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "0 18 * * 5" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if err := s.AddCron("bad", "every tuesday", job); err == nil {
		t.Fatal("expected invalid spec error")
	}
	if !s.Remove("jam.create") || s.Remove("jam.create") {
		t.Fatal("Remove should succeed once")
	}
}

func TestNextRuns(t *testing.T) {
	t.Parallel()
	got, err := NextRuns(weeklySpec, slot, 2)
	if err != nil {
		t.Fatalf("NextRuns: %v", err)
	}
	want := []time.Time{slot.Add(7 * 24 * time.Hour), slot.Add(14 * 24 * time.Hour)}
	if len(got) != 2 || !got[0].Equal(want[0]) || !got[1].Equal(want[1]) {
		t.Fatalf("NextRuns = %v, want %v", got, want)
	}
	if _, err := ParseSpec(""); err == nil {
		t.Fatal("empty spec accepted")
	}
}
