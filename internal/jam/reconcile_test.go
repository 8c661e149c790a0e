package jam

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	logx "jambot/pkg/logx"
)

func newReconcilerFixture(t *testing.T) (*Reconciler, *Cache, *memStore) {
	t.Helper()
	store := newMemStore()
	cache := NewCache()
	p := NewPoll("p1", -1001, 42, time.Date(2025, 6, 6, 19, 30, 0, 0, testZone))
	rec, err := p.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.UpsertPoll(context.Background(), rec); err != nil {
		t.Fatalf("UpsertPoll: %v", err)
	}
	cache.Put(p)
	return NewReconciler(cache, store, logx.Nop()), cache, store
}

func vote(user int64, name string, option int) Vote {
	return Vote{PollID: "p1", UserID: user, DisplayName: name, Option: option}
}

func TestReconcileSingleOccupancy(t *testing.T) {
	t.Parallel()
	r, cache, _ := newReconcilerFixture(t)
	ctx := context.Background()

	seq := []Vote{
		vote(1, "ann", int(RoleDrums)),
		vote(2, "bob", int(RoleDrums)),
		vote(2, "bob", int(RoleBass)),
		vote(1, "ann", int(RoleBass)),
		vote(3, "cat", int(RoleLeads)),
		vote(1, "ann", NoOption),
		vote(3, "cat", int(RoleDrums)),
		vote(2, "bob", int(RoleDrums)),
	}
	for i, v := range seq {
		if _, err := r.Apply(ctx, v); err != nil {
			t.Fatalf("step %d: Apply: %v", i, err)
		}
		p, _ := cache.Get("p1")
		seen := map[string]int64{}
		for uid, opt := range p.Votes {
			if other, dup := seen[opt]; dup {
				t.Fatalf("step %d: %s held by %d and %d", i, opt, other, uid)
			}
			seen[opt] = uid
		}
	}
}

func TestReconcileCancelWithoutVoteIsNoop(t *testing.T) {
	t.Parallel()
	r, _, store := newReconcilerFixture(t)

	out, err := r.Apply(context.Background(), vote(7, "zed", NoOption))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Kind != OutcomeIgnored {
		t.Fatalf("kind = %v, want ignored", out.Kind)
	}
	if n := store.writeCount(); n != 0 {
		t.Fatalf("writes = %d, want 0", n)
	}
	if _, ok := out.Notice(vote(7, "zed", NoOption)); ok {
		t.Fatal("expected no notice")
	}
}

func TestReconcileRejectsTakenRole(t *testing.T) {
	t.Parallel()
	r, cache, store := newReconcilerFixture(t)
	ctx := context.Background()

	if _, err := r.Apply(ctx, vote(1, "ann", int(RoleBass))); err != nil {
		t.Fatalf("Apply A: %v", err)
	}
	out, err := r.Apply(ctx, vote(2, "bob", int(RoleBass)))
	if err != nil {
		t.Fatalf("Apply B: %v", err)
	}
	if out.Kind != OutcomeRejected {
		t.Fatalf("kind = %v, want rejected", out.Kind)
	}
	p, _ := cache.Get("p1")
	if len(p.Votes) != 1 || p.Votes[1] != "Bass" {
		t.Fatalf("votes = %v, want only ann on Bass", p.Votes)
	}
	if n := store.writeCount(); n != 1 {
		t.Fatalf("writes = %d, want 1", n)
	}
	n, ok := out.Notice(vote(2, "bob", int(RoleBass)))
	if !ok {
		t.Fatal("expected rejection notice")
	}
	if !strings.Contains(n.Text, "[bob](tg://user?id=2)") || !strings.Contains(n.Text, "*Bass* роль вже зайнята") {
		t.Fatalf("notice = %q", n.Text)
	}
	if n.Options == nil || n.Options.ReplyTo != 42 {
		t.Fatalf("notice must reply to poll message, got %+v", n.Options)
	}
}

func TestReconcileSwitchWritesClearThenAssign(t *testing.T) {
	t.Parallel()
	r, cache, store := newReconcilerFixture(t)
	ctx := context.Background()

	if _, err := r.Apply(ctx, vote(1, "ann", int(RoleDrums))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	before := store.writeCount()
	out, err := r.Apply(ctx, vote(1, "ann", int(RoleLeads)))
	if err != nil {
		t.Fatalf("Apply switch: %v", err)
	}
	if out.Kind != OutcomeAssigned || out.Previous != "Drums" || out.Option != "Leads" {
		t.Fatalf("outcome = %+v", out)
	}

	store.mu.Lock()
	writes := append([]roleWrite(nil), store.writes[before:]...)
	store.mu.Unlock()
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	if writes[0].Role != RoleDrums || writes[0].Occ != nil {
		t.Fatalf("first write = %+v, want Drums cleared", writes[0])
	}
	if writes[1].Role != RoleLeads || writes[1].Occ == nil || writes[1].Occ.UserID != 1 {
		t.Fatalf("second write = %+v, want Leads assigned to 1", writes[1])
	}

	p, _ := cache.Get("p1")
	if _, held := p.Holder("Drums"); held {
		t.Fatal("Drums still held")
	}
	if uid, _ := p.Holder("Leads"); uid != 1 {
		t.Fatalf("Leads holder = %d, want 1", uid)
	}
	if got := joinRoles(out.Free); got != "Drums, Bass, FX" {
		t.Fatalf("free = %q", got)
	}
}

func TestReconcileUnchangedReselect(t *testing.T) {
	t.Parallel()
	r, _, store := newReconcilerFixture(t)
	ctx := context.Background()

	if _, err := r.Apply(ctx, vote(1, "ann", int(RoleFX))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, err := r.Apply(ctx, vote(1, "ann", int(RoleFX)))
	if err != nil {
		t.Fatalf("Apply again: %v", err)
	}
	if out.Kind != OutcomeUnchanged {
		t.Fatalf("kind = %v, want unchanged", out.Kind)
	}
	if n := store.writeCount(); n != 1 {
		t.Fatalf("writes = %d, want 1", n)
	}
}

func TestReconcileCancelFreesRole(t *testing.T) {
	t.Parallel()
	r, cache, _ := newReconcilerFixture(t)
	ctx := context.Background()

	if _, err := r.Apply(ctx, vote(1, "ann", int(RoleBass))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, err := r.Apply(ctx, vote(1, "ann", NoOption))
	if err != nil {
		t.Fatalf("Apply cancel: %v", err)
	}
	if out.Kind != OutcomeCancelled || out.Option != "Bass" {
		t.Fatalf("outcome = %+v", out)
	}
	p, _ := cache.Get("p1")
	if len(p.Votes) != 0 {
		t.Fatalf("votes = %v, want empty", p.Votes)
	}
	n, ok := out.Notice(vote(1, "ann", NoOption))
	if !ok || !strings.Contains(n.Text, "(був *Bass*)") || !strings.Contains(n.Text, "Drums, Bass, Leads, FX") {
		t.Fatalf("notice = %q ok=%v", n.Text, ok)
	}
}

func TestReconcileUnknownPollAndBadOption(t *testing.T) {
	t.Parallel()
	r, _, store := newReconcilerFixture(t)
	ctx := context.Background()

	out, err := r.Apply(ctx, Vote{PollID: "nope", UserID: 1, Option: 0})
	if err != nil || out.Kind != OutcomeIgnored {
		t.Fatalf("unknown poll: %+v, %v", out, err)
	}
	out, err = r.Apply(ctx, vote(1, "ann", 9))
	if err != nil || out.Kind != OutcomeIgnored {
		t.Fatalf("bad option: %+v, %v", out, err)
	}
	if n := store.writeCount(); n != 0 {
		t.Fatalf("writes = %d, want 0", n)
	}
}

func TestReconcileFailedAssignKeepsCacheInLineWithStore(t *testing.T) {
	t.Parallel()
	r, cache, store := newReconcilerFixture(t)
	ctx := context.Background()

	if _, err := r.Apply(ctx, vote(1, "ann", int(RoleDrums))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	boom := errors.New("db down")
	store.failSet = func(w roleWrite) error {
		if w.Occ != nil {
			return boom
		}
		return nil
	}
	if _, err := r.Apply(ctx, vote(1, "ann", int(RoleLeads))); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	p, _ := cache.Get("p1")
	row, _, _ := store.FindPoll(ctx, "p1")
	if got, want := joinRoles(p.FreeRoles()), joinRoles(row.FreeRoles()); got != want {
		t.Fatalf("cache free %q, store free %q", got, want)
	}
}

func TestReconcileFreeRolesFallsBackToCache(t *testing.T) {
	t.Parallel()
	r, _, store := newReconcilerFixture(t)
	store.failFind = errors.New("read failed")

	out, err := r.Apply(context.Background(), vote(1, "ann", int(RoleBass)))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := joinRoles(out.Free); got != "Drums, Leads, FX" {
		t.Fatalf("free = %q", got)
	}
}

func TestReconcileLegacyOccupant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	p := NewPoll("p1", -1001, 42, time.Date(2025, 6, 6, 19, 30, 0, 0, testZone))
	rec, err := p.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.UpsertPoll(ctx, rec); err != nil {
		t.Fatalf("UpsertPoll: %v", err)
	}
	// A row written before user ids were stored.
	if err := store.SetRoleOccupant(ctx, "p1", RoleDrums, &Occupant{Name: "Ann"}); err != nil {
		t.Fatalf("SetRoleOccupant: %v", err)
	}
	sp, _, _ := store.FindPoll(ctx, "p1")
	loaded, err := PollFromStored(sp, testZone)
	if err != nil {
		t.Fatalf("PollFromStored: %v", err)
	}
	cache := NewCache()
	cache.Put(loaded)
	r := NewReconciler(cache, store, logx.Nop())

	if free := loaded.FreeRoles(); len(free) != 3 {
		t.Fatalf("free = %v, want drums occupied", free)
	}
	if occ := loaded.Occupants()[RoleDrums]; occ.UserID != 0 || occ.Name != "Ann" {
		t.Fatalf("drums = %+v", occ)
	}

	out, err := r.Apply(ctx, vote(2, "bob", int(RoleDrums)))
	if err != nil || out.Kind != OutcomeRejected {
		t.Fatalf("other user: %+v, %v", out, err)
	}

	out, err = r.Apply(ctx, vote(1, "ann", int(RoleDrums)))
	if err != nil || out.Kind != OutcomeUnchanged {
		t.Fatalf("named user: %+v, %v", out, err)
	}
	got, _ := cache.Get("p1")
	if len(got.Votes) != 1 || got.Votes[1] != "Drums" {
		t.Fatalf("votes = %v", got.Votes)
	}
	sp, _, _ = store.FindPoll(ctx, "p1")
	if occ := sp.Occupants[RoleDrums]; occ.UserID != 1 || occ.Name != "ann" {
		t.Fatalf("stored drums = %+v", occ)
	}

	// From here on the role behaves like any other.
	out, err = r.Apply(ctx, vote(1, "ann", NoOption))
	if err != nil || out.Kind != OutcomeCancelled {
		t.Fatalf("cancel: %+v, %v", out, err)
	}
	if free := out.Free; len(free) != 4 {
		t.Fatalf("free after cancel = %v", free)
	}
}
