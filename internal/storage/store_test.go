package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"jambot/internal/jam"
	logx "jambot/pkg/logx"
)

var kyiv = time.FixedZone("EEST", 3*60*60)

func openTest(t *testing.T) *SQLStore {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "jams.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func putPoll(t *testing.T, st *SQLStore, id string, at time.Time) *jam.Poll {
	t.Helper()
	p := jam.NewPoll(id, -1001, 42, at)
	rec, err := p.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := st.UpsertPoll(context.Background(), rec); err != nil {
		t.Fatalf("UpsertPoll: %v", err)
	}
	return p
}

func TestUpsertAndFind(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 6, 19, 30, 0, 0, kyiv)
	putPoll(t, st, "p1", at)

	sp, found, err := st.FindPoll(ctx, "p1")
	if err != nil || !found {
		t.Fatalf("FindPoll found=%v err=%v", found, err)
	}
	if sp.ChatID != -1001 || sp.MessageID != 42 || !sp.ScheduledAt.Equal(at) {
		t.Fatalf("row = %+v", sp.Record)
	}
	if len(sp.Occupants) != 0 || len(sp.FreeRoles()) != 4 {
		t.Fatalf("new poll has occupants: %v", sp.Occupants)
	}
	if _, found, err := st.FindPoll(ctx, "missing"); err != nil || found {
		t.Fatalf("FindPoll(missing) found=%v err=%v", found, err)
	}
}

func TestSetRoleOccupant(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	putPoll(t, st, "p1", time.Date(2025, 6, 6, 19, 30, 0, 0, kyiv))

	if err := st.SetRoleOccupant(ctx, "p1", jam.RoleBass, &jam.Occupant{UserID: 7, Name: "bob"}); err != nil {
		t.Fatalf("SetRoleOccupant: %v", err)
	}
	if err := st.SetRoleOccupant(ctx, "p1", jam.RoleFX, &jam.Occupant{UserID: 8, Name: "cat"}); err != nil {
		t.Fatalf("SetRoleOccupant: %v", err)
	}
	if err := st.SetRoleOccupant(ctx, "p1", jam.RoleFX, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	sp, _, err := st.FindPoll(ctx, "p1")
	if err != nil {
		t.Fatalf("FindPoll: %v", err)
	}
	if got := sp.Occupants[jam.RoleBass]; got.UserID != 7 || got.Name != "bob" {
		t.Fatalf("bass = %+v", got)
	}
	if _, ok := sp.Occupants[jam.RoleFX]; ok {
		t.Fatal("fx not cleared")
	}
	if err := st.SetRoleOccupant(ctx, "p1", jam.Role(9), nil); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestUpsertKeepsRoleColumns(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	putPoll(t, st, "p1", time.Date(2025, 6, 6, 19, 30, 0, 0, kyiv))
	if err := st.SetRoleOccupant(ctx, "p1", jam.RoleDrums, &jam.Occupant{UserID: 1, Name: "ann"}); err != nil {
		t.Fatalf("SetRoleOccupant: %v", err)
	}
	later := time.Date(2025, 6, 7, 18, 0, 0, 0, kyiv)
	putPoll(t, st, "p1", later)

	sp, _, err := st.FindPoll(ctx, "p1")
	if err != nil {
		t.Fatalf("FindPoll: %v", err)
	}
	if !sp.ScheduledAt.Equal(later) {
		t.Fatalf("jam_date = %v, want %v", sp.ScheduledAt, later)
	}
	if sp.Occupants[jam.RoleDrums].Name != "ann" {
		t.Fatalf("drums lost on upsert: %+v", sp.Occupants)
	}
}

func TestFindPollsScheduledOnUsesLocalDate(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	// 00:30 local is the previous day in UTC.
	putPoll(t, st, "early", time.Date(2025, 6, 6, 0, 30, 0, 0, kyiv))
	putPoll(t, st, "evening", time.Date(2025, 6, 6, 20, 0, 0, 0, kyiv))
	putPoll(t, st, "next", time.Date(2025, 6, 7, 0, 0, 0, 0, kyiv))
	putPoll(t, st, "before", time.Date(2025, 6, 5, 23, 59, 0, 0, kyiv))

	rows, err := st.FindPollsScheduledOn(ctx, time.Date(2025, 6, 6, 12, 0, 0, 0, kyiv))
	if err != nil {
		t.Fatalf("FindPollsScheduledOn: %v", err)
	}
	var ids []string
	for _, r := range rows {
		ids = append(ids, r.PollID)
	}
	if len(ids) != 2 || ids[0] != "early" || ids[1] != "evening" {
		t.Fatalf("ids = %v, want [early evening]", ids)
	}
}

func TestReloadReproducesRoles(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jams.db")
	ctx := context.Background()
	cfg := Config{Driver: "sqlite", Path: path}

	st, err := Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	putPoll(t, st, "p1", time.Date(2025, 6, 6, 19, 30, 0, 0, kyiv))
	for role, occ := range map[jam.Role]jam.Occupant{
		jam.RoleDrums: {UserID: 1, Name: "ann"},
		jam.RoleLeads: {UserID: 2, Name: "bob"},
	} {
		if err := st.SetRoleOccupant(ctx, "p1", role, &occ); err != nil {
			t.Fatalf("SetRoleOccupant: %v", err)
		}
	}
	_ = st.Close()

	st, err = Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	rows, err := st.LoadAllPolls(ctx)
	if err != nil || len(rows) != 1 {
		t.Fatalf("LoadAllPolls = %d rows, %v", len(rows), err)
	}
	p, err := jam.PollFromStored(rows[0], kyiv)
	if err != nil {
		t.Fatalf("PollFromStored: %v", err)
	}
	if p.Votes[1] != "Drums" || p.Votes[2] != "Leads" || len(p.Votes) != 2 {
		t.Fatalf("votes = %v", p.Votes)
	}
	free := p.FreeRoles()
	if len(free) != 2 || free[0] != jam.RoleBass || free[1] != jam.RoleFX {
		t.Fatalf("free = %v", free)
	}
}

func TestOpenUpgradesTableWithoutUserIDs(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jams.db")
	ctx := context.Background()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE jams (
			poll_id    TEXT PRIMARY KEY,
			chat_id    INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			jam_date   TEXT NOT NULL,
			poll_data  TEXT NOT NULL,
			drums      TEXT,
			bass       TEXT,
			leads      TEXT,
			fx         TEXT
		)`,
		`INSERT INTO jams (poll_id, chat_id, message_id, jam_date, poll_data, drums)
			VALUES ('old', -1001, 7, '2025-06-06 16:30:00',
			'{"chat_id": -1001, "message_id": 7, "options": ["Drums", "Bass", "Leads", "FX"], "votes": {}, "datetime": "2025-06-06T19:30:00+03:00"}',
			'ann')`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = db.Close()

	st, err := Open(ctx, Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	rows, err := st.LoadAllPolls(ctx)
	if err != nil || len(rows) != 1 {
		t.Fatalf("LoadAllPolls = %d rows, %v", len(rows), err)
	}
	if got := rows[0].Occupants[jam.RoleDrums]; got.Name != "ann" || got.UserID != 0 {
		t.Fatalf("drums = %+v", got)
	}
	p, err := jam.PollFromStored(rows[0], kyiv)
	if err != nil {
		t.Fatalf("PollFromStored: %v", err)
	}
	if p.Votes[jam.LegacyHolder(jam.RoleDrums)] != "Drums" {
		t.Fatalf("votes = %v", p.Votes)
	}
	if free := p.FreeRoles(); len(free) != 3 || free[0] != jam.RoleBass {
		t.Fatalf("free = %v", free)
	}

	// The added columns take writes.
	if err := st.SetRoleOccupant(ctx, "old", jam.RoleDrums, &jam.Occupant{UserID: 11, Name: "ann"}); err != nil {
		t.Fatalf("SetRoleOccupant: %v", err)
	}
	sp, _, err := st.FindPoll(ctx, "old")
	if err != nil || sp.Occupants[jam.RoleDrums].UserID != 11 {
		t.Fatalf("after adopt: %+v, %v", sp.Occupants, err)
	}

	// A second open finds the columns and changes nothing.
	_ = st.Close()
	st2, err := Open(ctx, Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = st2.Close()
}

func TestScheduleState(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()

	if _, ok, err := st.LastFired(ctx, "jam.create"); err != nil || ok {
		t.Fatalf("LastFired on empty: ok=%v err=%v", ok, err)
	}
	first := time.Date(2025, 6, 3, 15, 25, 0, 0, kyiv)
	second := first.AddDate(0, 0, 7)
	for _, at := range []time.Time{first, second} {
		if err := st.MarkFired(ctx, "jam.create", at); err != nil {
			t.Fatalf("MarkFired: %v", err)
		}
	}
	got, ok, err := st.LastFired(ctx, "jam.create")
	if err != nil || !ok || !got.Equal(second) {
		t.Fatalf("LastFired = %v ok=%v err=%v, want %v", got, ok, err, second)
	}
}

func TestOpenConfigErrorsAreNotRetried(t *testing.T) {
	t.Parallel()
	tests := []Config{
		{Driver: "postgres"},
		{Driver: "sqlite"},
		{Driver: "mysql"},
		{Driver: "mysql", DSN: "not a dsn"},
	}
	for _, cfg := range tests {
		cfg.MaxRetries = 5
		cfg.RetryDelay = time.Hour
		start := time.Now()
		_, err := OpenWithRetry(context.Background(), cfg, logx.Nop())
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%+v: err = %v, want ErrInvalidConfig", cfg, err)
		}
		if time.Since(start) > time.Minute {
			t.Fatalf("%+v: config error was retried", cfg)
		}
	}
}

func TestOpenWithRetryHonoursContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// Nothing listens on this port; every attempt fails fast.
	cfg := Config{Driver: "mysql", DSN: "jam:secret@tcp(127.0.0.1:1)/jams?timeout=50ms", MaxRetries: 100, RetryDelay: time.Hour}
	_, err := OpenWithRetry(ctx, cfg, logx.Nop())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
