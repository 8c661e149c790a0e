package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jambot/internal/jam"
	logx "jambot/pkg/logx"
)

var _ jam.Store = (*SQLStore)(nil)

// SQLStore implements jam.Store and the scheduler's state store.
type SQLStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

func (s *SQLStore) Driver() string { return s.d.name }

func (s *SQLStore) migrate(ctx context.Context) error {
	for i, stmt := range s.d.migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return s.addUserIDColumns(ctx)
}

// addUserIDColumns upgrades jams tables that only carry role name columns.
func (s *SQLStore) addUserIDColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, s.d.jamColumns)
	if err != nil {
		return fmt.Errorf("list jams columns: %w", err)
	}
	have := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("list jams columns: %w", err)
		}
		have[strings.ToLower(name)] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list jams columns: %w", err)
	}

	for _, r := range jam.Roles {
		col := r.Column() + "_user_id"
		if have[col] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE jams ADD COLUMN %s %s", col, s.d.userIDType)); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
		s.log.Info("jams column added", logx.String("column", col))
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) UpsertPoll(ctx context.Context, rec jam.Record) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, s.d.upsertPoll,
		rec.PollID, rec.ChatID, rec.MessageID, formatDBTime(rec.ScheduledAt), string(rec.Snapshot))
	return err
}

// SetRoleOccupant writes one role's name and user id columns; nil clears
// both.
func (s *SQLStore) SetRoleOccupant(ctx context.Context, pollID string, role jam.Role, occ *jam.Occupant) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if !role.Valid() {
		return fmt.Errorf("set occupant: invalid role %d", int(role))
	}
	col := role.Column()
	q := fmt.Sprintf("UPDATE jams SET %s = ?, %s_user_id = ? WHERE poll_id = ?", col, col)
	var name, uid any
	if occ != nil {
		name, uid = occ.Name, occ.UserID
	}
	_, err := s.db.ExecContext(ctx, q, name, uid, pollID)
	return err
}

const selectPoll = `SELECT poll_id, chat_id, message_id, jam_date, poll_data,
	drums, bass, leads, fx, drums_user_id, bass_user_id, leads_user_id, fx_user_id
	FROM jams`

func (s *SQLStore) LoadAllPolls(ctx context.Context) ([]jam.StoredPoll, error) {
	return s.queryPolls(ctx, selectPoll+" ORDER BY jam_date, poll_id")
}

// FindPollsScheduledOn returns polls whose jam_date falls on day's calendar
// date in day's location.
func (s *SQLStore) FindPollsScheduledOn(ctx context.Context, day time.Time) ([]jam.StoredPoll, error) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	return s.queryPolls(ctx, selectPoll+" WHERE jam_date >= ? AND jam_date < ? ORDER BY jam_date, poll_id",
		formatDBTime(start), formatDBTime(end))
}

func (s *SQLStore) FindPoll(ctx context.Context, pollID string) (jam.StoredPoll, bool, error) {
	rows, err := s.queryPolls(ctx, selectPoll+" WHERE poll_id = ?", pollID)
	if err != nil || len(rows) == 0 {
		return jam.StoredPoll{}, false, err
	}
	return rows[0], true, nil
}

func (s *SQLStore) queryPolls(ctx context.Context, q string, args ...any) ([]jam.StoredPoll, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []jam.StoredPoll
	for rows.Next() {
		sp, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func scanPoll(rows *sql.Rows) (jam.StoredPoll, error) {
	var (
		sp      jam.StoredPoll
		jamDate string
		data    sql.NullString
		names   [len(jam.Roles)]sql.NullString
		uids    [len(jam.Roles)]sql.NullInt64
	)
	if err := rows.Scan(&sp.PollID, &sp.ChatID, &sp.MessageID, &jamDate, &data,
		&names[0], &names[1], &names[2], &names[3],
		&uids[0], &uids[1], &uids[2], &uids[3]); err != nil {
		return sp, err
	}
	at, err := parseDBTime(jamDate)
	if err != nil {
		return sp, fmt.Errorf("poll %s: jam_date %q: %w", sp.PollID, jamDate, err)
	}
	sp.ScheduledAt = at
	if data.Valid {
		sp.Snapshot = []byte(data.String)
	}
	sp.Occupants = map[jam.Role]jam.Occupant{}
	for i, r := range jam.Roles {
		if !names[i].Valid && !uids[i].Valid {
			continue
		}
		sp.Occupants[r] = jam.Occupant{UserID: uids[i].Int64, Name: names[i].String}
	}
	return sp, nil
}

// LastFired returns the last slot recorded for a scheduler job.
func (s *SQLStore) LastFired(ctx context.Context, name string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrClosed
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT last_fired FROM schedule_state WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := parseDBTime(v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("schedule %s: last_fired %q: %w", name, v, err)
	}
	return t, true, nil
}

func (s *SQLStore) MarkFired(ctx context.Context, name string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, s.d.markFired, name, formatDBTime(at))
	return err
}
