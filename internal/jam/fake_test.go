package jam

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	kit "jambot/internal/transport"
	logx "jambot/pkg/logx"
)

type roleWrite struct {
	PollID string
	Role   Role
	Occ    *Occupant
}

// memStore mirrors the jams table: role columns per row plus the snapshot.
type memStore struct {
	mu     sync.Mutex
	rows   map[string]*StoredPoll
	writes []roleWrite

	failSet  func(w roleWrite) error
	failFind error
}

func newMemStore() *memStore { return &memStore{rows: map[string]*StoredPoll{}} }

func (m *memStore) UpsertPoll(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[rec.PollID]; ok {
		row.Record = rec
		return nil
	}
	m.rows[rec.PollID] = &StoredPoll{Record: rec, Occupants: map[Role]Occupant{}}
	return nil
}

func (m *memStore) SetRoleOccupant(_ context.Context, pollID string, role Role, occ *Occupant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := roleWrite{PollID: pollID, Role: role, Occ: occ}
	if m.failSet != nil {
		if err := m.failSet(w); err != nil {
			return err
		}
	}
	row, ok := m.rows[pollID]
	if !ok {
		return errors.New("no such poll")
	}
	m.writes = append(m.writes, w)
	if occ == nil {
		delete(row.Occupants, role)
	} else {
		row.Occupants[role] = *occ
	}
	return nil
}

func (m *memStore) copyRow(row *StoredPoll) StoredPoll {
	cp := *row
	cp.Occupants = make(map[Role]Occupant, len(row.Occupants))
	for k, v := range row.Occupants {
		cp.Occupants[k] = v
	}
	return cp
}

func (m *memStore) LoadAllPolls(context.Context) ([]StoredPoll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StoredPoll
	for _, row := range m.rows {
		out = append(out, m.copyRow(row))
	}
	return out, nil
}

func (m *memStore) FindPollsScheduledOn(_ context.Context, day time.Time) ([]StoredPoll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	y, mo, d := day.Date()
	var out []StoredPoll
	for _, row := range m.rows {
		ry, rmo, rd := row.ScheduledAt.In(day.Location()).Date()
		if ry == y && rmo == mo && rd == d {
			out = append(out, m.copyRow(row))
		}
	}
	return out, nil
}

func (m *memStore) FindPoll(_ context.Context, id string) (StoredPoll, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFind != nil {
		return StoredPoll{}, false, m.failFind
	}
	row, ok := m.rows[id]
	if !ok {
		return StoredPoll{}, false, nil
	}
	return m.copyRow(row), true, nil
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

type sentText struct {
	To   kit.ChatTarget
	Text string
	Opt  *kit.SendOptions
}

type fakeMessenger struct {
	mu     sync.Mutex
	status kit.MemberStatus
	errMS  error
	texts  []sentText
	polls  []kit.Poll
	nextID int
}

func (f *fakeMessenger) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{To: to, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeMessenger) SendPoll(_ context.Context, to kit.ChatTarget, p kit.Poll, _ *kit.SendOptions) (kit.PollRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, p)
	f.nextID++
	return kit.PollRef{
		PollID:     "poll-" + strconv.Itoa(f.nextID),
		MessageRef: kit.MessageRef{ChatID: to.ChatID, MessageID: 100 + f.nextID},
	}, nil
}

func (f *fakeMessenger) MemberStatus(context.Context, int64, int64) (kit.MemberStatus, error) {
	return f.status, f.errMS
}

type fakeNotifier struct {
	mu  sync.Mutex
	out []kit.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n kit.Notification) error {
	f.mu.Lock()
	f.out = append(f.out, n)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) sent() []kit.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.Notification(nil), f.out...)
}

var testZone = time.FixedZone("EEST", 3*60*60)

func startService(t *testing.T, store Store, n Notifier) *Service {
	t.Helper()
	svc := NewService(Deps{Store: store, Notifier: n, Location: testZone}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return svc
}

// seedPoll registers a fresh poll with the service and returns its id.
func seedPoll(t *testing.T, svc *Service, id string) string {
	t.Helper()
	p := NewPoll(id, -1001, 42, time.Date(2025, 6, 6, 19, 30, 0, 0, testZone))
	if err := svc.Register(context.Background(), p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return id
}
