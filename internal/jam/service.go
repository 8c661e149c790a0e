package jam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jambot/internal/eventbus"
	kit "jambot/internal/transport"
	logx "jambot/pkg/logx"
)

var ErrStopped = errors.New("jam service stopped")

// Notifier delivers outbound chat messages.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Deps struct {
	Store    Store
	Notifier Notifier
	Bus      eventbus.Bus
	Location *time.Location
}

// Service owns the poll cache. Every read or write of poll state, in memory
// or in the jams table, runs on the Run goroutine; callers submit work and
// wait for it. Telegram calls stay on the caller's goroutine.
type Service struct {
	store  Store
	notify Notifier
	bus    eventbus.Bus
	loc    *time.Location
	log    logx.Logger

	cache *Cache
	rec   *Reconciler

	reqs    chan func()
	stopped chan struct{}
}

func NewService(d Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	cache := NewCache()
	return &Service{
		store:   d.Store,
		notify:  d.Notifier,
		bus:     d.Bus,
		loc:     d.Location,
		log:     log,
		cache:   cache,
		rec:     NewReconciler(cache, d.Store, log),
		reqs:    make(chan func()),
		stopped: make(chan struct{}),
	}
}

func (s *Service) Location() *time.Location { return s.loc }

// Run serves submitted work until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)
	s.log.Debug("jam service running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.reqs:
			fn()
		}
	}
}

type result[T any] struct {
	v   T
	err error
}

// call runs fn on the Run goroutine. The value travels back over a channel,
// so a caller that gives up on ctx never shares memory with fn.
func call[T any](ctx context.Context, s *Service, fn func() (T, error)) (T, error) {
	var zero T
	done := make(chan result[T], 1)
	select {
	case s.reqs <- func() {
		v, err := fn()
		done <- result[T]{v: v, err: err}
	}:
	case <-s.stopped:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Load rebuilds the cache from the store. Rows that fail to decode are
// skipped and logged.
func (s *Service) Load(ctx context.Context) (int, error) {
	return call(ctx, s, func() (int, error) {
		rows, err := s.store.LoadAllPolls(ctx)
		if err != nil {
			return 0, fmt.Errorf("load polls: %w", err)
		}
		n := 0
		for _, row := range rows {
			p, err := PollFromStored(row, s.loc)
			if err != nil {
				s.log.Warn("skipping unreadable poll row", logx.String("poll_id", row.PollID), logx.Err(err))
				continue
			}
			s.cache.Put(p)
			n++
		}
		return n, nil
	})
}

// Register persists a newly sent poll and starts tracking its votes.
func (s *Service) Register(ctx context.Context, p *Poll) error {
	if p == nil || p.ID == "" {
		return errors.New("register poll: missing poll id")
	}
	cp := p.Clone()
	ev, err := call(ctx, s, func() (Poll, error) {
		rec, err := cp.Record()
		if err != nil {
			return Poll{}, err
		}
		if err := s.store.UpsertPoll(ctx, rec); err != nil {
			return Poll{}, fmt.Errorf("upsert poll %s: %w", cp.ID, err)
		}
		s.cache.Put(&cp)
		return cp.Clone(), nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeJamCreated, Data: ev})
	return nil
}

// HandleVote reconciles one poll answer and queues the resulting notice.
func (s *Service) HandleVote(ctx context.Context, v Vote) (Outcome, error) {
	out, err := call(ctx, s, func() (Outcome, error) {
		return s.rec.Apply(ctx, v)
	})
	if err != nil {
		s.log.Error("vote reconcile failed", logx.String("poll_id", v.PollID), logx.Int64("user_id", v.UserID), logx.Err(err))
		return out, err
	}
	s.log.Debug("vote reconciled",
		logx.String("poll_id", v.PollID), logx.Int64("user_id", v.UserID),
		logx.String("outcome", out.Kind.String()), logx.String("option", out.Option))

	if n, ok := out.Notice(v); ok && s.notify != nil {
		if err := s.notify.Notify(ctx, n); err != nil {
			s.log.Warn("vote notice not queued", logx.String("poll_id", v.PollID), logx.Err(err))
		}
	}
	if out.Kind != OutcomeIgnored {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeVoteReconciled, Data: out})
	}
	return out, nil
}

// Reminders returns one reminder per poll scheduled on day's calendar date
// in the service location, read from the store.
func (s *Service) Reminders(ctx context.Context, day time.Time) ([]Reminder, error) {
	return call(ctx, s, func() ([]Reminder, error) {
		rows, err := s.store.FindPollsScheduledOn(ctx, day.In(s.loc))
		if err != nil {
			return nil, fmt.Errorf("find polls on %s: %w", day.In(s.loc).Format(time.DateOnly), err)
		}
		out := make([]Reminder, 0, len(rows))
		for _, row := range rows {
			out = append(out, Reminder{
				PollID:    row.PollID,
				ChatID:    row.ChatID,
				MessageID: row.MessageID,
				Occupants: row.Occupants,
			})
		}
		return out, nil
	})
}

// Polls returns copies of every cached poll ordered by scheduled time.
func (s *Service) Polls(ctx context.Context) ([]Poll, error) {
	return call(ctx, s, func() ([]Poll, error) {
		return s.cache.All(), nil
	})
}

func (s *Service) Poll(ctx context.Context, id string) (Poll, bool, error) {
	type found struct {
		p  Poll
		ok bool
	}
	r, err := call(ctx, s, func() (found, error) {
		if p, ok := s.cache.Get(id); ok {
			return found{p: p.Clone(), ok: true}, nil
		}
		return found{}, nil
	})
	return r.p, r.ok, err
}
