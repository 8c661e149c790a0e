package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"jambot/internal/eventbus"
	logx "jambot/pkg/logx"
)

// AddCron registers job under name, replacing any schedule with the same
// name. Replacing keeps the persisted last-fired slot.
func (s *Service) AddCron(name, spec string, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	sched, err := ParseSpec(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{name: name, spec: strings.TrimSpace(spec), sched: sched, job: job}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(d)
	}
	return nil
}

// Remove unregisters name. It reports whether a schedule existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	for i, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return true
	}
	return false
}

func (s *Service) addCronLocked(d *scheduleDef) {
	d.entryID = s.c.Schedule(d.sched, cron.FuncJob(func() {
		s.fire(d, s.now(), "cron")
	}))
	args := []logx.Field{logx.String("name", d.name), logx.String("spec", d.spec)}
	if s.log.Enabled(logx.LevelDebug) {
		if next, err := NextRuns(d.spec, s.now().In(s.loc), 3); err == nil {
			args = append(args, logx.String("next", formatRuns(next)))
		}
	}
	s.log.Debug("schedule registered", args...)
}

// catchUpLocked runs the latest slot missed since the persisted last-fired
// value if it is within the grace window. With no state yet, the current
// minute becomes the baseline.
func (s *Service) catchUpLocked(d *scheduleDef) {
	if s.state == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	now := s.now().In(s.loc)
	log := s.log.With(logx.String("job", d.name))

	last, ok, err := s.state.LastFired(ctx, d.name)
	if err != nil {
		log.Error("read schedule state failed; catch-up skipped", logx.Err(err))
		return
	}
	if !ok {
		// One second before this minute so a trigger due now still runs.
		base := now.Truncate(time.Minute).Add(-time.Second)
		if err := s.state.MarkFired(ctx, d.name, base); err != nil {
			log.Error("record schedule baseline failed", logx.Err(err))
		}
		return
	}
	missed := lastMissed(d.sched, last.In(s.loc), now)
	if missed.IsZero() {
		return
	}
	grace := s.cfg.MisfireGrace
	if grace <= 0 || now.Sub(missed) > grace {
		log.Warn("missed slot outside grace window; not run",
			logx.Time("slot", missed), logx.Duration("late", now.Sub(missed)), logx.Duration("grace", grace))
		return
	}
	log.Info("running missed slot", logx.Time("slot", missed), logx.Duration("late", now.Sub(missed)))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fire(d, missed, "catchup")
	}()
}

// fire runs d for slot unless that slot (or a later one) already fired.
// The slot is persisted before the job starts.
func (s *Service) fire(d *scheduleDef, at time.Time, reason string) {
	s.mu.Lock()
	base := s.ctx
	timeout := s.cfg.JobTimeout
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}

	run := Run{ID: uuid.NewString(), Name: d.name, Slot: at.Truncate(time.Minute), Reason: reason}
	log := s.log.With(logx.String("job", d.name), logx.String("run_id", run.ID), logx.Time("slot", run.Slot))

	if s.state != nil {
		sctx, cancel := context.WithTimeout(base, 10*time.Second)
		last, ok, err := s.state.LastFired(sctx, d.name)
		if err == nil && ok && !last.Before(run.Slot) {
			cancel()
			s.note(d, func() { d.skipped++ })
			log.Info("slot already fired; skipping", logx.Time("last_fired", last))
			return
		}
		if err == nil {
			err = s.state.MarkFired(sctx, d.name, run.Slot)
		}
		cancel()
		if err != nil {
			s.note(d, func() { d.skipped++; d.lastErr = err.Error() })
			log.Error("schedule state unavailable; run skipped", logx.Err(err))
			return
		}
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSchedulerFired, Data: run})
	log.Info("job started", logx.String("reason", reason))
	start := time.Now()

	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()
	err := d.job(ctx, run)
	s.note(d, func() {
		d.runs++
		d.lastRun = start
		d.lastErr = ""
		if err != nil {
			d.lastErr = err.Error()
		}
	})
	if err != nil {
		log.Error("job failed", logx.Duration("took", time.Since(start)), logx.Err(fmt.Errorf("%s: %w", d.name, err)))
		return
	}
	log.Info("job finished", logx.Duration("took", time.Since(start)))
}

func (s *Service) note(d *scheduleDef, fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}
