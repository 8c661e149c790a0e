package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jambot/internal/eventbus"
	logx "jambot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled      bool
	Timezone     string        // IANA TZ, e.g. "Europe/Kyiv"
	MisfireGrace time.Duration // 0 disables catch-up
	JobTimeout   time.Duration
}

const defaultJobTimeout = 2 * time.Minute

// StateStore persists the last slot fired per job name.
type StateStore interface {
	LastFired(ctx context.Context, name string) (time.Time, bool, error)
	MarkFired(ctx context.Context, name string, at time.Time) error
}

// Job is a scheduled unit of work. ctx carries the job timeout.
type Job func(ctx context.Context, run Run) error

// Run describes one triggered execution.
type Run struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Slot   time.Time `json:"slot"`
	Reason string    `json:"reason"` // "cron" | "catchup"
}

type scheduleDef struct {
	name    string
	spec    string
	sched   cron.Schedule
	job     Job
	entryID cron.EntryID

	// guarded by Service.mu
	runs    uint64
	skipped uint64
	lastRun time.Time
	lastErr string
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	loc   *time.Location
	bus   eventbus.Bus
	state StateStore

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

type ScheduleInfo struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next,omitzero"`
	Prev    time.Time `json:"prev,omitzero"`
	Runs    uint64    `json:"runs"`
	Skipped uint64    `json:"skipped"`
	LastRun time.Time `json:"last_run,omitzero"`
	LastErr string    `json:"last_err,omitempty"`
}

type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
