package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// specParser accepts 5-field crontab specs, an optional leading seconds
// field, and descriptors such as "@weekly".
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec validates a cron spec.
func ParseSpec(spec string) (cron.Schedule, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return nil, fmt.Errorf("schedule required")
	}
	sched, err := specParser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// NextRuns lists the next n activations of spec after from.
func NextRuns(spec string, from time.Time, n int) ([]time.Time, error) {
	sched, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := from
	for range n {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// lastMissed returns the latest activation in (after, now].
func lastMissed(sched cron.Schedule, after, now time.Time) time.Time {
	var missed time.Time
	// Bounded for specs that fire every second over a long outage.
	for i, t := 0, sched.Next(after); i < 100000 && !t.IsZero() && !t.After(now); i, t = i+1, sched.Next(t) {
		missed = t
	}
	return missed
}

func formatRuns(ts []time.Time) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.Format("2006-01-02 15:04")
	}
	return strings.Join(parts, ", ")
}
