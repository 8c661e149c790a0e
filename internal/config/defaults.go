package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"jambot/internal/jam"
	"jambot/internal/task/scheduler"
)

const (
	DefaultTimezone     = "Europe/Kyiv"
	DefaultCreateSpec   = "25 15 * * 2"
	DefaultReminderSpec = "32 15 * * 2"
	DefaultMisfireGrace = time.Hour
	DefaultAutoDay      = "today"
	DefaultAutoTime     = "20:00"
	DefaultHTTPAddr     = "127.0.0.1:8089"
	DefaultSQLitePath   = "./data/jambot.db"
)

var tokenEnv = []string{"JAMBOT_TOKEN", "API_TOKEN"}

var ErrNoToken = errors.New("telegram token missing (set telegram.token or JAMBOT_TOKEN)")

// applyDefaults fills omitted fields in place and lets the environment
// override the token.
func applyDefaults(cfg *Config) {
	for _, k := range tokenEnv {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			cfg.Telegram.Token = v
			break
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if isSQLite(cfg.Storage.Driver) && cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultSQLitePath
	}
	if cfg.Jam.Timezone == "" {
		cfg.Jam.Timezone = DefaultTimezone
	}
	if cfg.Jam.AutoDay == "" {
		cfg.Jam.AutoDay = DefaultAutoDay
	}
	if cfg.Jam.AutoTime == "" {
		cfg.Jam.AutoTime = DefaultAutoTime
	}
	if cfg.Scheduler.CreateSpec == "" {
		cfg.Scheduler.CreateSpec = DefaultCreateSpec
	}
	if cfg.Scheduler.ReminderSpec == "" {
		cfg.Scheduler.ReminderSpec = DefaultReminderSpec
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
}

func isSQLite(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return true
	}
	return false
}

// Validate checks a defaulted config. It is also installed as the reload
// validator so a broken edit never replaces a working config.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, ErrNoToken)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: invalid chat id %q", g))
		}
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path required when file logging is enabled"))
	}

	switch d := strings.ToLower(cfg.Storage.Driver); {
	case isSQLite(d):
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path required for sqlite"))
		}
	case d == "mysql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn required for mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", cfg.Storage.Driver))
	}
	if cfg.Storage.MaxRetries < 0 {
		errs = append(errs, errors.New("storage.max_retries must be >= 0"))
	}
	for path, raw := range map[string]string{
		"storage.busy_timeout":    cfg.Storage.BusyTimeout,
		"storage.retry_delay":     cfg.Storage.RetryDelay,
		"scheduler.misfire_grace": cfg.Scheduler.MisfireGrace,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := time.LoadLocation(cfg.Jam.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("jam.timezone: %w", err))
	}
	if !jam.ValidClock(cfg.Jam.AutoTime) {
		errs = append(errs, fmt.Errorf("jam.auto_time: %q is not HH:MM", cfg.Jam.AutoTime))
	}
	if _, err := scheduler.ParseSpec(cfg.Scheduler.CreateSpec); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.create_spec: %w", err))
	}
	if _, err := scheduler.ParseSpec(cfg.Scheduler.ReminderSpec); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.reminder_spec: %w", err))
	}

	if cfg.Notifier.QueueSize < 0 || cfg.Notifier.Burst < 0 || cfg.Notifier.RatePerSec < 0 {
		errs = append(errs, errors.New("notifier: values must be >= 0"))
	}
	return errors.Join(errs...)
}

// MisfireGrace returns scheduler.misfire_grace, defaulting to one hour.
// "0s" is treated as omitted.
func (c *Config) MisfireGrace() time.Duration {
	d, err := ParseDurationOrDefault("scheduler.misfire_grace", c.Scheduler.MisfireGrace, DefaultMisfireGrace)
	if err != nil {
		return DefaultMisfireGrace
	}
	return d
}

// GroupLogChatID returns the log chat id or 0.
func (c *Config) GroupLogChatID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(c.Telegram.GroupLog), 10, 64)
	return id
}
