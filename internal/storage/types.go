package storage

import (
	"errors"
	"time"
)

var (
	ErrInvalidConfig = errors.New("invalid storage config")
	ErrClosed        = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": Path is the database file
//   - "mysql": DSN is a go-sql-driver/mysql data source name
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Startup connection retry.
	MaxRetries int
	RetryDelay time.Duration
}

const (
	defaultBusyTimeout = 5 * time.Second
	defaultMaxRetries  = 10
	defaultRetryDelay  = 3 * time.Second
)

// dbTime is the UTC text form of every timestamp column.
const dbTime = "2006-01-02 15:04:05"

func formatDBTime(t time.Time) string { return t.UTC().Format(dbTime) }

// parseDBTime accepts dbTime and the RFC3339 strings database/sql produces
// when a driver hands back time.Time values.
func parseDBTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dbTime, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
