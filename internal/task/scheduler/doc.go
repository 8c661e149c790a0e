// Package scheduler triggers named cron jobs in a configured timezone.
//
// Each job fires at most once per slot (the minute it was due): the slot is
// compared with, then written to, a persisted last-fired value before the
// job runs. On Start, a slot missed while the process was down runs once if
// it is still within the misfire grace window.
package scheduler
