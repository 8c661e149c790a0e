package jam

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnparseable = errors.New("could not understand date/time")
	ErrPast        = errors.New("date/time is in the past")
)

var reClock = regexp.MustCompile(`^(?:[01]\d|2[0-3]):[0-5]\d$`)

// ValidClock reports whether s is a 24-hour HH:MM time.
func ValidClock(s string) bool { return reClock.MatchString(s) }

var weekdayNames = map[string]time.Weekday{}

func init() {
	add := func(wd time.Weekday, names ...string) {
		for _, n := range names {
			weekdayNames[n] = wd
		}
	}
	add(time.Monday, "monday", "mon", "понеділок")
	add(time.Tuesday, "tuesday", "tue", "вівторок")
	add(time.Wednesday, "wednesday", "wed", "середа")
	add(time.Thursday, "thursday", "thu", "четвер")
	add(time.Friday, "friday", "fri", "п'ятниця", "пʼятниця", "п’ятниця")
	add(time.Saturday, "saturday", "sat", "субота")
	add(time.Sunday, "sunday", "sun", "неділя")
}

var dateLayouts = []string{"2006-01-02", "02.01.2006", "2.1.2006"}

var shortDateLayouts = []string{"02.01", "2.1"}

// Resolve turns a day token and an HH:MM clock into an instant in loc.
//
// Day tokens: today, tomorrow (and their Ukrainian forms), weekday names,
// YYYY-MM-DD, DD.MM.YYYY and DD.MM. Weekdays resolve to the next occurrence,
// today included while the time is still ahead; DD.MM rolls over to next
// year once passed. Explicit dates are returned as is and may be in the past.
func Resolve(day, clock string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if !ValidClock(clock) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, day+" "+clock)
	}
	hh, _ := strconv.Atoi(clock[:2])
	mm, _ := strconv.Atoi(clock[3:])
	now = now.In(loc)
	at := func(y int, mo time.Month, d int) time.Time {
		return time.Date(y, mo, d, hh, mm, 0, 0, loc)
	}

	tok := strings.ToLower(strings.TrimSpace(day))
	switch tok {
	case "today", "сьогодні":
		return at(now.Date()), nil
	case "tomorrow", "завтра":
		return at(now.AddDate(0, 0, 1).Date()), nil
	}
	if wd, ok := weekdayNames[tok]; ok {
		delta := (int(wd) - int(now.Weekday()) + 7) % 7
		t := at(now.AddDate(0, 0, delta).Date())
		if t.Before(now) {
			t = at(now.AddDate(0, 0, delta+7).Date())
		}
		return t, nil
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, tok); err == nil {
			return at(d.Date()), nil
		}
	}
	for _, layout := range shortDateLayouts {
		d, err := time.Parse(layout, tok)
		if err != nil {
			continue
		}
		// The next occurrence in this year or the next; 29.02 has none
		// outside leap years and time.Date would roll it into March.
		for _, y := range []int{now.Year(), now.Year() + 1} {
			t := at(y, d.Month(), d.Day())
			if t.Month() == d.Month() && t.Day() == d.Day() && !t.Before(now) {
				return t, nil
			}
		}
		break
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, day+" "+clock)
}
