package jam

import (
	"errors"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	t.Parallel()
	// Wednesday noon.
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, testZone)
	day := func(y int, m time.Month, d, hh, mm int) time.Time {
		return time.Date(y, m, d, hh, mm, 0, 0, testZone)
	}

	tests := []struct {
		day, clock string
		want       time.Time
	}{
		{"today", "18:00", day(2025, 6, 4, 18, 0)},
		{"Today", "08:00", day(2025, 6, 4, 8, 0)},
		{"tomorrow", "09:15", day(2025, 6, 5, 9, 15)},
		{"завтра", "09:15", day(2025, 6, 5, 9, 15)},
		{"Friday", "19:30", day(2025, 6, 6, 19, 30)},
		{"fri", "19:30", day(2025, 6, 6, 19, 30)},
		{"п'ятниця", "19:30", day(2025, 6, 6, 19, 30)},
		{"wed", "13:00", day(2025, 6, 4, 13, 0)},
		{"wednesday", "11:00", day(2025, 6, 11, 11, 0)},
		{"monday", "10:00", day(2025, 6, 9, 10, 0)},
		{"2025-06-07", "18:00", day(2025, 6, 7, 18, 0)},
		{"07.06.2025", "18:00", day(2025, 6, 7, 18, 0)},
		{"7.6.2025", "18:00", day(2025, 6, 7, 18, 0)},
		{"20.06", "20:00", day(2025, 6, 20, 20, 0)},
		{"03.06", "10:00", day(2026, 6, 3, 10, 0)},
		{"2025-01-01", "09:00", day(2025, 1, 1, 9, 0)},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.day, tt.clock, now, testZone)
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", tt.day, tt.clock, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("Resolve(%q, %q) = %v, want %v", tt.day, tt.clock, got, tt.want)
		}
	}
}

func TestResolveRejects(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, testZone)
	for _, tt := range []struct{ day, clock string }{
		{"someday", "10:00"},
		{"2025-13-01", "10:00"},
		{"friday", "25:00"},
		{"", "10:00"},
	} {
		if _, err := Resolve(tt.day, tt.clock, now, testZone); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("Resolve(%q, %q) err = %v, want ErrUnparseable", tt.day, tt.clock, err)
		}
	}
}

func TestResolveLeapDay(t *testing.T) {
	t.Parallel()
	// No 29 February in 2026 or 2027.
	if got, err := Resolve("29.02", "20:00", time.Date(2026, 1, 10, 12, 0, 0, 0, testZone), testZone); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("Resolve(29.02) in 2026 = %v, %v; want ErrUnparseable", got, err)
	}
	got, err := Resolve("29.02", "20:00", time.Date(2027, 3, 1, 12, 0, 0, 0, testZone), testZone)
	if err != nil {
		t.Fatalf("Resolve(29.02) in 2027: %v", err)
	}
	if want := time.Date(2028, 2, 29, 20, 0, 0, 0, testZone); !got.Equal(want) {
		t.Fatalf("Resolve(29.02) = %v, want %v", got, want)
	}
	if _, err := Resolve("31.04", "20:00", time.Date(2026, 1, 10, 12, 0, 0, 0, testZone), testZone); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("Resolve(31.04) err = %v, want ErrUnparseable", err)
	}
}

func TestValidClock(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]bool{
		"00:00": true, "09:05": true, "23:59": true,
		"24:00": false, "9:05": false, "12:60": false, "1230": false, "": false,
	} {
		if got := ValidClock(in); got != want {
			t.Fatalf("ValidClock(%q) = %v, want %v", in, got, want)
		}
	}
}
