package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/dinehall/tablebook/services/reservation-service/internal/policy"
)

func TestOverlaps(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"identical", at(19, 0), at(20, 45), at(19, 0), at(20, 45), true},
		{"partial overlap", at(19, 0), at(20, 45), at(20, 30), at(22, 0), true},
		{"contained", at(19, 0), at(22, 0), at(20, 0), at(21, 0), true},
		{"back to back", at(19, 0), at(20, 45), at(20, 45), at(22, 0), false},
		{"back to back reversed", at(20, 45), at(22, 0), at(19, 0), at(20, 45), false},
		{"disjoint", at(12, 0), at(13, 0), at(19, 0), at(20, 0), false},
	}
	for _, c := range cases {
		if got := Overlaps(c.aStart, c.aEnd, c.bStart, c.bEnd); got != c.want {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}

func TestConflictsAny(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: day.Add(19 * time.Hour), End: day.Add(20*time.Hour + 45*time.Minute)},
	}

	// 20:30 start collides with the 19:00-20:45 window.
	if !ConflictsAny(day.Add(20*time.Hour+30*time.Minute), day.Add(22*time.Hour), busy) {
		t.Fatal("expected conflict at 20:30")
	}
	// 20:45 start is back-to-back and must be free.
	if ConflictsAny(day.Add(20*time.Hour+45*time.Minute), day.Add(22*time.Hour), busy) {
		t.Fatal("expected no conflict at exactly 20:45")
	}
}

func TestFreeSlots_Basic(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	windowStart := day.Add(18 * time.Hour)
	windowEnd := day.Add(19 * time.Hour)

	busy := []Interval{
		{Start: day.Add(18*time.Hour + 15*time.Minute), End: day.Add(18*time.Hour + 45*time.Minute)},
	}

	slots := FreeSlots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(18 * time.Hour)) {
		t.Fatalf("expected first slot 18:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(18*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 18:45, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestFreeSlots_SkipsPast(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	windowStart := day.Add(18 * time.Hour)
	windowEnd := day.Add(19 * time.Hour)

	now := day.Add(18*time.Hour + 31*time.Minute)
	slots := FreeSlots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, nil, now)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(18*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected slot 18:45, got %s", slots[0].Format(time.RFC3339))
	}
}

func testWindows() policy.Windows {
	return policy.Windows{
		Lunch:    policy.ClockRange{Start: 11*60 + 30, End: 15 * 60},
		Dinner:   policy.ClockRange{Start: 18 * 60, End: 22 * 60},
		Location: time.UTC,
	}
}

func TestValidateWindow_InsideWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, start := range []time.Time{
		time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 11, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC),
	} {
		if err := ValidateWindow(start, testWindows(), 30, now); err != nil {
			t.Fatalf("expected %s to be valid: %v", start.Format(time.RFC3339), err)
		}
	}
}

func TestValidateWindow_OutsideWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, start := range []time.Time{
		time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC), // lunch end is exclusive
		time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC),
	} {
		err := ValidateWindow(start, testWindows(), 30, now)
		if !errors.Is(err, ErrOutsideServiceWindow) {
			t.Fatalf("expected outside-window error for %s, got %v", start.Format(time.RFC3339), err)
		}
	}
}

func TestValidateWindow_Horizon(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// today+45 with a 30-day horizon is rejected.
	start := time.Date(2026, 4, 15, 19, 0, 0, 0, time.UTC)
	if err := ValidateWindow(start, testWindows(), 30, now); !errors.Is(err, ErrBeyondHorizon) {
		t.Fatalf("expected horizon error, got %v", err)
	}

	// exactly today+30 is still bookable.
	start = time.Date(2026, 3, 31, 19, 0, 0, 0, time.UTC)
	if err := ValidateWindow(start, testWindows(), 30, now); err != nil {
		t.Fatalf("expected today+30 to be valid: %v", err)
	}
}

func TestValidateWindow_ZeroHorizonIsToday(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// With a zero-day horizon, only today is bookable.
	today := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := ValidateWindow(today, testWindows(), 0, now); err != nil {
		t.Fatalf("expected same-day booking to be valid: %v", err)
	}
	tomorrow := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if err := ValidateWindow(tomorrow, testWindows(), 0, now); !errors.Is(err, ErrBeyondHorizon) {
		t.Fatalf("expected horizon error for tomorrow, got %v", err)
	}

	// A negative horizon disables the check entirely.
	farFuture := time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := ValidateWindow(farFuture, testWindows(), -1, now); err != nil {
		t.Fatalf("expected unbounded horizon to accept far future: %v", err)
	}
}

func TestValidateWindow_RestaurantTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	w := testWindows()
	w.Location = loc

	// Midnight UTC is 19:00 or 20:00 in New York depending on DST; either
	// way it falls inside the dinner window even though the UTC clock reads
	// outside it.
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	start := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	if err := ValidateWindow(start, w, 30, now); err != nil {
		t.Fatalf("expected local dinner time to be valid: %v", err)
	}
}

func TestDayBounds(t *testing.T) {
	start, end, err := DayBounds("2026-03-14", time.UTC)
	if err != nil {
		t.Fatalf("day bounds: %v", err)
	}
	if !start.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", start)
	}
	if !end.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %s", end)
	}
	if _, _, err := DayBounds("14/03/2026", time.UTC); err == nil {
		t.Fatal("expected parse error")
	}
}
