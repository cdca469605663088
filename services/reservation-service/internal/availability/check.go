package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the half-open windows [aStart, aEnd) and
// [bStart, bEnd) share any instant. Back-to-back windows (one's end equal
// to the other's start) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ConflictsAny reports whether [start, end) overlaps any busy interval.
func ConflictsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// FreeSlots returns slot start times within [windowStart, windowEnd) where a
// reservation of the given duration would not overlap any busy interval.
// Slots that would start in the past (before now) are skipped.
//
// All times are expected to be in the same location (timezone).
func FreeSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !ConflictsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}
