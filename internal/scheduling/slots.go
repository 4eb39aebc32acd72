package scheduling

import (
	"iter"
	"slices"
	"time"
)

// Slots is the free-slot sequence for one psychologist and day. It holds the
// template bounds and exclusions; All regenerates the slots on every call, so
// a Slots value can be ranged any number of times.
type Slots struct {
	date     Date
	loc      *time.Location
	openMin  int
	closeMin int
	step     time.Duration
	cutoff   time.Time
	taken    map[int64]struct{}
}

// emptySlots returns a sequence that yields nothing.
func emptySlots(date Date, loc *time.Location) Slots {
	return Slots{date: date, loc: loc}
}

// All yields the free slot start times in UTC, chronologically.
func (s Slots) All() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if s.step <= 0 || s.loc == nil {
			return
		}
		stepMin := int(s.step / time.Minute)
		for m := s.openMin; m+stepMin <= s.closeMin; m += stepMin {
			start := time.Date(s.date.Year, s.date.Month, s.date.Day, 0, m, 0, 0, s.loc).UTC()
			if !start.After(s.cutoff) {
				continue
			}
			if _, busy := s.taken[start.UnixNano()]; busy {
				continue
			}
			if !yield(start) {
				return
			}
		}
	}
}

// Slice collects the sequence.
func (s Slots) Slice() []time.Time {
	out := slices.Collect(s.All())
	if out == nil {
		return []time.Time{}
	}
	return out
}

// Date is the day the slots belong to.
func (s Slots) Date() Date { return s.date }

// Location is the clinic timezone the template was applied in.
func (s Slots) Location() *time.Location {
	if s.loc == nil {
		return time.UTC
	}
	return s.loc
}
