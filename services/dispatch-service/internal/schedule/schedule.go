// Package schedule models a resource's recurring weekly availability and
// parses the raw specs the admin surface stores: a structured JSON rule spec
// or one of the legacy free-text encodings ("Mon-Fri 9am-5pm", "24/7", ...).
//
// Parsing is deliberately fail-open: any spec that cannot be understood
// resolves to an always-available schedule. A resource with a broken spec
// stays bookable rather than silently dropping out of rotation.
package schedule

import "time"

// Rule is one weekly recurrence window: a set of weekdays and a
// [StartMin, EndMin] span in minutes since local midnight, evaluated in Loc.
// Invariant: 0 <= StartMin < EndMin. Overnight spans are not representable;
// the parser drops rules with EndMin <= StartMin.
type Rule struct {
	Days     WeekdaySet
	StartMin int
	EndMin   int
	Loc      *time.Location
}

// WeekdaySet is a bitmask over time.Weekday (bit 0 = Sunday).
type WeekdaySet uint8

func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

func (s *WeekdaySet) Add(d time.Weekday) {
	*s |= 1 << uint(d)
}

func (s WeekdaySet) Empty() bool {
	return s == 0
}

// Schedule is the canonical availability of one resource: either open at all
// times or a non-empty list of rules. Values are immutable after parsing.
type Schedule struct {
	Always bool
	Rules  []Rule
}

// AlwaysAvailable is the fail-open schedule.
func AlwaysAvailable() Schedule {
	return Schedule{Always: true}
}

// Covers reports whether [start, end) lies inside some rule's window.
//
// The interval is localized per rule using that rule's timezone. If the local
// weekday differs between start and end the interval crosses midnight and no
// rule can cover it.
func (s Schedule) Covers(start, end time.Time) bool {
	if s.Always {
		return true
	}
	for _, r := range s.Rules {
		if r.covers(start, end) {
			return true
		}
	}
	return false
}

func (r Rule) covers(start, end time.Time) bool {
	ls := start.In(r.Loc)
	le := end.In(r.Loc)
	if ls.Weekday() != le.Weekday() {
		return false
	}
	if !r.Days.Has(ls.Weekday()) {
		return false
	}
	startMin := ls.Hour()*60 + ls.Minute()
	endMin := le.Hour()*60 + le.Minute()
	return startMin >= r.StartMin && endMin <= r.EndMin
}
