// Package availability answers whether a resource can take a job at a given
// time and searches forward for open slots. Everything here is pure over a
// snapshot of schedule and booking state and safe for unbounded concurrency.
package availability

import (
	"time"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/schedule"
)

// Interval is a half-open time span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. A zero-length
// interval (Start == End) overlaps nothing, including itself.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	probe := Interval{Start: start, End: end}
	for _, b := range busy {
		if probe.Overlaps(b) {
			return true
		}
	}
	return false
}

// Candidate pairs one resource's canonical schedule with its booked
// intervals (each already extended by the post-job buffer).
type Candidate struct {
	ResourceID string
	Schedule   schedule.Schedule
	Busy       []Interval
}

// IsFeasible reports whether the candidate's schedule covers [start, end)
// and no booked interval overlaps it.
func IsFeasible(c Candidate, start, end time.Time) bool {
	if !end.After(start) {
		return false
	}
	if !c.Schedule.Covers(start, end) {
		return false
	}
	return !overlapsAny(start, end, c.Busy)
}

// SearchConfig carries the slot-search tuning knobs. All values are explicit
// so tests can run with several configurations side by side.
type SearchConfig struct {
	Step     time.Duration // increment between probed starts
	Horizon  time.Duration // how far past the adjusted start to probe
	LeadTime time.Duration // minimum distance from now to any offered slot
	Buffer   time.Duration // post-job buffer appended to every candidate interval
}

// FindSlots walks forward from requested in cfg.Step increments, collecting
// up to count distinct instants where at least one candidate is feasible for
// [t, t+duration+buffer). Starts closer to now than cfg.LeadTime are advanced
// to now+LeadTime first; nothing in the past is ever offered.
//
// The search is greedy and earliest-first: "any resource free" accepts the
// slot, with no attempt to balance load across resources. Which resource
// ultimately gets the job is decided later by assignment ranking.
func FindSlots(cfg SearchConfig, candidates []Candidate, requested time.Time, count int, duration time.Duration, now time.Time) []time.Time {
	if count <= 0 || duration <= 0 || cfg.Step <= 0 || len(candidates) == 0 {
		return nil
	}

	start := requested
	earliest := now.Add(cfg.LeadTime)
	if start.Before(earliest) {
		start = earliest
	}
	horizon := start.Add(cfg.Horizon)

	var slots []time.Time
	var last time.Time
	for t := start; !t.After(horizon); t = t.Add(cfg.Step) {
		if t.Before(now) {
			continue
		}
		if !last.IsZero() && t.Equal(last) {
			continue
		}
		end := t.Add(duration + cfg.Buffer)
		for _, c := range candidates {
			if IsFeasible(c, t, end) {
				slots = append(slots, t)
				last = t
				break
			}
		}
		if len(slots) >= count {
			break
		}
	}
	return slots
}
