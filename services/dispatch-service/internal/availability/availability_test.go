package availability

import (
	"testing"
	"time"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/schedule"
)

func interval(base time.Time, fromHour, toHour float64) Interval {
	return Interval{
		Start: base.Add(time.Duration(fromHour * float64(time.Hour))),
		End:   base.Add(time.Duration(toHour * float64(time.Hour))),
	}
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	a := interval(base, 9, 11)
	b := interval(base, 10, 12)
	if !a.Overlaps(b) || !b.Overlaps(a) {
		t.Fatal("overlapping intervals must overlap symmetrically")
	}

	// Half-open: touching endpoints do not overlap.
	c := interval(base, 11, 13)
	if a.Overlaps(c) || c.Overlaps(a) {
		t.Fatal("back-to-back intervals must not overlap")
	}

	// Zero-length intervals overlap nothing, including themselves.
	z := Interval{Start: a.Start, End: a.Start}
	if z.Overlaps(a) || a.Overlaps(z) || z.Overlaps(z) {
		t.Fatal("zero-length interval must overlap nothing")
	}
}

func TestIsFeasible(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	sched, err := schedule.ParseSpec("Mon-Fri 9am-5pm", time.UTC)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	c := Candidate{
		ResourceID: "r1",
		Schedule:   sched,
		Busy:       []Interval{interval(base, 13, 15)},
	}

	if !IsFeasible(c, base.Add(9*time.Hour), base.Add(11*time.Hour)) {
		t.Fatal("open morning window should be feasible")
	}
	if IsFeasible(c, base.Add(14*time.Hour), base.Add(16*time.Hour)) {
		t.Fatal("window overlapping a booking should not be feasible")
	}
	if IsFeasible(c, base.Add(7*time.Hour), base.Add(8*time.Hour)) {
		t.Fatal("window outside the schedule should not be feasible")
	}
	if IsFeasible(c, base.Add(10*time.Hour), base.Add(10*time.Hour)) {
		t.Fatal("empty window should not be feasible")
	}
	// Busy interval ends exactly when the probe starts: feasible.
	if !IsFeasible(c, base.Add(15*time.Hour), base.Add(16*time.Hour)) {
		t.Fatal("window starting at a booking's end should be feasible")
	}
}

func TestIsFeasible_Monotonic(t *testing.T) {
	// Removing a busy interval never makes a feasible window infeasible.
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	busy := []Interval{interval(base, 10, 11), interval(base, 13, 14)}
	full := Candidate{ResourceID: "r1", Schedule: schedule.AlwaysAvailable(), Busy: busy}
	reduced := Candidate{ResourceID: "r1", Schedule: schedule.AlwaysAvailable(), Busy: busy[:1]}

	for h := 0; h < 24; h++ {
		start := base.Add(time.Duration(h) * time.Hour)
		end := start.Add(time.Hour)
		if IsFeasible(full, start, end) && !IsFeasible(reduced, start, end) {
			t.Fatalf("window at %02d:00 regressed after removing a booking", h)
		}
	}
}

func searchConfig() SearchConfig {
	return SearchConfig{
		Step:     30 * time.Minute,
		Horizon:  14 * 24 * time.Hour,
		LeadTime: 2 * time.Hour,
		Buffer:   15 * time.Minute,
	}
}

func TestFindSlots_RequestedTimeOpen(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	requested := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sched, _ := schedule.ParseSpec("Mon-Fri 9am-5pm", time.UTC)

	candidates := []Candidate{{ResourceID: "r1", Schedule: sched}}
	slots := FindSlots(searchConfig(), candidates, requested, 4, 2*time.Hour, now)

	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	if !slots[0].Equal(requested) {
		t.Fatalf("first slot should be the requested time, got %s", slots[0])
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].After(slots[i-1]) {
			t.Fatal("slots must be strictly increasing")
		}
	}
}

func TestFindSlots_ConflictOffersAlternatives(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	requested := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	sched, _ := schedule.ParseSpec("Mon-Fri 9am-5pm", time.UTC)

	// 10:00 with a 2h job + 15m buffer probes [10:00, 12:15); a booking at
	// 11:00-13:00 blocks it and every later start until 13:00.
	candidates := []Candidate{{
		ResourceID: "r1",
		Schedule:   sched,
		Busy:       []Interval{interval(base, 11, 13)},
	}}
	slots := FindSlots(searchConfig(), candidates, requested, 3, 2*time.Hour, now)

	if len(slots) == 0 {
		t.Fatal("expected alternative slots")
	}
	if slots[0].Equal(requested) {
		t.Fatal("requested time conflicts and must not be offered")
	}
	if !slots[0].Equal(base.Add(13 * time.Hour)) {
		t.Fatalf("first alternative should be 13:00, got %s", slots[0])
	}
	dur := 2*time.Hour + 15*time.Minute
	for _, s := range slots {
		if !IsFeasible(candidates[0], s, s.Add(dur)) {
			t.Fatalf("offered slot %s is not actually feasible", s)
		}
	}
}

func TestFindSlots_SecondResourceRescuesSlot(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	requested := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	sched, _ := schedule.ParseSpec("Mon-Fri 9am-5pm", time.UTC)

	candidates := []Candidate{
		{ResourceID: "busy", Schedule: sched, Busy: []Interval{interval(base, 9, 17)}},
		{ResourceID: "free", Schedule: sched},
	}
	slots := FindSlots(searchConfig(), candidates, requested, 1, 2*time.Hour, now)
	if len(slots) != 1 || !slots[0].Equal(requested) {
		t.Fatalf("a single free resource should keep the requested slot open, got %v", slots)
	}
}

func TestFindSlots_WeekendCoveredByAlwaysOpenResource(t *testing.T) {
	// Saturday request: the Mon-Fri crew can't take it, the 24/7 crew can.
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	weekday, _ := schedule.ParseSpec("Mon-Fri 9am-5pm", time.UTC)

	weekdayOnly := []Candidate{{ResourceID: "weekday", Schedule: weekday}}
	slots := FindSlots(searchConfig(), weekdayOnly, saturday, 1, 2*time.Hour, now)
	if len(slots) > 0 && slots[0].Equal(saturday) {
		t.Fatal("a Mon-Fri resource must not cover a Saturday request")
	}

	mixed := append(weekdayOnly, Candidate{ResourceID: "always", Schedule: schedule.AlwaysAvailable()})
	slots = FindSlots(searchConfig(), mixed, saturday, 1, 2*time.Hour, now)
	if len(slots) != 1 || !slots[0].Equal(saturday) {
		t.Fatalf("the always-open resource should keep Saturday bookable, got %v", slots)
	}
}

func TestFindSlots_BufferBlocksAdjacentStart(t *testing.T) {
	// 90-minute job against a 10:00-11:00 booking (already buffer-extended
	// to 11:15): a 10:30 start collides, 11:30 is the first clean start.
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	c := Candidate{
		ResourceID: "r1",
		Schedule:   schedule.AlwaysAvailable(),
		Busy:       []Interval{{Start: base.Add(10 * time.Hour), End: base.Add(11*time.Hour + 15*time.Minute)}},
	}

	if IsFeasible(c, base.Add(10*time.Hour+30*time.Minute), base.Add(12*time.Hour+15*time.Minute)) {
		t.Fatal("10:30 start must collide with the booking")
	}
	if !IsFeasible(c, base.Add(11*time.Hour+30*time.Minute), base.Add(13*time.Hour+15*time.Minute)) {
		t.Fatal("11:30 start should be clear of the buffered booking")
	}

	slots := FindSlots(searchConfig(), []Candidate{c}, base.Add(10*time.Hour+30*time.Minute), 1, 90*time.Minute, now)
	if len(slots) != 1 || !slots[0].Equal(base.Add(11*time.Hour+30*time.Minute)) {
		t.Fatalf("first open start should be 11:30, got %v", slots)
	}
}

func TestFindSlots_LeadTimeAdvancesStart(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	requested := now.Add(30 * time.Minute) // inside the 2h lead window

	candidates := []Candidate{{ResourceID: "r1", Schedule: schedule.AlwaysAvailable()}}
	slots := FindSlots(searchConfig(), candidates, requested, 3, time.Hour, now)

	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	earliest := now.Add(2 * time.Hour)
	for _, s := range slots {
		if s.Before(earliest) {
			t.Fatalf("slot %s violates the lead time (earliest %s)", s, earliest)
		}
	}
	if !slots[0].Equal(earliest) {
		t.Fatalf("first slot should be now+lead, got %s", slots[0])
	}
}

func TestFindSlots_NeverOffersThePast(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	requested := now.Add(-48 * time.Hour)

	candidates := []Candidate{{ResourceID: "r1", Schedule: schedule.AlwaysAvailable()}}
	slots := FindSlots(searchConfig(), candidates, requested, 5, time.Hour, now)
	for _, s := range slots {
		if s.Before(now) {
			t.Fatalf("offered past slot %s", s)
		}
	}
}

func TestFindSlots_NoCandidates(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	if slots := FindSlots(searchConfig(), nil, now.Add(4*time.Hour), 3, time.Hour, now); slots != nil {
		t.Fatalf("expected no slots without candidates, got %v", slots)
	}
}
