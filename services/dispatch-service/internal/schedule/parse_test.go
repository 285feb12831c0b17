package schedule

import (
	"testing"
	"time"
)

func TestParseSpec_LegacyRange(t *testing.T) {
	s, err := ParseSpec("Mon-Fri 9am-5pm", time.UTC)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	if s.Always {
		t.Fatal("expected a restricted schedule")
	}
	if len(s.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(s.Rules))
	}
	r := s.Rules[0]
	if r.StartMin != 9*60 || r.EndMin != 17*60 {
		t.Fatalf("expected 09:00-17:00, got %d-%d", r.StartMin, r.EndMin)
	}
	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		if !r.Days.Has(d) {
			t.Fatalf("expected %s in day set", d)
		}
	}
	if r.Days.Has(time.Saturday) || r.Days.Has(time.Sunday) {
		t.Fatal("weekend should not be in day set")
	}
}

func TestParseSpec_LegacyCommaList(t *testing.T) {
	s, err := ParseSpec("Mon, Wed, Fri 08:00-16:00", time.UTC)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	r := s.Rules[0]
	if !r.Days.Has(time.Monday) || !r.Days.Has(time.Wednesday) || !r.Days.Has(time.Friday) {
		t.Fatal("expected Mon, Wed, Fri in day set")
	}
	if r.Days.Has(time.Tuesday) {
		t.Fatal("Tuesday should not be in day set")
	}
	if r.StartMin != 8*60 || r.EndMin != 16*60 {
		t.Fatalf("expected 08:00-16:00, got %d-%d", r.StartMin, r.EndMin)
	}
}

func TestParseSpec_LegacyWrappingRange(t *testing.T) {
	s, err := ParseSpec("Sat-Mon 10:00-14:00", time.UTC)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	r := s.Rules[0]
	for _, d := range []time.Weekday{time.Saturday, time.Sunday, time.Monday} {
		if !r.Days.Has(d) {
			t.Fatalf("expected %s in wrapped range", d)
		}
	}
	if r.Days.Has(time.Wednesday) {
		t.Fatal("Wednesday should not be in wrapped range")
	}
}

func TestParseSpec_AlwaysForms(t *testing.T) {
	for _, raw := range []string{"", "24/7", "  24/7  "} {
		s, err := ParseSpec(raw, time.UTC)
		if err != nil {
			t.Fatalf("ParseSpec(%q) failed: %v", raw, err)
		}
		if !s.Always {
			t.Fatalf("ParseSpec(%q): expected always-available", raw)
		}
	}
}

func TestParseSpec_Structured(t *testing.T) {
	raw := `{"timezone":"America/Chicago","rules":[{"days":["mo","tu","we"],"start":"09:00","end":"17:00"},{"days":["sa"],"start":"10am","end":"2pm"}]}`
	s, err := ParseSpec(raw, time.UTC)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	if len(s.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(s.Rules))
	}
	if s.Rules[0].Loc.String() != "America/Chicago" {
		t.Fatalf("expected America/Chicago, got %s", s.Rules[0].Loc)
	}
	if s.Rules[1].StartMin != 10*60 || s.Rules[1].EndMin != 14*60 {
		t.Fatalf("expected 10:00-14:00, got %d-%d", s.Rules[1].StartMin, s.Rules[1].EndMin)
	}
}

func TestParseSpec_StructuredDropsBadRules(t *testing.T) {
	// One good rule, one with an unknown day token only, one overnight.
	raw := `{"rules":[{"days":["mo"],"start":"09:00","end":"17:00"},{"days":["xx"],"start":"09:00","end":"17:00"},{"days":["tu"],"start":"22:00","end":"06:00"}]}`
	s, err := ParseSpec(raw, time.UTC)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	if len(s.Rules) != 1 {
		t.Fatalf("expected bad rules dropped, got %d rules", len(s.Rules))
	}
	if !s.Rules[0].Days.Has(time.Monday) {
		t.Fatal("surviving rule should be the Monday one")
	}
}

func TestParseSpec_OvernightRejected(t *testing.T) {
	if _, err := ParseSpec("Fri 22:00-06:00", time.UTC); err == nil {
		t.Fatal("expected overnight legacy window to be rejected")
	}
}

func TestParseSpecOrDefault_FailOpen(t *testing.T) {
	for _, raw := range []string{"gibberish", "Mon-Fry 9am-5pm", "{not json", "Mon 25:00-26:00"} {
		s := ParseSpecOrDefault(raw, time.UTC)
		if !s.Always {
			t.Fatalf("ParseSpecOrDefault(%q): expected fail-open always-available", raw)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"17:00", 17 * 60},
		{"9:30", 9*60 + 30},
		{"9am", 9 * 60},
		{"9:30pm", 21*60 + 30},
		{"12:00 am", 0},
		{"12pm", 12 * 60},
		{"24:00", 24 * 60},
	}
	for _, c := range cases {
		got, err := parseClock(c.in)
		if err != nil {
			t.Fatalf("parseClock(%q) failed: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("parseClock(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	for _, bad := range []string{"", "25:00", "13pm", "0am", "9:75", "9:3", "9:030", "9:+3"} {
		if _, err := parseClock(bad); err == nil {
			t.Fatalf("parseClock(%q): expected error", bad)
		}
	}
}

func TestScheduleCovers(t *testing.T) {
	s, err := ParseSpec("Mon-Fri 9am-5pm", time.UTC)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}

	// 2026-03-02 is a Monday.
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	if !s.Covers(monday.Add(10*time.Hour), monday.Add(12*time.Hour)) {
		t.Fatal("10:00-12:00 Monday should be covered")
	}
	if !s.Covers(monday.Add(9*time.Hour), monday.Add(17*time.Hour)) {
		t.Fatal("the full 09:00-17:00 window should be covered inclusively")
	}
	if s.Covers(monday.Add(8*time.Hour), monday.Add(10*time.Hour)) {
		t.Fatal("window starting before opening should not be covered")
	}
	if s.Covers(monday.Add(16*time.Hour), monday.Add(18*time.Hour)) {
		t.Fatal("window running past closing should not be covered")
	}

	sunday := monday.AddDate(0, 0, -1)
	if s.Covers(sunday.Add(10*time.Hour), sunday.Add(12*time.Hour)) {
		t.Fatal("Sunday should not be covered")
	}

	// Crosses local midnight; no single-day rule can cover it.
	if s.Covers(monday.Add(23*time.Hour), monday.Add(25*time.Hour)) {
		t.Fatal("cross-midnight interval should not be covered")
	}
}

func TestScheduleCovers_TimezoneLocalization(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}
	s, err := ParseSpec("Mon-Fri 9am-5pm", chicago)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}

	// 15:00 UTC on 2026-03-02 is 09:00 in Chicago (CST, UTC-6).
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	if !s.Covers(start, start.Add(2*time.Hour)) {
		t.Fatal("interval should be covered after localizing to the rule's timezone")
	}
	// 13:00 UTC is 07:00 Chicago, before opening.
	early := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	if s.Covers(early, early.Add(time.Hour)) {
		t.Fatal("pre-opening interval should not be covered")
	}
}
