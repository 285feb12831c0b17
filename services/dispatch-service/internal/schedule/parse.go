package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// structuredSpec is the JSON rule spec written by the current admin surface.
type structuredSpec struct {
	Timezone string           `json:"timezone"`
	Rules    []structuredRule `json:"rules"`
}

type structuredRule struct {
	Days  []string `json:"days"`
	Start string   `json:"start"`
	End   string   `json:"end"`
}

// ParseSpecOrDefault is the single fail-open entry point: any raw spec that
// cannot be parsed resolves to AlwaysAvailable.
func ParseSpecOrDefault(raw string, defaultLoc *time.Location) Schedule {
	s, err := ParseSpec(raw, defaultLoc)
	if err != nil {
		return AlwaysAvailable()
	}
	return s
}

// ParseSpec normalizes a raw availability spec into a canonical Schedule.
// The spec is either a structured JSON object or a legacy text encoding.
// An empty spec means the resource never restricted its hours.
func ParseSpec(raw string, defaultLoc *time.Location) (Schedule, error) {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AlwaysAvailable(), nil
	}
	if strings.HasPrefix(raw, "{") {
		return parseStructured(raw, defaultLoc)
	}
	return parseLegacyText(raw, defaultLoc)
}

func parseStructured(raw string, defaultLoc *time.Location) (Schedule, error) {
	var spec structuredSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return Schedule{}, fmt.Errorf("structured spec: %w", err)
	}

	loc := defaultLoc
	if tz := strings.TrimSpace(spec.Timezone); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return Schedule{}, fmt.Errorf("structured spec timezone %q: %w", tz, err)
		}
		loc = parsed
	}

	var rules []Rule
	for _, sr := range spec.Rules {
		days := parseDayTokens(sr.Days)
		startMin, errStart := parseClock(sr.Start)
		endMin, errEnd := parseClock(sr.End)
		// Rules that cannot be understood are dropped, not fatal.
		if days.Empty() || errStart != nil || errEnd != nil {
			continue
		}
		if startMin >= endMin {
			// Overnight spans are unsupported; drop the rule.
			continue
		}
		rules = append(rules, Rule{Days: days, StartMin: startMin, EndMin: endMin, Loc: loc})
	}
	if len(rules) == 0 {
		return AlwaysAvailable(), nil
	}
	return Schedule{Rules: rules}, nil
}

// parseLegacyText handles the older single-string encodings:
//
//	"24/7"
//	"Mon-Fri 9am-5pm"
//	"Mon, Wed, Fri 08:00-16:00"
//	"Sat 10:00-14:00"
func parseLegacyText(raw string, loc *time.Location) (Schedule, error) {
	if strings.EqualFold(raw, "24/7") {
		return AlwaysAvailable(), nil
	}

	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return Schedule{}, fmt.Errorf("legacy spec %q: want days and a time range", raw)
	}

	// The time range is always the last whitespace-separated token.
	timeToken := fields[len(fields)-1]
	dayToken := strings.Join(fields[:len(fields)-1], " ")

	days, err := parseLegacyDays(dayToken)
	if err != nil {
		return Schedule{}, err
	}

	dash := strings.Index(timeToken, "-")
	if dash <= 0 || dash == len(timeToken)-1 {
		return Schedule{}, fmt.Errorf("legacy spec time range %q", timeToken)
	}
	startMin, err := parseClock(timeToken[:dash])
	if err != nil {
		return Schedule{}, err
	}
	endMin, err := parseClock(timeToken[dash+1:])
	if err != nil {
		return Schedule{}, err
	}
	if startMin >= endMin {
		return Schedule{}, fmt.Errorf("legacy spec %q: overnight window unsupported", raw)
	}

	return Schedule{Rules: []Rule{{Days: days, StartMin: startMin, EndMin: endMin, Loc: loc}}}, nil
}

// parseLegacyDays recognizes three day-group syntaxes: comma list
// ("Mon, Wed, Fri"), hyphen range wrapping across the week ("Sat-Mon"),
// and a single day ("Sat").
func parseLegacyDays(token string) (WeekdaySet, error) {
	token = strings.TrimSpace(token)

	if strings.Contains(token, ",") {
		var set WeekdaySet
		for _, part := range strings.Split(token, ",") {
			d, ok := dayByName(strings.TrimSpace(part))
			if !ok {
				return 0, fmt.Errorf("legacy spec day %q", part)
			}
			set.Add(d)
		}
		return set, nil
	}

	if from, to, ok := strings.Cut(token, "-"); ok {
		start, okFrom := dayByName(strings.TrimSpace(from))
		end, okTo := dayByName(strings.TrimSpace(to))
		if !okFrom || !okTo {
			return 0, fmt.Errorf("legacy spec day range %q", token)
		}
		var set WeekdaySet
		for d := start; ; d = (d + 1) % 7 {
			set.Add(d)
			if d == end {
				break
			}
		}
		return set, nil
	}

	d, ok := dayByName(token)
	if !ok {
		return 0, fmt.Errorf("legacy spec day %q", token)
	}
	var set WeekdaySet
	set.Add(d)
	return set, nil
}

var legacyDayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func dayByName(name string) (time.Weekday, bool) {
	d, ok := legacyDayNames[strings.ToLower(name)]
	return d, ok
}

// structuredDayTokens maps the two-letter tokens used by the structured spec.
var structuredDayTokens = map[string]time.Weekday{
	"su": time.Sunday,
	"mo": time.Monday,
	"tu": time.Tuesday,
	"we": time.Wednesday,
	"th": time.Thursday,
	"fr": time.Friday,
	"sa": time.Saturday,
}

func parseDayTokens(tokens []string) WeekdaySet {
	var set WeekdaySet
	for _, t := range tokens {
		if d, ok := structuredDayTokens[strings.ToLower(strings.TrimSpace(t))]; ok {
			set.Add(d)
		}
		// Unknown tokens are skipped silently.
	}
	return set
}

// parseClock parses a time of day as minutes since midnight. Accepted forms:
// "17:00", "9:30", "9am", "9:30pm", "12:00 am".
func parseClock(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty time of day")
	}

	meridiem := ""
	for _, suffix := range []string{"am", "pm"} {
		if strings.HasSuffix(s, suffix) {
			meridiem = suffix
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	hourStr, minStr, hasMinutes := strings.Cut(s, ":")
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, fmt.Errorf("time of day %q: %w", s, err)
	}
	min := 0
	if hasMinutes {
		// The grammar is HH:MM or H:MM; minutes are always two digits.
		if len(minStr) != 2 || !isDigits(minStr) {
			return 0, fmt.Errorf("time of day %q: minutes must be two digits", s)
		}
		min, err = strconv.Atoi(minStr)
		if err != nil {
			return 0, fmt.Errorf("time of day %q: %w", s, err)
		}
	}
	if min > 59 {
		return 0, fmt.Errorf("time of day %q: minute out of range", s)
	}

	switch meridiem {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("time of day %q: hour out of range", s)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("time of day %q: hour out of range", s)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour < 0 || hour > 24 || (hour == 24 && min != 0) {
			return 0, fmt.Errorf("time of day %q: hour out of range", s)
		}
	}

	return hour*60 + min, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
