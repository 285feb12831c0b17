// Package timeparse turns the requested-time field of a booking request into
// an absolute instant. Requests arrive in several shapes: structured
// ("2025-03-04 14:30"), US-style ("3/4/2025 2:30pm"), bare dates, and free
// text ("March 4th 2pm", "tomorrow at 10am"). Explicit layouts are tried
// first; free text falls through to a natural-language parser.
package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnparseable means the text could not be understood as a date-time.
var ErrUnparseable = errors.New("unparseable date-time")

// Options controls parsing. Location anchors all layouts and free text;
// DefaultHour/DefaultMinute are applied to bare dates.
type Options struct {
	Location      *time.Location
	DefaultHour   int
	DefaultMinute int
}

// dateTimeLayouts are tried in order against the normalized input.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02 3:04pm",
	"2006-01-02 3pm",
	"1/2/2006 15:04",
	"1/2/2006 3:04pm",
	"1/2/2006 3pm",
}

// dateOnlyLayouts match bare dates; the configured default time-of-day is
// applied to the result.
var dateOnlyLayouts = []string{
	"2006-01-02",
	"1/2/2006",
}

// Parse resolves raw into an instant in opts.Location. now anchors relative
// expressions like "tomorrow 2pm".
func Parse(raw string, now time.Time, opts Options) (time.Time, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrUnparseable)
	}

	normalized := normalizeMeridiem(raw)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, normalized, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range dateOnlyLayouts {
		if t, err := time.ParseInLocation(layout, normalized, loc); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), opts.DefaultHour, opts.DefaultMinute, 0, 0, loc), nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(raw, now.In(loc))
	if err != nil || r == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	return r.Time, nil
}

// normalizeMeridiem lowercases am/pm suffixes and drops the space before
// them so the Go layouts above can match ("2:30 PM" -> "2:30pm").
func normalizeMeridiem(s string) string {
	out := s
	for _, m := range []string{"AM", "PM", "Am", "Pm", "aM", "pM"} {
		out = strings.ReplaceAll(out, m, strings.ToLower(m))
	}
	out = strings.ReplaceAll(out, " am", "am")
	out = strings.ReplaceAll(out, " pm", "pm")
	return out
}
