// Package pricing looks up the service duration and price for a job profile.
// The engine treats pricing as an opaque collaborator: only DurationMinutes
// feeds into scheduling math.
package pricing

import (
	"context"
	"errors"
)

// ErrNoMatch means no pricing entry covers the profile; callers branch to a
// custom-quote escalation rather than retrying.
var ErrNoMatch = errors.New("no pricing entry for profile")

// Profile is the job shape the pricing table is keyed by.
type Profile struct {
	Category   string
	Bedrooms   int
	SquareFeet int
}

type Quote struct {
	DurationMinutes int
	PriceCents      int64
}

type Provider interface {
	Quote(ctx context.Context, p Profile) (Quote, error)
}

// Entry is one row of the static pricing table.
type Entry struct {
	Category    string
	MinBedrooms int
	MaxBedrooms int
	Quote       Quote
}

type staticProvider struct {
	entries []Entry
}

// NewStaticProvider serves quotes from a fixed table; first matching entry
// wins.
func NewStaticProvider(entries []Entry) Provider {
	return &staticProvider{entries: entries}
}

func (p *staticProvider) Quote(_ context.Context, profile Profile) (Quote, error) {
	for _, e := range p.entries {
		if e.Category != profile.Category {
			continue
		}
		if profile.Bedrooms < e.MinBedrooms || profile.Bedrooms > e.MaxBedrooms {
			continue
		}
		return e.Quote, nil
	}
	return Quote{}, ErrNoMatch
}

// DefaultTable mirrors the standard residential cleaning tiers used when no
// tenant-specific table is configured.
func DefaultTable() []Entry {
	return []Entry{
		{Category: "standard", MinBedrooms: 0, MaxBedrooms: 1, Quote: Quote{DurationMinutes: 90, PriceCents: 11900}},
		{Category: "standard", MinBedrooms: 2, MaxBedrooms: 2, Quote: Quote{DurationMinutes: 120, PriceCents: 14900}},
		{Category: "standard", MinBedrooms: 3, MaxBedrooms: 3, Quote: Quote{DurationMinutes: 150, PriceCents: 17900}},
		{Category: "standard", MinBedrooms: 4, MaxBedrooms: 5, Quote: Quote{DurationMinutes: 210, PriceCents: 22900}},
		{Category: "deep", MinBedrooms: 0, MaxBedrooms: 1, Quote: Quote{DurationMinutes: 150, PriceCents: 18900}},
		{Category: "deep", MinBedrooms: 2, MaxBedrooms: 3, Quote: Quote{DurationMinutes: 210, PriceCents: 24900}},
		{Category: "deep", MinBedrooms: 4, MaxBedrooms: 5, Quote: Quote{DurationMinutes: 270, PriceCents: 31900}},
		{Category: "move_out", MinBedrooms: 0, MaxBedrooms: 2, Quote: Quote{DurationMinutes: 240, PriceCents: 27900}},
		{Category: "move_out", MinBedrooms: 3, MaxBedrooms: 5, Quote: Quote{DurationMinutes: 330, PriceCents: 36900}},
	}
}
