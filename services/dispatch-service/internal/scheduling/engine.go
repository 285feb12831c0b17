// Package scheduling orchestrates the availability-confirmation flow: prices
// the job profile, parses the requested instant, and runs the slot search
// over the active resources and their booked intervals.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/availability"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/pricing"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/schedule"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/timeparse"
)

// Error codes surfaced to callers so they can branch (custom-quote
// escalation vs. configuration error vs. plain "nothing open").
const (
	CodeMissingFields         = "MISSING_FIELDS"
	CodeNoPricingMatch        = "NO_PRICING_MATCH"
	CodeNoResourcesConfigured = "NO_RESOURCES_CONFIGURED"
	CodeNoAvailabilityFound   = "NO_AVAILABILITY_FOUND"
)

// Config carries every scheduling constant explicitly. Nothing in the engine
// reads package-level state, so tests can run multiple timezones and tunings
// side by side.
type Config struct {
	Buffer           time.Duration  // post-job buffer before a resource frees up
	SlotStep         time.Duration  // slot search increment
	SearchHorizon    time.Duration  // how far ahead the slot search probes
	LeadTime         time.Duration  // minimum distance from now to any offer
	AlternativeCount int            // alternative slots returned alongside a confirmation
	DefaultLocation  *time.Location // timezone for specs and free-text parsing
	DefaultHour      int            // time-of-day applied to bare-date requests
	DefaultMinute    int
}

// DefaultConfig matches the production tuning: 15 minute buffer, 30 minute
// step, 14 day horizon, 2 hour lead time.
func DefaultConfig(loc *time.Location) Config {
	if loc == nil {
		loc = time.UTC
	}
	return Config{
		Buffer:           15 * time.Minute,
		SlotStep:         30 * time.Minute,
		SearchHorizon:    14 * 24 * time.Hour,
		LeadTime:         2 * time.Hour,
		AlternativeCount: 3,
		DefaultLocation:  loc,
		DefaultHour:      10,
		DefaultMinute:    0,
	}
}

// ResourceStore lists the active bookable resources.
type ResourceStore interface {
	ListActive(ctx context.Context) ([]model.Resource, error)
}

// BookingStore returns the raw booked intervals for a resource; the engine
// extends each by the configured buffer before overlap testing.
type BookingStore interface {
	ListBookedIntervals(ctx context.Context, resourceID string, from, to time.Time) ([]availability.Interval, error)
}

type Engine struct {
	cfg       Config
	resources ResourceStore
	bookings  BookingStore
	pricing   pricing.Provider
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(cfg Config, resources ResourceStore, bookings BookingStore, pricingProvider pricing.Provider, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		resources: resources,
		bookings:  bookings,
		pricing:   pricingProvider,
		logger:    logger,
		now:       time.Now,
	}
}

type ConfirmRequest struct {
	RequestedTime string
	Category      string
	Bedrooms      int
	SquareFeet    int
}

type ConfirmResult struct {
	IsAvailable     bool
	ConfirmedAt     time.Time
	Alternatives    []time.Time
	DurationMinutes int
	PriceCents      int64
	ErrorCode       string
}

// ConfirmAvailability answers "is the requested time open, and if not, what
// is?". A populated ErrorCode describes a domain outcome, not a transport
// failure; the error return is reserved for storage problems.
func (e *Engine) ConfirmAvailability(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	if req.Category == "" || req.RequestedTime == "" {
		return ConfirmResult{ErrorCode: CodeMissingFields}, nil
	}

	quote, err := e.pricing.Quote(ctx, pricing.Profile{
		Category:   req.Category,
		Bedrooms:   req.Bedrooms,
		SquareFeet: req.SquareFeet,
	})
	if errors.Is(err, pricing.ErrNoMatch) {
		return ConfirmResult{ErrorCode: CodeNoPricingMatch}, nil
	}
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("pricing lookup: %w", err)
	}

	now := e.now()
	requested, err := timeparse.Parse(req.RequestedTime, now, timeparse.Options{
		Location:      e.cfg.DefaultLocation,
		DefaultHour:   e.cfg.DefaultHour,
		DefaultMinute: e.cfg.DefaultMinute,
	})
	if err != nil {
		return ConfirmResult{ErrorCode: CodeMissingFields}, nil
	}

	candidates, err := e.snapshotCandidates(ctx, now)
	if err != nil {
		return ConfirmResult{}, err
	}
	if len(candidates) == 0 {
		return ConfirmResult{ErrorCode: CodeNoResourcesConfigured}, nil
	}

	searchCfg := availability.SearchConfig{
		Step:     e.cfg.SlotStep,
		Horizon:  e.cfg.SearchHorizon,
		LeadTime: e.cfg.LeadTime,
		Buffer:   e.cfg.Buffer,
	}
	duration := time.Duration(quote.DurationMinutes) * time.Minute

	slots := availability.FindSlots(searchCfg, candidates, requested, e.cfg.AlternativeCount+1, duration, now)
	if len(slots) == 0 {
		return ConfirmResult{DurationMinutes: quote.DurationMinutes, PriceCents: quote.PriceCents, ErrorCode: CodeNoAvailabilityFound}, nil
	}

	result := ConfirmResult{
		DurationMinutes: quote.DurationMinutes,
		PriceCents:      quote.PriceCents,
	}

	adjusted := requested
	if earliest := now.Add(e.cfg.LeadTime); adjusted.Before(earliest) {
		adjusted = earliest
	}
	if slots[0].Equal(adjusted) {
		result.IsAvailable = true
		result.ConfirmedAt = slots[0]
		result.Alternatives = slots[1:]
	} else {
		result.Alternatives = slots
	}
	return result, nil
}

// snapshotCandidates parses every active resource's availability spec and
// loads its booked intervals over the search window, extending each by the
// post-job buffer. The snapshot is rebuilt per request; bookings change
// between calls, so nothing here may be cached across requests.
func (e *Engine) snapshotCandidates(ctx context.Context, now time.Time) ([]availability.Candidate, error) {
	resources, err := e.resources.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	if len(resources) == 0 {
		return nil, nil
	}

	from := now
	to := now.Add(e.cfg.LeadTime + e.cfg.SearchHorizon + 24*time.Hour)

	candidates := make([]availability.Candidate, 0, len(resources))
	for _, r := range resources {
		busy, err := e.bookings.ListBookedIntervals(ctx, r.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("list booked intervals for %s: %w", r.ID, err)
		}
		for i := range busy {
			busy[i].End = busy[i].End.Add(e.cfg.Buffer)
		}
		candidates = append(candidates, availability.Candidate{
			ResourceID: r.ID,
			Schedule:   schedule.ParseSpecOrDefault(r.AvailabilitySpec, e.cfg.DefaultLocation),
			Busy:       busy,
		})
	}
	return candidates, nil
}
