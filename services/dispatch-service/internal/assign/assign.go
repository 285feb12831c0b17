// Package assign implements the cascading resource-assignment step: rank the
// eligible resources for a job, claim the best one, and report exhaustion
// when nobody is left. Decline cascading is driven by the caller re-invoking
// Next with the declined resource folded into the exclusion set; each offer
// normally waits on a human response before the next attempt.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/availability"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/geo"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
)

// ErrExhausted means no eligible resource remains for the job. It is a
// terminal outcome requiring operator escalation, not a retryable failure.
var ErrExhausted = errors.New("no eligible resource remains")

// ErrResourceBusy is returned by a Claimer when an overlapping non-terminal
// assignment already exists for the resource. The assigner treats it as
// "this candidate is taken" and moves on to the next one.
var ErrResourceBusy = errors.New("resource already holds an overlapping assignment")

// Claimer atomically creates a pending assignment, failing with
// ErrResourceBusy if the resource already holds an overlapping non-terminal
// assignment. The conditional insert is the serialization point for
// concurrent assignment attempts; there is no separate lock.
type Claimer interface {
	Claim(ctx context.Context, a model.Assignment, window availability.Interval) error
}

// Assigner picks the next resource for a job.
type Assigner struct {
	logger *slog.Logger
	buffer time.Duration
	now    func() time.Time
}

func New(logger *slog.Logger, buffer time.Duration) *Assigner {
	return &Assigner{logger: logger, buffer: buffer, now: time.Now}
}

// Result is the outcome of a successful Next call.
type Result struct {
	Resource   model.Resource
	Assignment model.Assignment
}

// Next ranks the eligible resources for job and claims the top candidate.
//
// Eligible resources are the active ones not present in excluded; the caller
// must have folded every resource with a prior non-cancelled assignment for
// this job into excluded. When the job carries a location candidates are
// ordered by distance; otherwise input order is kept and the first is taken.
//
// Returns ErrExhausted when the eligible set is empty or every candidate is
// busy. Any other error is a storage failure and is retryable.
func (s *Assigner) Next(ctx context.Context, claimer Claimer, job model.Booking, resources []model.Resource, excluded map[string]bool) (Result, error) {
	eligible := make([]model.Resource, 0, len(resources))
	for _, r := range resources {
		if !r.Active || excluded[r.ID] {
			continue
		}
		eligible = append(eligible, r)
	}
	if len(eligible) == 0 {
		return Result{}, ErrExhausted
	}

	ordered := eligible
	if job.HasLocation() {
		ranked := geo.Rank(eligible, *job.Lat, *job.Lng)
		ordered = make([]model.Resource, len(ranked))
		for i, rc := range ranked {
			ordered[i] = rc.Resource
		}
	}

	window := availability.Interval{
		Start: job.ScheduledAt,
		End:   job.ScheduledAt.Add(time.Duration(job.DurationMinutes)*time.Minute + s.buffer),
	}

	for _, r := range ordered {
		a := model.Assignment{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			ResourceID: r.ID,
			Status:     model.AssignmentPending,
			CreatedAt:  s.now().UTC(),
		}
		err := claimer.Claim(ctx, a, window)
		if err == nil {
			return Result{Resource: r, Assignment: a}, nil
		}
		if errors.Is(err, ErrResourceBusy) {
			s.logger.Info("assignment candidate busy, trying next",
				"job_id", job.ID, "resource_id", r.ID)
			continue
		}
		return Result{}, fmt.Errorf("claim assignment: %w", err)
	}
	return Result{}, ErrExhausted
}

// Exclusions folds a job's assignment history into the exclusion set for the
// next cascade step: every resource with a prior assignment that is not
// cancelled stays excluded. A declined resource is never re-offered the same
// job; a cancelled offer frees the resource for re-offer.
func Exclusions(history []model.Assignment) map[string]bool {
	excluded := make(map[string]bool, len(history))
	for _, a := range history {
		if a.Status == model.AssignmentCancelled {
			continue
		}
		excluded[a.ResourceID] = true
	}
	return excluded
}
