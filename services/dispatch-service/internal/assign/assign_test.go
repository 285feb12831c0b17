package assign

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/availability"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
)

func ptr(f float64) *float64 { return &f }

// fakeClaimer records claims and rejects resources marked busy.
type fakeClaimer struct {
	busy    map[string]bool
	claimed []model.Assignment
	err     error
}

func (f *fakeClaimer) Claim(_ context.Context, a model.Assignment, _ availability.Interval) error {
	if f.err != nil {
		return f.err
	}
	if f.busy[a.ResourceID] {
		return ErrResourceBusy
	}
	f.claimed = append(f.claimed, a)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testJob() model.Booking {
	return model.Booking{
		ID:              "job-1",
		ScheduledAt:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 120,
		Lat:             ptr(41.8781),
		Lng:             ptr(-87.6298),
	}
}

func TestNext_PicksNearestActive(t *testing.T) {
	job := testJob()
	resources := []model.Resource{
		{ID: "far", Active: true, HomeLat: ptr(43.0389), HomeLng: ptr(-87.9065)},
		{ID: "near", Active: true, HomeLat: ptr(41.9), HomeLng: ptr(-87.65)},
		{ID: "inactive", Active: false, HomeLat: ptr(41.88), HomeLng: ptr(-87.63)},
	}
	claimer := &fakeClaimer{}

	res, err := New(testLogger(), 15*time.Minute).Next(context.Background(), claimer, job, resources, nil)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if res.Resource.ID != "near" {
		t.Fatalf("expected nearest active resource, got %s", res.Resource.ID)
	}
	if res.Assignment.Status != model.AssignmentPending {
		t.Fatalf("expected pending assignment, got %s", res.Assignment.Status)
	}
	if res.Assignment.JobID != job.ID || res.Assignment.ResourceID != "near" {
		t.Fatal("assignment should reference the job and claimed resource")
	}
	if len(claimer.claimed) != 1 {
		t.Fatalf("expected exactly one claim, got %d", len(claimer.claimed))
	}
}

func TestNext_BusyResourceCascades(t *testing.T) {
	job := testJob()
	resources := []model.Resource{
		{ID: "near", Active: true, HomeLat: ptr(41.9), HomeLng: ptr(-87.65)},
		{ID: "far", Active: true, HomeLat: ptr(43.0389), HomeLng: ptr(-87.9065)},
	}
	claimer := &fakeClaimer{busy: map[string]bool{"near": true}}

	res, err := New(testLogger(), 15*time.Minute).Next(context.Background(), claimer, job, resources, nil)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if res.Resource.ID != "far" {
		t.Fatalf("expected fallback to next candidate, got %s", res.Resource.ID)
	}
}

func TestNext_ExhaustedWhenAllBusy(t *testing.T) {
	job := testJob()
	resources := []model.Resource{
		{ID: "a", Active: true},
		{ID: "b", Active: true},
	}
	claimer := &fakeClaimer{busy: map[string]bool{"a": true, "b": true}}

	_, err := New(testLogger(), 15*time.Minute).Next(context.Background(), claimer, job, resources, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestNext_ExhaustedWhenAllExcluded(t *testing.T) {
	job := testJob()
	resources := []model.Resource{{ID: "a", Active: true}}
	claimer := &fakeClaimer{}

	_, err := New(testLogger(), 15*time.Minute).Next(context.Background(), claimer, job, resources,
		map[string]bool{"a": true})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(claimer.claimed) != 0 {
		t.Fatal("no claim should be attempted for excluded resources")
	}
}

func TestNext_StorageErrorIsNotExhaustion(t *testing.T) {
	job := testJob()
	resources := []model.Resource{{ID: "a", Active: true}}
	claimer := &fakeClaimer{err: errors.New("connection reset")}

	_, err := New(testLogger(), 15*time.Minute).Next(context.Background(), claimer, job, resources, nil)
	if err == nil || errors.Is(err, ErrExhausted) {
		t.Fatalf("storage failure must surface as a retryable error, got %v", err)
	}
}

// Decline cascade: each decline folds into the exclusion set and the next
// invocation offers the next-nearest resource until nobody is left.
func TestNext_DeclineCascadeEndsExhausted(t *testing.T) {
	job := testJob()
	resources := []model.Resource{
		{ID: "r1", Active: true, HomeLat: ptr(41.88), HomeLng: ptr(-87.63)},
		{ID: "r2", Active: true, HomeLat: ptr(41.95), HomeLng: ptr(-87.70)},
		{ID: "r3", Active: true, HomeLat: ptr(42.10), HomeLng: ptr(-87.90)},
	}
	assigner := New(testLogger(), 15*time.Minute)
	claimer := &fakeClaimer{}

	var history []model.Assignment
	var offered []string
	for {
		res, err := assigner.Next(context.Background(), claimer, job, resources, Exclusions(history))
		if errors.Is(err, ErrExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		offered = append(offered, res.Resource.ID)
		declined := res.Assignment
		declined.Status = model.AssignmentDeclined
		history = append(history, declined)
		if len(offered) > len(resources) {
			t.Fatal("cascade offered more resources than exist")
		}
	}

	if len(offered) != 3 {
		t.Fatalf("every resource should be offered exactly once, got %v", offered)
	}
	if offered[0] != "r1" || offered[1] != "r2" || offered[2] != "r3" {
		t.Fatalf("offers should go nearest-first, got %v", offered)
	}
}

func TestExclusions(t *testing.T) {
	history := []model.Assignment{
		{ResourceID: "pending", Status: model.AssignmentPending},
		{ResourceID: "declined", Status: model.AssignmentDeclined},
		{ResourceID: "accepted", Status: model.AssignmentAccepted},
		{ResourceID: "cancelled", Status: model.AssignmentCancelled},
	}
	excluded := Exclusions(history)
	for _, id := range []string{"pending", "declined", "accepted"} {
		if !excluded[id] {
			t.Fatalf("%s should be excluded", id)
		}
	}
	if excluded["cancelled"] {
		t.Fatal("a cancelled offer frees the resource for re-offer")
	}
}
