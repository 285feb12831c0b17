package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/assign"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/escalation"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/outbox"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/storage"
)

type AssignmentHandler struct {
	assigner    *assign.Assigner
	assignments *storage.AssignmentRepository
	bookings    *storage.BookingRepository
	resources   *storage.ResourceRepository
	outboxRepo  *outbox.Repository
	escalation  *escalation.Notifier
	logger      *slog.Logger
}

func NewAssignmentHandler(
	assigner *assign.Assigner,
	assignments *storage.AssignmentRepository,
	bookings *storage.BookingRepository,
	resources *storage.ResourceRepository,
	outboxRepo *outbox.Repository,
	escalationNotifier *escalation.Notifier,
	logger *slog.Logger,
) *AssignmentHandler {
	return &AssignmentHandler{
		assigner:    assigner,
		assignments: assignments,
		bookings:    bookings,
		resources:   resources,
		outboxRepo:  outboxRepo,
		escalation:  escalationNotifier,
		logger:      logger,
	}
}

type assignNextRequest struct {
	JobID string `json:"job_id"`
}

type assignResponse struct {
	Exhausted    bool   `json:"exhausted,omitempty"`
	AssignmentID string `json:"assignment_id,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	ResourceName string `json:"resource_name,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Next offers the job to the best remaining candidate. Exhaustion is a 200
// with exhausted=true (terminal, escalated); storage failures are 5xx and
// retryable.
func (h *AssignmentHandler) Next(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assignNextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" {
		http.Error(w, "job_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	job, err := h.bookings.Get(ctx, req.JobID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	if job.Status != model.BookingBooked {
		http.Error(w, "job is not assignable", http.StatusConflict)
		return
	}

	h.runAssignment(ctx, w, job, http.StatusCreated)
}

// runAssignment executes one cascade step: fold history into exclusions,
// claim the next candidate, and write the offered event in the same
// transaction as the claim.
func (h *AssignmentHandler) runAssignment(ctx context.Context, w http.ResponseWriter, job model.Booking, successStatus int) {
	resources, err := h.resources.ListActive(ctx)
	if err != nil {
		http.Error(w, "failed to load resources", http.StatusInternalServerError)
		return
	}
	history, err := h.assignments.ListForJob(ctx, job.ID)
	if err != nil {
		http.Error(w, "failed to load assignment history", http.StatusInternalServerError)
		return
	}
	excluded := assign.Exclusions(history)

	tx, err := h.assignments.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := h.assigner.Next(ctx, h.assignments.WithTx(tx), job, resources, excluded)
	if errors.Is(err, assign.ErrExhausted) {
		if escErr := h.escalation.JobExhausted(ctx, job.ID); escErr != nil {
			h.logger.Error("exhaustion escalation failed", "err", escErr, "job_id", job.ID)
		}
		writeJSON(w, http.StatusOK, assignResponse{Exhausted: true})
		return
	}
	if err != nil {
		h.logger.Error("assignment failed", "err", err, "job_id", job.ID)
		http.Error(w, "failed to create assignment", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"assignment_id": result.Assignment.ID,
		"job_id":        job.ID,
		"resource_id":   result.Resource.ID,
		"resource_name": result.Resource.Name,
		"scheduled_at":  job.ScheduledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build offer event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "assignment",
		AggregateID:   result.Assignment.ID,
		EventType:     outbox.EventAssignmentOffered,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, successStatus, assignResponse{
		AssignmentID: result.Assignment.ID,
		ResourceID:   result.Resource.ID,
		ResourceName: result.Resource.Name,
		Status:       result.Assignment.Status,
	})
}

type respondRequest struct {
	AssignmentID string `json:"assignment_id"`
	Action       string `json:"action"`
}

// Respond records a resource's accept or decline. A decline immediately
// cascades: the declined resource joins the exclusion set and the next
// candidate is offered in the same call.
func (h *AssignmentHandler) Respond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AssignmentID = strings.TrimSpace(req.AssignmentID)
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))

	var status, eventType string
	switch req.Action {
	case "accept":
		status, eventType = model.AssignmentAccepted, outbox.EventAssignmentAccepted
	case "decline":
		status, eventType = model.AssignmentDeclined, outbox.EventAssignmentDeclined
	default:
		http.Error(w, "action must be accept or decline", http.StatusBadRequest)
		return
	}
	if req.AssignmentID == "" {
		http.Error(w, "assignment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.assignments.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := h.assignments.Respond(ctx, tx, req.AssignmentID, status)
	if err != nil {
		if errors.Is(err, storage.ErrNotPending) {
			http.Error(w, "assignment already resolved", http.StatusConflict)
			return
		}
		http.Error(w, "failed to update assignment", http.StatusInternalServerError)
		return
	}

	if status == model.AssignmentAccepted {
		if err := h.bookings.BindResource(ctx, tx, a.JobID, a.ResourceID); err != nil {
			h.logger.Error("failed to bind resource to booking", "err", err, "job_id", a.JobID)
			http.Error(w, "failed to bind resource", http.StatusInternalServerError)
			return
		}
	}

	payload, err := json.Marshal(map[string]any{
		"assignment_id": a.ID,
		"job_id":        a.JobID,
		"resource_id":   a.ResourceID,
		"status":        a.Status,
	})
	if err != nil {
		http.Error(w, "failed to build event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "assignment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if status == model.AssignmentAccepted {
		writeJSON(w, http.StatusOK, assignResponse{
			AssignmentID: a.ID,
			ResourceID:   a.ResourceID,
			Status:       a.Status,
		})
		return
	}

	// Cascade to the next candidate; the declined resource is now part of
	// the job's history and stays excluded.
	job, err := h.bookings.Get(ctx, a.JobID)
	if err != nil {
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	h.runAssignment(ctx, w, job, http.StatusOK)
}
