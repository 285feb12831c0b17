package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/outbox"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/scheduling"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/storage"
)

type BookingHandler struct {
	engine     *scheduling.Engine
	bookings   *storage.BookingRepository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
}

func NewBookingHandler(engine *scheduling.Engine, bookings *storage.BookingRepository, outboxRepo *outbox.Repository, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		engine:     engine,
		bookings:   bookings,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

type createBookingRequest struct {
	RequestedTime string   `json:"requested_time"`
	Category      string   `json:"category"`
	Bedrooms      int      `json:"bedrooms"`
	SquareFeet    int      `json:"square_feet"`
	CustomerName  string   `json:"customer_name"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
}

type createBookingResponse struct {
	BookingID       string   `json:"booking_id,omitempty"`
	ScheduledAt     string   `json:"scheduled_at,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	PriceCents      int64    `json:"price_cents,omitempty"`
	Alternatives    []string `json:"alternatives,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Create books the requested slot after re-confirming it is still feasible.
// A slot taken since the customer saw it comes back as a conflict with fresh
// alternatives rather than a double booking.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RequestedTime = strings.TrimSpace(req.RequestedTime)
	req.Category = strings.TrimSpace(req.Category)
	req.CustomerName = strings.TrimSpace(req.CustomerName)

	ctx := r.Context()
	result, err := h.engine.ConfirmAvailability(ctx, scheduling.ConfirmRequest{
		RequestedTime: req.RequestedTime,
		Category:      req.Category,
		Bedrooms:      req.Bedrooms,
		SquareFeet:    req.SquareFeet,
	})
	if err != nil {
		h.logger.Error("booking availability check failed", "err", err)
		http.Error(w, "availability check failed", http.StatusInternalServerError)
		return
	}
	if result.ErrorCode != "" && result.ErrorCode != scheduling.CodeNoAvailabilityFound {
		writeJSON(w, confirmStatus(result.ErrorCode), createBookingResponse{Error: result.ErrorCode})
		return
	}
	if !result.IsAvailable {
		resp := createBookingResponse{Error: scheduling.CodeNoAvailabilityFound}
		for _, alt := range result.Alternatives {
			resp.Alternatives = append(resp.Alternatives, alt.UTC().Format(time.RFC3339))
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}

	booking := &model.Booking{
		ID:              uuid.NewString(),
		Category:        req.Category,
		Bedrooms:        req.Bedrooms,
		SquareFeet:      req.SquareFeet,
		CustomerName:    req.CustomerName,
		ScheduledAt:     result.ConfirmedAt,
		DurationMinutes: result.DurationMinutes,
		Lat:             req.Lat,
		Lng:             req.Lng,
		Status:          model.BookingBooked,
	}

	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.bookings.Create(ctx, tx, booking); err != nil {
		h.logger.Error("booking create failed", "err", err)
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}
	if err := h.insertBookingEvent(ctx, tx, outbox.EventBookingConfirmed, booking.ID, map[string]any{
		"booking_id":       booking.ID,
		"category":         booking.Category,
		"scheduled_at":     booking.ScheduledAt.UTC().Format(time.RFC3339),
		"duration_minutes": booking.DurationMinutes,
		"customer_name":    booking.CustomerName,
	}); err != nil {
		h.logger.Error("failed to enqueue booking event", "err", err)
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createBookingResponse{
		BookingID:       booking.ID,
		ScheduledAt:     booking.ScheduledAt.UTC().Format(time.RFC3339),
		DurationMinutes: booking.DurationMinutes,
		PriceCents:      result.PriceCents,
	})
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
}

// Cancel releases the booking; its conflict interval disappears on the next
// availability query since booked intervals are derived per request.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cancelledAt, err := h.bookings.Cancel(ctx, tx, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found or not cancellable", http.StatusNotFound)
			return
		}
		h.logger.Error("booking cancel failed", "err", err)
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}
	if err := h.insertBookingEvent(ctx, tx, outbox.EventBookingCancelled, req.BookingID, map[string]any{
		"booking_id":   req.BookingID,
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
	}); err != nil {
		h.logger.Error("failed to enqueue booking event", "err", err)
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"booking_id":   req.BookingID,
		"status":       model.BookingCancelled,
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
	})
}

// insertBookingEvent writes the event on the caller's transaction; the
// booking mutation and its event commit together or not at all.
func (h *BookingHandler) insertBookingEvent(ctx context.Context, tx pgx.Tx, eventType, bookingID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   bookingID,
		EventType:     eventType,
		Payload:       body,
	})
}
