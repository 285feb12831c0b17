package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/scheduling"
)

type AvailabilityHandler struct {
	engine *scheduling.Engine
	logger *slog.Logger
}

func NewAvailabilityHandler(engine *scheduling.Engine, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, logger: logger}
}

type confirmRequest struct {
	RequestedTime string `json:"requested_time"`
	Category      string `json:"category"`
	Bedrooms      int    `json:"bedrooms"`
	SquareFeet    int    `json:"square_feet"`
}

type confirmResponse struct {
	IsAvailable     bool     `json:"is_available"`
	ConfirmedTime   string   `json:"confirmed_time,omitempty"`
	Alternatives    []string `json:"alternatives,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	PriceCents      int64    `json:"price_cents,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Confirm answers whether the requested time is bookable and offers
// alternatives when it is not.
func (h *AvailabilityHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RequestedTime = strings.TrimSpace(req.RequestedTime)
	req.Category = strings.TrimSpace(req.Category)

	result, err := h.engine.ConfirmAvailability(r.Context(), scheduling.ConfirmRequest{
		RequestedTime: req.RequestedTime,
		Category:      req.Category,
		Bedrooms:      req.Bedrooms,
		SquareFeet:    req.SquareFeet,
	})
	if err != nil {
		h.logger.Error("availability confirmation failed", "err", err)
		http.Error(w, "availability check failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, confirmStatus(result.ErrorCode), confirmResponseFrom(result))
}

func confirmStatus(code string) int {
	switch code {
	case scheduling.CodeMissingFields:
		return http.StatusBadRequest
	case scheduling.CodeNoPricingMatch, scheduling.CodeNoResourcesConfigured:
		return http.StatusUnprocessableEntity
	default:
		// NO_AVAILABILITY_FOUND is a normal answer, not a transport error.
		return http.StatusOK
	}
}

func confirmResponseFrom(result scheduling.ConfirmResult) confirmResponse {
	resp := confirmResponse{
		IsAvailable:     result.IsAvailable,
		DurationMinutes: result.DurationMinutes,
		PriceCents:      result.PriceCents,
		Error:           result.ErrorCode,
	}
	if result.IsAvailable {
		resp.ConfirmedTime = result.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	for _, alt := range result.Alternatives {
		resp.Alternatives = append(resp.Alternatives, alt.UTC().Format(time.RFC3339))
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
