package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/service"
	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/httputil"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/pagination"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/validator"
)

// ReservationHandler handles HTTP requests for the reservation lifecycle.
type ReservationHandler struct {
	service *service.ReservationService
	logger  *slog.Logger
}

// NewReservationHandler creates a new reservation HTTP handler.
func NewReservationHandler(svc *service.ReservationService, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// ReserveRequest is the JSON request body for placing a hold. Qty carries no
// validate tag: the engine classifies out-of-band quantities as
// INVALID_QUANTITY, which the validator would otherwise mask.
type ReserveRequest struct {
	UserID string `json:"userId" validate:"required,min=1,max=128"`
	ItemID string `json:"itemId" validate:"required,min=1,max=128"`
	Qty    int    `json:"qty"`
}

// ConfirmRequest is the JSON request body for confirming a reservation.
type ConfirmRequest struct {
	UserID        string `json:"userId" validate:"required,min=1,max=128"`
	ReservationID string `json:"reservationId" validate:"required"`
}

// CancelRequest is the JSON request body for cancelling a reservation.
type CancelRequest struct {
	UserID        string `json:"userId" validate:"required,min=1,max=128"`
	ReservationID string `json:"reservationId" validate:"required"`
}

// ReservationActionResponse reports the outcome of a confirm or cancel.
type ReservationActionResponse struct {
	ReservationID string `json:"reservationId"`
	Status        string `json:"status"`
}

// --- Handlers ---

// Reserve handles POST /reserve
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.Validation("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	res, err := h.service.Reserve(r.Context(), req.UserID, req.ItemID, req.Qty)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, res)
}

// Confirm handles POST /confirm
func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.Validation("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	res, err := h.service.Confirm(r.Context(), req.UserID, req.ReservationID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, ReservationActionResponse{
		ReservationID: res.ID,
		Status:        res.Status,
	})
}

// Cancel handles POST /cancel
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.Validation("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	res, err := h.service.Cancel(r.Context(), req.UserID, req.ReservationID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, ReservationActionResponse{
		ReservationID: res.ID,
		Status:        res.Status,
	})
}

// Get handles GET /reservations/{id}
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, res)
}

// ListByUser handles GET /reservations/user/{userId}
func (h *ReservationHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, apperrors.Validation(err.Error()), h.logger)
		return
	}

	userID := chi.URLParam(r, "userId")
	status := r.URL.Query().Get("status")

	reservations, total, err := h.service.ListUserReservations(r.Context(), userID, status, params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if params.Windowed() {
		httputil.WriteSuccessMeta(w, http.StatusOK, reservations, map[string]any{
			"pagination": pagination.NewMeta(total, params),
		})
		return
	}

	httputil.WriteSuccessMeta(w, http.StatusOK, reservations, httputil.ListMeta{Count: total})
}

// ExpireRun handles POST /expire/run
func (h *ReservationHandler) ExpireRun(w http.ResponseWriter, r *http.Request) {
	expired, err := h.service.ExpireDue(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, map[string]any{
		"expired": expired,
		"message": fmt.Sprintf("expired %d reservations", expired),
	})
}
