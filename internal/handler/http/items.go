package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/domain"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/service"
	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/httputil"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/validator"
)

// maxBodyBytes caps request bodies on every mutation endpoint.
const maxBodyBytes = 1 << 20

// ItemHandler handles HTTP requests for the item catalog.
type ItemHandler struct {
	service *service.ReservationService
	logger  *slog.Logger
}

// NewItemHandler creates a new item HTTP handler.
func NewItemHandler(svc *service.ReservationService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateItemRequest is the JSON request body for adding a catalog item.
// ID is optional; when omitted it is derived from the name.
type CreateItemRequest struct {
	ID           string `json:"id" validate:"omitempty,min=1,max=128"`
	Name         string `json:"name" validate:"required,min=1,max=256"`
	AvailableQty int    `json:"availableQty" validate:"gte=0"`
}

// AdjustStockRequest is the JSON request body for an administrative stock
// adjustment. Delta may be negative to remove stock.
type AdjustStockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// --- Handlers ---

// List handles GET /items
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	sortBy, sortOrder, ok := domain.NormalizeSort(
		r.URL.Query().Get("sortBy"),
		r.URL.Query().Get("sortOrder"),
	)
	if !ok {
		httputil.WriteError(w, r,
			apperrors.Validation("sortBy must be name|availableQty and sortOrder asc|desc"),
			h.logger)
		return
	}

	items, err := h.service.ListItems(r.Context(), sortBy, sortOrder)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccessMeta(w, http.StatusOK, items, httputil.ListMeta{Count: len(items)})
}

// Get handles GET /items/{id}
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, item)
}

// Create handles POST /items
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.Validation("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), req.ID, req.Name, req.AvailableQty)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, item)
}

// AdjustStock handles POST /items/{id}/stock
func (h *ItemHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.Validation("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	item, err := h.service.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, item)
}
