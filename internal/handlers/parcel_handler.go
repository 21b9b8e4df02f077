package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/parcelaria/api/internal/errors"
	"github.com/parcelaria/api/internal/middleware"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/repository"
	"github.com/parcelaria/api/internal/services"
)

// ParcelHandler handles parcel-related HTTP requests.
type ParcelHandler struct {
	service services.ParcelService
}

// NewParcelHandler creates a new ParcelHandler instance.
func NewParcelHandler(service services.ParcelService) *ParcelHandler {
	return &ParcelHandler{
		service: service,
	}
}

// allowedListFilters is the closed set of query keys List accepts.
// Anything else is rejected so typos never silently widen a search.
var allowedListFilters = map[string]bool{
	"province":       true,
	"municipality":   true,
	"min_surface_m2": true,
	"max_surface_m2": true,
	"min_price":      true,
	"max_price":      true,
	"query":          true,
}

// ListRequest represents the query parameters for the parcel list endpoint.
type ListRequest struct {
	Province     string   `form:"province"`
	Municipality string   `form:"municipality"`
	MinSurfaceM2 *float64 `form:"min_surface_m2" binding:"omitempty,gte=0"`
	MaxSurfaceM2 *float64 `form:"max_surface_m2" binding:"omitempty,gte=0"`
	MinPrice     *float64 `form:"min_price" binding:"omitempty,gte=0"`
	MaxPrice     *float64 `form:"max_price" binding:"omitempty,gte=0"`
	Query        string   `form:"query" binding:"omitempty,max=255"`
}

// ListResponse represents the response for the parcel list endpoint.
type ListResponse struct {
	Parcels []models.Parcel `json:"parcels"`
	Count   int             `json:"count"`
}

// StatusRequest represents the body of the status transition endpoint.
type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft published reserved sold"`
}

// ReservationRequest represents the body of the reservation endpoint.
type ReservationRequest struct {
	BuyerEmail string  `json:"buyer_email" binding:"required,email"`
	BuyerName  string  `json:"buyer_name" binding:"omitempty,max=255"`
	Amount     float64 `json:"amount" binding:"omitempty,gte=0"`
	Kind       string  `json:"kind" binding:"required,oneof=reservation purchase"`
}

// List handles GET /api/v1/parcels.
// It returns published parcels matching the filter set; unknown filter keys
// are rejected.
func (h *ParcelHandler) List(c *gin.Context) {
	for key := range c.Request.URL.Query() {
		if !allowedListFilters[key] {
			apierrors.BadRequest(c, "Unknown filter key", map[string]interface{}{
				"key": key,
			})
			return
		}
	}

	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	filters := repository.ListFilters{
		MinSurfaceM2: req.MinSurfaceM2,
		MaxSurfaceM2: req.MaxSurfaceM2,
		MinPrice:     req.MinPrice,
		MaxPrice:     req.MaxPrice,
	}
	// "All" is the UI's neutral province choice.
	if req.Province != "" && !strings.EqualFold(req.Province, "all") {
		filters.Province = &req.Province
	}
	if req.Municipality != "" {
		filters.Municipality = &req.Municipality
	}
	if req.Query != "" {
		filters.Query = &req.Query
	}

	parcels, err := h.service.ListPublished(c.Request.Context(), filters)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to list parcels", err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Parcels: parcels,
		Count:   len(parcels),
	})
}

// GetByReference handles GET /api/v1/parcels/:ref.
func (h *ParcelHandler) GetByReference(c *gin.Context) {
	ref := c.Param("ref")

	parcel, err := h.service.GetByReference(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, services.ErrParcelNotFound) {
			apierrors.NotFound(c, "No parcel with this cadastral reference")
			return
		}
		apierrors.InternalServerError(c, "Failed to query parcel", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"parcel": parcel})
}

// ChangeStatus handles POST /api/v1/parcels/:id/status.
func (h *ParcelHandler) ChangeStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Processing status change", map[string]interface{}{
			"parcel_id": id,
			"status":    req.Status,
		})
	}

	parcel, err := h.service.ChangeStatus(c.Request.Context(), id, models.ParcelStatus(req.Status))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			apierrors.Conflict(c, err.Error())
			return
		}
		apierrors.InternalServerError(c, "Failed to change parcel status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"parcel": parcel})
}

// Reserve handles POST /api/v1/parcels/:id/reservations.
func (h *ParcelHandler) Reserve(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	res, err := h.service.Reserve(c.Request.Context(), id, services.ReservationInput{
		BuyerEmail: req.BuyerEmail,
		BuyerName:  req.BuyerName,
		Amount:     req.Amount,
		Kind:       models.ReservationKind(req.Kind),
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			apierrors.Conflict(c, err.Error())
			return
		}
		if errors.Is(err, repository.ErrInvalidRecord) {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		apierrors.InternalServerError(c, "Failed to record reservation", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reservation": res})
}

// CancelReservation handles POST /api/v1/reservations/:id/cancel.
func (h *ParcelHandler) CancelReservation(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.CancelReservation(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			apierrors.Conflict(c, err.Error())
			return
		}
		apierrors.InternalServerError(c, "Failed to cancel reservation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// parseID extracts the numeric :id path parameter, rendering a 400 on failure.
func parseID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		apierrors.BadRequest(c, "Invalid id", map[string]interface{}{"id": raw})
		return 0, false
	}
	return uint(id), true
}
