package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/parcelaria/api/internal/errors"
	"github.com/parcelaria/api/internal/matching"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/services"
)

// ProjectHandler handles architectural project HTTP requests.
type ProjectHandler struct {
	service services.ProjectService
}

// NewProjectHandler creates a new ProjectHandler instance.
func NewProjectHandler(service services.ProjectService) *ProjectHandler {
	return &ProjectHandler{
		service: service,
	}
}

// CreateProjectRequest represents the body of the project creation endpoint.
type CreateProjectRequest struct {
	ArchitectID  uint     `json:"architect_id" binding:"required"`
	Title        string   `json:"title" binding:"required,max=255"`
	BuiltM2      float64  `json:"built_m2" binding:"required,gt=0"`
	MinParcelM2  *float64 `json:"min_parcel_m2" binding:"omitempty,gt=0"`
	MaxParcelM2  *float64 `json:"max_parcel_m2" binding:"omitempty,gt=0"`
	Rooms        int      `json:"rooms" binding:"omitempty,gte=0"`
	Bathrooms    int      `json:"bathrooms" binding:"omitempty,gte=0"`
	Floors       int      `json:"floors" binding:"omitempty,gte=0"`
	HasGarage    bool     `json:"has_garage"`
	PriceTotal   *float64 `json:"price_total" binding:"omitempty,gte=0"`
	PricePDF     *float64 `json:"price_pdf" binding:"omitempty,gte=0"`
	PriceCAD     *float64 `json:"price_cad" binding:"omitempty,gte=0"`
	PropertyType string   `json:"property_type" binding:"omitempty,max=100"`
	EnergyRating string   `json:"energy_rating" binding:"omitempty,max=5"`
}

// CompatibleRequest represents the query parameters of the compatibility
// endpoint.
type CompatibleRequest struct {
	ParcelID      *uint    `form:"parcel_id"`
	ParcelSizeM2  *float64 `form:"parcel_size_m2"`
	BudgetMax     *float64 `form:"budget_max"`
	DesiredAreaM2 *float64 `form:"desired_area_m2"`
	Email         string   `form:"email" binding:"omitempty,email"`
	PropertyType  string   `form:"property_type" binding:"omitempty,max=100"`
}

// ProjectListResponse represents the response for project list endpoints.
type ProjectListResponse struct {
	Projects []models.Project `json:"projects"`
	Count    int              `json:"count"`
}

// PurchaseRequest represents the body of the project purchase endpoint.
type PurchaseRequest struct {
	BuyerEmail string  `json:"buyer_email" binding:"required,email"`
	BuyerName  string  `json:"buyer_name" binding:"omitempty,max=255"`
	Amount     float64 `json:"amount" binding:"omitempty,gte=0"`
}

// Create handles POST /api/v1/projects.
func (h *ProjectHandler) Create(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	project := &models.Project{
		ArchitectID: req.ArchitectID,
		Title:       req.Title,
		BuiltM2:     req.BuiltM2,
		MinParcelM2: req.MinParcelM2,
		MaxParcelM2: req.MaxParcelM2,
		Rooms:       req.Rooms,
		Bathrooms:   req.Bathrooms,
		Floors:      req.Floors,
		HasGarage:   req.HasGarage,
		PriceTotal:  req.PriceTotal,
		PricePDF:    req.PricePDF,
		PriceCAD:    req.PriceCAD,
		IsActive:    true,
	}
	if req.PropertyType != "" {
		project.PropertyType = &req.PropertyType
	}
	if req.EnergyRating != "" {
		project.EnergyRating = &req.EnergyRating
	}

	if err := h.service.Create(c.Request.Context(), project); err != nil {
		if errors.Is(err, services.ErrInvalidProject) {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		apierrors.InternalServerError(c, "Failed to create project", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": project})
}

// List handles GET /api/v1/projects.
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.service.List(c.Request.Context())
	if err != nil {
		apierrors.InternalServerError(c, "Failed to list projects", err)
		return
	}

	c.JSON(http.StatusOK, ProjectListResponse{
		Projects: projects,
		Count:    len(projects),
	})
}

// Compatible handles GET /api/v1/projects/compatible.
// It returns the projects compatible with a parcel (by id) or with raw client
// constraints, deterministically ordered.
func (h *ProjectHandler) Compatible(c *gin.Context) {
	var req CompatibleRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	projects, err := h.service.Compatible(c.Request.Context(), services.CompatibilityQuery{
		ParcelID:           req.ParcelID,
		ClientParcelSizeM2: req.ParcelSizeM2,
		BudgetMax:          req.BudgetMax,
		DesiredAreaM2:      req.DesiredAreaM2,
		ClientEmail:        req.Email,
		PropertyType:       req.PropertyType,
	})
	if err != nil {
		if errors.Is(err, services.ErrParcelNotFound) {
			apierrors.NotFound(c, "No parcel with this id")
			return
		}
		if errors.Is(err, matching.ErrInvalidConstraint) {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		apierrors.InternalServerError(c, "Failed to run compatibility query", err)
		return
	}

	c.JSON(http.StatusOK, ProjectListResponse{
		Projects: projects,
		Count:    len(projects),
	})
}

// Purchase handles POST /api/v1/projects/:id/purchase.
func (h *ProjectHandler) Purchase(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	res, err := h.service.Purchase(c.Request.Context(), id, req.BuyerEmail, req.BuyerName, req.Amount)
	if err != nil {
		if errors.Is(err, services.ErrInvalidProject) {
			apierrors.NotFound(c, "No project with this id")
			return
		}
		apierrors.InternalServerError(c, "Failed to record purchase", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reservation": res})
}
