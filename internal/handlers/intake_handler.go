package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/parcelaria/api/internal/errors"
	"github.com/parcelaria/api/internal/extractor"
	"github.com/parcelaria/api/internal/middleware"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/normalizer"
	"github.com/parcelaria/api/internal/repository"
	"github.com/parcelaria/api/internal/services"
)

// MaxDocumentBytes caps uploaded document size.
const MaxDocumentBytes = 25 << 20

// IntakeHandler handles document intake HTTP requests.
type IntakeHandler struct {
	service services.IntakeService
}

// NewIntakeHandler creates a new IntakeHandler instance.
func NewIntakeHandler(service services.IntakeService) *IntakeHandler {
	return &IntakeHandler{
		service: service,
	}
}

// IntakeForm represents the multipart fields accompanying the document.
type IntakeForm struct {
	Title      string   `form:"title" binding:"omitempty,max=255"`
	Address    string   `form:"address" binding:"omitempty,max=500"`
	Province   string   `form:"province" binding:"omitempty,max=100"`
	Price      *float64 `form:"price" binding:"omitempty,gte=0"`
	SoilType   string   `form:"soil_type" binding:"omitempty,oneof=urban industrial rustic-unsupported unknown"`
	OwnerName  string   `form:"owner_name" binding:"omitempty,max=255"`
	OwnerEmail string   `form:"owner_email" binding:"omitempty,email"`
	OwnerPhone string   `form:"owner_phone" binding:"omitempty,max=50"`
}

// IntakeResponse represents the intake response body.
type IntakeResponse struct {
	Parcel     *models.Parcel       `json:"parcel,omitempty"`
	Record     *models.ParsedRecord `json:"record,omitempty"`
	Extraction *models.Extraction   `json:"extraction,omitempty"`
	Location   *LocationData        `json:"location,omitempty"`
	Truncated  bool                 `json:"truncated"`
}

// LocationData is the resolved coordinate pair with its provenance.
type LocationData struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Source string  `json:"source"`
}

// Intake handles POST /api/v1/parcels/intake.
// It accepts a multipart upload with a "document" file part plus optional
// listing fields, runs the pipeline, and returns the stored parcel or the
// partial record for manual completion.
func (h *IntakeHandler) Intake(c *gin.Context) {
	log := middleware.GetLogger(c)

	var form IntakeForm
	if err := c.ShouldBind(&form); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid form fields", nil)
		return
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		apierrors.BadRequest(c, "A document file part is required", nil)
		return
	}
	if fileHeader.Size > MaxDocumentBytes {
		apierrors.BadRequest(c, "Document exceeds the size limit", map[string]interface{}{
			"max_bytes": MaxDocumentBytes,
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		apierrors.InternalServerError(c, "Failed to read uploaded document", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to read uploaded document", err)
		return
	}

	if log != nil {
		log.Info("Processing intake request", map[string]interface{}{
			"filename":     fileHeader.Filename,
			"size_bytes":   fileHeader.Size,
			"content_type": fileHeader.Header.Get("Content-Type"),
		})
	}

	input := services.IntakeInput{
		Document:     data,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		DocumentPath: fileHeader.Filename,
		SoilType:     models.SoilType(form.SoilType),
		Owner: repository.OwnerContact{
			Name:  form.OwnerName,
			Email: form.OwnerEmail,
			Phone: form.OwnerPhone,
		},
	}
	if form.Title != "" {
		input.Title = &form.Title
	}
	if form.Address != "" {
		input.Address = &form.Address
	}
	if form.Province != "" {
		input.Province = &form.Province
	}
	input.Price = form.Price

	result, err := h.service.Intake(c.Request.Context(), input)
	if err != nil {
		h.renderIntakeError(c, err)
		return
	}

	response := IntakeResponse{
		Record:     result.Record,
		Extraction: result.Extraction,
		Truncated:  result.Truncated,
	}

	if result.Parcel == nil {
		// Partial record: surface the raw data so the user can complete it.
		c.JSON(http.StatusUnprocessableEntity, response)
		return
	}

	response.Parcel = result.Parcel
	if result.Location != nil {
		response.Location = &LocationData{
			Lat:    result.Location.Lat,
			Lon:    result.Location.Lon,
			Source: string(result.Location.Source),
		}
	}
	c.JSON(http.StatusCreated, response)
}

// renderIntakeError maps pipeline errors onto stable response categories.
// Provider-specific detail stays in the logs.
func (h *IntakeHandler) renderIntakeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, normalizer.ErrUnsupportedFormat):
		apierrors.BadRequest(c, "Unsupported document format; upload an image or a PDF", nil)
	case errors.Is(err, normalizer.ErrCorruptDocument):
		apierrors.BadRequest(c, "The document could not be decoded", nil)
	case errors.Is(err, normalizer.ErrEmptyDocument):
		apierrors.BadRequest(c, "The document is empty", nil)
	case errors.Is(err, extractor.ErrQuotaExceeded):
		apierrors.TooManyRequests(c, "The extraction service is over quota; try again later")
	case errors.Is(err, extractor.ErrModelUnavailable):
		apierrors.ServiceUnavailable(c, "The extraction service is unavailable; try again later", err)
	case errors.Is(err, extractor.ErrUnparseableResponse):
		apierrors.UnprocessableEntity(c, "The document did not yield a readable cadastral record", nil)
	case errors.Is(err, repository.ErrInvalidRecord):
		apierrors.BadRequest(c, err.Error(), nil)
	default:
		apierrors.InternalServerError(c, "Failed to process the document", err)
	}
}
