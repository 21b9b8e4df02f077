package services

import (
	"context"

	"github.com/parcelaria/api/internal/extractor"
	"github.com/parcelaria/api/internal/geocoder"
	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/normalizer"
	"github.com/parcelaria/api/internal/repository"
)

// IntakeInput is one uploaded document plus the listing details that do not
// come from the document itself.
type IntakeInput struct {
	Document     []byte
	ContentType  string
	DocumentPath string
	Title        *string
	Address      *string
	Province     *string
	Price        *float64
	SoilType     models.SoilType
	Owner        repository.OwnerContact
}

// IntakeResult is the outcome of one intake. Parcel is nil when the extracted
// record was incomplete; the caller then has Record and Extraction to present
// for manual completion.
type IntakeResult struct {
	Parcel     *models.Parcel
	Record     *models.ParsedRecord
	Extraction *models.Extraction
	Location   *geocoder.Location
	Truncated  bool
}

// IntakeService runs the document-to-parcel pipeline: normalize, extract,
// geocode, upsert.
type IntakeService interface {
	// Intake processes one document end to end. Typed errors from the
	// normalizer or the vision model surface to the caller and leave the
	// parcel store untouched; the extraction audit record is persisted on
	// every model attempt regardless of outcome.
	Intake(ctx context.Context, input IntakeInput) (*IntakeResult, error)
}

type intakeService struct {
	normalizer  *normalizer.Normalizer
	extractor   *extractor.Extractor
	geocoder    *geocoder.Geocoder
	parcels     repository.ParcelRepository
	extractions repository.ExtractionRepository
	ratio       float64
	log         *logger.Logger
}

// NewIntakeService wires the pipeline stages together. ratio is the default
// edificability ratio applied when a parcel has no override.
func NewIntakeService(
	n *normalizer.Normalizer,
	e *extractor.Extractor,
	g *geocoder.Geocoder,
	parcels repository.ParcelRepository,
	extractions repository.ExtractionRepository,
	ratio float64,
	log *logger.Logger,
) IntakeService {
	return &intakeService{
		normalizer:  n,
		extractor:   e,
		geocoder:    g,
		parcels:     parcels,
		extractions: extractions,
		ratio:       ratio,
		log:         log,
	}
}

// Intake runs the pipeline stages in order. The stages before the repository
// upsert have no side effects on the parcel store, so a failure anywhere in
// them leaves previously stored parcels untouched.
func (s *intakeService) Intake(ctx context.Context, input IntakeInput) (*IntakeResult, error) {
	family := normalizer.FamilyFromContentType(input.ContentType)
	normalized, err := s.normalizer.Normalize(input.Document, family)
	if err != nil {
		s.log.Warn("Document normalization failed", map[string]interface{}{
			"content_type": input.ContentType,
			"error":        err.Error(),
		})
		return nil, err
	}

	hash := extractor.DocumentHash(input.Document)
	s.log.Info("Document normalized", map[string]interface{}{
		"document_hash": hash,
		"pages":         len(normalized.Pages),
		"truncated":     normalized.Truncated,
	})

	extracted, extractErr := s.extractor.Extract(ctx, hash, normalized.Pages)

	// The audit trail keeps failed attempts too.
	if extracted != nil && extracted.Audit != nil {
		if recErr := s.extractions.Record(ctx, extracted.Audit); recErr != nil {
			s.log.Error("Failed to persist extraction audit", recErr, map[string]interface{}{
				"document_hash": hash,
			})
		}
	}
	if extractErr != nil {
		return nil, extractErr
	}

	record := extracted.Record
	if !record.Complete() {
		s.log.Warn("Extraction produced a partial record", map[string]interface{}{
			"document_hash": hash,
			"missing":       record.Missing,
		})
		return &IntakeResult{
			Record:     record,
			Extraction: extracted.Audit,
			Truncated:  normalized.Truncated,
		}, nil
	}

	location := s.geocoder.Resolve(ctx, geocoder.Query{
		Address:      deref(input.Address),
		Municipality: record.Municipality,
		Province:     deref(input.Province),
	})

	parcel, err := s.parcels.Upsert(ctx, repository.UpsertInput{
		CadastralReference: record.Reference,
		SurfaceM2:          record.SurfaceM2,
		Municipality:       &record.Municipality,
		Title:              input.Title,
		Address:            input.Address,
		Province:           input.Province,
		Price:              input.Price,
		Lat:                &location.Lat,
		Lon:                &location.Lon,
		SoilType:           input.SoilType,
		Vertices:           record.Vertices,
		Owner:              input.Owner,
		DocumentPath:       input.DocumentPath,
		Ratio:              s.ratio,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Parcel intake completed", map[string]interface{}{
		"reference":      parcel.CadastralReference,
		"status":         parcel.Status,
		"buildable_m2":   parcel.BuildableM2,
		"geocode_source": location.Source,
	})

	return &IntakeResult{
		Parcel:     parcel,
		Record:     record,
		Extraction: extracted.Audit,
		Location:   &location,
		Truncated:  normalized.Truncated,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
