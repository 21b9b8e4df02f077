package repository

import (
	"context"
	"fmt"

	"github.com/parcelaria/api/internal/database"
	"github.com/parcelaria/api/internal/models"
)

// ExtractionRepository persists the audit trail of extraction attempts.
// Every attempt is recorded, including failures.
type ExtractionRepository interface {
	// Record persists one extraction attempt.
	Record(ctx context.Context, extraction *models.Extraction) error

	// ListByDocumentHash returns the attempts for a document, newest first.
	ListByDocumentHash(ctx context.Context, hash string) ([]models.Extraction, error)
}

type extractionRepository struct {
	db *database.Database
}

// NewExtractionRepository creates a new instance of ExtractionRepository.
func NewExtractionRepository(db *database.Database) ExtractionRepository {
	return &extractionRepository{db: db}
}

func (r *extractionRepository) Record(ctx context.Context, extraction *models.Extraction) error {
	if err := r.db.DB.WithContext(ctx).Create(extraction).Error; err != nil {
		return fmt.Errorf("failed to record extraction attempt: %w", err)
	}
	return nil
}

func (r *extractionRepository) ListByDocumentHash(ctx context.Context, hash string) ([]models.Extraction, error) {
	var extractions []models.Extraction
	err := r.db.DB.WithContext(ctx).
		Where("document_hash = ?", hash).
		Order("extracted_at DESC, id DESC").
		Find(&extractions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list extractions for %s: %w", hash, err)
	}
	if extractions == nil {
		extractions = []models.Extraction{}
	}
	return extractions, nil
}
