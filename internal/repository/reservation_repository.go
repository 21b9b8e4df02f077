package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelaria/api/internal/database"
	"github.com/parcelaria/api/internal/models"
)

// ReservationRepository handles project purchases and reservation lookups.
// Parcel-targeted reservations go through ParcelRepository.AttachReservation
// because they carry a status transition.
type ReservationRepository interface {
	// CreateProjectPurchase records a purchase of an architectural project.
	CreateProjectPurchase(ctx context.Context, res *models.Reservation) error

	// FindByID returns the reservation with the given id, or nil, nil.
	FindByID(ctx context.Context, id string) (*models.Reservation, error)

	// PurchasedProjectIDs returns the ids of projects the buyer has already
	// purchased. Cancelled tuples are excluded.
	PurchasedProjectIDs(ctx context.Context, buyerEmail string) ([]uint, error)
}

type reservationRepository struct {
	db *database.Database
}

// NewReservationRepository creates a new instance of ReservationRepository.
func NewReservationRepository(db *database.Database) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) CreateProjectPurchase(ctx context.Context, res *models.Reservation) error {
	if res.ProjectID == nil {
		return fmt.Errorf("%w: project id is required", ErrInvalidRecord)
	}
	if res.BuyerEmail == "" {
		return fmt.Errorf("%w: buyer email is required", ErrInvalidRecord)
	}
	res.Kind = models.KindPurchase
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if err := r.db.DB.WithContext(ctx).Create(res).Error; err != nil {
		return fmt.Errorf("failed to record project purchase: %w", err)
	}
	return nil
}

func (r *reservationRepository) FindByID(ctx context.Context, id string) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.DB.WithContext(ctx).Where("id = ?", id).First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reservation %s: %w", id, err)
	}
	return &res, nil
}

func (r *reservationRepository) PurchasedProjectIDs(ctx context.Context, buyerEmail string) ([]uint, error) {
	var ids []uint
	err := r.db.DB.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("buyer_email = ? AND kind = ? AND cancelled = ? AND project_id IS NOT NULL",
			buyerEmail, models.KindPurchase, false).
		Pluck("project_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases for %s: %w", buyerEmail, err)
	}
	return ids, nil
}
