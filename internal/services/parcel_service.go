package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/repository"
)

// ErrParcelNotFound is returned when no parcel matches the lookup key.
var ErrParcelNotFound = errors.New("parcel not found")

// ReservationInput carries the buyer details for a reservation or purchase.
type ReservationInput struct {
	BuyerEmail string
	BuyerName  string
	Amount     float64
	Kind       models.ReservationKind
}

// ParcelService defines the interface for parcel business logic operations.
type ParcelService interface {
	// GetByReference retrieves a parcel by its cadastral reference.
	// Returns ErrParcelNotFound if no parcel exists.
	GetByReference(ctx context.Context, ref string) (*models.Parcel, error)

	// ListPublished returns published parcels matching the filters.
	// Returns empty slice if no parcels found (not an error).
	ListPublished(ctx context.Context, filters repository.ListFilters) ([]models.Parcel, error)

	// ChangeStatus moves a parcel through its lifecycle.
	// Returns repository.ErrInvalidTransition for illegal moves.
	ChangeStatus(ctx context.Context, parcelID uint, next models.ParcelStatus) (*models.Parcel, error)

	// Reserve records a reservation or purchase against a parcel and applies
	// the implied status transition.
	Reserve(ctx context.Context, parcelID uint, input ReservationInput) (*models.Reservation, error)

	// CancelReservation voids a reservation and republishes the parcel.
	CancelReservation(ctx context.Context, reservationID string) error
}

// parcelService is the concrete implementation of ParcelService.
type parcelService struct {
	repo repository.ParcelRepository
	log  *logger.Logger
}

// NewParcelService creates a new instance of ParcelService.
func NewParcelService(repo repository.ParcelRepository, log *logger.Logger) ParcelService {
	return &parcelService{
		repo: repo,
		log:  log,
	}
}

func (s *parcelService) GetByReference(ctx context.Context, ref string) (*models.Parcel, error) {
	parcel, err := s.repo.FindByReference(ctx, ref)
	if err != nil {
		s.log.Error("Failed to query parcel by reference", err, map[string]interface{}{
			"reference": ref,
		})
		return nil, fmt.Errorf("failed to query parcel: %w", err)
	}
	if parcel == nil {
		return nil, ErrParcelNotFound
	}
	return parcel, nil
}

func (s *parcelService) ListPublished(ctx context.Context, filters repository.ListFilters) ([]models.Parcel, error) {
	parcels, err := s.repo.ListPublished(ctx, filters)
	if err != nil {
		s.log.Error("Failed to list published parcels", err, nil)
		return nil, fmt.Errorf("failed to list parcels: %w", err)
	}

	s.log.Debug("Published parcels listed", map[string]interface{}{
		"count": len(parcels),
	})
	return parcels, nil
}

func (s *parcelService) ChangeStatus(ctx context.Context, parcelID uint, next models.ParcelStatus) (*models.Parcel, error) {
	parcel, err := s.repo.TransitionStatus(ctx, parcelID, next)
	if err != nil {
		return nil, err
	}

	s.log.Info("Parcel status changed", map[string]interface{}{
		"parcel_id": parcelID,
		"status":    next,
	})
	return parcel, nil
}

func (s *parcelService) Reserve(ctx context.Context, parcelID uint, input ReservationInput) (*models.Reservation, error) {
	res, err := s.repo.AttachReservation(ctx, parcelID, &models.Reservation{
		BuyerEmail: input.BuyerEmail,
		BuyerName:  input.BuyerName,
		Amount:     input.Amount,
		Kind:       input.Kind,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Reservation recorded", map[string]interface{}{
		"parcel_id":      parcelID,
		"reservation_id": res.ID,
		"kind":           res.Kind,
	})
	return res, nil
}

func (s *parcelService) CancelReservation(ctx context.Context, reservationID string) error {
	if err := s.repo.CancelReservation(ctx, reservationID); err != nil {
		return err
	}

	s.log.Info("Reservation cancelled", map[string]interface{}{
		"reservation_id": reservationID,
	})
	return nil
}
