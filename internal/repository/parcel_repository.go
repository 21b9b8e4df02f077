package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelaria/api/internal/buildability"
	"github.com/parcelaria/api/internal/database"
	"github.com/parcelaria/api/internal/models"
)

// Repository-level errors.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRecord     = errors.New("invalid parcel record")
	ErrUnknownFilter     = errors.New("unknown filter key")
)

// OwnerContact carries the contact details attached to a parcel on intake.
type OwnerContact struct {
	Name  string
	Email string
	Phone string
}

// UpsertInput is the canonical input to Upsert. Pointer fields follow the
// non-null update rule: nil leaves the stored value untouched.
type UpsertInput struct {
	CadastralReference string
	SurfaceM2          float64
	Municipality       *string
	Title              *string
	Address            *string
	Province           *string
	Price              *float64
	Lat                *float64
	Lon                *float64
	SoilType           models.SoilType
	Vertices           models.VertexList
	Owner              OwnerContact
	DocumentPath       string
	Ratio              float64
}

// ListFilters is the closed filter set accepted by ListPublished.
type ListFilters struct {
	Province     *string
	Municipality *string
	MinSurfaceM2 *float64
	MaxSurfaceM2 *float64
	MinPrice     *float64
	MaxPrice     *float64
	Query        *string
}

// ParcelRepository defines the interface for parcel data access operations.
// It is the only component that opens the parcel store.
type ParcelRepository interface {
	// Upsert inserts a parcel keyed by cadastral reference, or updates the
	// existing row's non-null fields. Derived fields are always recomputed;
	// status is preserved on update, and a draft parcel that meets every
	// publication invariant is published. Writes for the same reference are
	// serialized.
	Upsert(ctx context.Context, input UpsertInput) (*models.Parcel, error)

	// FindByReference returns the parcel with the given cadastral reference.
	// Returns nil, nil if no parcel is found (not an error).
	FindByReference(ctx context.Context, ref string) (*models.Parcel, error)

	// FindByID returns the parcel with the given id, or nil, nil.
	FindByID(ctx context.Context, id uint) (*models.Parcel, error)

	// ListPublished returns published parcels matching the filters, newest
	// first. Only parcels with both coordinates present are returned.
	ListPublished(ctx context.Context, filters ListFilters) ([]models.Parcel, error)

	// TransitionStatus moves a parcel through the lifecycle state machine.
	// Illegal transitions are rejected with ErrInvalidTransition.
	TransitionStatus(ctx context.Context, parcelID uint, next models.ParcelStatus) (*models.Parcel, error)

	// AttachReservation records a reservation tuple against a parcel and
	// applies the implied status transition (reservation -> reserved,
	// purchase -> sold) atomically.
	AttachReservation(ctx context.Context, parcelID uint, res *models.Reservation) (*models.Reservation, error)

	// CancelReservation voids a parcel reservation and returns the parcel
	// to published.
	CancelReservation(ctx context.Context, reservationID string) error
}

// parcelRepository is the concrete implementation of ParcelRepository.
type parcelRepository struct {
	db    *database.Database
	locks *refLocks
}

// NewParcelRepository creates a new instance of ParcelRepository.
func NewParcelRepository(db *database.Database) ParcelRepository {
	return &parcelRepository{
		db:    db,
		locks: newRefLocks(),
	}
}

// Upsert implements the insert-or-update described on the interface. The
// per-reference lock makes concurrent upserts for the same reference
// last-write-wins on non-null fields instead of a constraint race.
func (r *parcelRepository) Upsert(ctx context.Context, input UpsertInput) (*models.Parcel, error) {
	ref := strings.ToUpper(strings.TrimSpace(input.CadastralReference))
	if ref == "" {
		return nil, fmt.Errorf("%w: cadastral reference is empty", ErrInvalidRecord)
	}
	if input.SurfaceM2 <= 0 {
		return nil, fmt.Errorf("%w: surface must be positive, got %g", ErrInvalidRecord, input.SurfaceM2)
	}
	if (input.Lat == nil) != (input.Lon == nil) {
		return nil, fmt.Errorf("%w: lat and lon must be both present or both absent", ErrInvalidRecord)
	}

	unlock := r.locks.lock(ref)
	defer unlock()

	var result *models.Parcel
	err := r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Parcel
		err := tx.Where("cadastral_reference = ?", ref).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			parcel, err := r.insert(tx, ref, input)
			if err != nil {
				return err
			}
			result = parcel
			return nil
		case err != nil:
			return fmt.Errorf("failed to query parcel %s: %w", ref, err)
		default:
			parcel, err := r.update(tx, &existing, input)
			if err != nil {
				return err
			}
			result = parcel
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *parcelRepository) insert(tx *gorm.DB, ref string, input UpsertInput) (*models.Parcel, error) {
	parcel := &models.Parcel{
		CadastralReference: ref,
		SurfaceM2:          input.SurfaceM2,
		Municipality:       input.Municipality,
		Title:              input.Title,
		Address:            input.Address,
		Province:           input.Province,
		Price:              input.Price,
		Lat:                input.Lat,
		Lon:                input.Lon,
		Vertices:           input.Vertices,
		SoilType:           input.SoilType,
		Status:             models.StatusDraft,
	}
	if parcel.SoilType == "" {
		parcel.SoilType = models.SoilUnknown
	}
	if parcel.Title == nil {
		title := fmt.Sprintf("Parcela %s", defaultTitleLocation(input))
		parcel.Title = &title
	}
	applyOwner(parcel, input.Owner)
	if input.DocumentPath != "" {
		parcel.SourceDocumentPath = &input.DocumentPath
	}

	if err := recomputeDerived(parcel, input.Ratio); err != nil {
		return nil, err
	}
	if parcel.Publishable() {
		parcel.Status = models.StatusPublished
	}

	if err := tx.Create(parcel).Error; err != nil {
		return nil, fmt.Errorf("failed to insert parcel %s: %w", ref, err)
	}
	return parcel, nil
}

// update applies the non-null fields of input over the stored parcel.
// Status is preserved except for the draft auto-publish rule.
func (r *parcelRepository) update(tx *gorm.DB, existing *models.Parcel, input UpsertInput) (*models.Parcel, error) {
	if input.SurfaceM2 > 0 {
		existing.SurfaceM2 = input.SurfaceM2
	}
	if input.Municipality != nil {
		existing.Municipality = input.Municipality
	}
	if input.Title != nil {
		existing.Title = input.Title
	}
	if input.Address != nil {
		existing.Address = input.Address
	}
	if input.Province != nil {
		existing.Province = input.Province
	}
	if input.Price != nil {
		existing.Price = input.Price
	}
	if input.Lat != nil && input.Lon != nil {
		existing.Lat = input.Lat
		existing.Lon = input.Lon
	}
	if input.Vertices != nil {
		existing.Vertices = input.Vertices
	}
	if input.SoilType != "" && input.SoilType != models.SoilUnknown {
		existing.SoilType = input.SoilType
	}
	if input.Owner.Email != "" {
		applyOwner(existing, input.Owner)
	}
	if input.DocumentPath != "" {
		existing.SourceDocumentPath = &input.DocumentPath
	}

	if err := recomputeDerived(existing, input.Ratio); err != nil {
		return nil, err
	}
	if existing.Status == models.StatusDraft && existing.Publishable() {
		existing.Status = models.StatusPublished
	}

	if err := tx.Save(existing).Error; err != nil {
		return nil, fmt.Errorf("failed to update parcel %s: %w", existing.CadastralReference, err)
	}
	return existing, nil
}

// recomputeDerived refreshes buildable_m2 and the virtual plot from the
// current surface. Persisted for query speed, recomputed on every upsert.
func recomputeDerived(parcel *models.Parcel, ratio float64) error {
	if ratio <= 0 {
		ratio = parcel.Ratio()
	}
	envelope, err := buildability.Compute(parcel, ratio)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	parcel.BuildableM2 = envelope.MaxBuildableM2
	parcel.VirtualPlot = envelope.VirtualPlot
	return nil
}

func applyOwner(parcel *models.Parcel, owner OwnerContact) {
	if owner.Name != "" {
		parcel.OwnerName = &owner.Name
	}
	if owner.Email != "" {
		parcel.OwnerEmail = &owner.Email
	}
	if owner.Phone != "" {
		parcel.OwnerPhone = &owner.Phone
	}
}

func defaultTitleLocation(input UpsertInput) string {
	if input.Municipality != nil && *input.Municipality != "" {
		return "en " + *input.Municipality
	}
	return input.CadastralReference
}

// FindByReference queries the store for a parcel by its cadastral reference.
func (r *parcelRepository) FindByReference(ctx context.Context, ref string) (*models.Parcel, error) {
	var parcel models.Parcel
	err := r.db.DB.WithContext(ctx).
		Where("cadastral_reference = ?", strings.ToUpper(strings.TrimSpace(ref))).
		First(&parcel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query parcel by reference %s: %w", ref, err)
	}
	return &parcel, nil
}

// FindByID queries the store for a parcel by primary key.
func (r *parcelRepository) FindByID(ctx context.Context, id uint) (*models.Parcel, error) {
	var parcel models.Parcel
	err := r.db.DB.WithContext(ctx).First(&parcel, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query parcel %d: %w", id, err)
	}
	return &parcel, nil
}

// ListPublished returns published parcels with coordinates matching the
// filter set, newest first.
func (r *parcelRepository) ListPublished(ctx context.Context, filters ListFilters) ([]models.Parcel, error) {
	query := r.db.DB.WithContext(ctx).
		Where("status = ?", models.StatusPublished).
		Where("lat IS NOT NULL AND lon IS NOT NULL")

	if filters.Province != nil && *filters.Province != "" {
		query = query.Where("province = ?", *filters.Province)
	}
	if filters.Municipality != nil && *filters.Municipality != "" {
		query = query.Where("LOWER(municipality) LIKE ?", "%"+strings.ToLower(*filters.Municipality)+"%")
	}
	if filters.MinSurfaceM2 != nil {
		query = query.Where("surface_m2 >= ?", *filters.MinSurfaceM2)
	}
	if filters.MaxSurfaceM2 != nil {
		query = query.Where("surface_m2 <= ?", *filters.MaxSurfaceM2)
	}
	if filters.MinPrice != nil {
		query = query.Where("price >= ?", *filters.MinPrice)
	}
	if filters.MaxPrice != nil {
		query = query.Where("price <= ?", *filters.MaxPrice)
	}
	if filters.Query != nil && *filters.Query != "" {
		needle := "%" + strings.ToLower(*filters.Query) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(address) LIKE ? OR LOWER(cadastral_reference) LIKE ?",
			needle, needle, needle,
		)
	}

	var parcels []models.Parcel
	if err := query.Order("created_at DESC, id DESC").Find(&parcels).Error; err != nil {
		return nil, fmt.Errorf("failed to list published parcels: %w", err)
	}
	if parcels == nil {
		parcels = []models.Parcel{}
	}
	return parcels, nil
}

// TransitionStatus enforces the lifecycle state machine.
func (r *parcelRepository) TransitionStatus(ctx context.Context, parcelID uint, next models.ParcelStatus) (*models.Parcel, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	var result *models.Parcel
	err := r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parcel models.Parcel
		if err := tx.First(&parcel, parcelID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: parcel %d not found", ErrInvalidTransition, parcelID)
			}
			return fmt.Errorf("failed to load parcel %d: %w", parcelID, err)
		}

		if !parcel.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, parcel.Status, next)
		}
		if next == models.StatusPublished && !parcel.Publishable() {
			return fmt.Errorf("%w: parcel %d does not meet publication invariants", ErrInvalidTransition, parcelID)
		}

		parcel.Status = next
		if err := tx.Save(&parcel).Error; err != nil {
			return fmt.Errorf("failed to persist status of parcel %d: %w", parcelID, err)
		}
		result = &parcel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AttachReservation records the tuple and applies the implied transition in
// one transaction so a failed transition never leaves an orphan row.
func (r *parcelRepository) AttachReservation(ctx context.Context, parcelID uint, res *models.Reservation) (*models.Reservation, error) {
	if !res.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown reservation kind %q", ErrInvalidRecord, res.Kind)
	}
	if res.BuyerEmail == "" {
		return nil, fmt.Errorf("%w: buyer email is required", ErrInvalidRecord)
	}

	next := models.StatusReserved
	if res.Kind == models.KindPurchase {
		next = models.StatusSold
	}

	err := r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parcel models.Parcel
		if err := tx.First(&parcel, parcelID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: parcel %d not found", ErrInvalidTransition, parcelID)
			}
			return fmt.Errorf("failed to load parcel %d: %w", parcelID, err)
		}

		if !parcel.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, parcel.Status, next)
		}

		if res.ID == "" {
			res.ID = uuid.New().String()
		}
		res.ParcelID = &parcelID
		if err := tx.Create(res).Error; err != nil {
			return fmt.Errorf("failed to record reservation: %w", err)
		}

		parcel.Status = next
		if err := tx.Save(&parcel).Error; err != nil {
			return fmt.Errorf("failed to persist status of parcel %d: %w", parcelID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CancelReservation voids the reservation and returns the parcel to
// published. Purchases are terminal and cannot be cancelled.
func (r *parcelRepository) CancelReservation(ctx context.Context, reservationID string) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var res models.Reservation
		if err := tx.Where("id = ?", reservationID).First(&res).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: reservation %s not found", ErrInvalidTransition, reservationID)
			}
			return fmt.Errorf("failed to load reservation %s: %w", reservationID, err)
		}

		if res.Kind != models.KindReservation {
			return fmt.Errorf("%w: %s cannot be cancelled", ErrInvalidTransition, res.Kind)
		}
		if res.Cancelled {
			return fmt.Errorf("%w: reservation %s already cancelled", ErrInvalidTransition, reservationID)
		}
		if res.ParcelID == nil {
			return fmt.Errorf("%w: reservation %s has no parcel", ErrInvalidTransition, reservationID)
		}

		var parcel models.Parcel
		if err := tx.First(&parcel, *res.ParcelID).Error; err != nil {
			return fmt.Errorf("failed to load parcel %d: %w", *res.ParcelID, err)
		}
		if !parcel.Status.CanTransitionTo(models.StatusPublished) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, parcel.Status, models.StatusPublished)
		}

		res.Cancelled = true
		if err := tx.Save(&res).Error; err != nil {
			return fmt.Errorf("failed to void reservation %s: %w", reservationID, err)
		}

		parcel.Status = models.StatusPublished
		if err := tx.Save(&parcel).Error; err != nil {
			return fmt.Errorf("failed to persist status of parcel %d: %w", parcel.ID, err)
		}
		return nil
	})
}
