package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/matching"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/repository"
)

// ErrInvalidProject is returned when a project record violates its invariants.
var ErrInvalidProject = errors.New("invalid project")

// CompatibilityQuery is the client-facing input to Compatible. Exactly one of
// ParcelID or ClientParcelSizeM2 drives the envelope.
type CompatibilityQuery struct {
	ParcelID           *uint
	ClientParcelSizeM2 *float64
	BudgetMax          *float64
	DesiredAreaM2      *float64
	ClientEmail        string
	PropertyType       string
}

// ProjectService defines the interface for project business logic operations.
type ProjectService interface {
	// Create validates and persists a new project.
	Create(ctx context.Context, project *models.Project) error

	// List returns every project.
	List(ctx context.Context) ([]models.Project, error)

	// Compatible returns the projects compatible with the query, ordered
	// deterministically. Returns ErrParcelNotFound when ParcelID does not
	// resolve.
	Compatible(ctx context.Context, query CompatibilityQuery) ([]models.Project, error)

	// Purchase records a completed purchase of a project by a buyer, which
	// excludes the project from that buyer's future compatibility results.
	Purchase(ctx context.Context, projectID uint, buyerEmail, buyerName string, amount float64) (*models.Reservation, error)
}

type projectService struct {
	projects     repository.ProjectRepository
	parcels      repository.ParcelRepository
	reservations repository.ReservationRepository
	engine       *matching.Engine
	log          *logger.Logger
}

// NewProjectService creates a new instance of ProjectService.
func NewProjectService(
	projects repository.ProjectRepository,
	parcels repository.ParcelRepository,
	reservations repository.ReservationRepository,
	engine *matching.Engine,
	log *logger.Logger,
) ProjectService {
	return &projectService{
		projects:     projects,
		parcels:      parcels,
		reservations: reservations,
		engine:       engine,
		log:          log,
	}
}

func (s *projectService) Create(ctx context.Context, project *models.Project) error {
	if project.BuiltM2 <= 0 {
		return fmt.Errorf("%w: built surface must be positive, got %g", ErrInvalidProject, project.BuiltM2)
	}
	if project.MinParcelM2 != nil && project.MaxParcelM2 != nil && *project.MinParcelM2 > *project.MaxParcelM2 {
		return fmt.Errorf("%w: min parcel surface %g exceeds max %g",
			ErrInvalidProject, *project.MinParcelM2, *project.MaxParcelM2)
	}

	if err := s.projects.Create(ctx, project); err != nil {
		s.log.Error("Failed to create project", err, map[string]interface{}{
			"title": project.Title,
		})
		return err
	}

	s.log.Info("Project created", map[string]interface{}{
		"project_id": project.ID,
		"title":      project.Title,
		"built_m2":   project.BuiltM2,
	})
	return nil
}

func (s *projectService) List(ctx context.Context) ([]models.Project, error) {
	return s.projects.List(ctx)
}

func (s *projectService) Compatible(ctx context.Context, query CompatibilityQuery) ([]models.Project, error) {
	constraints := matching.Constraints{
		ClientParcelSizeM2: query.ClientParcelSizeM2,
		BudgetMax:          query.BudgetMax,
		DesiredAreaM2:      query.DesiredAreaM2,
		ClientEmail:        query.ClientEmail,
		PropertyType:       query.PropertyType,
	}

	if query.ParcelID != nil {
		parcel, err := s.parcels.FindByID(ctx, *query.ParcelID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parcel: %w", err)
		}
		if parcel == nil {
			return nil, ErrParcelNotFound
		}
		constraints.Parcel = parcel
		constraints.ClientParcelSizeM2 = nil
	}

	return s.engine.Match(ctx, constraints)
}

func (s *projectService) Purchase(ctx context.Context, projectID uint, buyerEmail, buyerName string, amount float64) (*models.Reservation, error) {
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %d", ErrInvalidProject, projectID)
	}

	res := &models.Reservation{
		ProjectID:  &projectID,
		BuyerEmail: buyerEmail,
		BuyerName:  buyerName,
		Amount:     amount,
	}
	if err := s.reservations.CreateProjectPurchase(ctx, res); err != nil {
		return nil, err
	}

	s.log.Info("Project purchased", map[string]interface{}{
		"project_id":     projectID,
		"reservation_id": res.ID,
	})
	return res, nil
}
