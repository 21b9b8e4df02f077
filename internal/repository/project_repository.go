package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/parcelaria/api/internal/database"
	"github.com/parcelaria/api/internal/models"
)

// ProjectRepository defines the interface for architectural project data
// access operations.
type ProjectRepository interface {
	// Create persists a new project.
	Create(ctx context.Context, project *models.Project) error

	// FindByID returns the project with the given id, or nil, nil.
	FindByID(ctx context.Context, id uint) (*models.Project, error)

	// ListActive returns every active project ordered by id.
	ListActive(ctx context.Context) ([]models.Project, error)

	// List returns every project, active or not, ordered by id.
	List(ctx context.Context) ([]models.Project, error)
}

type projectRepository struct {
	db *database.Database
}

// NewProjectRepository creates a new instance of ProjectRepository.
func NewProjectRepository(db *database.Database) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	if err := r.db.DB.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *projectRepository) FindByID(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	err := r.db.DB.WithContext(ctx).First(&project, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project %d: %w", id, err)
	}
	return &project, nil
}

func (r *projectRepository) ListActive(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active projects: %w", err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

func (r *projectRepository) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := r.db.DB.WithContext(ctx).Order("id ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}
