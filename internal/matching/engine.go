// Package matching implements the compatibility engine: given a parcel
// envelope (or raw client constraints) it returns the architectural projects
// that fit, in a deterministic order.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/repository"
)

// ErrInvalidConstraint is returned for malformed client constraints.
var ErrInvalidConstraint = errors.New("invalid matching constraint")

// Constraints is the client-side input bundle. Exactly one of Parcel or
// ClientParcelSizeM2 must drive the envelope; everything else is optional.
type Constraints struct {
	Parcel             *models.Parcel
	ClientParcelSizeM2 *float64
	BudgetMax          *float64
	DesiredAreaM2      *float64
	ClientEmail        string
	PropertyType       string
}

// Engine matches projects against parcel envelopes. It is read-only over the
// repositories and never retries.
type Engine struct {
	projects     repository.ProjectRepository
	reservations repository.ReservationRepository
	log          *logger.Logger
}

// NewEngine creates a compatibility engine.
func NewEngine(projects repository.ProjectRepository, reservations repository.ReservationRepository, log *logger.Logger) *Engine {
	return &Engine{
		projects:     projects,
		reservations: reservations,
		log:          log,
	}
}

// Match returns the active projects compatible with the constraints. The
// result is ordered by price ascending with unpriced projects last, then by
// built surface, then by project id. A constraint set that nothing matches
// yields an empty list, not an error.
func (e *Engine) Match(ctx context.Context, c Constraints) ([]models.Project, error) {
	if c.BudgetMax != nil && *c.BudgetMax < 0 {
		return nil, fmt.Errorf("%w: budget must be non-negative, got %g", ErrInvalidConstraint, *c.BudgetMax)
	}
	if c.DesiredAreaM2 != nil && *c.DesiredAreaM2 < 0 {
		return nil, fmt.Errorf("%w: desired area must be non-negative, got %g", ErrInvalidConstraint, *c.DesiredAreaM2)
	}

	envelope, ok, err := e.envelope(c)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A zero-sized parcel admits no project.
		return []models.Project{}, nil
	}

	candidates, err := e.projects.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var purchased map[uint]bool
	if c.ClientEmail != "" {
		ids, err := e.reservations.PurchasedProjectIDs(ctx, c.ClientEmail)
		if err != nil {
			return nil, err
		}
		purchased = make(map[uint]bool, len(ids))
		for _, id := range ids {
			purchased[id] = true
		}
	}

	matched := make([]models.Project, 0, len(candidates))
	for _, project := range candidates {
		if !e.accepts(project, envelope, c, purchased) {
			continue
		}
		matched = append(matched, project)
	}

	sortProjects(matched)

	e.log.Debug("Compatibility query resolved", map[string]interface{}{
		"envelope_m2": envelope,
		"candidates":  len(candidates),
		"matched":     len(matched),
	})
	return matched, nil
}

// envelope derives the buildable envelope in m2. ok is false when the
// envelope is zero, which short-circuits to an empty result.
func (e *Engine) envelope(c Constraints) (float64, bool, error) {
	switch {
	case c.Parcel != nil:
		if c.Parcel.BuildableM2 <= 0 {
			return 0, false, nil
		}
		return c.Parcel.BuildableM2, true, nil
	case c.ClientParcelSizeM2 != nil:
		size := *c.ClientParcelSizeM2
		if size < 0 {
			return 0, false, fmt.Errorf("%w: parcel size must be non-negative, got %g", ErrInvalidConstraint, size)
		}
		if size == 0 {
			return 0, false, nil
		}
		return size * models.DefaultEdificabilityRatio, true, nil
	default:
		return 0, false, fmt.Errorf("%w: either a parcel or a parcel size is required", ErrInvalidConstraint)
	}
}

// accepts applies the filter chain to one candidate. The repository already
// restricted the candidate set to active projects.
func (e *Engine) accepts(project models.Project, envelope float64, c Constraints, purchased map[uint]bool) bool {
	if c.PropertyType != "" && project.PropertyType != nil {
		if !strings.Contains(strings.ToLower(*project.PropertyType), strings.ToLower(c.PropertyType)) {
			return false
		}
	}

	if project.BuiltM2 > envelope {
		return false
	}

	if c.BudgetMax != nil && project.PriceTotal != nil && *project.PriceTotal > *c.BudgetMax {
		return false
	}

	if c.DesiredAreaM2 != nil {
		lo, hi := 0.8**c.DesiredAreaM2, 1.2**c.DesiredAreaM2
		if project.BuiltM2 < lo || project.BuiltM2 > hi {
			return false
		}
	}

	if purchased != nil && purchased[project.ID] {
		return false
	}

	return true
}

// sortProjects orders by (price_total asc nulls last, built_m2 asc, id asc).
func sortProjects(projects []models.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		a, b := projects[i], projects[j]
		switch {
		case a.PriceTotal != nil && b.PriceTotal != nil && *a.PriceTotal != *b.PriceTotal:
			return *a.PriceTotal < *b.PriceTotal
		case a.PriceTotal != nil && b.PriceTotal == nil:
			return true
		case a.PriceTotal == nil && b.PriceTotal != nil:
			return false
		}
		if a.BuiltM2 != b.BuiltM2 {
			return a.BuiltM2 < b.BuiltM2
		}
		return a.ID < b.ID
	})
}
