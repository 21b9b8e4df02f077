package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelaria/api/internal/database"
	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/repository"
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	engine       *Engine
	projects     repository.ProjectRepository
	reservations repository.ReservationRepository
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects := repository.NewProjectRepository(db)
	reservations := repository.NewReservationRepository(db)
	return &fixture{
		engine:       NewEngine(projects, reservations, logger.New("test")),
		projects:     projects,
		reservations: reservations,
	}
}

// seedCatalog loads the three-project catalog used by the envelope tests:
// A fits a 200 m2 envelope, B exceeds it, C is retired.
func (f *fixture) seedCatalog(t *testing.T) (a, b, c *models.Project) {
	t.Helper()
	ctx := context.Background()

	a = &models.Project{ArchitectID: 1, Title: "A", BuiltM2: 180, PriceTotal: ptr(250000.0), IsActive: true}
	b = &models.Project{ArchitectID: 1, Title: "B", BuiltM2: 220, PriceTotal: ptr(180000.0), IsActive: true}
	c = &models.Project{ArchitectID: 1, Title: "C", BuiltM2: 150, PriceTotal: ptr(300000.0), IsActive: false}
	for _, p := range []*models.Project{a, b, c} {
		require.NoError(t, f.projects.Create(ctx, p))
	}
	return a, b, c
}

func TestMatch_EnvelopeAndBudget(t *testing.T) {
	f := setupEngine(t)
	f.seedCatalog(t)

	parcel := &models.Parcel{BuildableM2: 200}
	result, err := f.engine.Match(context.Background(), Constraints{
		Parcel:    parcel,
		BudgetMax: ptr(260000.0),
	})
	require.NoError(t, err)

	require.Len(t, result, 1, "B exceeds the envelope, C is inactive")
	assert.Equal(t, "A", result[0].Title)
}

func TestMatch_PurchaseExclusion(t *testing.T) {
	f := setupEngine(t)
	f.seedCatalog(t)
	ctx := context.Background()

	d := &models.Project{ArchitectID: 1, Title: "D", BuiltM2: 190, PriceTotal: ptr(240000.0), IsActive: true}
	require.NoError(t, f.projects.Create(ctx, d))
	require.NoError(t, f.reservations.CreateProjectPurchase(ctx, &models.Reservation{
		ProjectID:  &d.ID,
		BuyerEmail: "x@y",
	}))

	parcel := &models.Parcel{BuildableM2: 200}

	result, err := f.engine.Match(ctx, Constraints{Parcel: parcel, ClientEmail: "x@y"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "A", result[0].Title)

	// Another buyer still sees D, and D sorts before A on price.
	result, err = f.engine.Match(ctx, Constraints{Parcel: parcel, ClientEmail: "otro@y"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "D", result[0].Title)
	assert.Equal(t, "A", result[1].Title)
}

func TestMatch_OrderingNullsLast(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	unpriced := &models.Project{ArchitectID: 1, Title: "sin precio", BuiltM2: 100, IsActive: true}
	cheap := &models.Project{ArchitectID: 1, Title: "barato", BuiltM2: 120, PriceTotal: ptr(100000.0), IsActive: true}
	samePriceBigger := &models.Project{ArchitectID: 1, Title: "igual mayor", BuiltM2: 140, PriceTotal: ptr(100000.0), IsActive: true}
	for _, p := range []*models.Project{unpriced, cheap, samePriceBigger} {
		require.NoError(t, f.projects.Create(ctx, p))
	}

	result, err := f.engine.Match(ctx, Constraints{Parcel: &models.Parcel{BuildableM2: 500}})
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, "barato", result[0].Title)
	assert.Equal(t, "igual mayor", result[1].Title, "price tie breaks on built surface")
	assert.Equal(t, "sin precio", result[2].Title, "unpriced projects sort last")
}

func TestMatch_UnpricedRetainedUnderBudget(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, f.projects.Create(ctx, &models.Project{
		ArchitectID: 1, Title: "sin precio", BuiltM2: 100, IsActive: true,
	}))

	result, err := f.engine.Match(ctx, Constraints{
		Parcel:    &models.Parcel{BuildableM2: 500},
		BudgetMax: ptr(50000.0),
	})
	require.NoError(t, err)
	require.Len(t, result, 1, "a budget cap never filters unpriced projects")
}

func TestMatch_DesiredAreaTolerance(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	for _, p := range []*models.Project{
		{ArchitectID: 1, Title: "79", BuiltM2: 79, IsActive: true},
		{ArchitectID: 1, Title: "80", BuiltM2: 80, IsActive: true},
		{ArchitectID: 1, Title: "120", BuiltM2: 120, IsActive: true},
		{ArchitectID: 1, Title: "121", BuiltM2: 121, IsActive: true},
	} {
		require.NoError(t, f.projects.Create(ctx, p))
	}

	result, err := f.engine.Match(ctx, Constraints{
		Parcel:        &models.Parcel{BuildableM2: 500},
		DesiredAreaM2: ptr(100.0),
	})
	require.NoError(t, err)

	require.Len(t, result, 2, "tolerance band is [80, 120] inclusive")
	assert.Equal(t, "80", result[0].Title)
	assert.Equal(t, "120", result[1].Title)
}

func TestMatch_PropertyTypeSubstring(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	for _, p := range []*models.Project{
		{ArchitectID: 1, Title: "chalet", BuiltM2: 100, PropertyType: ptr("Chalet unifamiliar"), IsActive: true},
		{ArchitectID: 1, Title: "piso", BuiltM2: 90, PropertyType: ptr("Piso"), IsActive: true},
		{ArchitectID: 1, Title: "sin tipo", BuiltM2: 95, IsActive: true},
	} {
		require.NoError(t, f.projects.Create(ctx, p))
	}

	result, err := f.engine.Match(ctx, Constraints{
		Parcel:       &models.Parcel{BuildableM2: 500},
		PropertyType: "chalet",
	})
	require.NoError(t, err)

	titles := make([]string, 0, len(result))
	for _, p := range result {
		titles = append(titles, p.Title)
	}
	assert.ElementsMatch(t, []string{"chalet", "sin tipo"}, titles,
		"match is case-insensitive substring; untyped projects pass")
}

func TestMatch_ClientParcelSize(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, f.projects.Create(ctx, &models.Project{
		ArchitectID: 1, Title: "cabe", BuiltM2: 190, IsActive: true,
	}))
	require.NoError(t, f.projects.Create(ctx, &models.Project{
		ArchitectID: 1, Title: "no cabe", BuiltM2: 210, IsActive: true,
	}))

	// 600 m2 at the default ratio gives a 198 m2 envelope.
	result, err := f.engine.Match(ctx, Constraints{ClientParcelSizeM2: ptr(600.0)})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "cabe", result[0].Title)
}

func TestMatch_ZeroParcelSize(t *testing.T) {
	f := setupEngine(t)
	f.seedCatalog(t)

	result, err := f.engine.Match(context.Background(), Constraints{ClientParcelSizeM2: ptr(0.0)})
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NotNil(t, result)
}

func TestMatch_InvalidConstraints(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	_, err := f.engine.Match(ctx, Constraints{ClientParcelSizeM2: ptr(-1.0)})
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	_, err = f.engine.Match(ctx, Constraints{
		ClientParcelSizeM2: ptr(600.0),
		BudgetMax:          ptr(-5.0),
	})
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	_, err = f.engine.Match(ctx, Constraints{
		ClientParcelSizeM2: ptr(600.0),
		DesiredAreaM2:      ptr(-5.0),
	})
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	// A zero envelope never masks a malformed constraint.
	_, err = f.engine.Match(ctx, Constraints{
		ClientParcelSizeM2: ptr(0.0),
		BudgetMax:          ptr(-5.0),
	})
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	_, err = f.engine.Match(ctx, Constraints{})
	assert.ErrorIs(t, err, ErrInvalidConstraint)
}

func TestMatch_Deterministic(t *testing.T) {
	f := setupEngine(t)
	f.seedCatalog(t)
	ctx := context.Background()

	constraints := Constraints{Parcel: &models.Parcel{BuildableM2: 500}}
	first, err := f.engine.Match(ctx, constraints)
	require.NoError(t, err)
	second, err := f.engine.Match(ctx, constraints)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
