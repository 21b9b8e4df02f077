package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelaria/api/internal/database"
	"github.com/parcelaria/api/internal/models"
)

func setupProjectRepo(t *testing.T) ProjectRepository {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProjectRepository(db)
}

func TestProjectCreateAndList(t *testing.T) {
	repo := setupProjectRepo(t)
	ctx := context.Background()

	active := &models.Project{
		ArchitectID: 1,
		Title:       "Chalet adosado 120",
		BuiltM2:     120,
		Rooms:       3,
		IsActive:    true,
	}
	require.NoError(t, repo.Create(ctx, active))
	assert.NotZero(t, active.ID)

	retired := &models.Project{ArchitectID: 1, Title: "Retirado", BuiltM2: 90, IsActive: false}
	require.NoError(t, repo.Create(ctx, retired))

	activeList, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, activeList, 1)
	assert.Equal(t, "Chalet adosado 120", activeList[0].Title)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProjectFindByID(t *testing.T) {
	repo := setupProjectRepo(t)
	ctx := context.Background()

	project := &models.Project{ArchitectID: 2, Title: "Vivienda pasiva", BuiltM2: 150, IsActive: true}
	require.NoError(t, repo.Create(ctx, project))

	found, err := repo.FindByID(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Vivienda pasiva", found.Title)

	missing, err := repo.FindByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
