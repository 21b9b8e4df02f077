package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelaria/api/internal/database"
	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/repository"
	"github.com/parcelaria/api/internal/services"
)

func ptr[T any](v T) *T { return &v }

type parcelAPIFixture struct {
	router *gin.Engine
	repo   repository.ParcelRepository
}

func setupParcelAPI(t *testing.T) *parcelAPIFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewParcelRepository(db)
	handler := NewParcelHandler(services.NewParcelService(repo, logger.New("test")))

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.GET("/parcels", handler.List)
	v1.GET("/parcels/:ref", handler.GetByReference)
	v1.POST("/parcels/:id/status", handler.ChangeStatus)
	v1.POST("/parcels/:id/reservations", handler.Reserve)
	v1.POST("/reservations/:id/cancel", handler.CancelReservation)

	return &parcelAPIFixture{router: router, repo: repo}
}

func (f *parcelAPIFixture) seedParcel(t *testing.T, ref string) *models.Parcel {
	t.Helper()
	parcel, err := f.repo.Upsert(context.Background(), repository.UpsertInput{
		CadastralReference: ref,
		SurfaceM2:          600,
		Municipality:       ptr("Getafe"),
		Province:           ptr("Madrid"),
		Lat:                ptr(40.3083),
		Lon:                ptr(-3.7329),
		SoilType:           models.SoilUrban,
	})
	require.NoError(t, err)
	return parcel
}

func getJSON(t *testing.T, router *gin.Engine, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(out))
	}
	return w
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestParcelList(t *testing.T) {
	f := setupParcelAPI(t)
	f.seedParcel(t, "9872023VH5797S0001WX")

	var response ListResponse
	w := getJSON(t, f.router, "/api/v1/parcels", &response)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, response.Count)
	require.Len(t, response.Parcels, 1)
	assert.Equal(t, "9872023VH5797S0001WX", response.Parcels[0].CadastralReference)
}

func TestParcelList_ProvinceAllIsNeutral(t *testing.T) {
	f := setupParcelAPI(t)
	f.seedParcel(t, "9872023VH5797S0001WX")

	var response ListResponse
	w := getJSON(t, f.router, "/api/v1/parcels?province=All", &response)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, response.Count)
}

func TestParcelList_UnknownFilterKeyRejected(t *testing.T) {
	f := setupParcelAPI(t)

	w := getJSON(t, f.router, "/api/v1/parcels?color=verde", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown filter key")
}

func TestParcelGetByReference(t *testing.T) {
	f := setupParcelAPI(t)
	f.seedParcel(t, "9872023VH5797S0001WX")

	w := getJSON(t, f.router, "/api/v1/parcels/9872023VH5797S0001WX", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = getJSON(t, f.router, "/api/v1/parcels/0000000XX0000X0000XX", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestParcelChangeStatus(t *testing.T) {
	f := setupParcelAPI(t)
	parcel := f.seedParcel(t, "9872023VH5797S0001WX")

	w := postJSON(t, f.router, fmt.Sprintf("/api/v1/parcels/%d/status", parcel.ID),
		gin.H{"status": "reserved"})
	assert.Equal(t, http.StatusOK, w.Code)

	// published is not reachable from published
	w = postJSON(t, f.router, fmt.Sprintf("/api/v1/parcels/%d/status", parcel.ID),
		gin.H{"status": "draft"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, f.router, fmt.Sprintf("/api/v1/parcels/%d/status", parcel.ID),
		gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParcelReserveAndCancel(t *testing.T) {
	f := setupParcelAPI(t)
	parcel := f.seedParcel(t, "9872023VH5797S0001WX")

	w := postJSON(t, f.router, fmt.Sprintf("/api/v1/parcels/%d/reservations", parcel.ID), gin.H{
		"buyer_email": "comprador@example.com",
		"kind":        "reservation",
		"amount":      3000,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Reservation models.Reservation `json:"reservation"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	require.NotEmpty(t, created.Reservation.ID)

	// A reserved parcel cannot be reserved again.
	w = postJSON(t, f.router, fmt.Sprintf("/api/v1/parcels/%d/reservations", parcel.ID), gin.H{
		"buyer_email": "otro@example.com",
		"kind":        "reservation",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, f.router, "/api/v1/reservations/"+created.Reservation.ID+"/cancel", gin.H{})
	assert.Equal(t, http.StatusOK, w.Code)

	reloaded, err := f.repo.FindByID(context.Background(), parcel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, reloaded.Status)
}

func TestParcelReserve_Validation(t *testing.T) {
	f := setupParcelAPI(t)
	parcel := f.seedParcel(t, "9872023VH5797S0001WX")

	w := postJSON(t, f.router, fmt.Sprintf("/api/v1/parcels/%d/reservations", parcel.ID), gin.H{
		"kind": "reservation",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}
