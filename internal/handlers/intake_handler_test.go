package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelaria/api/internal/extractor"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/normalizer"
	"github.com/parcelaria/api/internal/services"
)

// stubIntakeService returns a canned result or error.
type stubIntakeService struct {
	result *services.IntakeResult
	err    error
	gotIn  *services.IntakeInput
}

func (s *stubIntakeService) Intake(ctx context.Context, input services.IntakeInput) (*services.IntakeResult, error) {
	s.gotIn = &input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func setupIntakeRouter(service services.IntakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/v1/parcels/intake", NewIntakeHandler(service).Intake)
	return router
}

// multipartUpload builds a request with a "document" file part and fields.
func multipartUpload(t *testing.T, fields map[string]string, document []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if document != nil {
		part, err := writer.CreateFormFile("document", "ficha.png")
		require.NoError(t, err)
		_, err = part.Write(document)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/parcels/intake", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestIntakeHandler_Success(t *testing.T) {
	title := "Solar céntrico"
	stub := &stubIntakeService{result: &services.IntakeResult{
		Parcel: &models.Parcel{
			ID:                 1,
			CadastralReference: "1234567AB1234C",
			Title:              &title,
			Status:             models.StatusPublished,
			BuildableM2:        198,
		},
		Record: &models.ParsedRecord{Reference: "1234567AB1234C", SurfaceM2: 600, Municipality: "Madrid"},
	}}

	router := setupIntakeRouter(stub)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, map[string]string{
		"title":       "Solar céntrico",
		"owner_email": "ana@example.com",
	}, []byte("png-bytes")))

	assert.Equal(t, http.StatusCreated, w.Code)

	var response IntakeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.NotNil(t, response.Parcel)
	assert.Equal(t, "1234567AB1234C", response.Parcel.CadastralReference)

	require.NotNil(t, stub.gotIn)
	require.NotNil(t, stub.gotIn.Title)
	assert.Equal(t, "Solar céntrico", *stub.gotIn.Title)
	assert.Equal(t, "ana@example.com", stub.gotIn.Owner.Email)
}

func TestIntakeHandler_PartialRecord(t *testing.T) {
	stub := &stubIntakeService{result: &services.IntakeResult{
		Record: &models.ParsedRecord{
			SurfaceM2:    600,
			Municipality: "Madrid",
			Missing:      []string{"referencia_catastral"},
		},
		Extraction: &models.Extraction{Confidence: 0.75},
	}}

	router := setupIntakeRouter(stub)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, nil, []byte("png-bytes")))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response IntakeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Nil(t, response.Parcel)
	require.NotNil(t, response.Record)
	assert.Contains(t, response.Record.Missing, "referencia_catastral")
}

func TestIntakeHandler_MissingDocument(t *testing.T) {
	router := setupIntakeRouter(&stubIntakeService{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, map[string]string{"title": "x"}, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntakeHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"unsupported format", normalizer.ErrUnsupportedFormat, http.StatusBadRequest},
		{"corrupt document", normalizer.ErrCorruptDocument, http.StatusBadRequest},
		{"empty document", normalizer.ErrEmptyDocument, http.StatusBadRequest},
		{"quota exceeded", extractor.ErrQuotaExceeded, http.StatusTooManyRequests},
		{"model unavailable", extractor.ErrModelUnavailable, http.StatusServiceUnavailable},
		{"unparseable response", extractor.ErrUnparseableResponse, http.StatusUnprocessableEntity},
		{"anything else", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupIntakeRouter(&stubIntakeService{err: tt.err})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartUpload(t, nil, []byte("png-bytes")))

			assert.Equal(t, tt.expected, w.Code)
			// Provider detail never leaks to the client.
			assert.NotContains(t, w.Body.String(), "disk on fire")
		})
	}
}

func TestIntakeHandler_InvalidOwnerEmail(t *testing.T) {
	router := setupIntakeRouter(&stubIntakeService{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, map[string]string{
		"owner_email": "not-an-email",
	}, []byte("png-bytes")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}
