// Package extractor turns a normalized page sequence into a typed cadastral
// record by querying a vision model with a version-pinned prompt.
package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parcelaria/api/internal/logger"
	"github.com/parcelaria/api/internal/models"
	"github.com/parcelaria/api/internal/normalizer"
)

// Extraction errors. Quota exhaustion is distinct from a generic outage
// because the user can act on it.
var (
	ErrModelUnavailable    = errors.New("vision model unavailable")
	ErrQuotaExceeded       = errors.New("vision model quota exceeded")
	ErrUnparseableResponse = errors.New("unparseable model response")
)

// Mandatory field names reported in ParsedRecord.Missing and audit errors.
const (
	FieldReference    = "referencia_catastral"
	FieldSurface      = "superficie_grafica_m2"
	FieldMunicipality = "municipio"
	FieldVertices     = "vertices_coordenadas"
)

// Result pairs the parsed record with its audit trail. The audit record is
// produced on every attempt, including failed ones, so nothing is lost when
// the model misbehaves.
type Result struct {
	Record *models.ParsedRecord
	Audit  *models.Extraction
}

// Extractor derives structured cadastral data from page images.
// It is deterministic given the same document bytes and extractor version
// when the vision model is.
type Extractor struct {
	model   VisionModel
	version string
	log     *logger.Logger
}

// New creates an Extractor. The version string pins prompt version, DPI and
// page cap together; it is stored on every audit record.
func New(model VisionModel, promptVersion string, dpi, maxPages int, log *logger.Logger) *Extractor {
	return &Extractor{
		model:   model,
		version: fmt.Sprintf("%s/dpi%d/pages%d", promptVersion, dpi, maxPages),
		log:     log,
	}
}

// Version returns the extractor version string.
func (e *Extractor) Version() string {
	return e.version
}

// DocumentHash returns the identity of a document for idempotence purposes.
func DocumentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Extract queries the vision model exactly once and coerces the response to a
// typed record. A record with missing mandatory fields is returned as data,
// not as an error, so the caller can surface the raw response for manual
// completion. The returned audit record is always populated; on model failure
// Result.Record is nil and the error carries the typed cause.
func (e *Extractor) Extract(ctx context.Context, documentHash string, pages []normalizer.Page) (*Result, error) {
	audit := &models.Extraction{
		DocumentHash:     documentHash,
		PageCount:        len(pages),
		ExtractorVersion: e.version,
		ExtractedAt:      time.Now().UTC(),
	}

	raw, err := e.model.Complete(ctx, extractionPrompt, pages)
	if err != nil {
		audit.Errors = models.StringList{err.Error()}
		return &Result{Audit: audit}, err
	}
	audit.RawResponse = &raw

	record, complaints := e.parse(raw)
	if record == nil {
		audit.Errors = complaints
		return &Result{Audit: audit}, fmt.Errorf("%w: no JSON object found", ErrUnparseableResponse)
	}

	audit.Errors = complaints
	audit.Confidence = confidence(record, complaints)
	if record.Reference != "" {
		audit.ParsedReference = &record.Reference
	}

	e.log.Info("Extraction completed", map[string]interface{}{
		"document_hash": documentHash,
		"reference":     record.Reference,
		"confidence":    audit.Confidence,
		"missing":       record.Missing,
	})

	return &Result{Record: record, Audit: audit}, nil
}

// parse coerces the raw model response into a ParsedRecord. It returns nil
// when no JSON object can be recovered at all; otherwise it returns the
// record plus field-level complaints.
func (e *Extractor) parse(raw string) (*models.ParsedRecord, models.StringList) {
	payload := stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, models.StringList{fmt.Sprintf("response is not a JSON object: %v", err)}
	}

	record := &models.ParsedRecord{}
	var complaints models.StringList

	if ref := normalizeReference(flexibleString(fields[FieldReference])); ref != "" {
		if models.ValidCadastralReference(ref) {
			record.Reference = ref
		} else {
			complaints = append(complaints, fmt.Sprintf("%s: %q is not 14-20 uppercase alphanumerics", FieldReference, ref))
			record.Missing = append(record.Missing, FieldReference)
		}
	} else {
		complaints = append(complaints, FieldReference+": missing")
		record.Missing = append(record.Missing, FieldReference)
	}

	if surface, ok := flexibleFloat(fields[FieldSurface]); ok && surface > 0 {
		record.SurfaceM2 = surface
	} else {
		complaints = append(complaints, FieldSurface+": missing or non-positive")
		record.Missing = append(record.Missing, FieldSurface)
	}

	if municipality := flexibleString(fields[FieldMunicipality]); municipality != "" {
		record.Municipality = municipality
	} else {
		complaints = append(complaints, FieldMunicipality+": missing")
		record.Missing = append(record.Missing, FieldMunicipality)
	}

	// Vertices are optional; malformed entries are dropped with a warning
	// rather than rejecting the whole record.
	if rawVertices, ok := fields[FieldVertices]; ok {
		vertices, dropped := coerceVertices(rawVertices)
		record.Vertices = vertices
		if dropped > 0 {
			complaints = append(complaints, fmt.Sprintf("%s: dropped %d malformed entries", FieldVertices, dropped))
			e.log.Warn("Dropped malformed vertex entries", map[string]interface{}{
				"dropped": dropped,
				"kept":    len(vertices),
			})
		}
	}

	return record, complaints
}

// coerceVertices converts a raw JSON list into vertex pairs, counting the
// entries it had to drop.
func coerceVertices(raw json.RawMessage) (models.VertexList, int) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, 0
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, 1
	}

	var list models.VertexList
	dropped := 0
	for _, entry := range entries {
		var pair []json.RawMessage
		if err := json.Unmarshal(entry, &pair); err != nil || len(pair) != 2 {
			dropped++
			continue
		}
		x, okX := flexibleFloat(pair[0])
		y, okY := flexibleFloat(pair[1])
		if !okX || !okY {
			dropped++
			continue
		}
		list = append(list, models.Vertex{X: x, Y: y})
	}

	return list, dropped
}

// confidence derives the audit confidence score: 1.0 when every mandatory
// field parsed, minus 0.25 per missing mandatory field and 0.05 per vertex
// complaint, floored at zero.
func confidence(record *models.ParsedRecord, complaints models.StringList) float64 {
	score := 1.0
	score -= 0.25 * float64(len(record.Missing))
	for _, c := range complaints {
		if len(c) >= len(FieldVertices) && c[:len(FieldVertices)] == FieldVertices {
			score -= 0.05
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
