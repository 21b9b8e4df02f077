package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ParsedRecord is the typed result of one cadastral extraction attempt.
// Reference, surface and municipality are mandatory; vertices are optional.
// Missing lists the mandatory fields the model failed to produce, so a
// partial record is data the caller can present for manual completion
// rather than an error.
type ParsedRecord struct {
	Reference    string     `json:"reference"`
	SurfaceM2    float64    `json:"surfaceM2"`
	Municipality string     `json:"municipality"`
	Vertices     VertexList `json:"vertices,omitempty"`
	Missing      []string   `json:"missing,omitempty"`
}

// Complete reports whether every mandatory field was parsed.
func (r *ParsedRecord) Complete() bool {
	return len(r.Missing) == 0
}

// StringList is a list of field-level complaints persisted as JSON text.
type StringList []string

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("failed to scan StringList: expected []byte or string, got %T", value)
	}

	if len(data) == 0 {
		*l = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to unmarshal string list: %w", err)
	}

	*l = list
	return nil
}

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}

	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}

	return string(data), nil
}

// Extraction is the audit record of one attempt to derive a structured parcel
// record from a source document. It is written on every attempt, success or
// not, and never mutated afterwards.
type Extraction struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	DocumentHash     string     `gorm:"size:64;index;not null;column:document_hash" json:"documentHash"`
	PageCount        int        `gorm:"column:page_count" json:"pageCount"`
	ExtractorVersion string     `gorm:"size:100;column:extractor_version" json:"extractorVersion"`
	RawResponse      *string    `gorm:"type:text;column:raw_response" json:"rawResponse,omitempty"`
	ParsedReference  *string    `gorm:"size:20;column:parsed_reference" json:"parsedReference,omitempty"`
	Confidence       float64    `gorm:"column:confidence" json:"confidence"`
	Errors           StringList `gorm:"type:text;column:errors" json:"errors,omitempty"`
	ExtractedAt      time.Time  `gorm:"column:extracted_at" json:"extractedAt"`
}

// TableName specifies the table name for GORM.
func (Extraction) TableName() string {
	return "extractions"
}
