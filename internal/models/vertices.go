package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Vertex is a single polygon point in the source document's coordinate system.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// VertexList is an ordered list of parcel boundary vertices.
// It is persisted as a JSON text column in SQLite.
type VertexList []Vertex

// Scan implements sql.Scanner for reading the vertex list from the database.
// SQLite stores the list as JSON text; both []byte and string are accepted.
func (v *VertexList) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}

	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("failed to scan VertexList: expected []byte or string, got %T", value)
	}

	if len(data) == 0 {
		*v = nil
		return nil
	}

	var list []Vertex
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to unmarshal vertex list: %w", err)
	}

	*v = list
	return nil
}

// Value implements driver.Valuer for writing the vertex list to the database.
// An empty list is stored as NULL so absence and emptiness stay distinct.
func (v VertexList) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}

	data, err := json.Marshal([]Vertex(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vertex list: %w", err)
	}

	return string(data), nil
}
