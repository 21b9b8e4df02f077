package models

import (
	"regexp"
	"time"
)

// ParcelStatus is the lifecycle state of a parcel listing.
type ParcelStatus string

const (
	StatusDraft     ParcelStatus = "draft"
	StatusPublished ParcelStatus = "published"
	StatusReserved  ParcelStatus = "reserved"
	StatusSold      ParcelStatus = "sold"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s ParcelStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusReserved, StatusSold:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
// Allowed: draft -> published -> reserved -> sold, with reserved -> published
// on reservation cancellation. sold is terminal.
func (s ParcelStatus) CanTransitionTo(next ParcelStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusPublished
	case StatusPublished:
		return next == StatusReserved || next == StatusSold
	case StatusReserved:
		return next == StatusPublished || next == StatusSold
	default:
		return false
	}
}

// SoilType classifies the regulatory soil category of a parcel.
type SoilType string

const (
	SoilUrban             SoilType = "urban"
	SoilIndustrial        SoilType = "industrial"
	SoilRusticUnsupported SoilType = "rustic-unsupported"
	SoilUnknown           SoilType = "unknown"
)

// DefaultEdificabilityRatio is the fraction of a parcel's surface that may be
// built upon when no per-parcel override is recorded.
const DefaultEdificabilityRatio = 0.33

// cadastralRefPattern is the canonical form of a cadastral reference:
// uppercase alphanumerics, 14 to 20 characters.
var cadastralRefPattern = regexp.MustCompile(`^[A-Z0-9]{14,20}$`)

// ValidCadastralReference reports whether ref is in canonical form.
func ValidCadastralReference(ref string) bool {
	return cadastralRefPattern.MatchString(ref)
}

// VirtualPlot is the rectangular approximation of a parcel's buildable
// envelope used for matching and display. Width and depth are meters.
type VirtualPlot struct {
	Width       float64 `gorm:"column:plot_width" json:"width"`
	Depth       float64 `gorm:"column:plot_depth" json:"depth"`
	Orientation string  `gorm:"size:5;column:plot_orientation" json:"orientation"`
}

// Parcel is the canonical land listing, keyed by cadastral reference.
// All nullable fields use pointers to distinguish zero values from NULL.
type Parcel struct {
	ID                 uint         `gorm:"primaryKey" json:"id"`
	CadastralReference string       `gorm:"size:20;uniqueIndex;not null;column:cadastral_reference" json:"cadastralReference"`
	Title              *string      `gorm:"size:255;column:title" json:"title,omitempty"`
	Address            *string      `gorm:"size:500;column:address" json:"address,omitempty"`
	Municipality       *string      `gorm:"size:255;index;column:municipality" json:"municipality,omitempty"`
	Province           *string      `gorm:"size:100;index;column:province" json:"province,omitempty"`
	SurfaceM2          float64      `gorm:"not null;column:surface_m2" json:"surfaceM2"`
	BuildableM2        float64      `gorm:"column:buildable_m2" json:"buildableM2"`
	EdificabilityRatio *float64     `gorm:"column:edificability_ratio" json:"edificabilityRatio,omitempty"`
	Lat                *float64     `gorm:"column:lat" json:"lat,omitempty"`
	Lon                *float64     `gorm:"column:lon" json:"lon,omitempty"`
	SoilType           SoilType     `gorm:"size:30;default:'unknown';column:soil_type" json:"soilType"`
	Price              *float64     `gorm:"column:price" json:"price,omitempty"`
	OwnerName          *string      `gorm:"size:255;column:owner_name" json:"ownerName,omitempty"`
	OwnerEmail         *string      `gorm:"size:255;column:owner_email" json:"ownerEmail,omitempty"`
	OwnerPhone         *string      `gorm:"size:50;column:owner_phone" json:"ownerPhone,omitempty"`
	SourceDocumentPath *string      `gorm:"size:500;column:source_document_path" json:"sourceDocumentPath,omitempty"`
	Vertices           VertexList   `gorm:"type:text;column:vertices" json:"vertices,omitempty"`
	VirtualPlot        VirtualPlot  `gorm:"embedded" json:"virtualPlot"`
	Status             ParcelStatus `gorm:"size:20;default:'draft';index;column:status" json:"status"`
	CreatedAt          time.Time    `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt          time.Time    `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for GORM.
func (Parcel) TableName() string {
	return "parcels"
}

// Ratio returns the effective edificability ratio for the parcel.
func (p *Parcel) Ratio() float64 {
	if p.EdificabilityRatio != nil {
		return *p.EdificabilityRatio
	}
	return DefaultEdificabilityRatio
}

// HasCoordinates reports whether both lat and lon are present.
// The invariant is both-present or both-absent; this is the positive check.
func (p *Parcel) HasCoordinates() bool {
	return p.Lat != nil && p.Lon != nil
}

// Publishable reports whether the parcel meets every publication invariant:
// coordinates resolved, positive surface, canonical reference, and a soil
// type the marketplace supports.
func (p *Parcel) Publishable() bool {
	return p.HasCoordinates() &&
		p.SurfaceM2 > 0 &&
		ValidCadastralReference(p.CadastralReference) &&
		p.SoilType != SoilRusticUnsupported
}
