package models

import (
	"time"
)

// Project is an architectural design record offered to buyers whose parcel
// envelope can accommodate it.
type Project struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ArchitectID  uint      `gorm:"index;not null;column:architect_id" json:"architectId"`
	Title        string    `gorm:"size:255;not null;column:title" json:"title"`
	BuiltM2      float64   `gorm:"not null;column:built_m2" json:"builtM2"`
	MinParcelM2  *float64  `gorm:"column:min_parcel_m2" json:"minParcelM2,omitempty"`
	MaxParcelM2  *float64  `gorm:"column:max_parcel_m2" json:"maxParcelM2,omitempty"`
	Rooms        int       `gorm:"column:rooms" json:"rooms"`
	Bathrooms    int       `gorm:"column:bathrooms" json:"bathrooms"`
	Floors       int       `gorm:"column:floors" json:"floors"`
	HasGarage    bool      `gorm:"column:has_garage" json:"hasGarage"`
	PriceTotal   *float64  `gorm:"column:price_total" json:"priceTotal,omitempty"`
	PricePDF     *float64  `gorm:"column:price_pdf" json:"pricePdf,omitempty"`
	PriceCAD     *float64  `gorm:"column:price_cad" json:"priceCad,omitempty"`
	PropertyType *string   `gorm:"size:100;column:property_type" json:"propertyType,omitempty"`
	EnergyRating *string   `gorm:"size:5;column:energy_rating" json:"energyRating,omitempty"`
	IsActive     bool      `gorm:"default:true;index;column:is_active" json:"isActive"`
	MediaPaths   *string   `gorm:"type:text;column:media_paths" json:"mediaPaths,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for GORM.
func (Project) TableName() string {
	return "projects"
}

// EffectiveMinParcelM2 returns the minimum parcel surface the project needs.
// When the architect did not record one it is derived from the built surface
// and the default edificability ratio.
func (p *Project) EffectiveMinParcelM2() float64 {
	if p.MinParcelM2 != nil {
		return *p.MinParcelM2
	}
	return p.BuiltM2 / DefaultEdificabilityRatio
}
