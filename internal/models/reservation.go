package models

import (
	"time"
)

// ReservationKind distinguishes a refundable reservation from a completed
// purchase. A reservation moves the parcel to reserved; a purchase moves the
// parcel (or marks the project) sold.
type ReservationKind string

const (
	KindReservation ReservationKind = "reservation"
	KindPurchase    ReservationKind = "purchase"
)

// Valid reports whether the kind is known.
func (k ReservationKind) Valid() bool {
	return k == KindReservation || k == KindPurchase
}

// Reservation records a buyer's hold on a parcel or a purchase of a parcel or
// an architectural project. Exactly one of ParcelID / ProjectID is set.
type Reservation struct {
	ID         string          `gorm:"size:36;primaryKey" json:"id"`
	ParcelID   *uint           `gorm:"index;column:parcel_id" json:"parcelId,omitempty"`
	ProjectID  *uint           `gorm:"index;column:project_id" json:"projectId,omitempty"`
	BuyerEmail string          `gorm:"size:255;index;not null;column:buyer_email" json:"buyerEmail"`
	BuyerName  string          `gorm:"size:255;column:buyer_name" json:"buyerName"`
	Amount     float64         `gorm:"column:amount" json:"amount"`
	Kind       ReservationKind `gorm:"size:20;not null;column:kind" json:"kind"`
	Cancelled  bool            `gorm:"default:false;column:cancelled" json:"cancelled"`
	CreatedAt  time.Time       `gorm:"column:created_at" json:"createdAt"`
}

// TableName specifies the table name for GORM.
func (Reservation) TableName() string {
	return "reservations"
}
