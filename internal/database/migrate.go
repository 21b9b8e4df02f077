package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/parcelaria/api/internal/models"
)

// schemaMigration records an applied schema version. The schema is
// authoritative and versioned: each migration runs exactly once, in order,
// and startup fails loudly instead of patching columns ad hoc.
type schemaMigration struct {
	Version   int       `gorm:"primaryKey"`
	AppliedAt time.Time `gorm:"not null"`
}

func (schemaMigration) TableName() string {
	return "schema_migrations"
}

type migration struct {
	version int
	apply   func(db *gorm.DB) error
}

var migrations = []migration{
	{
		version: 1,
		apply: func(db *gorm.DB) error {
			return db.AutoMigrate(
				&models.Parcel{},
				&models.Project{},
				&models.Extraction{},
				&models.Reservation{},
			)
		},
	},
}

// Migrate applies all pending schema migrations in version order.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int64
		if err := db.Model(&schemaMigration{}).Where("version = ?", m.version).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check schema version %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		if err := m.apply(db); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}

		record := schemaMigration{Version: m.version, AppliedAt: time.Now().UTC()}
		if err := db.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version, or 0 when the
// store is empty.
func SchemaVersion(db *gorm.DB) (int, error) {
	var version *int
	if err := db.Model(&schemaMigration{}).Select("MAX(version)").Scan(&version).Error; err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}
