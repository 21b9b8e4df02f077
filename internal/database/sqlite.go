package database

import (
	"context"
	"fmt"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parcelaria/api/internal/config"
)

// Database wraps the gorm handle over the single SQLite file store.
type Database struct {
	DB *gorm.DB
}

// NewSQLite opens (or creates) the SQLite store at the configured path,
// applies the connection pragmas the pipeline relies on, and runs any pending
// schema migrations. The returned handle is shared process-wide.
func NewSQLite(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	// WAL keeps readers unblocked while the single writer commits;
	// busy_timeout covers the brief write lock during upserts.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store at %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	// SQLite serializes writes itself; a single connection avoids
	// SQLITE_BUSY churn under concurrent handler goroutines.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite store: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{DB: db}, nil
}

var inMemorySeq atomic.Int64

// NewInMemory opens a private in-memory store with the full schema applied.
// Used by tests; behaves identically to the file-backed store. Each call gets
// its own database so tests stay isolated.
func NewInMemory() (*Database, error) {
	dsn := fmt.Sprintf("file:mem%d?mode=memory&cache=shared", inMemorySeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{DB: db}, nil
}

// Ping checks if the store is reachable.
func (db *Database) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection.
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
