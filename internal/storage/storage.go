// Package storage records poll-cycle history using GORM and SQLite
package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilCycle = errors.New("poll cycle cannot be nil")
	ErrNotFound = errors.New("poll cycle not found")
)

// Cycle status values.
const (
	StatusSkipped    = "skipped"    // release already seen, nothing dispatched
	StatusDispatched = "dispatched" // full batch queued and completed
	StatusFailed     = "failed"     // fetch or at least one invocation failed
)

// PollCycle represents one processing of one tracked version: the retrieved
// newest timestamp, the retest decision, and the dispatch outcome.
type PollCycle struct {
	ID uint `gorm:"primaryKey"`

	Version         string    `gorm:"not null;index:idx_version"`
	NewestTimestamp time.Time `gorm:"not null"`
	IncludeEA       bool      `gorm:"not null;default:false"`
	RetestNeeded    bool      `gorm:"not null;default:false"`
	Forced          bool      `gorm:"not null;default:false"`

	JobsDispatched int
	JobsFailed     int

	Status       string `gorm:"not null;index:idx_status"`
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for poll-cycle storage operations
type Store interface {
	Close() error
	RecordCycle(*PollCycle) error
	LatestCycle(version string) (*PollCycle, error)
	ListCycles(version string, limit int) ([]*PollCycle, error)
}

// DB wraps gorm.DB with our poll-cycle operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&PollCycle{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RecordCycle creates a new poll-cycle record
func (d *DB) RecordCycle(cycle *PollCycle) error {
	if cycle == nil {
		return ErrNilCycle
	}
	if err := d.db.Create(cycle).Error; err != nil {
		return fmt.Errorf("failed to record poll cycle: %w", err)
	}
	return nil
}

// LatestCycle retrieves the most recent poll cycle for a version
func (d *DB) LatestCycle(version string) (*PollCycle, error) {
	var cycle PollCycle
	err := d.db.Where("version = ?", version).Order("created_at DESC").First(&cycle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest cycle for version %s: %w", version, err)
	}
	return &cycle, nil
}

// ListCycles returns poll cycles, newest first. An empty version lists all
// versions; limit <= 0 means no limit.
func (d *DB) ListCycles(version string, limit int) ([]*PollCycle, error) {
	query := d.db.Order("created_at DESC")
	if version != "" {
		query = query.Where("version = ?", version)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var cycles []*PollCycle
	if err := query.Find(&cycles).Error; err != nil {
		return nil, fmt.Errorf("failed to list poll cycles: %w", err)
	}
	return cycles, nil
}
