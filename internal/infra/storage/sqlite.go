package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quoter_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OrderEventRecord is the persisted form of one order lifecycle event.
// Prices and sizes are stored as decimal strings to avoid float drift.
type OrderEventRecord struct {
	ID      uint   `gorm:"primaryKey"`
	LocalID string `gorm:"index"`
	VenueID string `gorm:"index"`
	Side    string
	Price   string
	Size    string
	Status  string
	Note    string
	At      time.Time `gorm:"index"`
}

// Store persists the order audit trail in SQLite. It implements
// domain.AuditSink.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the database at path and migrates the schema.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&OrderEventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends one lifecycle event to the audit trail.
func (s *Store) Record(ev domain.OrderEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	rec := OrderEventRecord{
		LocalID: ev.LocalID,
		VenueID: ev.VenueID,
		Side:    string(ev.Side),
		Price:   ev.Price.String(),
		Size:    ev.Size.String(),
		Status:  string(ev.Status),
		Note:    ev.Note,
		At:      at,
	}
	return s.db.Create(&rec).Error
}

// EventsForOrder returns the event history of one local order, oldest first.
func (s *Store) EventsForOrder(localID string) ([]OrderEventRecord, error) {
	var events []OrderEventRecord
	err := s.db.Where("local_id = ?", localID).Order("id asc").Find(&events).Error
	return events, err
}

// RecentEvents returns the newest events up to limit, newest first.
func (s *Store) RecentEvents(limit int) ([]OrderEventRecord, error) {
	var events []OrderEventRecord
	err := s.db.Order("id desc").Limit(limit).Find(&events).Error
	return events, err
}

// UnconfirmedOrders returns local ids whose latest recorded status is still
// live. Used at startup to surface orders that may need manual reconciliation.
func (s *Store) UnconfirmedOrders() ([]string, error) {
	var ids []string
	err := s.db.Model(&OrderEventRecord{}).
		Select("local_id").
		Where("id IN (SELECT MAX(id) FROM order_event_records GROUP BY local_id)").
		Where("status IN ?", []string{
			string(domain.OrderStatusPending),
			string(domain.OrderStatusResting),
			string(domain.OrderStatusCancelRequested),
		}).
		Pluck("local_id", &ids).Error
	return ids, err
}

// PruneBefore deletes events older than the cutoff and reports how many
// rows were removed.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("at < ?", cutoff).Delete(&OrderEventRecord{})
	return res.RowsAffected, res.Error
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
