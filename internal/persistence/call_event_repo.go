package persistence

import (
	"time"

	"gorm.io/gorm"
)

// CallEventRepository handles database operations for recognized call
// events.
type CallEventRepository struct {
	db *gorm.DB
}

// NewCallEventRepository creates a new call-event repository.
func NewCallEventRepository(db *gorm.DB) *CallEventRepository {
	return &CallEventRepository{db: db}
}

// Create inserts a new call-event row.
func (r *CallEventRepository) Create(ev *CallEvent) error {
	return r.db.Create(ev).Error
}

// Recent returns the N most recent call events, newest first.
func (r *CallEventRepository) Recent(limit int) ([]CallEvent, error) {
	var events []CallEvent
	err := r.db.Order("at DESC").Limit(limit).Find(&events).Error
	return events, err
}

// Since returns call events at or after the given time, oldest first.
func (r *CallEventRepository) Since(since time.Time) ([]CallEvent, error) {
	var events []CallEvent
	err := r.db.Where("at >= ?", since).Order("at ASC").Find(&events).Error
	return events, err
}

// DeleteOlderThan removes call events older than before, for retention.
func (r *CallEventRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("at < ?", before).Delete(&CallEvent{})
	return result.RowsAffected, result.Error
}
