package services

import (
	"context"
	"errors"
	"time"

	"github.com/Cyvadra/marketminds/internal/history"
	"github.com/Cyvadra/marketminds/internal/models"
	"gorm.io/gorm"
)

// ErrMissingUser is returned when a record query carries no user id
var ErrMissingUser = errors.New("userId is required")

// RecordService stores alerts and journal entries of the optional backend
type RecordService struct {
	db *gorm.DB
}

// NewRecordService creates a new record service
func NewRecordService(db *gorm.DB) *RecordService {
	return &RecordService{db: db}
}

// SaveAlert inserts an alert record
func (s *RecordService) SaveAlert(ctx context.Context, alert *models.AlertRecord) error {
	if alert.UserID == "" {
		return ErrMissingUser
	}
	return s.db.WithContext(ctx).Create(alert).Error
}

// GetAlerts retrieves a user's alerts with pagination, newest first
func (s *RecordService) GetAlerts(ctx context.Context, userID string, page, limit int, activeOnly bool) ([]models.AlertRecord, int64, error) {
	if userID == "" {
		return nil, 0, ErrMissingUser
	}

	var alerts []models.AlertRecord
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AlertRecord{}).Where("user_id = ?", userID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	// Get total count
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Get paginated results
	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// SaveJournalEntry inserts a journal record
func (s *RecordService) SaveJournalEntry(ctx context.Context, entry *models.JournalRecord) error {
	if entry.UserID == "" {
		return ErrMissingUser
	}
	if entry.OpenedAt.IsZero() {
		entry.OpenedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

// GetJournal retrieves a user's journal with pagination, newest first
func (s *RecordService) GetJournal(ctx context.Context, userID string, page, limit int) ([]models.JournalRecord, int64, error) {
	if userID == "" {
		return nil, 0, ErrMissingUser
	}

	var entries []models.JournalRecord
	var total int64

	query := s.db.WithContext(ctx).Model(&models.JournalRecord{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).Order("opened_at DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// GetJournalStats computes performance statistics over a user's journal
func (s *RecordService) GetJournalStats(ctx context.Context, userID string) (models.PerformanceStats, error) {
	if userID == "" {
		return models.PerformanceStats{}, ErrMissingUser
	}

	var records []models.JournalRecord
	if err := s.db.WithContext(ctx).Where("user_id = ? AND is_open = ?", userID, false).Find(&records).Error; err != nil {
		return models.PerformanceStats{}, err
	}

	entries := make([]models.TradeJournalEntry, len(records))
	for i, r := range records {
		timestamp := r.OpenedAt
		if r.ClosedAt != nil {
			timestamp = *r.ClosedAt
		}
		entries[i] = models.TradeJournalEntry{
			Symbol:    r.Symbol,
			Action:    r.Action,
			Timestamp: timestamp,
			IsOpen:    r.IsOpen,
			PnL:       r.PnL,
		}
	}
	return history.ComputePerformanceStats(entries), nil
}
