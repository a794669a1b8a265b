package service

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful/plateful/internal/models"
)

type MonitoringService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
	}
}

// RecordError writes an error audit row
func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	return m.db.Create(errorLog).Error
}

// ErrorLogOption customises an error audit row
type ErrorLogOption func(*models.ErrorLog)

func WithPlatform(platform string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.Platform = platform
	}
}

func WithContent(contentID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.ContentID = &contentID
	}
}

func WithSlot(slotID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.SlotID = &slotID
	}
}

func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// RecentErrors returns the newest unresolved error rows.
func (m *MonitoringService) RecentErrors(limit int) ([]models.ErrorLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []models.ErrorLog
	err := m.db.Where("resolved = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// UpdateDailyStats refreshes today's rollup of posting activity and buffer
// health.
func (m *MonitoringService) UpdateDailyStats() error {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := today.AddDate(0, 0, 1)

	var posted, failed, scheduled, empty int64
	m.db.Model(&models.PostedRecord{}).
		Where("posted_at >= ? AND posted_at < ?", today, tomorrow).
		Count(&posted)
	m.db.Model(&models.ScheduledSlot{}).
		Where("status = ? AND slot_time >= ? AND slot_time < ?", models.SlotStatusFailed, today, tomorrow).
		Count(&failed)
	m.db.Model(&models.ScheduledSlot{}).
		Where("status = ? AND slot_time >= ?", models.SlotStatusPending, now).
		Count(&scheduled)
	m.db.Model(&models.ScheduledSlot{}).
		Where("status = ? AND slot_time >= ?", models.SlotStatusEmpty, now).
		Count(&empty)

	bufferStatuses := []string{models.StatusApproved, models.StatusScheduled}
	var buffer, visual, discovered int64
	m.db.Model(&models.ContentItem{}).
		Where("status IN ?", bufferStatuses).
		Count(&buffer)
	m.db.Model(&models.ContentItem{}).
		Where("status IN ? AND content_type IN ?", bufferStatuses,
			[]string{models.ContentTypeImage, models.ContentTypeVideo, models.ContentTypeGif}).
		Count(&visual)
	m.db.Model(&models.ContentItem{}).
		Where("created_at >= ? AND created_at < ?", today, tomorrow).
		Count(&discovered)

	var stats models.DailyStats
	result := m.db.Where("date = ?", today).First(&stats)
	if result.Error == gorm.ErrRecordNotFound {
		stats = models.DailyStats{
			Date:            today,
			PostedCount:     int(posted),
			FailedCount:     int(failed),
			ScheduledCount:  int(scheduled),
			EmptySlots:      int(empty),
			BufferDepth:     int(buffer),
			VisualBuffer:    int(visual),
			DiscoveredToday: int(discovered),
		}
		return m.db.Create(&stats).Error
	}
	if result.Error != nil {
		return result.Error
	}

	return m.db.Model(&stats).Updates(map[string]interface{}{
		"posted_count":     posted,
		"failed_count":     failed,
		"scheduled_count":  scheduled,
		"empty_slots":      empty,
		"buffer_depth":     buffer,
		"visual_buffer":    visual,
		"discovered_today": discovered,
	}).Error
}

// RecentStats returns the last N daily rollups.
func (m *MonitoringService) RecentStats(days int) ([]models.DailyStats, error) {
	if days <= 0 || days > 90 {
		days = 14
	}
	var stats []models.DailyStats
	err := m.db.Order("date DESC").Limit(days).Find(&stats).Error
	return stats, err
}

// CleanupOldData drops resolved error rows and scan runs older than the
// retention window. Posted records are never deleted.
func (m *MonitoringService) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	if err := m.db.Where("created_at < ? AND resolved = ?", cutoff, true).
		Delete(&models.ErrorLog{}).Error; err != nil {
		return err
	}
	return m.db.Where("started_at < ?", cutoff).
		Delete(&models.ScanRun{}).Error
}
