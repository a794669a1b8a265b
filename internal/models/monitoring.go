package models

import (
	"time"
)

// ErrorLog is the persistent error audit written by the services.
type ErrorLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`
	Source     string     `gorm:"size:100;not null;index" json:"source"`
	Platform   string     `gorm:"size:50;index" json:"platform"`
	ContentID  *uint      `gorm:"index" json:"content_id"`
	SlotID     *uint      `gorm:"index" json:"slot_id"`
	Title      string     `gorm:"size:500;not null" json:"title"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	Context    string     `gorm:"type:text" json:"context"`
	Resolved   bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// DailyStats is a per-day rollup of posting activity and buffer health.
type DailyStats struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Date            time.Time `gorm:"uniqueIndex;not null" json:"date"`
	PostedCount     int       `gorm:"default:0" json:"posted_count"`
	FailedCount     int       `gorm:"default:0" json:"failed_count"`
	ScheduledCount  int       `gorm:"default:0" json:"scheduled_count"`
	EmptySlots      int       `gorm:"default:0" json:"empty_slots"`
	BufferDepth     int       `gorm:"default:0" json:"buffer_depth"`
	VisualBuffer    int       `gorm:"default:0" json:"visual_buffer"`
	DiscoveredToday int       `gorm:"default:0" json:"discovered_today"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
