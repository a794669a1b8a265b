package models

import (
	"time"
)

// Slot statuses. pending -> posting -> {posted|failed} is monotonic; empty
// marks a grid position the scheduler could not fill.
const (
	SlotStatusPending = "pending"
	SlotStatusPosting = "posting"
	SlotStatusPosted  = "posted"
	SlotStatusFailed  = "failed"
	SlotStatusEmpty   = "empty"
)

// ScheduledSlot binds one meal-time posting window to at most one content
// item. SlotTime is an absolute timestamp stamped at scheduling time so
// execution never recomputes it from day+index.
type ScheduledSlot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Day         time.Time `gorm:"not null;uniqueIndex:idx_day_slot" json:"day"`
	SlotIndex   int       `gorm:"not null;uniqueIndex:idx_day_slot" json:"slot_index"`
	SlotTime    time.Time `gorm:"not null;index" json:"slot_time"`
	ContentID   *uint     `gorm:"index" json:"content_id"`
	Platform    string    `gorm:"size:50" json:"platform"`
	ContentType string    `gorm:"size:50" json:"content_type"`
	Status      string    `gorm:"size:50;default:'pending';index" json:"status"`
	FailReason  string    `gorm:"size:500" json:"fail_reason"`
	ClaimedAt   *time.Time `json:"claimed_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Content *ContentItem `gorm:"foreignKey:ContentID" json:"content,omitempty"`
}

// AgeInPosting returns how long the slot has been claimed, for stuck-slot
// detection. Zero when the slot was never claimed.
func (s *ScheduledSlot) AgeInPosting(now time.Time) time.Duration {
	if s.ClaimedAt == nil {
		return 0
	}
	return now.Sub(*s.ClaimedAt)
}

// PostedRecord is the append-only audit of what actually went out. It is the
// ground truth the dedup engine checks future candidates against; rows are
// never deleted.
type PostedRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ContentID   uint      `gorm:"not null;index" json:"content_id"`
	SlotID      uint      `gorm:"not null;uniqueIndex" json:"slot_id"`
	Platform    string    `gorm:"size:50;index" json:"platform"`
	ContentType string    `gorm:"size:50" json:"content_type"`
	PostedAt    time.Time `gorm:"not null;index" json:"posted_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	Content ContentItem `gorm:"foreignKey:ContentID" json:"content"`
}

// ScanRun records one scan invocation against one platform, validated at the
// boundary before its counts feed buffer statistics.
type ScanRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Platform   string    `gorm:"not null;index;size:50" json:"platform"`
	TotalFound int       `gorm:"default:0" json:"total_found"`
	Processed  int       `gorm:"default:0" json:"processed"`
	Approved   int       `gorm:"default:0" json:"approved"`
	Rejected   int       `gorm:"default:0" json:"rejected"`
	Duplicates int       `gorm:"default:0" json:"duplicates"`
	Errors     string    `gorm:"type:text" json:"errors"`
	StartedAt  time.Time `gorm:"not null;index" json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
