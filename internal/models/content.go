package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Content lifecycle statuses. Rejected and archived are terminal; posted is
// terminal; scheduled may revert to approved when a slot is canceled.
const (
	StatusDiscovered    = "discovered"
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusRejected      = "rejected"
	StatusScheduled     = "scheduled"
	StatusPosted        = "posted"
	StatusArchived      = "archived"
)

// Source platforms
const (
	PlatformReddit   = "reddit"
	PlatformYouTube  = "youtube"
	PlatformGiphy    = "giphy"
	PlatformPixabay  = "pixabay"
	PlatformImgur    = "imgur"
	PlatformTumblr   = "tumblr"
	PlatformBluesky  = "bluesky"
	PlatformLemmy    = "lemmy"
	PlatformMastodon = "mastodon"
)

// Content types
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
	ContentTypeVideo = "video"
	ContentTypeGif   = "gif"
	ContentTypeMixed = "mixed"
)

type ContentItem struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ContentID       string     `gorm:"uniqueIndex;not null;size:36" json:"content_id"`
	SourcePlatform  string     `gorm:"not null;index;size:50" json:"source_platform"`
	ContentType     string     `gorm:"not null;size:50" json:"content_type"`
	Title           string     `gorm:"size:500" json:"title"`
	Body            string     `gorm:"type:text" json:"body"`
	ContentHash     string     `gorm:"index;size:64" json:"content_hash"`
	OriginalURL     string     `gorm:"index;size:2048" json:"original_url"`
	MediaURL        string     `gorm:"size:2048" json:"media_url"`
	ConfidenceScore float64    `gorm:"default:0" json:"confidence_score"`
	Status          string     `gorm:"size:50;default:'discovered';index" json:"status"`
	ScheduledFor    *time.Time `json:"scheduled_for"`
	PostedAt        *time.Time `json:"posted_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *ContentItem) BeforeCreate(*gorm.DB) error {
	if c.ContentID == "" {
		c.ContentID = uuid.NewString()
	}
	return nil
}

// IsVisual reports whether the item counts toward the visual share of the
// buffer (target mix is at least 60% image/video/gif).
func (c *ContentItem) IsVisual() bool {
	switch c.ContentType {
	case ContentTypeImage, ContentTypeVideo, ContentTypeGif:
		return true
	}
	return false
}

// legal lifecycle edges
var contentTransitions = map[string][]string{
	StatusDiscovered:    {StatusPendingReview, StatusArchived},
	StatusPendingReview: {StatusApproved, StatusRejected, StatusArchived},
	StatusApproved:      {StatusScheduled, StatusArchived},
	StatusScheduled:     {StatusPosted, StatusApproved},
}

// CanTransition reports whether the content lifecycle allows from -> to.
func CanTransition(from, to string) bool {
	for _, next := range contentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing an illegal lifecycle edge.
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal content transition %s -> %s", from, to)
	}
	return nil
}
