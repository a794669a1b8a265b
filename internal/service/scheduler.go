package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful/plateful/internal/config"
	"github.com/plateful/plateful/internal/models"
)

const (
	maxDaysAhead   = 30
	maxPostsPerDay = 12
)

// SkippedSlot records a grid position the scheduler could not fill.
type SkippedSlot struct {
	Day       string `json:"day"`
	SlotIndex int    `json:"slot_index"`
	Reason    string `json:"reason"`
}

// BatchResult is the partial-result contract of a scheduling pass. One slot
// failing never aborts the rest of the batch.
type BatchResult struct {
	Scheduled []models.ScheduledSlot `json:"scheduled"`
	Skipped   []SkippedSlot          `json:"skipped"`
	Errors    []string               `json:"errors"`
}

// SlotScheduler allocates approved, deduplicated candidates into the fixed
// daily meal-time grid, balancing platform and content-type mix per day.
type SlotScheduler struct {
	db     *gorm.DB
	cfg    *config.ScheduleConfig
	dedup  *DedupEngine
	logger *zap.Logger
	now    func() time.Time
}

func NewSlotScheduler(db *gorm.DB, cfg *config.ScheduleConfig, dedup *DedupEngine, logger *zap.Logger) *SlotScheduler {
	return &SlotScheduler{
		db:     db,
		cfg:    cfg,
		dedup:  dedup,
		logger: logger,
		now:    time.Now,
	}
}

// SlotTime derives the absolute timestamp for a (day, slotIndex) position.
func (s *SlotScheduler) SlotTime(day time.Time, slotIndex int) time.Time {
	hour := s.cfg.SlotHours[slotIndex]
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

// ScheduleNextBatch fills every unoccupied slot in the next daysAhead days.
// Re-invoking over an already-full window is a no-op that schedules nothing.
func (s *SlotScheduler) ScheduleNextBatch(daysAhead, postsPerDay int) (*BatchResult, error) {
	if daysAhead < 1 || daysAhead > maxDaysAhead {
		return nil, fmt.Errorf("%s: daysAhead must be between 1 and %d", ReasonValidation, maxDaysAhead)
	}
	if postsPerDay < 1 || postsPerDay > len(s.cfg.SlotHours) || postsPerDay > maxPostsPerDay {
		return nil, fmt.Errorf("%s: postsPerDay must be between 1 and %d", ReasonValidation, len(s.cfg.SlotHours))
	}

	result := &BatchResult{}

	pool, err := s.candidatePool()
	if err != nil {
		// Dedup fails closed: schedule nothing rather than risk a repeat.
		result.Errors = append(result.Errors, fmt.Sprintf("%s: candidate pool unavailable: %v", ReasonTransient, err))
		return result, nil
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for d := 0; d < daysAhead; d++ {
		day := today.AddDate(0, 0, d)

		platformTally, typeTally, err := s.dayTallies(day)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: day tally for %s: %v", ReasonTransient, day.Format("2006-01-02"), err))
			continue
		}

		for idx := 0; idx < postsPerDay; idx++ {
			slotTime := s.SlotTime(day, idx)
			if slotTime.Before(now) {
				continue
			}

			existing, err := s.slotAt(day, idx)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: slot lookup %s/%d: %v", ReasonTransient, day.Format("2006-01-02"), idx, err))
				continue
			}
			if existing != nil && existing.Status != models.SlotStatusEmpty {
				continue // occupied, re-entrant no-op
			}

			pick := pickCandidate(pool, platformTally, typeTally)
			if pick < 0 {
				s.recordEmpty(result, existing, day, idx, slotTime)
				continue
			}

			candidate := pool[pick]
			slot, err := s.bind(existing, day, idx, slotTime, &candidate)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: bind %s/%d: %v", ReasonTransient, day.Format("2006-01-02"), idx, err))
				continue
			}

			pool = append(pool[:pick], pool[pick+1:]...)
			platformTally[candidate.SourcePlatform]++
			typeTally[candidate.ContentType]++
			result.Scheduled = append(result.Scheduled, *slot)
		}
	}

	s.logger.Info("Scheduling batch finished",
		zap.Int("scheduled", len(result.Scheduled)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)))

	return result, nil
}

// candidatePool loads approved content, deduplicates it against history and
// returns it ranked by confidence then age.
func (s *SlotScheduler) candidatePool() ([]models.ContentItem, error) {
	var approved []models.ContentItem
	if err := s.db.Where("status = ?", models.StatusApproved).Find(&approved).Error; err != nil {
		return nil, err
	}
	return s.dedup.FilterUnique(approved)
}

// dayTallies counts the platforms and content types already committed on a
// day, so new picks balance against what is there.
func (s *SlotScheduler) dayTallies(day time.Time) (map[string]int, map[string]int, error) {
	var slots []models.ScheduledSlot
	if err := s.db.
		Where("day = ? AND status IN ?", day,
			[]string{models.SlotStatusPending, models.SlotStatusPosting, models.SlotStatusPosted}).
		Find(&slots).Error; err != nil {
		return nil, nil, err
	}

	platforms := make(map[string]int)
	types := make(map[string]int)
	for _, slot := range slots {
		if slot.Platform != "" {
			platforms[slot.Platform]++
		}
		if slot.ContentType != "" {
			types[slot.ContentType]++
		}
	}
	return platforms, types, nil
}

func (s *SlotScheduler) slotAt(day time.Time, idx int) (*models.ScheduledSlot, error) {
	var slot models.ScheduledSlot
	err := s.db.Where("day = ? AND slot_index = ?", day, idx).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// pickCandidate selects the index of the best candidate for a slot: fewest
// same-platform assignments that day first, then the most under-represented
// content type, then pool rank. Returns -1 when the pool is empty.
func pickCandidate(pool []models.ContentItem, platformTally, typeTally map[string]int) int {
	best := -1
	bestPlatform, bestType := 0, 0
	for i := range pool {
		p := platformTally[pool[i].SourcePlatform]
		t := typeTally[pool[i].ContentType]
		if best == -1 || p < bestPlatform || (p == bestPlatform && t < bestType) {
			best, bestPlatform, bestType = i, p, t
		}
	}
	return best
}

// bind commits a candidate to a slot. The content update is conditional on
// the item still being approved; a concurrent scheduler losing that race
// skips the candidate cleanly.
func (s *SlotScheduler) bind(existing *models.ScheduledSlot, day time.Time, idx int, slotTime time.Time, candidate *models.ContentItem) (*models.ScheduledSlot, error) {
	var bound models.ScheduledSlot

	err := s.db.Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&models.ContentItem{}).
			Where("id = ? AND status = ?", candidate.ID, models.StatusApproved).
			Updates(map[string]interface{}{
				"status":        models.StatusScheduled,
				"scheduled_for": slotTime,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return fmt.Errorf("%s: content %s no longer approved", ReasonConflict, candidate.ContentID)
		}

		if existing != nil {
			update := tx.Model(&models.ScheduledSlot{}).
				Where("id = ? AND status = ?", existing.ID, models.SlotStatusEmpty).
				Updates(map[string]interface{}{
					"content_id":   candidate.ID,
					"platform":     candidate.SourcePlatform,
					"content_type": candidate.ContentType,
					"status":       models.SlotStatusPending,
					"slot_time":    slotTime,
					"fail_reason":  "",
				})
			if update.Error != nil {
				return update.Error
			}
			if update.RowsAffected == 0 {
				return fmt.Errorf("%s: slot %d claimed concurrently", ReasonConflict, existing.ID)
			}
			return tx.First(&bound, existing.ID).Error
		}

		bound = models.ScheduledSlot{
			Day:         day,
			SlotIndex:   idx,
			SlotTime:    slotTime,
			ContentID:   &candidate.ID,
			Platform:    candidate.SourcePlatform,
			ContentType: candidate.ContentType,
			Status:      models.SlotStatusPending,
		}
		// Unique (day, slot_index) index rejects concurrent double-creates.
		return tx.Create(&bound).Error
	})
	if err != nil {
		return nil, err
	}

	return &bound, nil
}

// recordEmpty persists an empty slot row (so later passes can fill it) and
// notes the gap in the batch result.
func (s *SlotScheduler) recordEmpty(result *BatchResult, existing *models.ScheduledSlot, day time.Time, idx int, slotTime time.Time) {
	dayStr := day.Format("2006-01-02")
	result.Skipped = append(result.Skipped, SkippedSlot{
		Day:       dayStr,
		SlotIndex: idx,
		Reason:    "no eligible candidate",
	})

	if existing != nil {
		return // already an empty row
	}
	slot := models.ScheduledSlot{
		Day:       day,
		SlotIndex: idx,
		SlotTime:  slotTime,
		Status:    models.SlotStatusEmpty,
	}
	if err := s.db.Create(&slot).Error; err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: record empty slot %s/%d: %v", ReasonTransient, dayStr, idx, err))
	}
}

// ScheduleSummary is the read-only projection served to the admin API.
type ScheduleSummary struct {
	Slots        []models.ScheduledSlot `json:"slots"`
	ByPlatform   map[string]int         `json:"by_platform"`
	BySlotIndex  map[int]int            `json:"by_slot_index"`
	FilledCount  int                    `json:"filled_count"`
	EmptyCount   int                    `json:"empty_count"`
}

// UpcomingSchedule returns the next N days of slots with distribution
// summaries. Slot age in `posting` is derivable from ClaimedAt in the rows.
func (s *SlotScheduler) UpcomingSchedule(days int) (*ScheduleSummary, error) {
	if days < 1 || days > maxDaysAhead {
		return nil, fmt.Errorf("%s: days must be between 1 and %d", ReasonValidation, maxDaysAhead)
	}

	now := s.now()
	var slots []models.ScheduledSlot
	if err := s.db.
		Where("slot_time >= ? AND slot_time < ?", now, now.AddDate(0, 0, days)).
		Order("slot_time ASC").
		Preload("Content").
		Find(&slots).Error; err != nil {
		return nil, err
	}

	summary := &ScheduleSummary{
		Slots:       slots,
		ByPlatform:  make(map[string]int),
		BySlotIndex: make(map[int]int),
	}
	for _, slot := range slots {
		if slot.Status == models.SlotStatusEmpty {
			summary.EmptyCount++
			continue
		}
		summary.FilledCount++
		summary.ByPlatform[slot.Platform]++
		summary.BySlotIndex[slot.SlotIndex]++
	}

	return summary, nil
}

// CancelScheduledContent returns a pending slot to empty and its content to
// the approved pool.
func (s *SlotScheduler) CancelScheduledContent(contentID string) error {
	content, err := s.findContent(contentID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		release := tx.Model(&models.ScheduledSlot{}).
			Where("content_id = ? AND status = ?", content.ID, models.SlotStatusPending).
			Updates(map[string]interface{}{
				"content_id":   nil,
				"platform":     "",
				"content_type": "",
				"status":       models.SlotStatusEmpty,
			})
		if release.Error != nil {
			return release.Error
		}
		if release.RowsAffected == 0 {
			return fmt.Errorf("%s: no pending slot bound to content %s", ReasonNotFound, contentID)
		}

		return tx.Model(&models.ContentItem{}).
			Where("id = ? AND status = ?", content.ID, models.StatusScheduled).
			Updates(map[string]interface{}{
				"status":        models.StatusApproved,
				"scheduled_for": nil,
			}).Error
	})
}

// RescheduleContent moves a bound slot to a new grid time. The new time must
// be in the future, on the slot grid, and not already occupied.
func (s *SlotScheduler) RescheduleContent(contentID string, newTime time.Time) error {
	now := s.now()
	if !newTime.After(now) {
		return fmt.Errorf("%s: new time must be in the future", ReasonValidation)
	}

	idx := -1
	for i, hour := range s.cfg.SlotHours {
		if newTime.Hour() == hour && newTime.Minute() == 0 {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%s: %s is not on the slot grid", ReasonValidation, newTime.Format("15:04"))
	}

	content, err := s.findContent(contentID)
	if err != nil {
		return err
	}

	newDay := time.Date(newTime.Year(), newTime.Month(), newTime.Day(), 0, 0, 0, 0, newTime.Location())
	slotTime := s.SlotTime(newDay, idx)

	return s.db.Transaction(func(tx *gorm.DB) error {
		var slot models.ScheduledSlot
		if err := tx.Where("content_id = ? AND status = ?", content.ID, models.SlotStatusPending).
			First(&slot).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%s: no pending slot bound to content %s", ReasonNotFound, contentID)
			}
			return err
		}

		var occupied int64
		if err := tx.Model(&models.ScheduledSlot{}).
			Where("day = ? AND slot_index = ? AND id <> ? AND status <> ?",
				newDay, idx, slot.ID, models.SlotStatusEmpty).
			Count(&occupied).Error; err != nil {
			return err
		}
		if occupied > 0 {
			return fmt.Errorf("%s: slot %s #%d already occupied", ReasonValidation, newDay.Format("2006-01-02"), idx)
		}

		// Absorb a leftover empty row at the target position.
		if err := tx.Where("day = ? AND slot_index = ? AND status = ?",
			newDay, idx, models.SlotStatusEmpty).
			Delete(&models.ScheduledSlot{}).Error; err != nil {
			return err
		}

		if err := tx.Model(&slot).Updates(map[string]interface{}{
			"day":        newDay,
			"slot_index": idx,
			"slot_time":  slotTime,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&models.ContentItem{}).
			Where("id = ?", content.ID).
			Update("scheduled_for", slotTime).Error
	})
}

// Replenish keeps the rolling horizon filled after a post goes out.
func (s *SlotScheduler) Replenish() (*BatchResult, error) {
	return s.ScheduleNextBatch(s.cfg.DaysAhead, s.cfg.PostsPerDay)
}

func (s *SlotScheduler) findContent(contentID string) (*models.ContentItem, error) {
	var content models.ContentItem
	err := s.db.Where("content_id = ?", contentID).First(&content).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: content %s not found", ReasonNotFound, contentID)
	}
	if err != nil {
		return nil, err
	}
	return &content, nil
}
