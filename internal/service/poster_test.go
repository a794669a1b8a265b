package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/plateful/plateful/internal/models"
)

type stubPublisher struct {
	calls    int
	failures int // fail this many leading calls
}

func (p *stubPublisher) Publish(context.Context, *models.ContentItem) error {
	p.calls++
	if p.calls <= p.failures {
		return fmt.Errorf("publish attempt %d failed", p.calls)
	}
	return nil
}

type posterFixture struct {
	db        *gorm.DB
	executor  *PostingExecutor
	scheduler *SlotScheduler
	publisher *stubPublisher
}

func newPosterFixture(t *testing.T, now time.Time) *posterFixture {
	t.Helper()
	db := newTestDB(t)
	cfg := testConfig()
	cfg.Publisher.MaxRetries = 1

	dedup := NewDedupEngine(db, testLogger())
	scheduler := NewSlotScheduler(db, &cfg.Schedule, dedup, testLogger())
	scheduler.now = func() time.Time { return now }

	publisher := &stubPublisher{}
	executor := NewPostingExecutor(db, &cfg.Schedule, &cfg.Publisher, scheduler, publisher, testLogger())
	executor.now = func() time.Time { return now }

	return &posterFixture{db: db, executor: executor, scheduler: scheduler, publisher: publisher}
}

// seedBoundSlot creates a scheduled content item bound to a pending slot due
// at slotTime.
func seedBoundSlot(t *testing.T, db *gorm.DB, slotTime time.Time) (models.ContentItem, models.ScheduledSlot) {
	t.Helper()

	item := models.ContentItem{
		SourcePlatform:  models.PlatformReddit,
		ContentType:     models.ContentTypeImage,
		ContentHash:     fmt.Sprintf("bound-%d", slotTime.UnixNano()),
		OriginalURL:     fmt.Sprintf("https://reddit.example/%d", slotTime.UnixNano()),
		ConfidenceScore: 0.9,
		Status:          models.StatusScheduled,
		ScheduledFor:    &slotTime,
	}
	require.NoError(t, db.Create(&item).Error)

	day := time.Date(slotTime.Year(), slotTime.Month(), slotTime.Day(), 0, 0, 0, 0, slotTime.Location())
	slot := models.ScheduledSlot{
		Day:         day,
		SlotIndex:   2,
		SlotTime:    slotTime,
		ContentID:   &item.ID,
		Platform:    item.SourcePlatform,
		ContentType: item.ContentType,
		Status:      models.SlotStatusPending,
	}
	require.NoError(t, db.Create(&slot).Error)
	return item, slot
}

var due = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestExecuteDuePostSuccess(t *testing.T) {
	f := newPosterFixture(t, due)
	item, slot := seedBoundSlot(t, f.db, due)

	result := f.executor.ExecuteDuePost(context.Background())

	assert.Equal(t, "posted", result.Status)
	assert.Equal(t, 1, result.PostedCount)
	assert.Equal(t, 1, f.publisher.calls)

	var after models.ContentItem
	require.NoError(t, f.db.First(&after, item.ID).Error)
	assert.Equal(t, models.StatusPosted, after.Status)
	require.NotNil(t, after.PostedAt)

	var slotAfter models.ScheduledSlot
	require.NoError(t, f.db.First(&slotAfter, slot.ID).Error)
	assert.Equal(t, models.SlotStatusPosted, slotAfter.Status)

	var record models.PostedRecord
	require.NoError(t, f.db.Where("slot_id = ?", slot.ID).First(&record).Error)
	assert.Equal(t, item.ID, record.ContentID)
}

func TestExecuteDuePostGraceWindowBoundary(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		posted bool
	}{
		{name: "exactly on time", offset: 0, posted: true},
		{name: "sixty minutes late", offset: 60 * time.Minute, posted: true},
		{name: "sixty minutes early", offset: -60 * time.Minute, posted: true},
		{name: "sixty one minutes late", offset: 61 * time.Minute, posted: false},
		{name: "sixty one minutes early", offset: -61 * time.Minute, posted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPosterFixture(t, due.Add(tt.offset))
			seedBoundSlot(t, f.db, due)

			result := f.executor.ExecuteDuePost(context.Background())
			if tt.posted {
				assert.Equal(t, "posted", result.Status)
			} else {
				assert.Equal(t, "no_action", result.Status)
				assert.Zero(t, f.publisher.calls)
			}
		})
	}
}

func TestExecuteDuePostDoubleFireIsIdempotent(t *testing.T) {
	f := newPosterFixture(t, due)
	seedBoundSlot(t, f.db, due)

	first := f.executor.ExecuteDuePost(context.Background())
	assert.Equal(t, "posted", first.Status)

	second := f.executor.ExecuteDuePost(context.Background())
	assert.Equal(t, "no_action", second.Status)
	assert.Zero(t, second.PostedCount)

	// Exactly one publish across both invocations
	assert.Equal(t, 1, f.publisher.calls)

	var records int64
	require.NoError(t, f.db.Model(&models.PostedRecord{}).Count(&records).Error)
	assert.EqualValues(t, 1, records)
}

func TestExecuteDuePostClaimedSlotIsSkipped(t *testing.T) {
	f := newPosterFixture(t, due)
	_, slot := seedBoundSlot(t, f.db, due)

	// Another invocation already holds the slot.
	require.NoError(t, f.db.Model(&models.ScheduledSlot{}).
		Where("id = ?", slot.ID).
		Updates(map[string]interface{}{"status": models.SlotStatusPosting, "claimed_at": due}).Error)

	result := f.executor.ExecuteDuePost(context.Background())
	assert.Equal(t, "no_action", result.Status)
	assert.Zero(t, f.publisher.calls)
}

func TestExecuteDuePostEmptySlot(t *testing.T) {
	f := newPosterFixture(t, due)

	day := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	slot := models.ScheduledSlot{
		Day:       day,
		SlotIndex: 2,
		SlotTime:  due,
		Status:    models.SlotStatusPending,
	}
	require.NoError(t, f.db.Create(&slot).Error)

	// Approved content exists, so replenishment can fill the gap the
	// failed slot leaves in the horizon.
	seedContent(t, f.db, models.ContentItem{
		SourcePlatform: models.PlatformGiphy,
		ContentType:    models.ContentTypeGif,
		ContentHash:    "replacement",
		OriginalURL:    "https://giphy.example/replacement",
		Status:         models.StatusApproved,
	})

	result := f.executor.ExecuteDuePost(context.Background())

	assert.Equal(t, "failed", result.Status)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], ReasonEmptySlot)
	assert.Zero(t, f.publisher.calls)

	var slotAfter models.ScheduledSlot
	require.NoError(t, f.db.First(&slotAfter, slot.ID).Error)
	assert.Equal(t, models.SlotStatusFailed, slotAfter.Status)
	assert.Contains(t, slotAfter.FailReason, ReasonEmptySlot)

	// Replenishment still ran and scheduled the waiting candidate
	assert.Greater(t, result.ScheduledCount, 0)
}

func TestExecuteDuePostPublishFailureRevertsContent(t *testing.T) {
	f := newPosterFixture(t, due)
	f.publisher.failures = 10 // beyond the retry budget
	item, slot := seedBoundSlot(t, f.db, due)

	result := f.executor.ExecuteDuePost(context.Background())

	assert.Equal(t, "failed", result.Status)
	// One attempt plus one retry
	assert.Equal(t, 2, f.publisher.calls)

	var slotAfter models.ScheduledSlot
	require.NoError(t, f.db.First(&slotAfter, slot.ID).Error)
	assert.Equal(t, models.SlotStatusFailed, slotAfter.Status)
	assert.Contains(t, slotAfter.FailReason, ReasonTransient)

	// Content returns to the approved pool for a future scheduling pass
	var after models.ContentItem
	require.NoError(t, f.db.First(&after, item.ID).Error)
	assert.Equal(t, models.StatusApproved, after.Status)
	assert.Nil(t, after.ScheduledFor)
}

func TestExecuteDuePostRetriesTransientPublishFailure(t *testing.T) {
	f := newPosterFixture(t, due)
	f.publisher.failures = 1 // first attempt fails, retry succeeds
	item, _ := seedBoundSlot(t, f.db, due)

	result := f.executor.ExecuteDuePost(context.Background())

	assert.Equal(t, "posted", result.Status)
	assert.Equal(t, 2, f.publisher.calls)

	var after models.ContentItem
	require.NoError(t, f.db.First(&after, item.ID).Error)
	assert.Equal(t, models.StatusPosted, after.Status)
}

func TestExecuteDuePostPicksEarliestDueSlot(t *testing.T) {
	f := newPosterFixture(t, due)

	_, early := seedBoundSlot(t, f.db, due.Add(-30*time.Minute))
	// Second pending slot later in the window on another grid position
	lateItem := seedContent(t, f.db, models.ContentItem{
		SourcePlatform: models.PlatformYouTube,
		ContentType:    models.ContentTypeVideo,
		ContentHash:    "late-slot",
		OriginalURL:    "https://youtube.example/late",
		Status:         models.StatusScheduled,
	})
	day := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	lateSlot := models.ScheduledSlot{
		Day:       day,
		SlotIndex: 3,
		SlotTime:  due.Add(30 * time.Minute),
		ContentID: &lateItem.ID,
		Platform:  lateItem.SourcePlatform,
		Status:    models.SlotStatusPending,
	}
	require.NoError(t, f.db.Create(&lateSlot).Error)

	result := f.executor.ExecuteDuePost(context.Background())
	assert.Equal(t, "posted", result.Status)

	var earlyAfter, lateAfter models.ScheduledSlot
	require.NoError(t, f.db.First(&earlyAfter, early.ID).Error)
	require.NoError(t, f.db.First(&lateAfter, lateSlot.ID).Error)
	assert.Equal(t, models.SlotStatusPosted, earlyAfter.Status)
	assert.Equal(t, models.SlotStatusPending, lateAfter.Status)
}
