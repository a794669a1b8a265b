package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful/plateful/internal/config"
	"github.com/plateful/plateful/internal/models"
)

// Publisher performs the outbound publish side effect for a due slot.
type Publisher interface {
	Publish(ctx context.Context, item *models.ContentItem) error
}

// NopPublisher is used when the feed itself is the database: marking the
// item posted is the whole side effect.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.ContentItem) error { return nil }

// WebhookPublisher POSTs the published item as JSON to a configured URL.
type WebhookPublisher struct {
	URL    string
	Client *http.Client
}

func NewWebhookPublisher(cfg *config.PublisherConfig) *WebhookPublisher {
	return &WebhookPublisher{
		URL: cfg.WebhookURL,
		Client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, item *models.ContentItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// PostRunResult is the structured response of one cron invocation.
type PostRunResult struct {
	PostedCount    int      `json:"posted_count"`
	ScheduledCount int      `json:"scheduled_count"`
	Errors         []string `json:"errors"`
	Status         string   `json:"status"`
}

// PostingExecutor is the cron-invoked engine that posts the single due slot
// exactly once. All mutual exclusion lives in conditional writes against the
// store, never in memory, so overlapping cron fires are safe.
type PostingExecutor struct {
	db        *gorm.DB
	cfg       *config.ScheduleConfig
	scheduler *SlotScheduler
	publisher Publisher
	retry     retrypolicy.RetryPolicy[any]
	logger    *zap.Logger
	now       func() time.Time
}

func NewPostingExecutor(db *gorm.DB, cfg *config.ScheduleConfig, pubCfg *config.PublisherConfig, scheduler *SlotScheduler, publisher Publisher, logger *zap.Logger) *PostingExecutor {
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(500*time.Millisecond, 5*time.Second).
		WithMaxRetries(pubCfg.MaxRetries).
		Build()

	return &PostingExecutor{
		db:        db,
		cfg:       cfg,
		scheduler: scheduler,
		publisher: publisher,
		retry:     retry,
		logger:    logger,
		now:       time.Now,
	}
}

// ExecuteDuePost runs one posting cycle: find the earliest pending slot in
// the grace window, claim it, publish, mark posted, replenish the schedule.
// Repeated invocations inside the same window are no-ops after the first.
func (p *PostingExecutor) ExecuteDuePost(ctx context.Context) *PostRunResult {
	result := &PostRunResult{Status: "no_action"}

	now := p.now()
	grace := time.Duration(p.cfg.GraceMinutes) * time.Minute

	slot, err := p.findDueSlot(now, grace)
	if err != nil {
		result.Status = "error"
		result.Errors = append(result.Errors, fmt.Sprintf("%s: due-slot query: %v", ReasonTransient, err))
		return result
	}
	if slot == nil {
		return result
	}

	if !p.claim(slot, now) {
		// Another invocation won the slot; cron double-fire is expected.
		p.logger.Info("Slot already claimed, no action",
			zap.Uint("slot_id", slot.ID))
		return result
	}

	content, err := p.resolveContent(slot)
	if err != nil {
		p.failSlot(slot, ReasonEmptySlot, err.Error())
		result.Status = "failed"
		result.Errors = append(result.Errors, fmt.Sprintf("%s: slot %d: %v", ReasonEmptySlot, slot.ID, err))
		p.replenish(result)
		return result
	}

	if err := p.publish(ctx, content); err != nil {
		p.logger.Error("Publish failed",
			zap.Uint("slot_id", slot.ID),
			zap.String("content_id", content.ContentID),
			zap.Error(err))
		p.failSlot(slot, ReasonTransient, err.Error())
		p.revertContent(content)
		result.Status = "failed"
		result.Errors = append(result.Errors, fmt.Sprintf("%s: publish slot %d: %v", ReasonTransient, slot.ID, err))
		return result
	}

	if err := p.markPosted(slot, content, now); err != nil {
		p.failSlot(slot, ReasonTransient, err.Error())
		p.revertContent(content)
		result.Status = "failed"
		result.Errors = append(result.Errors, fmt.Sprintf("%s: record post for slot %d: %v", ReasonTransient, slot.ID, err))
		return result
	}

	p.logger.Info("Posted slot",
		zap.Uint("slot_id", slot.ID),
		zap.String("content_id", content.ContentID),
		zap.String("platform", content.SourcePlatform))

	result.PostedCount = 1
	result.Status = "posted"
	p.replenish(result)
	return result
}

// findDueSlot picks the single earliest pending slot inside [now-grace,
// now+grace].
func (p *PostingExecutor) findDueSlot(now time.Time, grace time.Duration) (*models.ScheduledSlot, error) {
	var slot models.ScheduledSlot
	err := p.db.
		Where("status = ? AND slot_time >= ? AND slot_time <= ?",
			models.SlotStatusPending, now.Add(-grace), now.Add(grace)).
		Order("slot_time ASC").
		First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// claim performs the pending -> posting transition. The conditional update
// is the distributed lock: across concurrent invocations at most one sees
// RowsAffected == 1.
func (p *PostingExecutor) claim(slot *models.ScheduledSlot, now time.Time) bool {
	update := p.db.Model(&models.ScheduledSlot{}).
		Where("id = ? AND status = ?", slot.ID, models.SlotStatusPending).
		Updates(map[string]interface{}{
			"status":     models.SlotStatusPosting,
			"claimed_at": now,
		})
	if update.Error != nil {
		p.logger.Error("Slot claim failed", zap.Uint("slot_id", slot.ID), zap.Error(update.Error))
		return false
	}
	return update.RowsAffected == 1
}

func (p *PostingExecutor) resolveContent(slot *models.ScheduledSlot) (*models.ContentItem, error) {
	if slot.ContentID == nil {
		return nil, fmt.Errorf("slot has no bound content")
	}
	var content models.ContentItem
	err := p.db.First(&content, *slot.ContentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("bound content %d no longer exists", *slot.ContentID)
	}
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// publish runs the side effect through a bounded retry with backoff; the
// next cron tick remains the backstop for anything still failing.
func (p *PostingExecutor) publish(ctx context.Context, content *models.ContentItem) error {
	return failsafe.With(p.retry).WithContext(ctx).Run(func() error {
		return p.publisher.Publish(ctx, content)
	})
}

// markPosted commits the post atomically: content terminal, audit record
// appended, slot closed.
func (p *PostingExecutor) markPosted(slot *models.ScheduledSlot, content *models.ContentItem, now time.Time) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ContentItem{}).
			Where("id = ?", content.ID).
			Updates(map[string]interface{}{
				"status":    models.StatusPosted,
				"posted_at": now,
			}).Error; err != nil {
			return err
		}

		record := models.PostedRecord{
			ContentID:   content.ID,
			SlotID:      slot.ID,
			Platform:    content.SourcePlatform,
			ContentType: content.ContentType,
			PostedAt:    now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		update := tx.Model(&models.ScheduledSlot{}).
			Where("id = ? AND status = ?", slot.ID, models.SlotStatusPosting).
			Update("status", models.SlotStatusPosted)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return fmt.Errorf("slot %d left posting state during commit", slot.ID)
		}
		return nil
	})
}

// failSlot closes a claimed slot as failed; a slot must never stay stuck in
// posting.
func (p *PostingExecutor) failSlot(slot *models.ScheduledSlot, reason, detail string) {
	if err := p.db.Model(&models.ScheduledSlot{}).
		Where("id = ? AND status = ?", slot.ID, models.SlotStatusPosting).
		Updates(map[string]interface{}{
			"status":      models.SlotStatusFailed,
			"fail_reason": fmt.Sprintf("%s: %s", reason, detail),
		}).Error; err != nil {
		p.logger.Error("Failed to mark slot failed",
			zap.Uint("slot_id", slot.ID),
			zap.Error(err))
	}
}

// revertContent returns failed content to the approved pool so a future
// scheduling pass can retry it.
func (p *PostingExecutor) revertContent(content *models.ContentItem) {
	if err := p.db.Model(&models.ContentItem{}).
		Where("id = ? AND status = ?", content.ID, models.StatusScheduled).
		Updates(map[string]interface{}{
			"status":        models.StatusApproved,
			"scheduled_for": nil,
		}).Error; err != nil {
		p.logger.Error("Failed to revert content to approved",
			zap.String("content_id", content.ContentID),
			zap.Error(err))
	}
}

// replenish keeps the rolling horizon filled. Failures are logged, never
// fatal to the posting result.
func (p *PostingExecutor) replenish(result *PostRunResult) {
	batch, err := p.scheduler.Replenish()
	if err != nil {
		p.logger.Error("Replenishment failed", zap.Error(err))
		return
	}
	result.ScheduledCount = len(batch.Scheduled)
	for _, e := range batch.Errors {
		p.logger.Warn("Replenishment error", zap.String("error", e))
	}
}
