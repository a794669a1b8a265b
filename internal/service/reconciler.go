package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful/plateful/internal/config"
	"github.com/plateful/plateful/internal/models"
)

// Reconciler is the periodic data-hygiene loop: it recovers slots stuck in
// posting, refreshes the daily stats rollup and prunes old audit rows. It is
// the only long-running goroutine in the service and can be disabled when an
// external job owns reconciliation.
type Reconciler struct {
	cfg        *config.ReconcilerConfig
	db         *gorm.DB
	monitoring *MonitoringService
	logger     *zap.Logger
	ticker     *time.Ticker
	stopCh     chan struct{}
}

func NewReconciler(cfg *config.ReconcilerConfig, db *gorm.DB, monitoring *MonitoringService, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cfg:        cfg,
		db:         db,
		monitoring: monitoring,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.logger.Info("Reconciler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(r.cfg.Interval)
	if err != nil {
		r.logger.Error("Invalid reconciler interval", zap.String("interval", r.cfg.Interval), zap.Error(err))
		return err
	}

	r.logger.Info("Starting reconciler", zap.String("interval", r.cfg.Interval))
	r.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-r.ticker.C:
				r.runOnce()
			case <-r.stopCh:
				r.logger.Info("Reconciler stopped")
				return
			case <-ctx.Done():
				r.logger.Info("Reconciler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (r *Reconciler) Stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	close(r.stopCh)
}

func (r *Reconciler) runOnce() {
	if recovered, err := r.RecoverStuckSlots(); err != nil {
		r.logger.Error("Stuck slot recovery failed", zap.Error(err))
	} else if recovered > 0 {
		r.logger.Warn("Recovered stuck posting slots", zap.Int("count", recovered))
	}

	if err := r.monitoring.UpdateDailyStats(); err != nil {
		r.logger.Error("Failed to update daily stats", zap.Error(err))
	}

	if err := r.monitoring.CleanupOldData(r.cfg.ErrorRetentionDays); err != nil {
		r.logger.Error("Failed to cleanup old data", zap.Error(err))
	}
}

// RecoverStuckSlots fails any slot claimed longer ago than the cutoff and
// returns its content to the approved pool. A crash between claim and commit
// is the only way to get here.
func (r *Reconciler) RecoverStuckSlots() (int, error) {
	cutoff := time.Now().Add(-time.Duration(r.cfg.StuckCutoffMinutes) * time.Minute)

	var stuck []models.ScheduledSlot
	if err := r.db.
		Where("status = ? AND claimed_at < ?", models.SlotStatusPosting, cutoff).
		Find(&stuck).Error; err != nil {
		return 0, err
	}

	recovered := 0
	for _, slot := range stuck {
		err := r.db.Transaction(func(tx *gorm.DB) error {
			update := tx.Model(&models.ScheduledSlot{}).
				Where("id = ? AND status = ?", slot.ID, models.SlotStatusPosting).
				Updates(map[string]interface{}{
					"status":      models.SlotStatusFailed,
					"fail_reason": fmt.Sprintf("%s: stuck in posting past cutoff", ReasonTransient),
				})
			if update.Error != nil {
				return update.Error
			}
			if update.RowsAffected == 0 {
				return nil // resolved concurrently
			}

			if slot.ContentID != nil {
				if err := tx.Model(&models.ContentItem{}).
					Where("id = ? AND status = ?", *slot.ContentID, models.StatusScheduled).
					Updates(map[string]interface{}{
						"status":        models.StatusApproved,
						"scheduled_for": nil,
					}).Error; err != nil {
					return err
				}
			}
			recovered++
			return nil
		})
		if err != nil {
			r.logger.Error("Failed to recover stuck slot",
				zap.Uint("slot_id", slot.ID),
				zap.Error(err))
		}
	}

	return recovered, nil
}
