package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful/plateful/internal/config"
	"github.com/plateful/plateful/internal/models"
)

// Scan priorities
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Platforms whose feeds are predominantly image/video. They outrank
// text-only sources when a scan is triggered.
var visualPlatforms = map[string]bool{
	models.PlatformYouTube: true,
	models.PlatformGiphy:   true,
	models.PlatformPixabay: true,
	models.PlatformImgur:   true,
	models.PlatformTumblr:  true,
}

type ScanDecision struct {
	ShouldScan bool     `json:"should_scan"`
	Reason     string   `json:"reason"`
	Priority   string   `json:"priority,omitempty"`
	Platforms  []string `json:"platforms_to_scan,omitempty"`
}

type platformState struct {
	Name         string
	Buffer       int
	Approved     int
	Rejected     int
	LastScanAt   *time.Time
}

func (p *platformState) approvalRate() float64 {
	total := p.Approved + p.Rejected
	if total == 0 {
		return 0
	}
	return float64(p.Approved) / float64(total)
}

type bufferStats struct {
	TotalBuffer  int
	VisualBuffer int
	LastScanAt   *time.Time
	Platforms    map[string]*platformState
}

// ScanDecisionEngine inspects buffer depth and scan recency and decides
// whether scanning is worth the API quota. It is stateless and read-only;
// all inputs are loaded fresh per invocation.
type ScanDecisionEngine struct {
	db       *gorm.DB
	cfg      *config.ScanConfig
	registry *ScannerRegistry
	logger   *zap.Logger
	now      func() time.Time
}

func NewScanDecisionEngine(db *gorm.DB, cfg *config.ScanConfig, registry *ScannerRegistry, logger *zap.Logger) *ScanDecisionEngine {
	return &ScanDecisionEngine{
		db:       db,
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Decide evaluates the threshold ladder in priority order, first true wins.
// Query failures degrade to a conservative scan-everything default: failing
// open only wastes quota, it never posts duplicates.
func (e *ScanDecisionEngine) Decide() ScanDecision {
	stats, err := e.loadBufferStats()
	if err != nil {
		e.logger.Error("Buffer stats query failed, falling back to conservative scan",
			zap.Error(err))
		return ScanDecision{
			ShouldScan: true,
			Reason:     fmt.Sprintf("%s: decision inputs unavailable, conservative fallback", ReasonUpstreamDegraded),
			Priority:   PriorityMedium,
			Platforms:  e.cfg.FallbackPlatforms,
		}
	}

	allRanked := e.rankPlatforms(stats, e.knownPlatforms(stats))

	if stats.TotalBuffer < e.cfg.CriticalBuffer {
		return ScanDecision{
			ShouldScan: true,
			Reason:     fmt.Sprintf("critical: buffer %d below one day of content", stats.TotalBuffer),
			Priority:   PriorityHigh,
			Platforms:  allRanked,
		}
	}

	if stats.TotalBuffer < e.cfg.LowBuffer {
		return ScanDecision{
			ShouldScan: true,
			Reason:     fmt.Sprintf("low buffer: %d items, under two days", stats.TotalBuffer),
			Priority:   PriorityHigh,
			Platforms:  allRanked,
		}
	}

	if stats.TotalBuffer > 0 {
		visualRatio := float64(stats.VisualBuffer) / float64(stats.TotalBuffer)
		if visualRatio < e.cfg.MinVisualRatio {
			return ScanDecision{
				ShouldScan: true,
				Reason:     fmt.Sprintf("visual ratio low: %.0f%% of buffer", visualRatio*100),
				Priority:   PriorityMedium,
				Platforms:  e.visualFirst(allRanked),
			}
		}
	}

	if deficient := e.deficientPlatforms(stats); len(deficient) > 0 {
		return ScanDecision{
			ShouldScan: true,
			Reason:     fmt.Sprintf("platform deficit: %s", strings.Join(deficient, ", ")),
			Priority:   PriorityMedium,
			Platforms:  e.rankPlatforms(stats, deficient),
		}
	}

	if stats.LastScanAt == nil || e.now().Sub(*stats.LastScanAt) > time.Duration(e.cfg.MaintenanceHours)*time.Hour {
		return ScanDecision{
			ShouldScan: true,
			Reason:     "regular maintenance scan",
			Priority:   PriorityLow,
			Platforms:  allRanked,
		}
	}

	if stats.TotalBuffer > e.cfg.HealthyBuffer {
		return ScanDecision{
			ShouldScan: false,
			Reason:     fmt.Sprintf("buffer healthy: %d items, over five days", stats.TotalBuffer),
		}
	}

	return ScanDecision{
		ShouldScan: false,
		Reason:     fmt.Sprintf("buffer adequate: %d items", stats.TotalBuffer),
	}
}

func (e *ScanDecisionEngine) loadBufferStats() (*bufferStats, error) {
	stats := &bufferStats{Platforms: make(map[string]*platformState)}

	bufferStatuses := []string{models.StatusApproved, models.StatusScheduled}

	var total int64
	if err := e.db.Model(&models.ContentItem{}).
		Where("status IN ?", bufferStatuses).
		Count(&total).Error; err != nil {
		return nil, err
	}
	stats.TotalBuffer = int(total)

	var visual int64
	if err := e.db.Model(&models.ContentItem{}).
		Where("status IN ? AND content_type IN ?", bufferStatuses,
			[]string{models.ContentTypeImage, models.ContentTypeVideo, models.ContentTypeGif}).
		Count(&visual).Error; err != nil {
		return nil, err
	}
	stats.VisualBuffer = int(visual)

	// Per-platform buffer depth
	type platformCount struct {
		SourcePlatform string
		N              int
	}
	var counts []platformCount
	if err := e.db.Model(&models.ContentItem{}).
		Select("source_platform, COUNT(*) AS n").
		Where("status IN ?", bufferStatuses).
		Group("source_platform").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.Platforms[c.SourcePlatform] = &platformState{Name: c.SourcePlatform, Buffer: c.N}
	}

	// Per-platform scan history and approval rates. The run table stays
	// small (the reconciler prunes it), so aggregate in Go rather than
	// leaning on driver-specific date aggregates.
	var runs []models.ScanRun
	if err := e.db.Find(&runs).Error; err != nil {
		return nil, err
	}
	for _, run := range runs {
		state, ok := stats.Platforms[run.Platform]
		if !ok {
			state = &platformState{Name: run.Platform}
			stats.Platforms[run.Platform] = state
		}
		state.Approved += run.Approved
		state.Rejected += run.Rejected
		last := run.StartedAt
		if state.LastScanAt == nil || last.After(*state.LastScanAt) {
			t := last
			state.LastScanAt = &t
		}
		if stats.LastScanAt == nil || last.After(*stats.LastScanAt) {
			t := last
			stats.LastScanAt = &t
		}
	}

	return stats, nil
}

// knownPlatforms is the universe the engine can propose: registered scanners
// plus anything already seen in the buffer or scan history, plus essentials.
func (e *ScanDecisionEngine) knownPlatforms(stats *bufferStats) []string {
	set := make(map[string]bool)
	for _, p := range e.registry.Platforms() {
		set[p] = true
	}
	for p := range stats.Platforms {
		set[p] = true
	}
	for _, p := range e.cfg.EssentialPlatforms {
		set[p] = true
	}
	var out []string
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (e *ScanDecisionEngine) deficientPlatforms(stats *bufferStats) []string {
	var deficient []string
	staleCutoff := e.now().Add(-time.Duration(e.cfg.PlatformStaleHours) * time.Hour)
	for _, name := range e.knownPlatforms(stats) {
		state, ok := stats.Platforms[name]
		if !ok || state.Buffer < e.cfg.PlatformMinBuffer {
			deficient = append(deficient, name)
			continue
		}
		if state.LastScanAt == nil || state.LastScanAt.Before(staleCutoff) {
			deficient = append(deficient, name)
		}
	}
	return deficient
}

// rankPlatforms orders scan targets: visual sources first, then the
// shallowest buffers, then the best historical approval rates, then the
// stalest scans. Essential platforms win remaining ties.
func (e *ScanDecisionEngine) rankPlatforms(stats *bufferStats, platforms []string) []string {
	essential := make(map[string]bool, len(e.cfg.EssentialPlatforms))
	for _, p := range e.cfg.EssentialPlatforms {
		essential[p] = true
	}

	state := func(name string) *platformState {
		if s, ok := stats.Platforms[name]; ok {
			return s
		}
		return &platformState{Name: name}
	}

	ranked := append([]string(nil), platforms...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := state(ranked[i]), state(ranked[j])
		if visualPlatforms[a.Name] != visualPlatforms[b.Name] {
			return visualPlatforms[a.Name]
		}
		if a.Buffer != b.Buffer {
			return a.Buffer < b.Buffer
		}
		if a.approvalRate() != b.approvalRate() {
			return a.approvalRate() > b.approvalRate()
		}
		aScan, bScan := a.LastScanAt, b.LastScanAt
		if (aScan == nil) != (bScan == nil) {
			return aScan == nil // never scanned is stalest
		}
		if aScan != nil && !aScan.Equal(*bScan) {
			return aScan.Before(*bScan)
		}
		return essential[a.Name] && !essential[b.Name]
	})
	return ranked
}

func (e *ScanDecisionEngine) visualFirst(ranked []string) []string {
	var visual, rest []string
	for _, p := range ranked {
		if visualPlatforms[p] {
			visual = append(visual, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(visual, rest...)
}

// ScanBatchResult aggregates one RunScans invocation.
type ScanBatchResult struct {
	Decision ScanDecision           `json:"decision"`
	Results  map[string]*ScanResult `json:"results"`
	Errors   []string               `json:"errors,omitempty"`
}

// RunScans invokes the registered scanners for the decided platforms and
// persists a validated ScanRun per platform. One scanner failing never
// aborts the rest of the batch.
func (e *ScanDecisionEngine) RunScans(ctx context.Context, decision ScanDecision) *ScanBatchResult {
	batch := &ScanBatchResult{
		Decision: decision,
		Results:  make(map[string]*ScanResult),
	}
	if !decision.ShouldScan {
		return batch
	}

	for _, platform := range decision.Platforms {
		scanner, err := e.registry.Get(platform)
		if err != nil {
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", platform, err))
			continue
		}

		startedAt := e.now()
		result, err := scanner.PerformScan(ctx, ScanOptions{MaxPosts: e.cfg.DefaultMaxPosts})
		if err != nil {
			e.logger.Error("Scan failed",
				zap.String("platform", platform),
				zap.Error(err))
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %s: %v", ReasonUpstreamDegraded, platform, err))
			e.recordRun(platform, &ScanResult{Errors: []string{err.Error()}}, startedAt)
			continue
		}

		if err := result.Validate(); err != nil {
			e.logger.Error("Scanner returned invalid counts",
				zap.String("platform", platform),
				zap.Error(err))
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: invalid result: %v", platform, err))
			continue
		}

		e.recordRun(platform, result, startedAt)
		batch.Results[platform] = result

		e.logger.Info("Scan completed",
			zap.String("platform", platform),
			zap.Int("found", result.TotalFound),
			zap.Int("approved", result.Approved))
	}

	return batch
}

func (e *ScanDecisionEngine) recordRun(platform string, result *ScanResult, startedAt time.Time) {
	run := &models.ScanRun{
		Platform:   platform,
		TotalFound: result.TotalFound,
		Processed:  result.Processed,
		Approved:   result.Approved,
		Rejected:   result.Rejected,
		Duplicates: result.Duplicates,
		Errors:     strings.Join(result.Errors, "; "),
		StartedAt:  startedAt,
		FinishedAt: e.now(),
	}
	if err := e.db.Create(run).Error; err != nil {
		e.logger.Error("Failed to record scan run",
			zap.String("platform", platform),
			zap.Error(err))
	}
}
