package service

import (
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/pkg/textutil"
)

// SimilarityThreshold is the fuzzy-text cutoff above which a candidate is
// treated as a duplicate of historical content.
const SimilarityThreshold = 0.85

type UniqueResult struct {
	Unique bool   `json:"unique"`
	Reason string `json:"reason,omitempty"`
}

// DedupEngine is the single canonical uniqueness check. Every component that
// needs to know whether content repeats goes through here.
type DedupEngine struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewDedupEngine(db *gorm.DB, logger *zap.Logger) *DedupEngine {
	return &DedupEngine{
		db:     db,
		logger: logger,
	}
}

// IsUnique applies the dedup rules in order, first match wins: exact hash,
// exact original URL, exact media URL, then fuzzy text similarity.
func (d *DedupEngine) IsUnique(candidate *models.ContentItem, history []models.ContentItem) UniqueResult {
	for i := range history {
		prev := &history[i]
		if prev.ID != 0 && prev.ID == candidate.ID {
			continue
		}

		if candidate.ContentHash != "" && candidate.ContentHash == prev.ContentHash {
			return UniqueResult{Unique: false, Reason: "content hash match"}
		}
		if candidate.OriginalURL != "" && candidate.OriginalURL == prev.OriginalURL {
			return UniqueResult{Unique: false, Reason: "original url match"}
		}
		if candidate.MediaURL != "" && candidate.MediaURL == prev.MediaURL {
			return UniqueResult{Unique: false, Reason: "media url match"}
		}

		candText := candidate.Title + " " + candidate.Body
		prevText := prev.Title + " " + prev.Body
		if textutil.Normalize(candText) != "" && textutil.Normalize(prevText) != "" {
			if textutil.Similarity(candText, prevText) >= SimilarityThreshold {
				return UniqueResult{Unique: false, Reason: "text similarity"}
			}
		}
	}

	return UniqueResult{Unique: true}
}

// LoadHistory fetches the items future candidates must not repeat: anything
// already posted or currently scheduled, plus the posted-record audit trail.
func (d *DedupEngine) LoadHistory() ([]models.ContentItem, error) {
	var history []models.ContentItem
	if err := d.db.
		Where("status IN ?", []string{models.StatusPosted, models.StatusScheduled}).
		Find(&history).Error; err != nil {
		return nil, err
	}

	// Posted records may reference content whose row was mutated since;
	// fold their snapshots in as well.
	var records []models.PostedRecord
	if err := d.db.Preload("Content").Find(&records).Error; err != nil {
		return nil, err
	}
	seen := make(map[uint]bool, len(history))
	for _, h := range history {
		seen[h.ID] = true
	}
	for _, r := range records {
		if !seen[r.ContentID] && r.Content.ID != 0 {
			history = append(history, r.Content)
			seen[r.ContentID] = true
		}
	}

	return history, nil
}

// FilterUnique returns the candidates that survive deduplication, ranked for
// scheduling. If the history fetch fails the engine fails closed: nothing is
// reported unique, because a wasted slot is cheaper than a duplicate post.
func (d *DedupEngine) FilterUnique(candidates []models.ContentItem) ([]models.ContentItem, error) {
	history, err := d.LoadHistory()
	if err != nil {
		d.logger.Error("History fetch failed, refusing all candidates", zap.Error(err))
		return nil, err
	}

	var unique []models.ContentItem
	for i := range candidates {
		result := d.IsUnique(&candidates[i], history)
		if !result.Unique {
			d.logger.Debug("Candidate rejected as duplicate",
				zap.String("content_id", candidates[i].ContentID),
				zap.String("reason", result.Reason))
			continue
		}
		// Candidates in the same batch must also not repeat each other
		result = d.IsUnique(&candidates[i], unique)
		if !result.Unique {
			d.logger.Debug("Candidate rejected as in-batch duplicate",
				zap.String("content_id", candidates[i].ContentID),
				zap.String("reason", result.Reason))
			continue
		}
		unique = append(unique, candidates[i])
	}

	RankCandidates(unique)
	return unique, nil
}

// RankCandidates orders by confidence descending, then creation time
// ascending, so older high-confidence content goes out first. Stable sort;
// this is an ordering, not a filter.
func RankCandidates(items []models.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ConfidenceScore != items[j].ConfidenceScore {
			return items[i].ConfidenceScore > items[j].ConfidenceScore
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
