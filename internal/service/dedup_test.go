package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful/internal/models"
)

func TestIsUniqueRuleOrder(t *testing.T) {
	engine := NewDedupEngine(newTestDB(t), testLogger())

	history := []models.ContentItem{
		{
			ID:          1,
			ContentHash: "aaa111",
			OriginalURL: "https://reddit.com/r/cats/1",
			MediaURL:    "https://i.redd.it/1.jpg",
			Title:       "A very funny cat video",
		},
	}

	tests := []struct {
		name      string
		candidate models.ContentItem
		unique    bool
		reason    string
	}{
		{
			name:      "hash match wins first",
			candidate: models.ContentItem{ContentHash: "aaa111", OriginalURL: "https://other.example"},
			unique:    false,
			reason:    "content hash match",
		},
		{
			name:      "original url match",
			candidate: models.ContentItem{ContentHash: "bbb222", OriginalURL: "https://reddit.com/r/cats/1"},
			unique:    false,
			reason:    "original url match",
		},
		{
			name:      "media url match",
			candidate: models.ContentItem{ContentHash: "ccc333", MediaURL: "https://i.redd.it/1.jpg"},
			unique:    false,
			reason:    "media url match",
		},
		{
			name:      "fuzzy text match",
			candidate: models.ContentItem{ContentHash: "ddd444", Title: "a VERY funny cat video!"},
			unique:    false,
			reason:    "text similarity",
		},
		{
			name:      "genuinely new content",
			candidate: models.ContentItem{ContentHash: "eee555", OriginalURL: "https://youtube.com/watch?v=x", Title: "skateboarding dog compilation"},
			unique:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.IsUnique(&tt.candidate, history)
			assert.Equal(t, tt.unique, result.Unique)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestRankCandidates(t *testing.T) {
	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	items := []models.ContentItem{
		{ContentID: "c", ConfidenceScore: 0.7, CreatedAt: older},
		{ContentID: "a", ConfidenceScore: 0.9, CreatedAt: newer},
		{ContentID: "b", ConfidenceScore: 0.9, CreatedAt: older},
	}

	RankCandidates(items)

	// Higher confidence first; equal confidence prefers older content.
	assert.Equal(t, "b", items[0].ContentID)
	assert.Equal(t, "a", items[1].ContentID)
	assert.Equal(t, "c", items[2].ContentID)
}

func TestFilterUniqueAgainstPostedHistory(t *testing.T) {
	db := newTestDB(t)
	engine := NewDedupEngine(db, testLogger())

	seedContent(t, db, models.ContentItem{
		SourcePlatform: models.PlatformReddit,
		ContentType:    models.ContentTypeImage,
		ContentHash:    "posted-hash",
		OriginalURL:    "https://reddit.com/r/cats/posted",
		Status:         models.StatusPosted,
	})

	dup := models.ContentItem{ContentHash: "posted-hash", OriginalURL: "https://elsewhere.example"}
	fresh := models.ContentItem{ContentHash: "fresh-hash", OriginalURL: "https://youtube.com/v/fresh", ConfidenceScore: 0.8}
	inBatchDup := models.ContentItem{ContentHash: "fresh-hash", OriginalURL: "https://imgur.com/other", ConfidenceScore: 0.9}

	unique, err := engine.FilterUnique([]models.ContentItem{inBatchDup, dup, fresh})
	require.NoError(t, err)

	require.Len(t, unique, 1)
	assert.Equal(t, "fresh-hash", unique[0].ContentHash)
	assert.Equal(t, "https://imgur.com/other", unique[0].OriginalURL)
}

func TestFilterUniqueFailsClosed(t *testing.T) {
	db := newTestDB(t)
	engine := NewDedupEngine(db, testLogger())

	seedContent(t, db, models.ContentItem{ContentHash: "x", OriginalURL: "https://a.example"})

	// Break the history query; the engine must refuse everything rather
	// than risk a duplicate post.
	require.NoError(t, db.Migrator().DropTable(&models.PostedRecord{}))

	unique, err := engine.FilterUnique([]models.ContentItem{
		{ContentHash: "y", OriginalURL: "https://b.example"},
	})
	require.Error(t, err)
	assert.Empty(t, unique)
}
