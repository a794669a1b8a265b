package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/plateful/plateful/internal/config"
	"github.com/plateful/plateful/internal/models"
)

// newTestDB opens a fresh in-memory database with the full schema. A single
// connection keeps every query on the same sqlite memory instance.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))
	return db
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func seedContent(t *testing.T, db *gorm.DB, item models.ContentItem) models.ContentItem {
	t.Helper()
	if item.Status == "" {
		item.Status = models.StatusApproved
	}
	require.NoError(t, db.Create(&item).Error)
	return item
}
