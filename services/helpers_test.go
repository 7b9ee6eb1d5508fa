package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"scholar-trace/config"
	"scholar-trace/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// The in-memory database exists per connection; keep the pool at one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Researcher{}, &models.Publication{}, &models.CollectorRun{}))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		FetchTimeoutSeconds: 5,
		TargetDelayMillis:   0,
		RunErrorCap:         5,
		DispatchRetries:     2,
		LogHistorySize:      50,
	}
}

func newTestMerge(t *testing.T) (*MergeService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewMergeService(newTestConfig(), db, zap.NewNop()), db
}
