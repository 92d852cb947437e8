package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediagallery/gallery-api/internal/config"
	"github.com/mediagallery/gallery-api/internal/observability"
)

const sqliteScheme = "sqlite://"

// Open connects to Postgres, or to SQLite when DATABASE_URL uses the
// sqlite:// scheme (local runs and smoke tests).
func Open(cfg *config.Config) (*gorm.DB, error) {
	start := time.Now()
	ctx := context.Background()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "connect", time.Since(start))
	}()

	db, err := gorm.Open(dialector(cfg.DatabaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "connect", "error")
		return nil, fmt.Errorf("open database: %w", err)
	}
	observability.RecordDatabaseStartupEvent(ctx, "connect", "success")
	return db, nil
}

func dialector(url string) gorm.Dialector {
	if path, ok := strings.CutPrefix(url, sqliteScheme); ok {
		return sqlite.Open(path)
	}
	return postgres.Open(url)
}
