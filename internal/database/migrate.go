package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
)

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.ContactMessage{},
		&domain.Media{},
		&domain.MediaLike{},
	}
}

func Migrate(db *gorm.DB) error {
	start := time.Now()
	ctx := context.Background()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "migrate", time.Since(start))
	}()
	if err := db.AutoMigrate(Models()...); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(ctx, "migrate", "success")
	return nil
}

// PendingTables reports which model tables do not exist yet.
func PendingTables(db *gorm.DB) []string {
	var missing []string
	for _, m := range Models() {
		if db.Migrator().HasTable(m) {
			continue
		}
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err == nil {
			missing = append(missing, stmt.Schema.Table)
		}
	}
	return missing
}
