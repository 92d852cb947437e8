package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
)

type SeedReport struct {
	BootstrapEmail string `json:"bootstrap_email,omitempty"`
	PromotedAdmin  bool   `json:"promoted_admin"`
	UserMissing    bool   `json:"user_missing"`
	Noop           bool   `json:"noop"`
}

func Seed(db *gorm.DB, bootstrapAdminEmail string) error {
	_, err := SeedSync(db, bootstrapAdminEmail)
	return err
}

// SeedSync promotes the bootstrap admin account, if it has registered, to an
// active verified admin. It is idempotent.
func SeedSync(db *gorm.DB, bootstrapAdminEmail string) (*SeedReport, error) {
	start := time.Now()
	ctx := context.Background()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "seed", time.Since(start))
	}()

	report := &SeedReport{BootstrapEmail: normalizeEmail(bootstrapAdminEmail)}
	if report.BootstrapEmail == "" {
		report.Noop = true
		observability.RecordDatabaseStartupEvent(ctx, "seed", "noop")
		return report, nil
	}

	var u domain.User
	if err := db.Where("email = ?", report.BootstrapEmail).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			report.UserMissing = true
			report.Noop = true
			observability.RecordDatabaseStartupEvent(ctx, "seed", "noop")
			return report, nil
		}
		observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
		return nil, err
	}
	if u.Role == domain.RoleAdmin && u.IsActive && u.EmailVerified {
		report.Noop = true
		observability.RecordDatabaseStartupEvent(ctx, "seed", "noop")
		return report, nil
	}
	err := db.Model(&domain.User{}).Where("id = ?", u.ID).Updates(map[string]any{
		"role":           domain.RoleAdmin,
		"is_active":      true,
		"email_verified": true,
	}).Error
	if err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
		return nil, fmt.Errorf("promote bootstrap admin: %w", err)
	}
	report.PromotedAdmin = true
	observability.RecordDatabaseStartupEvent(ctx, "seed", "success")
	return report, nil
}

// VerifyLocalEmail marks an account verified and discards any pending
// verification pair.
func VerifyLocalEmail(db *gorm.DB, email string) error {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return fmt.Errorf("email is required")
	}
	tx := db.Model(&domain.User{}).Where("email = ?", normalized).Updates(map[string]any{
		"email_verified":          true,
		"verification_otp_hash":   "",
		"verification_token_hash": "",
		"verification_expires_at": nil,
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
