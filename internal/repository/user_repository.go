package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
)

type UserListFilter struct {
	PageRequest
	Search   string
	Role     string
	IsActive *bool
	Sort     SortSpec
}

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []uint) (map[uint]domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdateFields(ctx context.Context, id uint, updates map[string]any) error
	ConsumeVerification(ctx context.Context, id uint, tokenHash string) error
	ConsumePasswordReset(ctx context.Context, id uint, tokenHash, passwordHash string) error
	RecordLogin(ctx context.Context, id uint, at time.Time) error
	ListPaged(ctx context.Context, filter UserListFilter) (PageResult[domain.User], error)
	Stats(ctx context.Context, newSince time.Time) (domain.UserStats, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

var userSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"email":     "email",
	"lastLogin": "last_login_at",
	"role":      "role",
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_id", outcome(err, ErrUserNotFound))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]domain.User, error) {
	out := make(map[uint]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []domain.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "find_by_ids", "error")
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_ids", "success")
	return out, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_email", outcome(err, ErrUserNotFound))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if isUniqueViolation(err) {
		err = r.duplicateError(ctx, 0, user.GoogleID)
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", outcome(err, nil))
	return err
}

func (r *GormUserRepository) UpdateFields(ctx context.Context, id uint, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(updates)
	err := res.Error
	switch {
	case isUniqueViolation(err):
		err = r.duplicateError(ctx, id, googleIDOf(updates))
	case err == nil && res.RowsAffected == 0:
		err = ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", "update", outcome(err, ErrUserNotFound))
	return err
}

// duplicateError names the unique column behind a violation. Translated driver
// errors drop the constraint name, so a google_id held by another row is
// looked up; anything else is the email index.
func (r *GormUserRepository) duplicateError(ctx context.Context, selfID uint, googleID *string) error {
	if googleID == nil || *googleID == "" {
		return ErrEmailTaken
	}
	q := r.db.WithContext(ctx).Model(&domain.User{}).Where("google_id = ?", *googleID)
	if selfID != 0 {
		q = q.Where("id <> ?", selfID)
	}
	var n int64
	if err := q.Count(&n).Error; err == nil && n > 0 {
		return ErrGoogleIDTaken
	}
	return ErrEmailTaken
}

func googleIDOf(updates map[string]any) *string {
	switch v := updates["google_id"].(type) {
	case string:
		return &v
	case *string:
		return v
	}
	return nil
}

// ConsumeVerification marks the email verified and clears the pending secrets, but only while
// the stored token digest still equals tokenHash. A concurrent consumer that lost the race gets
// ErrTokenAlreadyConsumed.
func (r *GormUserRepository) ConsumeVerification(ctx context.Context, id uint, tokenHash string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND verification_token_hash = ?", id, tokenHash).
		Updates(map[string]any{
			"email_verified":          true,
			"verification_otp_hash":   "",
			"verification_token_hash": "",
			"verification_expires_at": nil,
		})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrTokenAlreadyConsumed
	}
	observability.RecordRepositoryOperation(ctx, "user", "consume_verification", outcome(err, ErrTokenAlreadyConsumed))
	return err
}

func (r *GormUserRepository) ConsumePasswordReset(ctx context.Context, id uint, tokenHash, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND reset_token_hash = ?", id, tokenHash).
		Updates(map[string]any{
			"password_hash":    passwordHash,
			"reset_otp_hash":   "",
			"reset_token_hash": "",
			"reset_expires_at": nil,
		})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrTokenAlreadyConsumed
	}
	observability.RecordRepositoryOperation(ctx, "user", "consume_password_reset", outcome(err, ErrTokenAlreadyConsumed))
	return err
}

func (r *GormUserRepository) RecordLogin(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(map[string]any{
		"login_count":   gorm.Expr("login_count + 1"),
		"last_login_at": at,
	})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", "record_login", outcome(err, ErrUserNotFound))
	return err
}

func (r *GormUserRepository) ListPaged(ctx context.Context, filter UserListFilter) (PageResult[domain.User], error) {
	q := r.db.WithContext(ctx).Model(&domain.User{})
	if filter.Search != "" {
		q = matchAny(q, filter.Search, "name", "email")
	}
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	return listPage[domain.User](ctx, "user", q, filter.PageRequest, filter.Sort, userSortColumns)
}

func (r *GormUserRepository) Stats(ctx context.Context, newSince time.Time) (domain.UserStats, error) {
	var stats domain.UserStats
	db := r.db.WithContext(ctx).Model(&domain.User{})
	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.TotalUsers, "", nil},
		{&stats.ActiveUsers, "is_active = ?", []any{true}},
		{&stats.VerifiedUsers, "email_verified = ?", []any{true}},
		{&stats.AdminUsers, "role = ?", []any{domain.RoleAdmin}},
		{&stats.NewUsersWeek, "created_at >= ?", []any{newSince}},
	}
	for _, c := range counts {
		q := db.Session(&gorm.Session{})
		if c.query != "" {
			q = q.Where(c.query, c.args...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			observability.RecordRepositoryOperation(ctx, "user", "stats", "error")
			return domain.UserStats{}, err
		}
	}
	observability.RecordRepositoryOperation(ctx, "user", "stats", "success")
	return stats, nil
}
