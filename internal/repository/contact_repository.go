package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
)

type ContactListFilter struct {
	PageRequest
	UserID   *uint
	Status   string
	Priority string
	Search   string
	Sort     SortSpec
}

type ContactRepository interface {
	Create(ctx context.Context, msg *domain.ContactMessage) error
	FindByID(ctx context.Context, id uint) (*domain.ContactMessage, error)
	ListPaged(ctx context.Context, filter ContactListFilter) (PageResult[domain.ContactMessage], error)
	UpdateFields(ctx context.Context, id uint, updates map[string]any) error
	SoftDelete(ctx context.Context, id uint) error
	Stats(ctx context.Context) (domain.ContactStats, error)
}

type GormContactRepository struct{ db *gorm.DB }

func NewContactRepository(db *gorm.DB) ContactRepository { return &GormContactRepository{db: db} }

var contactSortColumns = map[string]string{
	"createdAt": "created_at",
	"status":    "status",
	"priority":  "priority",
	"subject":   "subject",
}

func (r *GormContactRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.ContactMessage{}).Where("is_active = ?", true)
}

func (r *GormContactRepository) Create(ctx context.Context, msg *domain.ContactMessage) error {
	err := r.db.WithContext(ctx).Create(msg).Error
	observability.RecordRepositoryOperation(ctx, "contact", "create", outcome(err, nil))
	return err
}

func (r *GormContactRepository) FindByID(ctx context.Context, id uint) (*domain.ContactMessage, error) {
	var msg domain.ContactMessage
	err := r.active(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrContactNotFound
	}
	observability.RecordRepositoryOperation(ctx, "contact", "find_by_id", outcome(err, ErrContactNotFound))
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *GormContactRepository) ListPaged(ctx context.Context, filter ContactListFilter) (PageResult[domain.ContactMessage], error) {
	q := r.active(ctx)
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}
	if filter.Search != "" {
		q = matchAny(q, filter.Search, "name", "email", "subject", "message")
	}
	return listPage[domain.ContactMessage](ctx, "contact", q, filter.PageRequest, filter.Sort, contactSortColumns)
}

func (r *GormContactRepository) UpdateFields(ctx context.Context, id uint, updates map[string]any) error {
	res := r.active(ctx).Where("id = ?", id).Updates(updates)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrContactNotFound
	}
	observability.RecordRepositoryOperation(ctx, "contact", "update", outcome(err, ErrContactNotFound))
	return err
}

func (r *GormContactRepository) SoftDelete(ctx context.Context, id uint) error {
	res := r.active(ctx).Where("id = ?", id).Update("is_active", false)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrContactNotFound
	}
	observability.RecordRepositoryOperation(ctx, "contact", "soft_delete", outcome(err, ErrContactNotFound))
	return err
}

func (r *GormContactRepository) Stats(ctx context.Context) (domain.ContactStats, error) {
	var stats domain.ContactStats
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.active(ctx).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "contact", "stats", "error")
		return stats, err
	}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case domain.ContactStatusPending:
			stats.Pending = row.Count
		case domain.ContactStatusRead:
			stats.Read = row.Count
		case domain.ContactStatusReplied:
			stats.Replied = row.Count
		case domain.ContactStatusResolved:
			stats.Resolved = row.Count
		}
	}
	if err := r.active(ctx).Where("priority = ?", domain.ContactPriorityUrgent).Count(&stats.Urgent).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "contact", "stats", "error")
		return stats, err
	}
	observability.RecordRepositoryOperation(ctx, "contact", "stats", "success")
	return stats, nil
}
