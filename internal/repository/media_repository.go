package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
)

// MediaListFilter scopes a media listing. ViewerID widens visibility from public items to
// public items plus the viewer's own. OwnerOnly restricts to items owned by ViewerID.
type MediaListFilter struct {
	PageRequest
	ViewerID  *uint
	OwnerOnly bool
	OwnerID   *uint
	Search    string
	Category  string
	Tags      []string
	Sort      SortSpec
}

type MediaRepository interface {
	Create(ctx context.Context, media *domain.Media) error
	FindByID(ctx context.Context, id uint) (*domain.Media, error)
	ListPaged(ctx context.Context, filter MediaListFilter) (PageResult[domain.Media], error)
	UpdateFields(ctx context.Context, id uint, updates map[string]any) error
	SoftDelete(ctx context.Context, id uint) error
	IncrementViews(ctx context.Context, id uint) error
	ToggleLike(ctx context.Context, mediaID, userID uint) (bool, error)
	LikeCounts(ctx context.Context, mediaIDs []uint) (map[uint]int64, error)
	LikedBy(ctx context.Context, userID uint, mediaIDs []uint) (map[uint]bool, error)
	StatsForUser(ctx context.Context, userID uint) (domain.MediaStats, error)
	RecentForUser(ctx context.Context, userID uint, limit int) ([]domain.Media, error)
	CategoryCounts(ctx context.Context, userID uint) ([]domain.CategoryCount, error)
}

type GormMediaRepository struct{ db *gorm.DB }

func NewMediaRepository(db *gorm.DB) MediaRepository { return &GormMediaRepository{db: db} }

var mediaSortColumns = map[string]string{
	"createdAt": "created_at",
	"title":     "title",
	"views":     "views",
	"downloads": "downloads",
}

func (r *GormMediaRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.Media{}).Where("is_active = ?", true)
}

func (r *GormMediaRepository) Create(ctx context.Context, media *domain.Media) error {
	err := r.db.WithContext(ctx).Create(media).Error
	observability.RecordRepositoryOperation(ctx, "media", "create", outcome(err, nil))
	return err
}

func (r *GormMediaRepository) FindByID(ctx context.Context, id uint) (*domain.Media, error) {
	var m domain.Media
	err := r.active(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrMediaNotFound
	}
	observability.RecordRepositoryOperation(ctx, "media", "find_by_id", outcome(err, ErrMediaNotFound))
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *GormMediaRepository) ListPaged(ctx context.Context, filter MediaListFilter) (PageResult[domain.Media], error) {
	q := r.active(ctx)
	switch {
	case filter.OwnerOnly && filter.ViewerID != nil:
		q = q.Where("user_id = ?", *filter.ViewerID)
	case filter.ViewerID != nil:
		q = q.Where("(is_public = ? OR user_id = ?)", true, *filter.ViewerID)
	default:
		q = q.Where("is_public = ?", true)
	}
	if filter.OwnerID != nil {
		q = q.Where("user_id = ?", *filter.OwnerID)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		q = matchAny(q, filter.Search, "title", "description", "tags")
	}
	for _, tag := range filter.Tags {
		q = q.Where(`(',' || tags || ',') LIKE ? ESCAPE '\'`, "%,"+escapeLike(tag)+",%")
	}
	return listPage[domain.Media](ctx, "media", q, filter.PageRequest, filter.Sort, mediaSortColumns)
}

func (r *GormMediaRepository) UpdateFields(ctx context.Context, id uint, updates map[string]any) error {
	res := r.active(ctx).Where("id = ?", id).Updates(updates)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrMediaNotFound
	}
	observability.RecordRepositoryOperation(ctx, "media", "update", outcome(err, ErrMediaNotFound))
	return err
}

func (r *GormMediaRepository) SoftDelete(ctx context.Context, id uint) error {
	res := r.active(ctx).Where("id = ?", id).Update("is_active", false)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrMediaNotFound
	}
	observability.RecordRepositoryOperation(ctx, "media", "soft_delete", outcome(err, ErrMediaNotFound))
	return err
}

func (r *GormMediaRepository) IncrementViews(ctx context.Context, id uint) error {
	err := r.active(ctx).Where("id = ?", id).UpdateColumn("views", gorm.Expr("views + 1")).Error
	observability.RecordRepositoryOperation(ctx, "media", "increment_views", outcome(err, nil))
	return err
}

// ToggleLike flips the like of userID on mediaID and reports whether the item is now liked.
func (r *GormMediaRepository) ToggleLike(ctx context.Context, mediaID, userID uint) (bool, error) {
	liked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("media_id = ? AND user_id = ?", mediaID, userID).Delete(&domain.MediaLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		liked = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.MediaLike{MediaID: mediaID, UserID: userID}).Error
	})
	observability.RecordRepositoryOperation(ctx, "media", "toggle_like", outcome(err, nil))
	return liked, err
}

func (r *GormMediaRepository) LikeCounts(ctx context.Context, mediaIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		MediaID uint
		Count   int64
	}
	err := r.db.WithContext(ctx).Model(&domain.MediaLike{}).
		Select("media_id, COUNT(*) AS count").
		Where("media_id IN ?", mediaIDs).
		Group("media_id").
		Scan(&rows).Error
	observability.RecordRepositoryOperation(ctx, "media", "like_counts", outcome(err, nil))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.MediaID] = row.Count
	}
	return out, nil
}

func (r *GormMediaRepository) LikedBy(ctx context.Context, userID uint, mediaIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return out, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.MediaLike{}).
		Where("user_id = ? AND media_id IN ?", userID, mediaIDs).
		Pluck("media_id", &ids).Error
	observability.RecordRepositoryOperation(ctx, "media", "liked_by", outcome(err, nil))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *GormMediaRepository) StatsForUser(ctx context.Context, userID uint) (domain.MediaStats, error) {
	var stats domain.MediaStats
	var agg struct {
		TotalCount   int64
		PublicCount  int64
		ViewsSum     int64
		DownloadsSum int64
	}
	err := r.active(ctx).Where("user_id = ?", userID).
		Select(`COUNT(*) AS total_count,
			COALESCE(SUM(CASE WHEN is_public THEN 1 ELSE 0 END), 0) AS public_count,
			COALESCE(SUM(views), 0) AS views_sum,
			COALESCE(SUM(downloads), 0) AS downloads_sum`).
		Scan(&agg).Error
	if err == nil {
		err = r.db.WithContext(ctx).Model(&domain.MediaLike{}).
			Joins("JOIN media ON media.id = media_likes.media_id").
			Where("media.user_id = ? AND media.is_active = ?", userID, true).
			Count(&stats.TotalLikes).Error
	}
	observability.RecordRepositoryOperation(ctx, "media", "stats_for_user", outcome(err, nil))
	if err != nil {
		return domain.MediaStats{}, err
	}
	stats.TotalMedia = agg.TotalCount
	stats.PublicMedia = agg.PublicCount
	stats.PrivateMedia = agg.TotalCount - agg.PublicCount
	stats.TotalViews = agg.ViewsSum
	stats.TotalDownloads = agg.DownloadsSum
	return stats, nil
}

func (r *GormMediaRepository) RecentForUser(ctx context.Context, userID uint, limit int) ([]domain.Media, error) {
	var items []domain.Media
	err := r.active(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(limit).
		Find(&items).Error
	observability.RecordRepositoryOperation(ctx, "media", "recent_for_user", outcome(err, nil))
	return items, err
}

// CategoryCounts groups a user's active items by category, largest bucket first.
func (r *GormMediaRepository) CategoryCounts(ctx context.Context, userID uint) ([]domain.CategoryCount, error) {
	counts := []domain.CategoryCount{}
	err := r.active(ctx).Where("user_id = ?", userID).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("COUNT(*) DESC").Order("category ASC").
		Scan(&counts).Error
	observability.RecordRepositoryOperation(ctx, "media", "category_counts", outcome(err, nil))
	if err != nil {
		return nil, err
	}
	return counts, nil
}
