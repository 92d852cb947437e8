package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/repository"
)

const (
	maxMediaTitle       = 100
	maxMediaDescription = 500
	defaultMaxFiles     = 10
)

type MediaService struct {
	media    repository.MediaRepository
	users    repository.UserRepository
	store    MediaStore
	maxFiles int
	logger   *slog.Logger
}

// MediaInput carries metadata shared by every file of one upload, or the
// fields of an update. Nil and empty values leave a field unchanged on update.
type MediaInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Tags        *string `json:"tags"`
	Category    *string `json:"category"`
	IsPublic    *bool   `json:"isPublic"`
}

type UploadFile struct {
	Name    string
	Size    int64
	Content io.Reader
}

type UploadResult struct {
	Media  []domain.MediaView `json:"media"`
	Failed []string           `json:"failed,omitempty"`
}

type MediaListQuery struct {
	Page      int
	Limit     int
	Search    string
	Category  string
	Tags      string
	SortBy    string
	SortOrder string
}

type MediaPage struct {
	Media      []domain.MediaView `json:"media"`
	Pagination Pagination         `json:"pagination"`
}

// UserStatsReport summarizes one account's gallery activity.
type UserStatsReport struct {
	User          domain.UserView        `json:"user"`
	Stats         domain.MediaStats      `json:"stats"`
	RecentMedia   []domain.MediaView     `json:"recentMedia"`
	CategoryStats []domain.CategoryCount `json:"categoryStats"`
}

const recentMediaLimit = 5

type LikeResult struct {
	Liked      bool  `json:"liked"`
	LikesCount int64 `json:"likesCount"`
}

func NewMediaService(media repository.MediaRepository, users repository.UserRepository, store MediaStore, maxFiles int, logger *slog.Logger) *MediaService {
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaService{media: media, users: users, store: store, maxFiles: maxFiles, logger: logger}
}

// Upload stores every file that passes content checks. Files that fail are
// reported by name; the request only fails when nothing could be stored.
func (s *MediaService) Upload(ctx context.Context, owner *domain.User, in MediaInput, files []UploadFile) (_ *UploadResult, err error) {
	start := time.Now()
	defer func() { observability.RecordMediaOperation(ctx, "upload", flowOutcome(err), time.Since(start)) }()

	if len(files) == 0 {
		return nil, NewValidationError("No files uploaded.")
	}
	if len(files) > s.maxFiles {
		return nil, NewValidationError("Too many files. Maximum is %d per upload.", s.maxFiles)
	}
	if err := validateMediaInput(in); err != nil {
		return nil, err
	}

	result := &UploadResult{Media: []domain.MediaView{}}
	created := make([]domain.Media, 0, len(files))
	var firstErr error
	for _, file := range files {
		item, err := s.uploadOne(ctx, owner, in, file)
		if err != nil {
			s.logger.WarnContext(ctx, "media upload failed", "file", file.Name, "user_id", owner.ID, "error", err)
			result.Failed = append(result.Failed, file.Name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		created = append(created, *item)
	}
	if len(created) == 0 {
		if KindOf(firstErr) == KindValidation {
			return nil, firstErr
		}
		return nil, fmt.Errorf("upload media: %w", firstErr)
	}
	views, err := s.decorate(ctx, owner, created)
	if err != nil {
		return nil, err
	}
	result.Media = views
	return result, nil
}

func (s *MediaService) uploadOne(ctx context.Context, owner *domain.User, in MediaInput, file UploadFile) (*domain.Media, error) {
	obj, err := s.store.UploadMedia(ctx, owner.ID, file.Content, file.Size)
	if err != nil {
		return nil, err
	}
	title := truncateRunes(strings.TrimSpace(file.Name), maxMediaTitle)
	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		title = strings.TrimSpace(*in.Title)
	}
	item := &domain.Media{
		Title:        title,
		ObjectKey:    obj.Key,
		OriginalName: truncateRunes(file.Name, 255),
		ContentType:  obj.ContentType,
		SizeBytes:    obj.Size,
		Category:     domain.DefaultMediaCategory,
		UserID:       owner.ID,
		IsPublic:     true,
		IsActive:     true,
	}
	if in.Description != nil {
		item.Description = strings.TrimSpace(*in.Description)
	}
	if in.Tags != nil {
		item.Tags = domain.JoinTags(domain.SplitTags(*in.Tags))
	}
	if in.Category != nil && *in.Category != "" {
		item.Category = *in.Category
	}
	if in.IsPublic != nil {
		item.IsPublic = *in.IsPublic
	}
	if err := s.media.Create(ctx, item); err != nil {
		if delErr := s.store.DeleteMedia(ctx, owner.ID, obj.Key); delErr != nil {
			s.logger.ErrorContext(ctx, "orphaned media object", "object_key", obj.Key, "error", delErr)
		}
		return nil, err
	}
	return item, nil
}

// List returns public items, plus the viewer's own private ones when signed in.
func (s *MediaService) List(ctx context.Context, viewer *domain.User, q MediaListQuery) (*MediaPage, error) {
	filter, err := mediaFilter(q)
	if err != nil {
		return nil, err
	}
	if viewer != nil {
		id := viewer.ID
		filter.ViewerID = &id
	}
	return s.page(ctx, viewer, filter)
}

func (s *MediaService) Search(ctx context.Context, viewer *domain.User, q MediaListQuery) (*MediaPage, error) {
	if strings.TrimSpace(q.Search) == "" && q.Category == "" && strings.TrimSpace(q.Tags) == "" {
		return nil, NewValidationError("Please provide search terms, category, or tags.")
	}
	return s.List(ctx, viewer, q)
}

func (s *MediaService) ListMine(ctx context.Context, owner *domain.User, q MediaListQuery) (*MediaPage, error) {
	filter, err := mediaFilter(q)
	if err != nil {
		return nil, err
	}
	id := owner.ID
	filter.ViewerID = &id
	filter.OwnerOnly = true
	return s.page(ctx, owner, filter)
}

// ListByOwner pages through one account's public items. Private items stay
// out even when the viewer is the owner; ListMine serves those.
func (s *MediaService) ListByOwner(ctx context.Context, viewer *domain.User, ownerID uint, q MediaListQuery) (*MediaPage, error) {
	filter, err := mediaFilter(q)
	if err != nil {
		return nil, err
	}
	filter.OwnerID = &ownerID
	return s.page(ctx, viewer, filter)
}

// Find loads an active item without visibility checks. Guards use it to resolve ownership.
func (s *MediaService) Find(ctx context.Context, id uint) (*domain.Media, error) {
	item, err := s.media.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return item, nil
}

// Get enforces visibility and counts the view.
func (s *MediaService) Get(ctx context.Context, viewer *domain.User, id uint) (*domain.MediaView, error) {
	item, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsPublic && !CanAccessOwned(viewer, item.OwnerID()) {
		return nil, ErrMediaPrivate
	}
	if err := s.media.IncrementViews(ctx, item.ID); err != nil {
		return nil, err
	}
	item.Views++
	views, err := s.decorate(ctx, viewer, []domain.Media{*item})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *MediaService) Update(ctx context.Context, caller *domain.User, item *domain.Media, in MediaInput) (_ *domain.MediaView, err error) {
	start := time.Now()
	defer func() { observability.RecordMediaOperation(ctx, "update", flowOutcome(err), time.Since(start)) }()

	if err := validateMediaInput(in); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := requireField(title, "Title cannot be empty"); err != nil {
			return nil, err
		}
		updates["title"] = title
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.Tags != nil {
		updates["tags"] = domain.JoinTags(domain.SplitTags(*in.Tags))
	}
	if in.Category != nil && *in.Category != "" {
		updates["category"] = *in.Category
	}
	if in.IsPublic != nil {
		updates["is_public"] = *in.IsPublic
	}
	if len(updates) > 0 {
		if err := s.media.UpdateFields(ctx, item.ID, updates); err != nil {
			return nil, translateRepoError(err)
		}
	}
	fresh, err := s.Find(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	views, err := s.decorate(ctx, caller, []domain.Media{*fresh})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Delete soft deletes the record, then removes the asset on a best-effort basis.
func (s *MediaService) Delete(ctx context.Context, item *domain.Media) (err error) {
	start := time.Now()
	defer func() { observability.RecordMediaOperation(ctx, "delete", flowOutcome(err), time.Since(start)) }()

	if err := s.media.SoftDelete(ctx, item.ID); err != nil {
		return translateRepoError(err)
	}
	if err := s.store.DeleteMedia(ctx, item.UserID, item.ObjectKey); err != nil {
		s.logger.WarnContext(ctx, "media object removal failed", "media_id", item.ID, "error", err)
	}
	return nil
}

func (s *MediaService) ToggleLike(ctx context.Context, user *domain.User, id uint) (_ *LikeResult, err error) {
	start := time.Now()
	defer func() { observability.RecordMediaOperation(ctx, "toggle_like", flowOutcome(err), time.Since(start)) }()

	item, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsPublic && !CanAccessOwned(user, item.OwnerID()) {
		return nil, ErrMediaPrivate
	}
	liked, err := s.media.ToggleLike(ctx, item.ID, user.ID)
	if err != nil {
		return nil, err
	}
	counts, err := s.media.LikeCounts(ctx, []uint{item.ID})
	if err != nil {
		return nil, err
	}
	return &LikeResult{Liked: liked, LikesCount: counts[item.ID]}, nil
}

func (s *MediaService) StatsForUser(ctx context.Context, user *domain.User) (domain.MediaStats, error) {
	return s.media.StatsForUser(ctx, user.ID)
}

// UserStats reports on the caller's own account. Admins may read any account.
func (s *MediaService) UserStats(ctx context.Context, caller *domain.User, userID uint) (*UserStatsReport, error) {
	if !CanAccessOwned(caller, &userID) {
		return nil, ErrNotOwner
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	stats, err := s.media.StatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.media.RecentForUser(ctx, userID, recentMediaLimit)
	if err != nil {
		return nil, err
	}
	views, err := s.decorate(ctx, caller, recent)
	if err != nil {
		return nil, err
	}
	categories, err := s.media.CategoryCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserStatsReport{User: user.View(), Stats: stats, RecentMedia: views, CategoryStats: categories}, nil
}

func (s *MediaService) page(ctx context.Context, viewer *domain.User, filter repository.MediaListFilter) (*MediaPage, error) {
	result, err := s.media.ListPaged(ctx, filter)
	if err != nil {
		return nil, err
	}
	views, err := s.decorate(ctx, viewer, result.Items)
	if err != nil {
		return nil, err
	}
	return &MediaPage{Media: views, Pagination: paginationOf(result)}, nil
}

// decorate attaches like counts, the viewer's likes, owners and asset URLs.
func (s *MediaService) decorate(ctx context.Context, viewer *domain.User, items []domain.Media) ([]domain.MediaView, error) {
	if len(items) == 0 {
		return []domain.MediaView{}, nil
	}
	ids := make([]uint, 0, len(items))
	ownerIDs := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
		ownerIDs = append(ownerIDs, item.UserID)
	}

	var (
		counts map[uint]int64
		liked  = map[uint]bool{}
		owners map[uint]domain.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.media.LikeCounts(gctx, ids)
		return err
	})
	if viewer != nil {
		g.Go(func() error {
			var err error
			liked, err = s.media.LikedBy(gctx, viewer.ID, ids)
			return err
		})
	}
	g.Go(func() error {
		var err error
		owners, err = s.users.FindByIDs(gctx, ownerIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make([]domain.MediaView, 0, len(items))
	for _, item := range items {
		view := domain.MediaView{
			Media:      item,
			Tags:       item.TagList(),
			LikesCount: counts[item.ID],
			LikedByMe:  liked[item.ID],
		}
		if owner, ok := owners[item.UserID]; ok {
			view.Owner = &domain.Owner{ID: owner.ID, Name: owner.Name, AvatarURL: owner.AvatarURL}
		}
		link, err := s.store.MediaURL(ctx, item.ObjectKey)
		if err != nil {
			s.logger.WarnContext(ctx, "media url generation failed", "media_id", item.ID, "error", err)
		} else {
			view.URL = link
		}
		views = append(views, view)
	}
	return views, nil
}

func validateMediaInput(in MediaInput) error {
	if in.Title != nil {
		if err := maxLength(strings.TrimSpace(*in.Title), maxMediaTitle, "Title"); err != nil {
			return err
		}
	}
	if in.Description != nil {
		if err := maxLength(strings.TrimSpace(*in.Description), maxMediaDescription, "Description"); err != nil {
			return err
		}
	}
	if in.Category != nil && *in.Category != "" && !domain.IsValidMediaCategory(*in.Category) {
		return NewValidationError("Invalid category")
	}
	return nil
}

func mediaFilter(q MediaListQuery) (repository.MediaListFilter, error) {
	if q.Category != "" && !domain.IsValidMediaCategory(q.Category) {
		return repository.MediaListFilter{}, NewValidationError("Invalid category")
	}
	return repository.MediaListFilter{
		PageRequest: repository.PageRequest{Page: q.Page, PageSize: q.Limit},
		Search:      strings.TrimSpace(q.Search),
		Category:    q.Category,
		Tags:        domain.SplitTags(q.Tags),
		Sort:        repository.SortSpec{By: q.SortBy, Order: q.SortOrder},
	}, nil
}
