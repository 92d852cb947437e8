package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/repository"
)

const newUserWindow = 7 * 24 * time.Hour

type UserService struct {
	users repository.UserRepository
	cache *adminListCache
	now   func() time.Time
}

type ProfileUpdateInput struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	AvatarURL *string `json:"avatar"`
}

type AdminUserUpdateInput struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

type UserListQuery struct {
	Page      int
	Limit     int
	Search    string
	Role      string
	IsActive  *bool
	SortBy    string
	SortOrder string
}

type UserPage struct {
	Users      []domain.UserView `json:"users"`
	Pagination Pagination        `json:"pagination"`
}

func NewUserService(users repository.UserRepository, cacheStore AdminListCacheStore, cacheTTL time.Duration, logger *slog.Logger) *UserService {
	return &UserService{
		users: users,
		cache: newAdminListCache(cacheStore, cacheTTL, logger),
		now:   time.Now,
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return user, nil
}

// UpdateProfile changes display fields. A new email drops the verified flag.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdateInput) (user *domain.User, err error) {
	defer func() { observability.RecordUserProfileEvent(ctx, "update_profile", flowOutcome(err)) }()

	user, err = s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if in.AvatarURL != nil {
		if err := maxLength(*in.AvatarURL, 1024, "Avatar URL"); err != nil {
			return nil, err
		}
		updates["avatar_url"] = strings.TrimSpace(*in.AvatarURL)
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email != user.Email {
			if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
				return nil, err
			}
			updates["email"] = email
			updates["email_verified"] = false
		}
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.users.UpdateFields(ctx, user.ID, updates); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailInUse
		}
		return nil, translateRepoError(err)
	}
	s.cache.invalidate(ctx, adminUsersNamespace)
	return s.users.FindByID(ctx, user.ID)
}

func (s *UserService) ListUsers(ctx context.Context, q UserListQuery) (*UserPage, error) {
	start := time.Now()
	if q.Role != "" && !domain.IsValidRole(q.Role) {
		return nil, NewValidationError("Role must be either user or admin")
	}
	filter := repository.UserListFilter{
		PageRequest: repository.PageRequest{Page: q.Page, PageSize: q.Limit},
		Search:      strings.TrimSpace(q.Search),
		Role:        q.Role,
		IsActive:    q.IsActive,
		Sort:        repository.SortSpec{By: q.SortBy, Order: q.SortOrder},
	}
	page, err := cachedAdminList(ctx, s.cache, adminUsersNamespace, userListCacheKey(filter), func() (*UserPage, error) {
		result, err := s.users.ListPaged(ctx, filter)
		if err != nil {
			return nil, err
		}
		views := make([]domain.UserView, 0, len(result.Items))
		for i := range result.Items {
			views = append(views, result.Items[i].View())
		}
		return &UserPage{Users: views, Pagination: paginationOf(result)}, nil
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordAdminListRequestDuration(ctx, "users", status, time.Since(start))
	if err != nil {
		return nil, err
	}
	observability.RecordAdminListPageSize(ctx, "users", len(page.Users))
	return page, nil
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return user, nil
}

func (s *UserService) UpdateUser(ctx context.Context, id uint, in AdminUserUpdateInput) (user *domain.User, err error) {
	defer func() { observability.RecordUserProfileEvent(ctx, "admin_update", flowOutcome(err)) }()

	user, err = s.users.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email != user.Email {
			if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
				return nil, err
			}
			updates["email"] = email
		}
	}
	if in.Role != nil {
		if !domain.IsValidRole(*in.Role) {
			return nil, NewValidationError("Role must be either user or admin")
		}
		updates["role"] = *in.Role
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) > 0 {
		if err := s.users.UpdateFields(ctx, id, updates); err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				return nil, ErrEmailInUse
			}
			return nil, translateRepoError(err)
		}
		s.cache.invalidate(ctx, adminUsersNamespace)
	}
	return s.GetUser(ctx, id)
}

// DeactivateUser soft deletes. Admins cannot deactivate themselves.
func (s *UserService) DeactivateUser(ctx context.Context, actorID, id uint) (err error) {
	defer func() { observability.RecordUserProfileEvent(ctx, "admin_deactivate", flowOutcome(err)) }()
	if actorID == id {
		return ErrCannotDeleteSelf
	}
	if err := s.users.UpdateFields(ctx, id, map[string]any{"is_active": false}); err != nil {
		return translateRepoError(err)
	}
	s.cache.invalidate(ctx, adminUsersNamespace)
	return nil
}

func (s *UserService) RestoreUser(ctx context.Context, id uint) (user *domain.User, err error) {
	defer func() { observability.RecordUserProfileEvent(ctx, "admin_restore", flowOutcome(err)) }()
	if err := s.users.UpdateFields(ctx, id, map[string]any{"is_active": true}); err != nil {
		return nil, translateRepoError(err)
	}
	s.cache.invalidate(ctx, adminUsersNamespace)
	return s.GetUser(ctx, id)
}

func (s *UserService) SystemStats(ctx context.Context) (domain.UserStats, error) {
	return s.users.Stats(ctx, s.now().Add(-newUserWindow))
}

func (s *UserService) ensureEmailFree(ctx context.Context, email string, selfID uint) error {
	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return ErrEmailInUse
	default:
		return nil
	}
}

func userListCacheKey(f repository.UserListFilter) string {
	active := "any"
	if f.IsActive != nil {
		active = fmt.Sprintf("%t", *f.IsActive)
	}
	return fmt.Sprintf("page=%d&size=%d&search=%s&role=%s&active=%s&sort=%s:%s",
		f.Page, f.PageSize, strings.ToLower(f.Search), f.Role, active, f.Sort.By, f.Sort.Order)
}
