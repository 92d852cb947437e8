package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/repository"
)

const (
	maxContactSubject = 100
	maxContactMessage = 1000
	maxContactNotes   = 500
)

type ContactService struct {
	contacts repository.ContactRepository
	cache    *adminListCache
	now      func() time.Time
}

type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type ContactListQuery struct {
	Page      int
	Limit     int
	Status    string
	Priority  string
	Search    string
	SortBy    string
	SortOrder string
}

type ContactPage struct {
	Messages   []domain.ContactMessage `json:"messages"`
	Pagination Pagination              `json:"pagination"`
}

func NewContactService(contacts repository.ContactRepository, cacheStore AdminListCacheStore, cacheTTL time.Duration, logger *slog.Logger) *ContactService {
	return &ContactService{
		contacts: contacts,
		cache:    newAdminListCache(cacheStore, cacheTTL, logger),
		now:      time.Now,
	}
}

// Submit stores a ticket. A signed-in caller owns it and may omit name and email.
func (s *ContactService) Submit(ctx context.Context, caller *domain.User, in ContactInput) (msg *domain.ContactMessage, err error) {
	defer func() { observability.RecordContactEvent(ctx, "submit", flowOutcome(err)) }()

	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if caller != nil {
		if name == "" {
			name = caller.Name
		}
		if email == "" {
			email = caller.Email
		}
	}
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = domain.DefaultContactSubject
	}
	message := strings.TrimSpace(in.Message)

	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := maxLength(subject, maxContactSubject, "Subject"); err != nil {
		return nil, err
	}
	if err := validateContactMessage(message); err != nil {
		return nil, err
	}

	msg = &domain.ContactMessage{
		Name:     name,
		Email:    email,
		Subject:  subject,
		Message:  message,
		Status:   domain.ContactStatusPending,
		Priority: domain.ContactPriorityMedium,
		IsActive: true,
	}
	if caller != nil {
		id := caller.ID
		msg.UserID = &id
	}
	if err := s.contacts.Create(ctx, msg); err != nil {
		return nil, err
	}
	s.cache.invalidate(ctx, adminContactNamespace)
	return msg, nil
}

func (s *ContactService) Get(ctx context.Context, id uint) (*domain.ContactMessage, error) {
	msg, err := s.contacts.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return msg, nil
}

func (s *ContactService) ListMine(ctx context.Context, userID uint, q ContactListQuery) (*ContactPage, error) {
	if err := validateContactFilters(q); err != nil {
		return nil, err
	}
	filter := contactFilter(q)
	filter.UserID = &userID
	result, err := s.contacts.ListPaged(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ContactPage{Messages: result.Items, Pagination: paginationOf(result)}, nil
}

// UpdateOwn edits the body of a ticket that nobody has picked up yet.
func (s *ContactService) UpdateOwn(ctx context.Context, msg *domain.ContactMessage, message string) (_ *domain.ContactMessage, err error) {
	defer func() { observability.RecordContactEvent(ctx, "update", flowOutcome(err)) }()

	if msg.Status != domain.ContactStatusPending {
		return nil, ErrContactNotEditable
	}
	message = strings.TrimSpace(message)
	if err := validateContactMessage(message); err != nil {
		return nil, err
	}
	if err := s.contacts.UpdateFields(ctx, msg.ID, map[string]any{"message": message}); err != nil {
		return nil, translateRepoError(err)
	}
	s.cache.invalidate(ctx, adminContactNamespace)
	return s.Get(ctx, msg.ID)
}

func (s *ContactService) Delete(ctx context.Context, id uint) (err error) {
	defer func() { observability.RecordContactEvent(ctx, "delete", flowOutcome(err)) }()
	if err := s.contacts.SoftDelete(ctx, id); err != nil {
		return translateRepoError(err)
	}
	s.cache.invalidate(ctx, adminContactNamespace)
	return nil
}

func (s *ContactService) ListAll(ctx context.Context, q ContactListQuery) (*ContactPage, error) {
	start := time.Now()
	if err := validateContactFilters(q); err != nil {
		return nil, err
	}
	filter := contactFilter(q)
	page, err := cachedAdminList(ctx, s.cache, adminContactNamespace, contactListCacheKey(filter), func() (*ContactPage, error) {
		result, err := s.contacts.ListPaged(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &ContactPage{Messages: result.Items, Pagination: paginationOf(result)}, nil
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordAdminListRequestDuration(ctx, "contact", status, time.Since(start))
	if err != nil {
		return nil, err
	}
	observability.RecordAdminListPageSize(ctx, "contact", len(page.Messages))
	return page, nil
}

func (s *ContactService) Stats(ctx context.Context) (domain.ContactStats, error) {
	return s.contacts.Stats(ctx)
}

func (s *ContactService) MarkRead(ctx context.Context, id uint) (*domain.ContactMessage, error) {
	return s.update(ctx, "mark_read", id, map[string]any{"status": domain.ContactStatusRead})
}

func (s *ContactService) MarkReplied(ctx context.Context, adminID, id uint) (*domain.ContactMessage, error) {
	return s.update(ctx, "mark_replied", id, map[string]any{
		"status":     domain.ContactStatusReplied,
		"replied_at": s.now().UTC(),
		"replied_by": adminID,
	})
}

func (s *ContactService) MarkResolved(ctx context.Context, id uint) (*domain.ContactMessage, error) {
	return s.update(ctx, "mark_resolved", id, map[string]any{"status": domain.ContactStatusResolved})
}

func (s *ContactService) SetPriority(ctx context.Context, id uint, priority string) (*domain.ContactMessage, error) {
	priority = strings.ToLower(strings.TrimSpace(priority))
	if !domain.IsValidContactPriority(priority) {
		return nil, NewValidationError("Priority must be one of: low, medium, high, urgent")
	}
	return s.update(ctx, "set_priority", id, map[string]any{"priority": priority})
}

func (s *ContactService) AddNotes(ctx context.Context, id uint, notes string) (*domain.ContactMessage, error) {
	notes = strings.TrimSpace(notes)
	if err := maxLength(notes, maxContactNotes, "Admin notes"); err != nil {
		return nil, err
	}
	return s.update(ctx, "add_notes", id, map[string]any{"admin_notes": notes})
}

func (s *ContactService) update(ctx context.Context, action string, id uint, updates map[string]any) (_ *domain.ContactMessage, err error) {
	defer func() { observability.RecordContactEvent(ctx, action, flowOutcome(err)) }()
	if err := s.contacts.UpdateFields(ctx, id, updates); err != nil {
		return nil, translateRepoError(err)
	}
	s.cache.invalidate(ctx, adminContactNamespace)
	return s.Get(ctx, id)
}

func validateContactMessage(message string) error {
	if err := requireField(message, "Message is required"); err != nil {
		return err
	}
	return maxLength(message, maxContactMessage, "Message")
}

func validateContactFilters(q ContactListQuery) error {
	if q.Status != "" && !domain.IsValidContactStatus(q.Status) {
		return NewValidationError("Status must be one of: pending, read, replied, resolved")
	}
	if q.Priority != "" && !domain.IsValidContactPriority(q.Priority) {
		return NewValidationError("Priority must be one of: low, medium, high, urgent")
	}
	return nil
}

func contactFilter(q ContactListQuery) repository.ContactListFilter {
	return repository.ContactListFilter{
		PageRequest: repository.PageRequest{Page: q.Page, PageSize: q.Limit},
		Status:      q.Status,
		Priority:    q.Priority,
		Search:      strings.TrimSpace(q.Search),
		Sort:        repository.SortSpec{By: q.SortBy, Order: q.SortOrder},
	}
}

func contactListCacheKey(f repository.ContactListFilter) string {
	return fmt.Sprintf("page=%d&size=%d&status=%s&priority=%s&search=%s&sort=%s:%s",
		f.Page, f.PageSize, f.Status, f.Priority, strings.ToLower(f.Search), f.Sort.By, f.Sort.Order)
}
