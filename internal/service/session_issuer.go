package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/repository"
	"github.com/mediagallery/gallery-api/internal/security"
)

// Session is a signed bearer credential and its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// SessionIssuer signs credentials that carry only the identity id, and
// resolves them back to a fresh identity read on every call.
type SessionIssuer struct {
	jwt   *security.JWTManager
	users repository.UserRepository
}

func NewSessionIssuer(jwt *security.JWTManager, users repository.UserRepository) *SessionIssuer {
	return &SessionIssuer{jwt: jwt, users: users}
}

func (s *SessionIssuer) TTL() time.Duration {
	return s.jwt.TTL()
}

func (s *SessionIssuer) Issue(_ context.Context, user *domain.User) (Session, error) {
	token, expiresAt, err := s.jwt.SignSessionToken(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate fails with ErrMissingSession or ErrInvalidSession for every
// credential problem, including an identity that is gone or deactivated.
// Store failures are returned unclassified.
func (s *SessionIssuer) Authenticate(ctx context.Context, raw string) (*domain.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		observability.RecordSessionValidation(ctx, "missing", "request")
		return nil, ErrMissingSession
	}
	claims, err := s.jwt.ParseSessionToken(raw)
	if err != nil {
		observability.RecordSessionValidation(ctx, sessionFailureReason(err), "request")
		return nil, ErrInvalidSession
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordSessionValidation(ctx, "invalid", "request")
		return nil, ErrInvalidSession
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordSessionValidation(ctx, "unknown_user", "store")
			return nil, ErrInvalidSession
		}
		observability.RecordSessionValidation(ctx, "error", "store")
		return nil, err
	}
	if !user.IsActive {
		observability.RecordSessionValidation(ctx, "inactive", "store")
		return nil, ErrInvalidSession
	}
	observability.RecordSessionValidation(ctx, "ok", "store")
	return user, nil
}

func (s *SessionIssuer) AuthenticateOptional(ctx context.Context, raw string) *domain.User {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	user, err := s.Authenticate(ctx, raw)
	if err != nil {
		return nil
	}
	return user
}

func sessionFailureReason(err error) string {
	if errors.Is(err, security.ErrSessionTokenExpired) {
		return "expired"
	}
	return "invalid"
}
