package service

import (
	"context"

	"github.com/mediagallery/gallery-api/internal/domain"
)

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*RegistrationResult, error)
	VerifyEmail(ctx context.Context, in VerifyEmailInput) (*LoginResult, error)
	ResendVerification(ctx context.Context, email string) (*RegistrationResult, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error)
	GoogleLoginURL(state string) string
	LoginWithGoogleCode(ctx context.Context, code string) (*LoginResult, error)
	ForgotPassword(ctx context.Context, in ForgotPasswordInput) (*PasswordResetRequest, error)
	ResetPassword(ctx context.Context, in ResetPasswordInput) error
}

// SessionAuthenticator resolves a bearer credential to its live account.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*domain.User, error)
	AuthenticateOptional(ctx context.Context, raw string) *domain.User
}

type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID uint) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uint, in ProfileUpdateInput) (*domain.User, error)
	ListUsers(ctx context.Context, q UserListQuery) (*UserPage, error)
	GetUser(ctx context.Context, id uint) (*domain.User, error)
	UpdateUser(ctx context.Context, id uint, in AdminUserUpdateInput) (*domain.User, error)
	DeactivateUser(ctx context.Context, actorID, id uint) error
	RestoreUser(ctx context.Context, id uint) (*domain.User, error)
	SystemStats(ctx context.Context) (domain.UserStats, error)
}

type ContactServiceInterface interface {
	Submit(ctx context.Context, caller *domain.User, in ContactInput) (*domain.ContactMessage, error)
	Get(ctx context.Context, id uint) (*domain.ContactMessage, error)
	ListMine(ctx context.Context, userID uint, q ContactListQuery) (*ContactPage, error)
	UpdateOwn(ctx context.Context, msg *domain.ContactMessage, message string) (*domain.ContactMessage, error)
	Delete(ctx context.Context, id uint) error
	ListAll(ctx context.Context, q ContactListQuery) (*ContactPage, error)
	Stats(ctx context.Context) (domain.ContactStats, error)
	MarkRead(ctx context.Context, id uint) (*domain.ContactMessage, error)
	MarkReplied(ctx context.Context, adminID, id uint) (*domain.ContactMessage, error)
	MarkResolved(ctx context.Context, id uint) (*domain.ContactMessage, error)
	SetPriority(ctx context.Context, id uint, priority string) (*domain.ContactMessage, error)
	AddNotes(ctx context.Context, id uint, notes string) (*domain.ContactMessage, error)
}

type MediaServiceInterface interface {
	Upload(ctx context.Context, owner *domain.User, in MediaInput, files []UploadFile) (*UploadResult, error)
	List(ctx context.Context, viewer *domain.User, q MediaListQuery) (*MediaPage, error)
	Search(ctx context.Context, viewer *domain.User, q MediaListQuery) (*MediaPage, error)
	ListMine(ctx context.Context, owner *domain.User, q MediaListQuery) (*MediaPage, error)
	ListByOwner(ctx context.Context, viewer *domain.User, ownerID uint, q MediaListQuery) (*MediaPage, error)
	Find(ctx context.Context, id uint) (*domain.Media, error)
	Get(ctx context.Context, viewer *domain.User, id uint) (*domain.MediaView, error)
	Update(ctx context.Context, caller *domain.User, item *domain.Media, in MediaInput) (*domain.MediaView, error)
	Delete(ctx context.Context, item *domain.Media) error
	ToggleLike(ctx context.Context, user *domain.User, id uint) (*LikeResult, error)
	StatsForUser(ctx context.Context, user *domain.User) (domain.MediaStats, error)
	UserStats(ctx context.Context, caller *domain.User, userID uint) (*UserStatsReport, error)
}

var (
	_ AuthServiceInterface    = (*AuthService)(nil)
	_ SessionAuthenticator    = (*SessionIssuer)(nil)
	_ UserServiceInterface    = (*UserService)(nil)
	_ ContactServiceInterface = (*ContactService)(nil)
	_ MediaServiceInterface   = (*MediaService)(nil)
)
