package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mediagallery/gallery-api/internal/config"
	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/observability"
	"github.com/mediagallery/gallery-api/internal/repository"
	"github.com/mediagallery/gallery-api/internal/security"
)

type AuthService struct {
	cfg       *config.Config
	users     repository.UserRepository
	codec     *security.TokenCodec
	sessions  *SessionIssuer
	mailer    Mailer
	federated FederatedVerifier
	oauth     OAuthProvider
	abuse     AuthAbuseGuard
	logger    *slog.Logger
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegistrationResult struct {
	UserID            uint   `json:"userId"`
	Email             string `json:"email"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

type VerifyEmailInput struct {
	Email             string `json:"email"`
	OTP               string `json:"otp"`
	VerificationToken string `json:"verificationToken"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IP       string `json:"-"`
}

type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      domain.UserView `json:"user"`
	// CSRFToken is set by the transport when it also issues a session cookie.
	CSRFToken string `json:"csrfToken,omitempty"`
}

type ForgotPasswordInput struct {
	Email string `json:"email"`
	IP    string `json:"-"`
}

type PasswordResetRequest struct {
	ResetToken string `json:"resetToken,omitempty"`
}

type ResetPasswordInput struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

func NewAuthService(
	cfg *config.Config,
	users repository.UserRepository,
	codec *security.TokenCodec,
	sessions *SessionIssuer,
	mailer Mailer,
	federated FederatedVerifier,
	oauth OAuthProvider,
	abuse AuthAbuseGuard,
	logger *slog.Logger,
) *AuthService {
	if abuse == nil {
		abuse = NewNoopAuthAbuseGuard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		cfg:       cfg,
		users:     users,
		codec:     codec,
		sessions:  sessions,
		mailer:    mailer,
		federated: federated,
		oauth:     oauth,
		abuse:     abuse,
		logger:    logger,
	}
}

// pendingSecrets is one OTP plus opaque token pair. Only the digests are persisted.
type pendingSecrets struct {
	otp       string
	token     string
	otpHash   string
	tokenHash string
	expiresAt time.Time
}

func (s *AuthService) newPendingSecrets() (pendingSecrets, error) {
	otp, err := s.codec.GenerateOTP()
	if err != nil {
		return pendingSecrets{}, err
	}
	token, err := security.GenerateOpaqueToken()
	if err != nil {
		return pendingSecrets{}, err
	}
	otpHash, err := security.HashToken(otp)
	if err != nil {
		return pendingSecrets{}, err
	}
	tokenHash, err := security.HashToken(token)
	if err != nil {
		return pendingSecrets{}, err
	}
	return pendingSecrets{
		otp:       otp,
		token:     token,
		otpHash:   otpHash,
		tokenHash: tokenHash,
		expiresAt: s.codec.ExpiryAt(),
	}, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (result *RegistrationResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.register")
	defer span.End()
	defer func() { observability.RecordAuthFlowEvent(ctx, "register", flowOutcome(err)) }()

	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password, "Password"); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	passwordHash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	secrets, err := s.newPendingSecrets()
	if err != nil {
		return nil, err
	}
	expiresAt := secrets.expiresAt
	user := &domain.User{
		Name:                  name,
		Email:                 email,
		PasswordHash:          passwordHash,
		Role:                  s.roleFor(email),
		IsActive:              true,
		VerificationOTPHash:   secrets.otpHash,
		VerificationTokenHash: secrets.tokenHash,
		VerificationExpiresAt: &expiresAt,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, translateRepoError(err)
	}

	link := s.frontendLink("/verify-email", email, secrets.token)
	if err := s.mailer.SendVerificationEmail(ctx, email, name, secrets.otp, link); err != nil {
		s.logger.WarnContext(ctx, "verification email delivery failed", "user_id", user.ID, "error", err)
	}

	result = &RegistrationResult{UserID: user.ID, Email: user.Email}
	if s.cfg.AuthExposeTokensInResponse {
		result.VerificationToken = secrets.token
	}
	return result, nil
}

// VerifyEmail checks, in order, that the identity exists, the token matches,
// the pair has not expired and the OTP matches, then consumes the pair.
func (s *AuthService) VerifyEmail(ctx context.Context, in VerifyEmailInput) (result *LoginResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.verify_email")
	defer span.End()
	defer func() { observability.RecordAuthFlowEvent(ctx, "verify_email", flowOutcome(err)) }()

	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := requireField(in.VerificationToken, "Verification token is required"); err != nil {
		return nil, err
	}
	if err := validateOTPFormat(in.OTP, s.codec.OTPLength()); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if !security.VerifyToken(in.VerificationToken, user.VerificationTokenHash) {
		return nil, ErrInvalidVerificationToken
	}
	if user.VerificationExpiresAt == nil || s.codec.IsExpired(*user.VerificationExpiresAt) {
		return nil, ErrVerificationExpired
	}
	if !security.VerifyToken(in.OTP, user.VerificationOTPHash) {
		return nil, ErrInvalidOTP
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if err := s.users.ConsumeVerification(ctx, user.ID, user.VerificationTokenHash); err != nil {
		if errors.Is(err, repository.ErrTokenAlreadyConsumed) {
			return nil, ErrInvalidVerificationToken
		}
		return nil, err
	}
	user.EmailVerified = true
	user.VerificationOTPHash = ""
	user.VerificationTokenHash = ""
	user.VerificationExpiresAt = nil

	if err := s.mailer.SendWelcomeEmail(ctx, user.Email, user.Name); err != nil {
		s.logger.WarnContext(ctx, "welcome email delivery failed", "user_id", user.ID, "error", err)
	}
	return s.issue(ctx, user)
}

// ResendVerification replaces the pending pair of an unverified identity.
func (s *AuthService) ResendVerification(ctx context.Context, rawEmail string) (result *RegistrationResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.resend_verification")
	defer span.End()
	defer func() { observability.RecordAuthFlowEvent(ctx, "resend_verification", flowOutcome(err)) }()

	email := normalizeEmail(rawEmail)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if user.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	secrets, err := s.newPendingSecrets()
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateFields(ctx, user.ID, map[string]any{
		"verification_otp_hash":   secrets.otpHash,
		"verification_token_hash": secrets.tokenHash,
		"verification_expires_at": secrets.expiresAt,
	}); err != nil {
		return nil, translateRepoError(err)
	}

	link := s.frontendLink("/verify-email", email, secrets.token)
	if err := s.mailer.SendVerificationEmail(ctx, email, user.Name, secrets.otp, link); err != nil {
		s.logger.ErrorContext(ctx, "verification email delivery failed", "user_id", user.ID, "error", err)
		return nil, ErrVerifyDeliveryFailed
	}

	result = &RegistrationResult{UserID: user.ID, Email: user.Email}
	if s.cfg.AuthExposeTokensInResponse {
		result.VerificationToken = secrets.token
	}
	return result, nil
}

// Login compares the password before looking at account state so that the
// response does not reveal whether an unknown email is registered.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (result *LoginResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.login")
	defer span.End()
	defer func() { observability.RecordAuthLogin(ctx, "local", flowOutcome(err)) }()

	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := requireField(in.Password, "Password is required"); err != nil {
		return nil, err
	}
	if err := s.checkAbuse(ctx, AuthAbuseScopeLogin, email, in.IP); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, s.registerAbuseFailure(ctx, AuthAbuseScopeLogin, email, in.IP, ErrInvalidCredentials)
		}
		return nil, err
	}
	ok, err := security.VerifyPassword(user.PasswordHash, in.Password)
	if err != nil {
		s.logger.WarnContext(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
	}
	if !ok {
		return nil, s.registerAbuseFailure(ctx, AuthAbuseScopeLogin, email, in.IP, ErrInvalidCredentials)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if err := s.abuse.Reset(ctx, AuthAbuseScopeLogin, email, in.IP); err != nil {
		s.logger.WarnContext(ctx, "auth abuse guard reset failed", "scope", AuthAbuseScopeLogin, "error", err)
	}

	if err := s.recordLogin(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

// LoginWithGoogle exchanges a Google ID token for a local session.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (result *LoginResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.login_google")
	defer span.End()
	defer func() { observability.RecordAuthLogin(ctx, "google_id_token", flowOutcome(err)) }()

	if !s.cfg.AuthGoogleEnabled || s.federated == nil {
		return nil, ErrGoogleAuthDisabled
	}
	if err := requireField(idToken, "Google ID token is required"); err != nil {
		return nil, err
	}
	identity, err := s.federated.VerifyAssertion(ctx, idToken, s.cfg.GoogleClientID)
	if err != nil {
		s.logger.WarnContext(ctx, "google assertion rejected", "error", err)
		return nil, ErrFederatedRejected
	}
	return s.completeFederatedLogin(ctx, identity)
}

func (s *AuthService) GoogleLoginURL(state string) string {
	if !s.cfg.AuthGoogleEnabled || s.oauth == nil {
		return ""
	}
	return s.oauth.AuthCodeURL(state)
}

// LoginWithGoogleCode finishes the redirect flow after the state has been checked.
func (s *AuthService) LoginWithGoogleCode(ctx context.Context, code string) (result *LoginResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.login_google_code")
	defer span.End()
	defer func() { observability.RecordAuthLogin(ctx, "google_code", flowOutcome(err)) }()

	if !s.cfg.AuthGoogleEnabled || s.oauth == nil {
		return nil, ErrGoogleAuthDisabled
	}
	if err := requireField(code, "Authorization code is required"); err != nil {
		return nil, err
	}
	identity, err := fetchCodeFlowIdentity(ctx, s.oauth, code)
	if err != nil {
		s.logger.WarnContext(ctx, "google code exchange failed", "error", err)
		return nil, ErrFederatedRejected
	}
	return s.completeFederatedLogin(ctx, identity)
}

// completeFederatedLogin links the identity to an account with the same email,
// or creates a verified account whose password can never be guessed.
func (s *AuthService) completeFederatedLogin(ctx context.Context, identity *FederatedIdentity) (*LoginResult, error) {
	email := normalizeEmail(identity.Email)
	if identity.Subject == "" || validateEmail(email) != nil || !identity.EmailVerified {
		return nil, ErrFederatedRejected
	}
	subject := identity.Subject

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, ErrAccountInactive
		}
		updates := map[string]any{
			"google_id":               subject,
			"email_verified":          true,
			"verification_otp_hash":   "",
			"verification_token_hash": "",
			"verification_expires_at": nil,
		}
		if identity.AvatarURL != "" {
			updates["avatar_url"] = identity.AvatarURL
			user.AvatarURL = identity.AvatarURL
		}
		if err := s.users.UpdateFields(ctx, user.ID, updates); err != nil {
			return nil, translateRepoError(err)
		}
		user.GoogleID = &subject
		user.EmailVerified = true
		user.VerificationOTPHash = ""
		user.VerificationTokenHash = ""
		user.VerificationExpiresAt = nil
		observability.RecordAuthFlowEvent(ctx, "federated", "linked")
	case errors.Is(err, repository.ErrUserNotFound):
		placeholder, err := security.NewUnusablePasswordHash()
		if err != nil {
			return nil, err
		}
		user = &domain.User{
			Name:          federatedDisplayName(identity.Name, email),
			Email:         email,
			PasswordHash:  placeholder,
			Role:          s.roleFor(email),
			IsActive:      true,
			EmailVerified: true,
			GoogleID:      &subject,
			AvatarURL:     identity.AvatarURL,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, translateRepoError(err)
		}
		observability.RecordAuthFlowEvent(ctx, "federated", "created")
	default:
		return nil, err
	}

	if err := s.recordLogin(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

func (s *AuthService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) (result *PasswordResetRequest, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.forgot_password")
	defer span.End()
	defer func() { observability.RecordAuthFlowEvent(ctx, "forgot_password", flowOutcome(err)) }()

	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := s.checkAbuse(ctx, AuthAbuseScopeForgot, email, in.IP); err != nil {
		return nil, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, s.registerAbuseFailure(ctx, AuthAbuseScopeForgot, email, in.IP, ErrUserNotFound)
		}
		return nil, err
	}

	secrets, err := s.newPendingSecrets()
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateFields(ctx, user.ID, map[string]any{
		"reset_otp_hash":   secrets.otpHash,
		"reset_token_hash": secrets.tokenHash,
		"reset_expires_at": secrets.expiresAt,
	}); err != nil {
		return nil, translateRepoError(err)
	}

	link := s.frontendLink("/reset-password", email, secrets.token)
	if err := s.mailer.SendPasswordResetEmail(ctx, email, user.Name, secrets.otp, link); err != nil {
		s.logger.ErrorContext(ctx, "password reset email delivery failed", "user_id", user.ID, "error", err)
		return nil, ErrResetDeliveryFailed
	}

	result = &PasswordResetRequest{}
	if s.cfg.AuthExposeTokensInResponse {
		result.ResetToken = secrets.token
	}
	return result, nil
}

// ResetPassword replaces the password hash. It never issues a session.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	ctx, span := observability.StartSpan(ctx, "auth.reset_password")
	defer span.End()
	defer func() { observability.RecordAuthFlowEvent(ctx, "reset_password", flowOutcome(err)) }()

	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := requireField(in.ResetToken, "Reset token is required"); err != nil {
		return err
	}
	if err := validateOTPFormat(in.OTP, s.codec.OTPLength()); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return translateRepoError(err)
	}
	if !security.VerifyToken(in.ResetToken, user.ResetTokenHash) {
		return ErrInvalidResetToken
	}
	if user.ResetExpiresAt == nil || s.codec.IsExpired(*user.ResetExpiresAt) {
		return ErrResetExpired
	}
	if !security.VerifyToken(in.OTP, user.ResetOTPHash) {
		return ErrInvalidOTP
	}
	// The policy runs last so a bad reset link is reported as such.
	if err := validatePassword(in.NewPassword, "New password"); err != nil {
		return err
	}

	passwordHash, err := security.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.ConsumePasswordReset(ctx, user.ID, user.ResetTokenHash, passwordHash); err != nil {
		if errors.Is(err, repository.ErrTokenAlreadyConsumed) {
			return ErrInvalidResetToken
		}
		return err
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, user *domain.User) (*LoginResult, error) {
	session, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: session.Token, ExpiresAt: session.ExpiresAt, User: user.View()}, nil
}

func (s *AuthService) recordLogin(ctx context.Context, user *domain.User) error {
	now := s.codec.Now()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return translateRepoError(err)
	}
	user.LoginCount++
	user.LastLoginAt = &now
	return nil
}

func (s *AuthService) checkAbuse(ctx context.Context, scope AuthAbuseScope, email, ip string) error {
	delay, err := s.abuse.Check(ctx, scope, email, ip)
	if err != nil {
		s.logger.WarnContext(ctx, "auth abuse guard check failed", "scope", scope, "error", err)
		return nil
	}
	if delay > 0 {
		return &ThrottledError{RetryAfter: delay}
	}
	return nil
}

// registerAbuseFailure counts a failed attempt and returns cause.
func (s *AuthService) registerAbuseFailure(ctx context.Context, scope AuthAbuseScope, email, ip string, cause error) error {
	if _, err := s.abuse.RegisterFailure(ctx, scope, email, ip); err != nil {
		s.logger.WarnContext(ctx, "auth abuse guard register failed", "scope", scope, "error", err)
	}
	return cause
}

func (s *AuthService) roleFor(email string) string {
	bootstrap := normalizeEmail(s.cfg.BootstrapAdminEmail)
	if bootstrap != "" && bootstrap == email {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

func (s *AuthService) frontendLink(path, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return strings.TrimRight(s.cfg.FrontendURL, "/") + path + "?" + q.Encode()
}

func federatedDisplayName(name, email string) string {
	name = strings.TrimSpace(name)
	if validateName(truncateRunes(name, maxNameLength)) != nil {
		name, _, _ = strings.Cut(email, "@")
		if len(name) < minNameLength {
			name = "Gallery user"
		}
	}
	return truncateRunes(name, maxNameLength)
}

func flowOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(KindOf(err)))
}
