package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity record. Pending verification and reset secrets live on the
// same row and are stored only as SHA-256 digests.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"size:50;not null" json:"name"`
	Email         string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash  string     `gorm:"size:1024;not null" json:"-"`
	Role          string     `gorm:"size:16;not null;default:user;index" json:"role"`
	IsActive      bool       `gorm:"not null;index" json:"isActive"`
	EmailVerified bool       `gorm:"not null" json:"isEmailVerified"`
	GoogleID      *string    `gorm:"uniqueIndex;size:255" json:"-"`
	AvatarURL     string     `gorm:"size:1024" json:"avatar"`
	LoginCount    int        `gorm:"not null;default:0" json:"loginCount"`
	LastLoginAt   *time.Time `json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	VerificationOTPHash   string     `gorm:"size:64" json:"-"`
	VerificationTokenHash string     `gorm:"size:64;index" json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetOTPHash          string     `gorm:"size:64" json:"-"`
	ResetTokenHash        string     `gorm:"size:64;index" json:"-"`
	ResetExpiresAt        *time.Time `json:"-"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// UserView is the redacted projection returned to clients.
type UserView struct {
	ID            uint       `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	AvatarURL     string     `json:"avatar,omitempty"`
	EmailVerified bool       `json:"isEmailVerified"`
	IsActive      bool       `json:"isActive"`
	LoginCount    int        `json:"loginCount"`
	LastLoginAt   *time.Time `json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (u *User) View() UserView {
	return UserView{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		AvatarURL:     u.AvatarURL,
		EmailVerified: u.EmailVerified,
		IsActive:      u.IsActive,
		LoginCount:    u.LoginCount,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}
