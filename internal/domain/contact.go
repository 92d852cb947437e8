package domain

import "time"

const (
	ContactStatusPending  = "pending"
	ContactStatusRead     = "read"
	ContactStatusReplied  = "replied"
	ContactStatusResolved = "resolved"

	ContactPriorityLow    = "low"
	ContactPriorityMedium = "medium"
	ContactPriorityHigh   = "high"
	ContactPriorityUrgent = "urgent"

	DefaultContactSubject = "General Inquiry"
)

// ContactMessage is a support ticket. UserID is nil for anonymous submissions.
type ContactMessage struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"size:50;not null" json:"name"`
	Email      string     `gorm:"size:255;not null;index" json:"email"`
	Subject    string     `gorm:"size:100;not null" json:"subject"`
	Message    string     `gorm:"size:1000;not null" json:"message"`
	UserID     *uint      `gorm:"index" json:"userId,omitempty"`
	Status     string     `gorm:"size:16;not null;default:pending;index" json:"status"`
	Priority   string     `gorm:"size:16;not null;default:medium;index" json:"priority"`
	IsActive   bool       `gorm:"not null;index" json:"-"`
	AdminNotes string     `gorm:"size:500" json:"adminNotes,omitempty"`
	RepliedAt  *time.Time `json:"repliedAt,omitempty"`
	RepliedBy  *uint      `json:"repliedBy,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (m *ContactMessage) OwnerID() *uint {
	return m.UserID
}

func IsValidContactStatus(s string) bool {
	switch s {
	case ContactStatusPending, ContactStatusRead, ContactStatusReplied, ContactStatusResolved:
		return true
	}
	return false
}

func IsValidContactPriority(p string) bool {
	switch p {
	case ContactPriorityLow, ContactPriorityMedium, ContactPriorityHigh, ContactPriorityUrgent:
		return true
	}
	return false
}

type ContactStats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Read     int64 `json:"read"`
	Replied  int64 `json:"replied"`
	Resolved int64 `json:"resolved"`
	Urgent   int64 `json:"urgent"`
}
