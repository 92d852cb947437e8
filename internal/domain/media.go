package domain

import (
	"strings"
	"time"
)

var MediaCategories = []string{"nature", "portrait", "landscape", "abstract", "street", "wildlife", "architecture", "other"}

const DefaultMediaCategory = "other"

type Media struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:100;not null" json:"title"`
	Description  string    `gorm:"size:500" json:"description"`
	ObjectKey    string    `gorm:"size:512;not null;uniqueIndex" json:"-"`
	OriginalName string    `gorm:"size:255" json:"originalName"`
	ContentType  string    `gorm:"size:64;not null" json:"contentType"`
	SizeBytes    int64     `gorm:"not null" json:"size"`
	Tags         string    `gorm:"size:1024" json:"-"`
	Category     string    `gorm:"size:32;not null;default:other;index" json:"category"`
	UserID       uint      `gorm:"not null;index" json:"userId"`
	IsPublic     bool      `gorm:"not null;index" json:"isPublic"`
	IsActive     bool      `gorm:"not null;index" json:"-"`
	Views        int64     `gorm:"not null;default:0" json:"views"`
	Downloads    int64     `gorm:"not null;default:0" json:"downloads"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MediaLike records one user's like of one media item.
type MediaLike struct {
	MediaID   uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (Media) TableName() string { return "media" }

func (MediaLike) TableName() string { return "media_likes" }

func (m *Media) OwnerID() *uint {
	id := m.UserID
	return &id
}

func (m *Media) TagList() []string {
	return SplitTags(m.Tags)
}

// SplitTags parses a comma separated tag list, trimming and lowercasing entries.
func SplitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		tag := strings.ToLower(strings.TrimSpace(p))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func IsValidMediaCategory(c string) bool {
	for _, v := range MediaCategories {
		if v == c {
			return true
		}
	}
	return false
}

// MediaView is the client projection of a media item.
type MediaView struct {
	Media
	Tags       []string `json:"tags"`
	URL        string   `json:"url,omitempty"`
	LikesCount int64    `json:"likesCount"`
	LikedByMe  bool     `json:"likedByMe"`
	Owner      *Owner   `json:"owner,omitempty"`
}

type Owner struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar,omitempty"`
}

type MediaStats struct {
	TotalMedia     int64 `json:"totalMedia"`
	PublicMedia    int64 `json:"publicMedia"`
	PrivateMedia   int64 `json:"privateMedia"`
	TotalViews     int64 `json:"totalViews"`
	TotalDownloads int64 `json:"totalDownloads"`
	TotalLikes     int64 `json:"totalLikes"`
}

// CategoryCount is one bucket of a per-user category distribution.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type UserStats struct {
	TotalUsers    int64 `json:"totalUsers"`
	ActiveUsers   int64 `json:"activeUsers"`
	VerifiedUsers int64 `json:"verifiedUsers"`
	AdminUsers    int64 `json:"adminUsers"`
	NewUsersWeek  int64 `json:"newUsersThisWeek"`
}
