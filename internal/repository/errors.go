package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrGoogleIDTaken        = errors.New("google account already linked")
	ErrTokenAlreadyConsumed = errors.New("token already consumed")
	ErrContactNotFound      = errors.New("contact message not found")
	ErrMediaNotFound        = errors.New("media not found")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func outcome(err error, notFound error) string {
	switch {
	case err == nil:
		return "success"
	case notFound != nil && errors.Is(err, notFound):
		return "not_found"
	default:
		return "error"
	}
}
