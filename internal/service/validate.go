package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minNameLength     = 2
	maxNameLength     = 50
	minPasswordLength = 6
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return NewValidationError("Please provide a valid email address")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return NewValidationError("Please provide a valid email address")
	}
	return nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return NewValidationError("Name must be between %d and %d characters", minNameLength, maxNameLength)
	}
	return nil
}

func validatePassword(password, label string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return NewValidationError("%s must be at least %d characters long", label, minPasswordLength)
	}
	return nil
}

func validateOTPFormat(otp string, length int) error {
	if len(otp) != length {
		return NewValidationError("OTP must be %d digits", length)
	}
	for _, r := range otp {
		if r < '0' || r > '9' {
			return NewValidationError("OTP must be %d digits", length)
		}
	}
	return nil
}

func requireField(value, message string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError("%s", message)
	}
	return nil
}

// maxLength reports a validation error when v exceeds limit runes.
func maxLength(v string, limit int, label string) error {
	if utf8.RuneCountInString(v) > limit {
		return NewValidationError("%s cannot exceed %d characters", label, limit)
	}
	return nil
}

func truncateRunes(v string, limit int) string {
	if utf8.RuneCountInString(v) <= limit {
		return v
	}
	return string([]rune(v)[:limit])
}
