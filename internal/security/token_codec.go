package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	DefaultOTPLength    = 6
	opaqueTokenBytes    = 32
	DefaultAuthTokenTTL = 10 * time.Minute
)

var ErrInvalidArgument = errors.New("invalid argument")

// Clock returns the current instant. Tests replace it to freeze time.
type Clock func() time.Time

// TokenCodec issues one-time codes and opaque tokens and checks them against stored digests.
type TokenCodec struct {
	otpLength int
	ttl       time.Duration
	now       Clock
}

func NewTokenCodec(otpLength int, ttl time.Duration, now Clock) *TokenCodec {
	if otpLength <= 0 {
		otpLength = DefaultOTPLength
	}
	if ttl <= 0 {
		ttl = DefaultAuthTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{otpLength: otpLength, ttl: ttl, now: now}
}

func (c *TokenCodec) Now() time.Time {
	return c.now().UTC()
}

func (c *TokenCodec) OTPLength() int {
	return c.otpLength
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

func (c *TokenCodec) GenerateOTP() (string, error) {
	return GenerateOTP(c.otpLength)
}

// ExpiryAt returns now plus the configured lifetime.
func (c *TokenCodec) ExpiryAt() time.Time {
	return c.Now().Add(c.ttl)
}

// IsExpired reports whether the instant is strictly in the past.
func (c *TokenCodec) IsExpired(expiresAt time.Time) bool {
	return c.Now().After(expiresAt)
}

// GenerateOTP returns length decimal digits, each drawn independently from crypto/rand.
func GenerateOTP(length int) (string, error) {
	if length <= 0 {
		length = DefaultOTPLength
	}
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// GenerateOpaqueToken returns 256 random bits hex encoded.
func GenerateOpaqueToken() (string, error) {
	return NewRandomHex(opaqueTokenBytes)
}

func HashToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("hash token: %w", ErrInvalidArgument)
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:]), nil
}

// VerifyToken compares the digest of candidate with storedHash in constant time.
// An empty candidate or digest never matches.
func VerifyToken(candidate, storedHash string) bool {
	if candidate == "" || storedHash == "" {
		return false
	}
	sum := sha256.Sum256([]byte(candidate))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(storedHash))) == 1
}
