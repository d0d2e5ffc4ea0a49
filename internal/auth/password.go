package auth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"expense-api/internal/apperrors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor used for every stored hash.
const PasswordCost = 8

// MinPasswordLength is the shortest accepted password after trimming, in
// characters.
const MinPasswordLength = 7

// ValidatePassword enforces the password policy. It must run before
// HashPassword so that rejected passwords are never hashed.
func ValidatePassword(password string) error {
	trimmed := strings.TrimSpace(password)
	if utf8.RuneCountInString(trimmed) < MinPasswordLength {
		return apperrors.Validationf("Password must be at least %d characters", MinPasswordLength)
	}
	if strings.Contains(strings.ToLower(trimmed), "password") {
		return apperrors.Validationf(`Password cannot contain "password"`)
	}
	// bcrypt ignores everything past 72 bytes.
	if len(trimmed) > 72 {
		return apperrors.Validationf("Password must be at most 72 bytes")
	}
	return nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. A malformed hash is
// reported as a mismatch.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
