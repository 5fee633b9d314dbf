package config

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	passwordLength  = 24
	passwordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	defaultUsername = "admin"
)

// Secret is a string type that masks its value when printed or logged.
// Use Value() to get the actual string value.
type Secret string

// String returns a masked value for logging safety.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString returns a masked value for %#v formatting.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Value returns the actual secret value.
// Use this only when the actual value is needed (DSNs, tokens, hash checks).
func (s Secret) Value() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s Secret) IsEmpty() bool {
	return s == ""
}

// GeneratePassword generates a cryptographically secure random password.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("generate password: length must be positive")
	}
	b := make([]byte, length)
	charsetLen := big.NewInt(int64(len(passwordCharset)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = passwordCharset[idx.Int64()]
	}
	return string(b), nil
}

// EnsureAdminCredentials fills in admin credentials when none are configured.
// It returns the generated plaintext password for one-time display, or ""
// when the existing credentials were kept.
func EnsureAdminCredentials(s *ServerConfig) (generatedPassword string, err error) {
	if !s.AdminPasswordHash.IsEmpty() {
		if s.AdminUser == "" {
			s.AdminUser = defaultUsername
		}
		return "", nil
	}

	password, err := GeneratePassword(passwordLength)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin password: %w", err)
	}

	if s.AdminUser == "" {
		s.AdminUser = defaultUsername
	}
	s.AdminPasswordHash = Secret(hash)
	return password, nil
}
