package auth

import (
	"github.com/rotisserie/eris"
	"golang.org/x/crypto/bcrypt"

	"github.com/slimedodge/server/internal/config"
)

// MinPasswordLength is the shortest observer password accepted for hashing
const MinPasswordLength = 8

// PasswordService checks observer passwords against the configured hash
type PasswordService struct {
	bcryptCost   int
	observerHash string
}

// NewPasswordService creates a new password service with configuration
func NewPasswordService(cfg *config.Config) *PasswordService {
	return &PasswordService{
		bcryptCost:   cfg.Auth.BCryptCost,
		observerHash: cfg.Auth.ObserverPasswordHash,
	}
}

// HashPassword hashes a password using bcrypt
func (s *PasswordService) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", eris.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", eris.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against a hash
func (s *PasswordService) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ObserverPasswordRequired reports whether observers must present a password
func (s *PasswordService) ObserverPasswordRequired() bool {
	return s.observerHash != ""
}

// VerifyObserver checks an observer password. Without a configured hash
// any password is accepted.
func (s *PasswordService) VerifyObserver(password string) bool {
	if !s.ObserverPasswordRequired() {
		return true
	}
	return s.VerifyPassword(password, s.observerHash)
}
