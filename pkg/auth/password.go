package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	MinPasswordLen    = 8
	MaxPasswordLen    = 72 // bcrypt ignores input beyond 72 bytes
)

// PasswordValidationError lists every unmet strength rule.
// Error() stays generic; the rules are for logs only.
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	return "password does not meet strength requirements"
}

var commonPasswords = map[string]bool{
	"password":     true,
	"12345678":     true,
	"qwerty":       true,
	"abc123":       true,
	"password123":  true,
	"password123!": true,
	"password1!":   true,
	"123456":       true,
	"letmein":      true,
	"welcome":      true,
	"passw0rd":     true,
	"sunshine":     true,
	"trustno1":     true,
	"iloveyou":     true,
	"changeme1!":   true,
}

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher creates a hasher with the given bcrypt cost. It
// precomputes a hash used for dummy comparisons, so that a lookup miss
// costs the same as a wrong password.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to build dummy hash: %w", err)
	}

	return &PasswordHasher{cost: cost, dummyHash: dummy}, nil
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare reports whether password matches hashedPassword.
func (h *PasswordHasher) Compare(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// CompareDummy burns one bcrypt comparison and always reports false.
func (h *PasswordHasher) CompareDummy(password string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
	return false
}

// ValidatePassword enforces strong password requirements
func ValidatePassword(password string) error {
	problems := make([]string, 0)

	if len(password) < MinPasswordLen {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		problems = append(problems, fmt.Sprintf("must be at most %d bytes", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		problems = append(problems, "must contain an uppercase letter")
	}
	if !hasLower {
		problems = append(problems, "must contain a lowercase letter")
	}
	if !hasDigit {
		problems = append(problems, "must contain a digit")
	}
	if !hasSpecial {
		problems = append(problems, "must contain a special character")
	}

	if commonPasswords[strings.ToLower(password)] {
		problems = append(problems, "is too common")
	}

	if len(problems) > 0 {
		return &PasswordValidationError{Errors: problems}
	}

	return nil
}
