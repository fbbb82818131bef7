package identity

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// commonPasswords is a small denylist of passwords rejected outright
// regardless of character-class checks.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"12345678":    {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"letmein":     {},
	"welcome":     {},
	"welcome1":    {},
	"admin":       {},
	"iloveyou":    {},
	"monkey":      {},
	"dragon":      {},
	"finance123":  {},
}

// PasswordPolicy is the configurable strength policy applied at
// registration and password change.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSymbol  bool
	DenylistCommon bool
}

// Validate checks the password against the policy and returns a
// ValidationError describing the first violation.
func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", p.MinLength)}
	}
	if p.DenylistCommon {
		if _, ok := commonPasswords[strings.ToLower(password)]; ok {
			return &ValidationError{Field: "password", Reason: "too common"}
		}
	}

	var upper, lower, digit, symbol bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsPunct(c) || unicode.IsSymbol(c):
			symbol = true
		}
	}
	if p.RequireUpper && !upper {
		return &ValidationError{Field: "password", Reason: "must contain an uppercase letter"}
	}
	if p.RequireLower && !lower {
		return &ValidationError{Field: "password", Reason: "must contain a lowercase letter"}
	}
	if p.RequireDigit && !digit {
		return &ValidationError{Field: "password", Reason: "must contain a digit"}
	}
	if p.RequireSymbol && !symbol {
		return &ValidationError{Field: "password", Reason: "must contain a symbol"}
	}
	return nil
}

// ValidateEmail checks basic email shape.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "invalid format"}
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
