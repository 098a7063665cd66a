// AngelaMos | 2026
// password.go

package core

import (
	"fmt"
	"unicode"
)

const (
	passwordMinLen = 8
	passwordMaxLen = 128
)

// WeakPasswordError names the specific policy rule a candidate password
// failed. It unwraps to ErrWeakPassword so callers can match the class.
type WeakPasswordError struct {
	Reason string
}

func (e *WeakPasswordError) Error() string {
	return e.Reason
}

func (e *WeakPasswordError) Unwrap() error {
	return ErrWeakPassword
}

func weak(format string, args ...any) error {
	return &WeakPasswordError{Reason: fmt.Sprintf(format, args...)}
}

// Password holds only the Argon2id hash of an accepted plaintext. The
// plaintext itself is never stored, logged, or printed.
type Password struct {
	hash string
}

// NewPassword validates plaintext against the password policy and hashes it.
func NewPassword(plaintext string) (Password, error) {
	if err := ValidatePasswordPolicy(plaintext); err != nil {
		return Password{}, err
	}

	hash, err := HashPassword(plaintext)
	if err != nil {
		return Password{}, fmt.Errorf("hash password: %w", err)
	}

	return Password{hash: hash}, nil
}

// PasswordFromHash wraps an already-stored hash, e.g. loaded from the
// database. No policy check applies; the policy ran at creation time.
func PasswordFromHash(hash string) Password {
	return Password{hash: hash}
}

func (p Password) Hash() string {
	return p.hash
}

func (p Password) Verify(plaintext string) bool {
	ok, err := VerifyPassword(plaintext, p.hash)
	return err == nil && ok
}

func (p Password) String() string {
	return "[redacted]"
}

// ValidatePasswordPolicy enforces length bounds and the four character
// classes. Each violation is a distinct WeakPasswordError.
func ValidatePasswordPolicy(plaintext string) error {
	if plaintext == "" {
		return weak("password is required")
	}

	runes := []rune(plaintext)
	if len(runes) < passwordMinLen {
		return weak("password must be at least %d characters", passwordMinLen)
	}
	if len(runes) > passwordMaxLen {
		return weak("password must be at most %d characters", passwordMaxLen)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || r == ' ':
			hasSpecial = true
		}
	}

	if !hasUpper {
		return weak("password must contain an uppercase letter")
	}
	if !hasLower {
		return weak("password must contain a lowercase letter")
	}
	if !hasDigit {
		return weak("password must contain a digit")
	}
	if !hasSpecial {
		return weak("password must contain a special character")
	}

	return nil
}
