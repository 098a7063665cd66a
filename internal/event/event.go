// AngelaMos | 2026
// event.go

package event

import (
	"time"
)

// Event is an immutable record of something that already happened. Events
// are created inside a use case, buffered by the unit of work, and reach
// subscribers only after the surrounding transaction commits.
type Event interface {
	Name() string
	OccurredAt() time.Time
}

type Meta struct {
	At time.Time
}

func NewMeta() Meta {
	return Meta{At: time.Now()}
}

func (m Meta) OccurredAt() time.Time {
	return m.At
}

const (
	UserRegisteredName         = "user.registered"
	UserLoggedInName           = "user.logged_in"
	UserLoggedOutName          = "user.logged_out"
	TokenRefreshedName         = "token.refreshed"
	TokenReuseDetectedName     = "token.reuse_detected"
	UserPasswordChangedName    = "user.password_changed"
	PasswordResetRequestedName = "user.password_reset_requested"
	UserEmailVerifiedName      = "user.email_verified"
)

type UserRegistered struct {
	Meta
	UserID            string
	TenantID          string
	Email             string
	VerificationToken string
}

func (UserRegistered) Name() string { return UserRegisteredName }

type UserLoggedIn struct {
	Meta
	UserID    string
	TenantID  string
	FamilyID  string
	IPAddress string
	UserAgent string
}

func (UserLoggedIn) Name() string { return UserLoggedInName }

type UserLoggedOut struct {
	Meta
	UserID   string
	TenantID string
	All      bool
}

func (UserLoggedOut) Name() string { return UserLoggedOutName }

type TokenRefreshed struct {
	Meta
	UserID     string
	TenantID   string
	FamilyID   string
	OldTokenID string
	NewTokenID string
}

func (TokenRefreshed) Name() string { return TokenRefreshedName }

// TokenReuseDetected marks a replay of an already-consumed refresh token;
// by the time it is dispatched the whole family is revoked.
type TokenReuseDetected struct {
	Meta
	UserID    string
	TenantID  string
	FamilyID  string
	TokenID   string
	IPAddress string
	UserAgent string
}

func (TokenReuseDetected) Name() string { return TokenReuseDetectedName }

type UserPasswordChanged struct {
	Meta
	UserID          string
	TenantID        string
	SessionsRevoked bool
}

func (UserPasswordChanged) Name() string { return UserPasswordChangedName }

type PasswordResetRequested struct {
	Meta
	UserID     string
	TenantID   string
	Email      string
	ResetToken string
}

func (PasswordResetRequested) Name() string { return PasswordResetRequestedName }

type UserEmailVerified struct {
	Meta
	UserID   string
	TenantID string
}

func (UserEmailVerified) Name() string { return UserEmailVerifiedName }
