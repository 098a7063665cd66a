// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

// TokenState is the derived lifecycle state of a refresh token. A token is
// rotated when revoked with a replacement link, revoked when revoked
// without one (logout or a security response), expired purely by time.
type TokenState string

const (
	TokenStateActive  TokenState = "active"
	TokenStateRotated TokenState = "rotated"
	TokenStateExpired TokenState = "expired"
	TokenStateRevoked TokenState = "revoked"
)

// RefreshToken is one issued refresh token. The stored TokenHash is a
// SHA-256 digest; the opaque token string itself never touches storage.
// Once revoked the record is immutable except for ReplacedByID, which is
// set exactly once during rotation.
type RefreshToken struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	TokenHash    string     `db:"token_hash"`
	FamilyID     string     `db:"family_id"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	RevokedAt    *time.Time `db:"revoked_at"`
	ReplacedByID *string    `db:"replaced_by_id"`
	UserAgent    string     `db:"user_agent"`
	IPAddress    string     `db:"ip_address"`
	DeviceID     string     `db:"device_id"`
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t *RefreshToken) IsValid() bool {
	return !t.IsExpired() && !t.IsRevoked()
}

func (t *RefreshToken) State() TokenState {
	switch {
	case t.IsRevoked() && t.ReplacedByID != nil:
		return TokenStateRotated
	case t.IsRevoked():
		return TokenStateRevoked
	case t.IsExpired():
		return TokenStateExpired
	default:
		return TokenStateActive
	}
}
