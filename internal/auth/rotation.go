// AngelaMos | 2026
// rotation.go

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carterperez-dev/authcore/internal/core"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrTokenReuse          = errors.New("token reuse detected")
	ErrEmailExists         = errors.New("email already exists")
)

// ReuseError reports presentation of an already-consumed refresh token.
// The rotation transaction rolls back; the caller must then persist the
// family-wide revocation in its own transaction, because that side effect
// has to survive the failed request.
type ReuseError struct {
	Record *RefreshToken
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("refresh token %s already consumed", e.Record.ID)
}

func (e *ReuseError) Unwrap() error {
	return ErrTokenReuse
}

// InactiveOwnerError reports a rotation attempt by a user that is no longer
// active. The presented token must still be revoked outside the failed
// transaction.
type InactiveOwnerError struct {
	Record *RefreshToken
}

func (e *InactiveOwnerError) Error() string {
	return fmt.Sprintf("refresh token %s owner is not active", e.Record.ID)
}

func (e *InactiveOwnerError) Unwrap() error {
	return ErrInvalidRefreshToken
}

// ClientMeta is informational security metadata recorded on each token; it
// plays no part in the rotation decision.
type ClientMeta struct {
	UserAgent string
	IPAddress string
	DeviceID  string
}

// RotationResult is a completed rotation: the new pair, the consumed record
// and its replacement, both sharing the family.
type RotationResult struct {
	Pair *TokenPair
	User *UserInfo
	Old  *RefreshToken
	New  *RefreshToken
}

// Rotator implements the refresh-token rotation state machine. All of its
// storage access goes through the repository handed in per call, so a
// rotation participates in whatever transaction the caller runs.
type Rotator struct {
	issuer *TokenIssuer
}

func NewRotator(issuer *TokenIssuer) *Rotator {
	return &Rotator{issuer: issuer}
}

// Rotate exchanges a valid refresh token for a new pair, revoking the
// presented token and linking its replacement:
//
//  1. unknown token -> ErrInvalidRefreshToken
//  2. revoked token -> ReuseError (theft signal; caller cascades the family)
//  3. expired token -> ErrInvalidRefreshToken, no cascade
//  4. inactive owner -> InactiveOwnerError (caller revokes the single token)
//  5. new pair continues the family; the old record's revocation and the
//     new record's creation are one atomic step under the caller's
//     transaction
//
// A concurrent rotation of the same token loses the Consume claim and is
// reported as reuse; that is deliberate defense-in-depth.
func (r *Rotator) Rotate(
	ctx context.Context,
	tokens Repository,
	users UserProvider,
	refreshToken string,
	meta ClientMeta,
) (*RotationResult, error) {
	record, err := tokens.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("rotate: %w", ErrInvalidRefreshToken)
		}
		return nil, fmt.Errorf("rotate: %w", err)
	}

	if record.IsRevoked() {
		return nil, &ReuseError{Record: record}
	}

	if record.IsExpired() {
		return nil, fmt.Errorf("rotate: expired: %w", ErrInvalidRefreshToken)
	}

	owner, err := users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, &InactiveOwnerError{Record: record}
		}
		return nil, fmt.Errorf("rotate: load owner: %w", err)
	}

	if !owner.IsActive() {
		return nil, &InactiveOwnerError{Record: record}
	}

	pair, refreshData, err := r.issuer.GenerateTokenPair(Claims{
		UserID:      owner.ID,
		TenantID:    owner.TenantID,
		Roles:       owner.Roles,
		Permissions: owner.Permissions,
	}, record.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}

	newRecord := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    owner.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		DeviceID:  meta.DeviceID,
	}

	if err := tokens.Create(ctx, newRecord); err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}

	claimed, err := tokens.Consume(ctx, record.ID, newRecord.ID)
	if err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}
	if !claimed {
		// Lost the race: someone consumed this token between our read and
		// the claim. Treat exactly like replay of a revoked token.
		return nil, &ReuseError{Record: record}
	}

	return &RotationResult{
		Pair: pair,
		User: owner,
		Old:  record,
		New:  newRecord,
	}, nil
}
