// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/authcore/internal/cache"
	"github.com/carterperez-dev/authcore/internal/config"
	"github.com/carterperez-dev/authcore/internal/core"
	"github.com/carterperez-dev/authcore/internal/event"
	"github.com/carterperez-dev/authcore/internal/middleware"
	"github.com/carterperez-dev/authcore/internal/uow"
)

const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

const (
	blacklistKeyPrefix = "blacklist:"
	resetKeyPrefix     = "pwreset:"
	verifyKeyPrefix    = "everify:"
)

// UserInfo is the read model of a user this core needs; the user aggregate
// itself lives elsewhere.
type UserInfo struct {
	ID            string
	TenantID      string
	Email         string
	Name          string
	PasswordHash  string
	Roles         []string
	Permissions   []string
	Status        string
	EmailVerified bool
}

func (u *UserInfo) IsActive() bool {
	return u.Status == StatusActive
}

// CanAuthenticate allows pending (not yet verified) users to log in;
// inactive, suspended and deleted users cannot.
func (u *UserInfo) CanAuthenticate() bool {
	return u.Status == StatusActive || u.Status == StatusPending
}

type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         string
	TenantID     string
}

// UserProvider is the user-aggregate port. WithDB rebinds the provider to a
// transaction handle so user writes join the caller's unit of work.
type UserProvider interface {
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	GetByEmail(ctx context.Context, email, tenantID string) (*UserInfo, error)
	Create(ctx context.Context, params CreateUserParams) (*UserInfo, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	WithDB(db core.DBTX) UserProvider
}

type Service struct {
	uow     uow.Factory
	users   UserProvider
	issuer  *TokenIssuer
	rotator *Rotator
	cache   cache.Cache
	bus     uow.Publisher
	tokens  func(core.DBTX) Repository
	cfg     config.AuthConfig
	logger  *slog.Logger
}

func NewService(
	uowFactory uow.Factory,
	users UserProvider,
	issuer *TokenIssuer,
	c cache.Cache,
	bus uow.Publisher,
	cfg config.AuthConfig,
) *Service {
	return &Service{
		uow:     uowFactory,
		users:   users,
		issuer:  issuer,
		rotator: NewRotator(issuer),
		cache:   c,
		bus:     bus,
		tokens:  NewRepository,
		cfg:     cfg,
		logger:  slog.Default(),
	}
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	meta ClientMeta,
) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email, req.TenantID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _, _ = core.VerifyPasswordTimingSafe(req.Password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	valid, newHash, err := core.VerifyPasswordTimingSafe(
		req.Password,
		&user.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !valid || !user.CanAuthenticate() {
		return nil, ErrInvalidCredentials
	}

	if newHash != "" {
		//nolint:errcheck // best-effort rehash upgrade
		_ = s.users.UpdatePassword(ctx, user.ID, newHash)
	}

	// Login is the only path that originates a token family.
	pair, refreshData, err := s.issuer.GenerateTokenPair(claimsFor(user), "")
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		DeviceID:  meta.DeviceID,
	}

	u := s.uow()
	err = u.Execute(ctx, func(db core.DBTX) error {
		if err := s.tokens(db).Create(ctx, record); err != nil {
			return err
		}
		u.AddEvents(event.UserLoggedIn{
			Meta:      event.NewMeta(),
			UserID:    user.ID,
			TenantID:  user.TenantID,
			FamilyID:  record.FamilyID,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
		return nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResponse{User: toUserResponse(user), Tokens: *pair}, nil
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	meta ClientMeta,
) (*AuthResponse, error) {
	password, err := core.NewPassword(req.Password)
	if err != nil {
		return nil, err
	}

	verificationToken, err := core.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	var user *UserInfo
	u := s.uow()
	err = u.Execute(ctx, func(db core.DBTX) error {
		created, createErr := s.users.WithDB(db).Create(ctx, CreateUserParams{
			Email:        req.Email,
			PasswordHash: password.Hash(),
			Name:         req.Name,
			TenantID:     req.TenantID,
		})
		if createErr != nil {
			return createErr
		}
		user = created

		u.AddEvents(event.UserRegistered{
			Meta:              event.NewMeta(),
			UserID:            created.ID,
			TenantID:          created.TenantID,
			Email:             created.Email,
			VerificationToken: verificationToken,
		})
		return nil
	}, nil)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.cache.Set(
		ctx,
		verifyKeyPrefix+verificationToken,
		user.ID,
		s.cfg.VerificationTokenTTL,
	); err != nil {
		s.logger.Warn("store verification token", "error", err)
	}

	return s.issueSession(ctx, user, meta)
}

// issueSession creates a fresh family for a just-registered user.
func (s *Service) issueSession(
	ctx context.Context,
	user *UserInfo,
	meta ClientMeta,
) (*AuthResponse, error) {
	pair, refreshData, err := s.issuer.GenerateTokenPair(claimsFor(user), "")
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		DeviceID:  meta.DeviceID,
	}

	u := s.uow()
	err = u.Execute(ctx, func(db core.DBTX) error {
		return s.tokens(db).Create(ctx, record)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResponse{User: toUserResponse(user), Tokens: *pair}, nil
}

func (s *Service) Refresh(
	ctx context.Context,
	refreshToken string,
	meta ClientMeta,
) (*AuthResponse, error) {
	var result *RotationResult

	u := s.uow()
	err := u.Execute(ctx, func(db core.DBTX) error {
		res, rotErr := s.rotator.Rotate(
			ctx,
			s.tokens(db),
			s.users.WithDB(db),
			refreshToken,
			meta,
		)
		if rotErr != nil {
			return rotErr
		}
		result = res

		u.AddEvents(event.TokenRefreshed{
			Meta:       event.NewMeta(),
			UserID:     res.User.ID,
			TenantID:   res.User.TenantID,
			FamilyID:   res.New.FamilyID,
			OldTokenID: res.Old.ID,
			NewTokenID: res.New.ID,
		})
		return nil
	}, nil)
	if err != nil {
		var reuse *ReuseError
		if errors.As(err, &reuse) {
			s.respondToReuse(ctx, reuse.Record, meta)
			return nil, fmt.Errorf("refresh: %w", ErrTokenReuse)
		}

		var inactive *InactiveOwnerError
		if errors.As(err, &inactive) {
			s.revokeOutOfBand(ctx, inactive.Record.ID)
			return nil, fmt.Errorf("refresh: %w", ErrInvalidRefreshToken)
		}

		return nil, err
	}

	return &AuthResponse{
		User:   toUserResponse(result.User),
		Tokens: *result.Pair,
	}, nil
}

// respondToReuse persists the family-wide revocation in its own committed
// transaction; the rotation transaction that detected the replay has
// already rolled back, and this response must outlive the failed request.
func (s *Service) respondToReuse(
	ctx context.Context,
	record *RefreshToken,
	meta ClientMeta,
) {
	u := s.uow()
	err := u.Execute(ctx, func(db core.DBTX) error {
		if err := s.tokens(db).RevokeFamily(ctx, record.FamilyID); err != nil {
			return err
		}
		u.AddEvents(event.TokenReuseDetected{
			Meta:      event.NewMeta(),
			UserID:    record.UserID,
			FamilyID:  record.FamilyID,
			TokenID:   record.ID,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
		return nil
	}, nil)
	if err != nil {
		s.logger.Error("revoke token family after reuse",
			"family_id", record.FamilyID,
			"error", err,
		)
	}
}

func (s *Service) revokeOutOfBand(ctx context.Context, tokenID string) {
	u := s.uow()
	err := u.Execute(ctx, func(db core.DBTX) error {
		return s.tokens(db).RevokeByID(ctx, tokenID)
	}, nil)
	if err != nil {
		s.logger.Error("revoke refresh token",
			"token_id", tokenID,
			"error", err,
		)
	}
}

// Logout revokes the presented refresh token (or, with logoutAll, every
// live token of the user) without cascading families, then blacklists the
// access token's jti until its natural expiry.
func (s *Service) Logout(
	ctx context.Context,
	claims *middleware.AccessTokenClaims,
	refreshToken string,
	logoutAll bool,
) error {
	u := s.uow()
	err := u.Execute(ctx, func(db core.DBTX) error {
		tokens := s.tokens(db)

		if logoutAll {
			if err := tokens.RevokeAllForUser(ctx, claims.UserID); err != nil {
				return err
			}
		} else {
			record, findErr := tokens.FindByHash(ctx, core.HashToken(refreshToken))
			if findErr != nil {
				if errors.Is(findErr, core.ErrNotFound) {
					return nil
				}
				return findErr
			}

			if record.UserID != claims.UserID {
				return fmt.Errorf("logout: %w", core.ErrForbidden)
			}

			if err := tokens.RevokeByID(ctx, record.ID); err != nil {
				return err
			}
		}

		u.AddEvents(event.UserLoggedOut{
			Meta:     event.NewMeta(),
			UserID:   claims.UserID,
			TenantID: claims.TenantID,
			All:      logoutAll,
		})
		return nil
	}, nil)
	if err != nil {
		return err
	}

	return s.BlacklistAccessToken(ctx, claims.JTI, claims.ExpiresAt)
}

// BlacklistAccessToken keeps a revoked jti rejected until the token would
// have expired anyway.
func (s *Service) BlacklistAccessToken(
	ctx context.Context,
	jti string,
	expiresAt time.Time,
) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := s.cache.Set(ctx, blacklistKeyPrefix+jti, "1", ttl); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}

	return nil
}

// VerifyAccessToken is the middleware's token verifier: signature and
// claims first, then the jti blacklist.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := s.issuer.VerifyAccessToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	_, err = s.cache.Get(ctx, blacklistKeyPrefix+claims.JTI)
	if err == nil {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("check blacklist: %w", err)
	}

	return claims, nil
}

func (s *Service) ChangePassword(
	ctx context.Context,
	userID, currentPassword, newPassword string,
	revokeSessions bool,
) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	valid, _, err := core.VerifyPasswordWithRehash(
		currentPassword,
		user.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}

	if !valid {
		return ErrInvalidCredentials
	}

	password, err := core.NewPassword(newPassword)
	if err != nil {
		return err
	}

	u := s.uow()
	return u.Execute(ctx, func(db core.DBTX) error {
		if err := s.users.WithDB(db).UpdatePassword(ctx, userID, password.Hash()); err != nil {
			return err
		}

		if revokeSessions {
			if err := s.tokens(db).RevokeAllForUser(ctx, userID); err != nil {
				return err
			}
		}

		u.AddEvents(event.UserPasswordChanged{
			Meta:            event.NewMeta(),
			UserID:          userID,
			TenantID:        user.TenantID,
			SessionsRevoked: revokeSessions,
		})
		return nil
	}, nil)
}

// RequestPasswordReset always succeeds from the caller's perspective; a
// missing account produces no observable difference.
func (s *Service) RequestPasswordReset(
	ctx context.Context,
	email, tenantID string,
) error {
	user, err := s.users.GetByEmail(ctx, email, tenantID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get user: %w", err)
	}

	token, err := core.GenerateSecureToken(32)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	if err := s.cache.Set(
		ctx,
		resetKeyPrefix+token,
		user.ID,
		s.cfg.ResetTokenTTL,
	); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	s.bus.PublishAll(ctx, []event.Event{event.PasswordResetRequested{
		Meta:       event.NewMeta(),
		UserID:     user.ID,
		TenantID:   user.TenantID,
		Email:      user.Email,
		ResetToken: token,
	}})

	return nil
}

func (s *Service) ResetPassword(
	ctx context.Context,
	token, newPassword string,
) error {
	key := resetKeyPrefix + token

	userID, err := s.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return fmt.Errorf("reset password: %w", core.ErrTokenInvalid)
		}
		return fmt.Errorf("reset password: %w", err)
	}

	// Single use, even if the update below fails.
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("delete reset token", "error", err)
	}

	password, err := core.NewPassword(newPassword)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	u := s.uow()
	return u.Execute(ctx, func(db core.DBTX) error {
		if err := s.users.WithDB(db).UpdatePassword(ctx, userID, password.Hash()); err != nil {
			return err
		}

		if err := s.tokens(db).RevokeAllForUser(ctx, userID); err != nil {
			return err
		}

		u.AddEvents(event.UserPasswordChanged{
			Meta:            event.NewMeta(),
			UserID:          userID,
			TenantID:        user.TenantID,
			SessionsRevoked: true,
		})
		return nil
	}, nil)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	key := verifyKeyPrefix + token

	userID, err := s.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return fmt.Errorf("verify email: %w", core.ErrTokenInvalid)
		}
		return fmt.Errorf("verify email: %w", err)
	}

	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("delete verification token", "error", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	u := s.uow()
	return u.Execute(ctx, func(db core.DBTX) error {
		if err := s.users.WithDB(db).MarkEmailVerified(ctx, userID); err != nil {
			return err
		}

		u.AddEvents(event.UserEmailVerified{
			Meta:     event.NewMeta(),
			UserID:   userID,
			TenantID: user.TenantID,
		})
		return nil
	}, nil)
}

func (s *Service) GetActiveSessions(
	ctx context.Context,
	userID string,
) ([]SessionInfo, error) {
	tokens, err := s.tokens(s.uow().DB()).ActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionInfo{
			ID:        t.ID,
			UserAgent: t.UserAgent,
			IPAddress: t.IPAddress,
			DeviceID:  t.DeviceID,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	return sessions, nil
}

func (s *Service) RevokeSession(
	ctx context.Context,
	userID, sessionID string,
) error {
	u := s.uow()
	return u.Execute(ctx, func(db core.DBTX) error {
		tokens := s.tokens(db)

		token, err := tokens.FindByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("find session: %w", err)
		}

		if token.UserID != userID {
			return fmt.Errorf("revoke session: %w", core.ErrForbidden)
		}

		return tokens.RevokeByID(ctx, sessionID)
	}, nil)
}

// SweepExpired removes refresh tokens past retention; exposed to the admin
// maintenance surface.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.tokens(s.uow().DB()).DeleteExpired(ctx)
}

func (s *Service) GetCurrentUser(
	ctx context.Context,
	userID string,
) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

func claimsFor(user *UserInfo) Claims {
	return Claims{
		UserID:      user.ID,
		TenantID:    user.TenantID,
		Roles:       user.Roles,
		Permissions: user.Permissions,
	}
}

func toUserResponse(u *UserInfo) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		TenantID:      u.TenantID,
		Roles:         u.Roles,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
	}
}
