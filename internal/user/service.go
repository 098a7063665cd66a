// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carterperez-dev/authcore/internal/auth"
	"github.com/carterperez-dev/authcore/internal/core"
)

// Service adapts the user aggregate to the auth package's UserProvider
// port. It is constructed over a DBTX so WithDB can rebind the whole
// service to a transaction handle.
type Service struct {
	db core.DBTX
}

func NewService(db core.DBTX) *Service {
	return &Service{db: db}
}

func (s *Service) repo() Repository {
	return NewRepository(s.db)
}

// WithDB returns a copy bound to the given handle. Writes made through
// the copy join the caller's transaction.
func (s *Service) WithDB(db core.DBTX) auth.UserProvider {
	return &Service{db: db}
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	user, err := s.repo().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email, tenantID string,
) (*auth.UserInfo, error) {
	user, err := s.repo().GetByEmail(ctx, strings.ToLower(email), tenantID)
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) Create(
	ctx context.Context,
	params auth.CreateUserParams,
) (*auth.UserInfo, error) {
	user := &User{
		ID:           uuid.New().String(),
		TenantID:     params.TenantID,
		Email:        strings.ToLower(params.Email),
		PasswordHash: params.PasswordHash,
		Name:         params.Name,
		Roles:        Roles{RoleUser},
		Status:       auth.StatusPending,
	}

	if err := s.repo().Create(ctx, user); err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID, passwordHash string,
) error {
	return s.repo().UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.repo().MarkEmailVerified(ctx, userID)
}

func (s *Service) Suspend(ctx context.Context, userID string) error {
	return s.repo().SetStatus(ctx, userID, auth.StatusSuspended)
}

func (s *Service) Reactivate(ctx context.Context, userID string) error {
	user, err := s.repo().GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Status != auth.StatusSuspended {
		return fmt.Errorf(
			"reactivate user: status is %q: %w",
			user.Status,
			core.ErrInvalidInput,
		)
	}

	return s.repo().SetStatus(ctx, userID, auth.StatusActive)
}

func (s *Service) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.repo().CountByStatus(ctx)
}

func toUserInfo(u *User) *auth.UserInfo {
	roles := []string(u.Roles)
	return &auth.UserInfo{
		ID:            u.ID,
		TenantID:      u.TenantID,
		Email:         u.Email,
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		Roles:         roles,
		Permissions:   PermissionsFor(roles),
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
	}
}

var _ auth.UserProvider = (*Service)(nil)
