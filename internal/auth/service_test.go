// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/authcore/internal/cache"
	"github.com/carterperez-dev/authcore/internal/config"
	"github.com/carterperez-dev/authcore/internal/core"
	"github.com/carterperez-dev/authcore/internal/event"
	"github.com/carterperez-dev/authcore/internal/uow"
)

// noopTx satisfies uow.Tx; the in-memory fakes below ignore the handle, so
// the transaction itself carries no state.
type noopTx struct{}

func (noopTx) DriverName() string         { return "fake" }
func (noopTx) Rebind(query string) string { return query }
func (noopTx) BindNamed(query string, arg interface{}) (string, []interface{}, error) {
	return query, nil, nil
}

func (noopTx) QueryContext(
	_ context.Context, _ string, _ ...interface{},
) (*sql.Rows, error) {
	return nil, nil
}

func (noopTx) QueryxContext(
	_ context.Context, _ string, _ ...interface{},
) (*sqlx.Rows, error) {
	return nil, nil
}

func (noopTx) QueryRowxContext(
	_ context.Context, _ string, _ ...interface{},
) *sqlx.Row {
	return nil
}

func (noopTx) ExecContext(
	_ context.Context, _ string, _ ...interface{},
) (sql.Result, error) {
	return nil, nil
}

func (noopTx) GetContext(_ context.Context, _ any, _ string, _ ...any) error {
	return nil
}

func (noopTx) SelectContext(_ context.Context, _ any, _ string, _ ...any) error {
	return nil
}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

type noopBeginner struct{}

func (noopBeginner) BeginTx(
	_ context.Context, _ *sql.TxOptions,
) (uow.Tx, error) {
	return noopTx{}, nil
}

type recordingBus struct {
	events []event.Event
}

func (b *recordingBus) PublishAll(_ context.Context, events []event.Event) {
	b.events = append(b.events, events...)
}

func (b *recordingBus) named(name string) []event.Event {
	var out []event.Event
	for _, e := range b.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

// memTokenRepo is an in-memory Repository with the same consume-once
// semantics as the Postgres adapter.
type memTokenRepo struct {
	records   map[string]*RefreshToken
	failClaim bool
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{records: make(map[string]*RefreshToken)}
}

func (r *memTokenRepo) Create(_ context.Context, token *RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	cp := *token
	r.records[token.ID] = &cp
	return nil
}

func (r *memTokenRepo) FindByHash(
	_ context.Context, tokenHash string,
) (*RefreshToken, error) {
	for _, rec := range r.records {
		if rec.TokenHash == tokenHash {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find token: %w", core.ErrNotFound)
}

func (r *memTokenRepo) FindByID(
	_ context.Context, id string,
) (*RefreshToken, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("find token: %w", core.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (r *memTokenRepo) Consume(
	_ context.Context, id, replacedByID string,
) (bool, error) {
	if r.failClaim {
		return false, nil
	}
	rec, ok := r.records[id]
	if !ok || rec.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	rec.RevokedAt = &now
	rec.ReplacedByID = &replacedByID
	return true, nil
}

func (r *memTokenRepo) RevokeByID(_ context.Context, id string) error {
	rec, ok := r.records[id]
	if !ok || rec.RevokedAt != nil {
		return nil
	}
	now := time.Now()
	rec.RevokedAt = &now
	return nil
}

func (r *memTokenRepo) RevokeFamily(_ context.Context, familyID string) error {
	now := time.Now()
	for _, rec := range r.records {
		if rec.FamilyID == familyID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
		}
	}
	return nil
}

func (r *memTokenRepo) RevokeAllForUser(
	_ context.Context, userID string,
) error {
	now := time.Now()
	for _, rec := range r.records {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
		}
	}
	return nil
}

func (r *memTokenRepo) ActiveForUser(
	_ context.Context, userID string,
) ([]RefreshToken, error) {
	var out []RefreshToken
	for _, rec := range r.records {
		if rec.UserID == userID && rec.IsValid() {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memTokenRepo) DeleteExpired(_ context.Context) (int64, error) {
	cutoff := time.Now().Add(-24 * time.Hour)
	var n int64
	for id, rec := range r.records {
		if rec.ExpiresAt.Before(cutoff) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	byID map[string]*UserInfo
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*UserInfo)}
}

func (u *memUsers) add(user *UserInfo) {
	u.byID[user.ID] = user
}

func (u *memUsers) GetByID(_ context.Context, id string) (*UserInfo, error) {
	user, ok := u.byID[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	cp := *user
	return &cp, nil
}

func (u *memUsers) GetByEmail(
	_ context.Context, email, tenantID string,
) (*UserInfo, error) {
	for _, user := range u.byID {
		if user.Email == email && user.TenantID == tenantID {
			cp := *user
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (u *memUsers) Create(
	_ context.Context, params CreateUserParams,
) (*UserInfo, error) {
	for _, user := range u.byID {
		if user.Email == params.Email && user.TenantID == params.TenantID {
			return nil, fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
	}
	user := &UserInfo{
		ID:           uuid.New().String(),
		TenantID:     params.TenantID,
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		Roles:        []string{"user"},
		Status:       StatusPending,
	}
	u.byID[user.ID] = user
	cp := *user
	return &cp, nil
}

func (u *memUsers) UpdatePassword(
	_ context.Context, userID, passwordHash string,
) error {
	user, ok := u.byID[userID]
	if !ok {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}
	user.PasswordHash = passwordHash
	return nil
}

func (u *memUsers) MarkEmailVerified(_ context.Context, userID string) error {
	user, ok := u.byID[userID]
	if !ok {
		return fmt.Errorf("mark verified: %w", core.ErrNotFound)
	}
	user.EmailVerified = true
	if user.Status == StatusPending {
		user.Status = StatusActive
	}
	return nil
}

func (u *memUsers) WithDB(core.DBTX) UserProvider { return u }

type memCache struct {
	values map[string]string
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]string)}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(
	_ context.Context, key, value string, _ time.Duration,
) error {
	c.values[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	delete(c.values, key)
	return nil
}

type serviceFixture struct {
	svc    *Service
	repo   *memTokenRepo
	users  *memUsers
	cache  *memCache
	bus    *recordingBus
	issuer *TokenIssuer
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	issuer := newTestIssuer(t)
	repo := newMemTokenRepo()
	users := newMemUsers()
	bus := &recordingBus{}
	c := newMemCache()

	factory := func() *uow.UnitOfWork {
		return uow.New(noopTx{}, noopBeginner{}, bus)
	}

	svc := &Service{
		uow:     factory,
		users:   users,
		issuer:  issuer,
		rotator: NewRotator(issuer),
		cache:   c,
		bus:     bus,
		tokens:  func(core.DBTX) Repository { return repo },
		cfg: config.AuthConfig{
			ResetTokenTTL:        time.Hour,
			VerificationTokenTTL: 24 * time.Hour,
			DefaultTenant:        "default",
		},
		logger: slog.Default(),
	}

	return &serviceFixture{
		svc:    svc,
		repo:   repo,
		users:  users,
		cache:  c,
		bus:    bus,
		issuer: issuer,
	}
}

const testPassword = "Correct-Horse1"

func (f *serviceFixture) seedUser(t *testing.T, status string) *UserInfo {
	t.Helper()

	hash, err := core.HashPassword(testPassword)
	require.NoError(t, err)

	user := &UserInfo{
		ID:           uuid.New().String(),
		TenantID:     "default",
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: hash,
		Roles:        []string{"user"},
		Status:       status,
	}
	f.users.add(user)
	return user
}

func (f *serviceFixture) login(t *testing.T) *AuthResponse {
	t.Helper()

	resp, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: testPassword,
		TenantID: "default",
	}, ClientMeta{UserAgent: "test-agent", IPAddress: "203.0.113.7"})
	require.NoError(t, err)
	return resp
}

func (f *serviceFixture) recordForRefreshToken(
	t *testing.T,
	refreshToken string,
) *RefreshToken {
	t.Helper()

	rec, err := f.repo.FindByHash(
		context.Background(),
		core.HashToken(refreshToken),
	)
	require.NoError(t, err)
	return rec
}

func TestLoginIssuesNewFamily(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)

	resp := f.login(t)

	assert.Equal(t, user.ID, resp.User.ID)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	rec := f.recordForRefreshToken(t, resp.Tokens.RefreshToken)
	assert.Equal(t, TokenStateActive, rec.State())
	assert.NotEmpty(t, rec.FamilyID)
	assert.Equal(t, "test-agent", rec.UserAgent)

	logins := f.bus.named(event.UserLoggedInName)
	require.Len(t, logins, 1)
	assert.Equal(t, user.ID, logins[0].(event.UserLoggedIn).UserID)
}

func TestLoginEachSessionGetsOwnFamily(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusActive)

	first := f.login(t)
	second := f.login(t)

	recA := f.recordForRefreshToken(t, first.Tokens.RefreshToken)
	recB := f.recordForRefreshToken(t, second.Tokens.RefreshToken)
	assert.NotEqual(t, recA.FamilyID, recB.FamilyID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusActive)

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "Wrong-Password9",
		TenantID: "default",
	}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: testPassword,
		TenantID: "default",
	}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Empty(t, f.bus.events)
	assert.Empty(t, f.repo.records)
}

func TestLoginRejectsSuspendedUser(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusSuspended)

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: testPassword,
		TenantID: "default",
	}, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)

	login := f.login(t)
	oldRec := f.recordForRefreshToken(t, login.Tokens.RefreshToken)

	resp, err := f.svc.Refresh(
		context.Background(),
		login.Tokens.RefreshToken,
		ClientMeta{},
	)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.NotEqual(
		t,
		login.Tokens.RefreshToken,
		resp.Tokens.RefreshToken,
	)

	rotated, err := f.repo.FindByID(context.Background(), oldRec.ID)
	require.NoError(t, err)
	assert.Equal(t, TokenStateRotated, rotated.State())
	require.NotNil(t, rotated.ReplacedByID)

	newRec := f.recordForRefreshToken(t, resp.Tokens.RefreshToken)
	assert.Equal(t, *rotated.ReplacedByID, newRec.ID)
	assert.Equal(t, oldRec.FamilyID, newRec.FamilyID,
		"rotation continues the family")
	assert.Equal(t, TokenStateActive, newRec.State())

	refreshed := f.bus.named(event.TokenRefreshedName)
	require.Len(t, refreshed, 1)
	e := refreshed[0].(event.TokenRefreshed)
	assert.Equal(t, oldRec.ID, e.OldTokenID)
	assert.Equal(t, newRec.ID, e.NewTokenID)
}

func TestRefreshReuseCascadesWholeFamily(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusActive)

	login := f.login(t)
	rotatedOnce, err := f.svc.Refresh(
		context.Background(),
		login.Tokens.RefreshToken,
		ClientMeta{},
	)
	require.NoError(t, err)

	// Replay of the already-consumed token: the theft signal.
	_, err = f.svc.Refresh(
		context.Background(),
		login.Tokens.RefreshToken,
		ClientMeta{IPAddress: "198.51.100.99"},
	)
	assert.ErrorIs(t, err, ErrTokenReuse)

	// The live head of the family must fall with it.
	head := f.recordForRefreshToken(t, rotatedOnce.Tokens.RefreshToken)
	assert.Equal(t, TokenStateRevoked, head.State())

	reuse := f.bus.named(event.TokenReuseDetectedName)
	require.Len(t, reuse, 1)
	assert.Equal(t, head.FamilyID, reuse[0].(event.TokenReuseDetected).FamilyID)

	// Only the successful rotation published a refresh event.
	assert.Len(t, f.bus.named(event.TokenRefreshedName), 1)

	// The replayed family stays dead.
	_, err = f.svc.Refresh(
		context.Background(),
		rotatedOnce.Tokens.RefreshToken,
		ClientMeta{},
	)
	assert.ErrorIs(t, err, ErrTokenReuse)
}

func TestRefreshUnknownToken(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusActive)

	_, err := f.svc.Refresh(context.Background(), "never-issued", ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Empty(t, f.bus.events)
}

func TestRefreshExpiredTokenDoesNotCascade(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)

	familyID := uuid.New().String()
	expired := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: core.HashToken("expired-token"),
		FamilyID:  familyID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	sibling := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: core.HashToken("sibling-token"),
		FamilyID:  familyID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, f.repo.Create(context.Background(), expired))
	require.NoError(t, f.repo.Create(context.Background(), sibling))

	_, err := f.svc.Refresh(context.Background(), "expired-token", ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.NotErrorIs(t, err, ErrTokenReuse)

	kept, err := f.repo.FindByID(context.Background(), sibling.ID)
	require.NoError(t, err)
	assert.Equal(t, TokenStateActive, kept.State(),
		"expiry is not a theft signal; the family survives")
	assert.Empty(t, f.bus.named(event.TokenReuseDetectedName))
}

func TestRefreshInactiveOwnerRevokesPresentedToken(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)

	login := f.login(t)
	f.users.byID[user.ID].Status = StatusInactive

	_, err := f.svc.Refresh(
		context.Background(),
		login.Tokens.RefreshToken,
		ClientMeta{},
	)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	rec := f.recordForRefreshToken(t, login.Tokens.RefreshToken)
	assert.Equal(t, TokenStateRevoked, rec.State())
	assert.Nil(t, rec.ReplacedByID)
}

func TestConcurrentRotationLoserReportedAsReuse(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusActive)

	login := f.login(t)
	f.repo.failClaim = true

	_, err := f.svc.Refresh(
		context.Background(),
		login.Tokens.RefreshToken,
		ClientMeta{},
	)
	assert.ErrorIs(t, err, ErrTokenReuse)
	assert.Len(t, f.bus.named(event.TokenReuseDetectedName), 1)
}

func TestLogoutRevokesSingleSession(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusActive)

	first := f.login(t)
	second := f.login(t)

	claims, err := f.svc.VerifyAccessToken(
		context.Background(),
		first.Tokens.AccessToken,
	)
	require.NoError(t, err)

	err = f.svc.Logout(
		context.Background(),
		claims,
		first.Tokens.RefreshToken,
		false,
	)
	require.NoError(t, err)

	revoked := f.recordForRefreshToken(t, first.Tokens.RefreshToken)
	assert.Equal(t, TokenStateRevoked, revoked.State())
	assert.Nil(t, revoked.ReplacedByID, "logout is not a rotation")

	alive := f.recordForRefreshToken(t, second.Tokens.RefreshToken)
	assert.Equal(t, TokenStateActive, alive.State())

	// The access token's jti is now blacklisted.
	_, err = f.svc.VerifyAccessToken(
		context.Background(),
		first.Tokens.AccessToken,
	)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)

	// But the other session's access token still verifies.
	_, err = f.svc.VerifyAccessToken(
		context.Background(),
		second.Tokens.AccessToken,
	)
	assert.NoError(t, err)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)

	f.login(t)
	f.login(t)
	third := f.login(t)

	claims, err := f.svc.VerifyAccessToken(
		context.Background(),
		third.Tokens.AccessToken,
	)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), claims, "", true))

	active, err := f.repo.ActiveForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	logouts := f.bus.named(event.UserLoggedOutName)
	require.Len(t, logouts, 1)
	assert.True(t, logouts[0].(event.UserLoggedOut).All)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusActive)

	login := f.login(t)

	claims, err := f.svc.VerifyAccessToken(
		context.Background(),
		login.Tokens.AccessToken,
	)
	require.NoError(t, err)
	claims.UserID = "someone-else"

	err = f.svc.Logout(
		context.Background(),
		claims,
		login.Tokens.RefreshToken,
		false,
	)
	assert.ErrorIs(t, err, core.ErrForbidden)

	rec := f.recordForRefreshToken(t, login.Tokens.RefreshToken)
	assert.Equal(t, TokenStateActive, rec.State())
}

func TestRegisterCreatesPendingUserAndSession(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:    "bob@example.com",
		Password: testPassword,
		Name:     "Bob",
		TenantID: "default",
	}, ClientMeta{})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, resp.User.Status)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	registered := f.bus.named(event.UserRegisteredName)
	require.Len(t, registered, 1)
	e := registered[0].(event.UserRegistered)
	assert.Equal(t, "bob@example.com", e.Email)
	assert.NotEmpty(t, e.VerificationToken)

	// The verification token round-trips through the cache.
	userID, err := f.cache.Get(
		context.Background(),
		verifyKeyPrefix+e.VerificationToken,
	)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, userID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, StatusActive)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Password: testPassword,
		Name:     "Impostor",
		TenantID: "default",
	}, ClientMeta{})
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.Empty(t, f.bus.named(event.UserRegisteredName),
		"no event for a rolled-back registration")
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:    "bob@example.com",
		Password: "alllowercase1!",
		Name:     "Bob",
		TenantID: "default",
	}, ClientMeta{})
	assert.ErrorIs(t, err, core.ErrWeakPassword)
}

func TestVerifyEmailActivatesPendingUser(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusPending)

	require.NoError(t, f.cache.Set(
		context.Background(),
		verifyKeyPrefix+"verify-tok",
		user.ID,
		time.Hour,
	))

	require.NoError(t, f.svc.VerifyEmail(context.Background(), "verify-tok"))

	stored := f.users.byID[user.ID]
	assert.True(t, stored.EmailVerified)
	assert.Equal(t, StatusActive, stored.Status)
	assert.Len(t, f.bus.named(event.UserEmailVerifiedName), 1)

	// Single use.
	err := f.svc.VerifyEmail(context.Background(), "verify-tok")
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)
	f.login(t)

	err := f.svc.ChangePassword(
		context.Background(),
		user.ID,
		testPassword,
		"Brand-New-Pass2",
		true,
	)
	require.NoError(t, err)

	assert.True(
		t,
		core.PasswordFromHash(f.users.byID[user.ID].PasswordHash).
			Verify("Brand-New-Pass2"),
	)

	active, err := f.repo.ActiveForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, active, "revoke_sessions kills every live token")

	changed := f.bus.named(event.UserPasswordChangedName)
	require.Len(t, changed, 1)
	assert.True(t, changed[0].(event.UserPasswordChanged).SessionsRevoked)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)

	err := f.svc.ChangePassword(
		context.Background(),
		user.ID,
		"Wrong-Current9",
		"Brand-New-Pass2",
		false,
	)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)
	f.login(t)

	err := f.svc.RequestPasswordReset(
		context.Background(),
		"alice@example.com",
		"default",
	)
	require.NoError(t, err)

	requested := f.bus.named(event.PasswordResetRequestedName)
	require.Len(t, requested, 1)
	token := requested[0].(event.PasswordResetRequested).ResetToken
	require.NotEmpty(t, token)

	err = f.svc.ResetPassword(context.Background(), token, "Brand-New-Pass2")
	require.NoError(t, err)

	assert.True(
		t,
		core.PasswordFromHash(f.users.byID[user.ID].PasswordHash).
			Verify("Brand-New-Pass2"),
	)

	active, err := f.repo.ActiveForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, active, "a reset revokes every session")

	// Single use.
	err = f.svc.ResetPassword(context.Background(), token, "Another-Pass3")
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.RequestPasswordReset(
		context.Background(),
		"nobody@example.com",
		"default",
	)
	assert.NoError(t, err, "no account enumeration")
	assert.Empty(t, f.bus.events)
}

func TestSessionListingAndTargetedRevocation(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)

	first := f.login(t)
	f.login(t)

	sessions, err := f.svc.GetActiveSessions(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	target := f.recordForRefreshToken(t, first.Tokens.RefreshToken)

	err = f.svc.RevokeSession(context.Background(), "intruder", target.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)

	require.NoError(
		t,
		f.svc.RevokeSession(context.Background(), user.ID, target.ID),
	)

	sessions, err = f.svc.GetActiveSessions(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSweepExpired(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, StatusActive)

	stale := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: core.HashToken("stale"),
		FamilyID:  uuid.New().String(),
		ExpiresAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, f.repo.Create(context.Background(), stale))
	f.login(t)

	deleted, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Len(t, f.repo.records, 1, "live tokens survive the sweep")
}
