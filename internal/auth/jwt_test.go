// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/authcore/internal/config"
	"github.com/carterperez-dev/authcore/internal/core"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Algorithm:          "HS256",
		Secret:             "0123456789abcdef0123456789abcdef",
		AccessTokenExpire:  15 * time.Minute,
		RefreshTokenExpire: 7 * 24 * time.Hour,
		Issuer:             "authcore-test",
		Audience:           "authcore-clients",
	}
}

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(testJWTConfig())
	require.NoError(t, err)
	return issuer
}

func testClaims() Claims {
	return Claims{
		UserID:      "user-1",
		TenantID:    "tenant-1",
		Roles:       []string{"user", "admin"},
		Permissions: []string{"profile:read"},
	}
}

func TestNewTokenIssuerRejectsUnknownAlgorithm(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Algorithm = "none"

	_, err := NewTokenIssuer(cfg)
	require.Error(t, err)
}

func TestGenerateTokenPair(t *testing.T) {
	issuer := newTestIssuer(t)

	pair, refreshData, err := issuer.GenerateTokenPair(testClaims(), "")
	require.NoError(t, err)

	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int(15*time.Minute/time.Second), pair.ExpiresIn)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	assert.Equal(t, core.HashToken(pair.RefreshToken), refreshData.Hash)
	assert.NotEmpty(t, refreshData.FamilyID, "empty family id starts a new family")
	assert.WithinDuration(
		t,
		time.Now().Add(7*24*time.Hour),
		refreshData.ExpiresAt,
		time.Minute,
	)
}

func TestCreateRefreshTokenContinuesFamily(t *testing.T) {
	issuer := newTestIssuer(t)

	data, err := issuer.CreateRefreshToken("family-42")
	require.NoError(t, err)
	assert.Equal(t, "family-42", data.FamilyID)
}

func TestVerifyAccessTokenRoundtrip(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.CreateAccessToken(testClaims())
	require.NoError(t, err)

	claims, err := issuer.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, []string{"user", "admin"}, claims.Roles)
	assert.Equal(t, []string{"profile:read"}, claims.Permissions)
	assert.NotEmpty(t, claims.JTI)
	assert.WithinDuration(
		t,
		time.Now().Add(15*time.Minute),
		claims.ExpiresAt,
		time.Minute,
	)
}

func TestVerifyAccessTokenUniqueJTI(t *testing.T) {
	issuer := newTestIssuer(t)

	t1, err := issuer.CreateAccessToken(testClaims())
	require.NoError(t, err)
	t2, err := issuer.CreateAccessToken(testClaims())
	require.NoError(t, err)

	c1 := issuer.DecodeToken(t1)
	c2 := issuer.DecodeToken(t2)
	require.NotNil(t, c1)
	require.NotNil(t, c2)
	assert.NotEqual(t, c1.JTI, c2.JTI)
}

func TestVerifyAccessTokenRejectsForgery(t *testing.T) {
	issuer := newTestIssuer(t)

	otherCfg := testJWTConfig()
	otherCfg.Secret = "ffffffffffffffffffffffffffffffff"
	otherIssuer, err := NewTokenIssuer(otherCfg)
	require.NoError(t, err)

	forged, err := otherIssuer.CreateAccessToken(testClaims())
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(context.Background(), forged)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestVerifyAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenExpire = -time.Minute
	issuer, err := NewTokenIssuer(cfg)
	require.NoError(t, err)

	token, err := issuer.CreateAccessToken(testClaims())
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(context.Background(), token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestDecodeTokenNilOnInvalidInput(t *testing.T) {
	issuer := newTestIssuer(t)

	for _, input := range []string{
		"",
		"not-a-jwt",
		"aaaa.bbbb.cccc",
		"eyJhbGciOiJIUzI1NiJ9.e30.",
	} {
		assert.Nil(t, issuer.DecodeToken(input), "input %q", input)
	}
}

func TestDecodeTokenRejectsWrongIssuerAudience(t *testing.T) {
	issuer := newTestIssuer(t)

	otherCfg := testJWTConfig()
	otherCfg.Issuer = "someone-else"
	other, err := NewTokenIssuer(otherCfg)
	require.NoError(t, err)

	token, err := other.CreateAccessToken(testClaims())
	require.NoError(t, err)

	assert.Nil(t, issuer.DecodeToken(token))
}

func TestJWKSHandlerHiddenForSymmetricKeys(t *testing.T) {
	issuer := newTestIssuer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()

	issuer.GetJWKSHandler()(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
