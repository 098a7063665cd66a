// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/authcore/internal/config"
	"github.com/carterperez-dev/authcore/internal/core"
	"github.com/carterperez-dev/authcore/internal/middleware"
)

// TokenIssuer generates and verifies access/refresh token pairs. Access
// tokens are signed JWTs (HS256, RS256 or ES256 per config); refresh tokens
// are opaque random strings hashed before storage.
type TokenIssuer struct {
	alg        jwa.SignatureAlgorithm
	signKey    jwk.Key
	verifyKey  jwk.Key
	publicJWKS jwk.Set
	config     config.JWTConfig
}

func NewTokenIssuer(cfg config.JWTConfig) (*TokenIssuer, error) {
	issuer := &TokenIssuer{config: cfg}

	switch cfg.Algorithm {
	case "HS256":
		issuer.alg = jwa.HS256()

		key, err := jwk.Import([]byte(cfg.Secret))
		if err != nil {
			return nil, fmt.Errorf("import symmetric key: %w", err)
		}
		if setErr := key.Set(jwk.AlgorithmKey, issuer.alg); setErr != nil {
			return nil, fmt.Errorf("set algorithm: %w", setErr)
		}

		issuer.signKey = key
		issuer.verifyKey = key

	case "RS256", "ES256":
		if cfg.Algorithm == "RS256" {
			issuer.alg = jwa.RS256()
		} else {
			issuer.alg = jwa.ES256()
		}

		privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}

		privateKey, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}

		if setErr := privateKey.Set(jwk.AlgorithmKey, issuer.alg); setErr != nil {
			return nil, fmt.Errorf("set algorithm: %w", setErr)
		}

		keyID := uuid.New().String()[:8]
		if setErr := privateKey.Set(jwk.KeyIDKey, keyID); setErr != nil {
			return nil, fmt.Errorf("set key id: %w", setErr)
		}

		publicKey, err := privateKey.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("derive public key: %w", err)
		}

		if setErr := publicKey.Set(jwk.KeyUsageKey, "sig"); setErr != nil {
			return nil, fmt.Errorf("set key usage: %w", setErr)
		}

		publicJWKS := jwk.NewSet()
		if addErr := publicJWKS.AddKey(publicKey); addErr != nil {
			return nil, fmt.Errorf("add key to set: %w", addErr)
		}

		issuer.signKey = privateKey
		issuer.verifyKey = publicKey
		issuer.publicJWKS = publicJWKS

	default:
		return nil, fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
	}

	return issuer, nil
}

// GenerateKeyPair writes a fresh ES256 keypair in PEM form, for development
// bootstrap.
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	jwkPrivate, err := jwk.Import(privateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	keyID := uuid.New().String()[:8]
	if setErr := jwkPrivate.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return fmt.Errorf("set key id: %w", setErr)
	}
	if setErr := jwkPrivate.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return fmt.Errorf("set algorithm: %w", setErr)
	}

	privatePEM, err := jwk.Pem(jwkPrivate)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return fmt.Errorf("write private key: %w", writeErr)
	}

	jwkPublic, err := jwkPrivate.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	publicPEM, err := jwk.Pem(jwkPublic)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	//nolint:gosec // G306: public key is intentionally world-readable
	if writeErr := os.WriteFile(publicKeyPath, publicPEM, 0o644); writeErr != nil {
		return fmt.Errorf("write public key: %w", writeErr)
	}

	return nil
}

// Claims is the payload carried by an access token.
type Claims struct {
	UserID      string
	TenantID    string
	Roles       []string
	Permissions []string
}

// TokenPair is the stable response shape handed to callers.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshTokenData is the freshly minted refresh token before persistence:
// the opaque string for the caller, its hash for storage.
type RefreshTokenData struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
	FamilyID  string
}

func (i *TokenIssuer) CreateAccessToken(claims Claims) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Issuer(i.config.Issuer).
		Audience([]string{i.config.Audience}).
		Subject(claims.UserID).
		IssuedAt(now).
		Expiration(now.Add(i.config.AccessTokenExpire)).
		NotBefore(now).
		Claim("tenant_id", claims.TenantID).
		Claim("roles", claims.Roles).
		Claim("permissions", claims.Permissions).
		Claim("type", "access").
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(i.alg, i.signKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return string(signed), nil
}

// CreateRefreshToken mints an opaque refresh token. An empty familyID
// starts a new family; login is the only caller that does so. Rotation
// passes the existing familyID to continue the chain.
func (i *TokenIssuer) CreateRefreshToken(familyID string) (*RefreshTokenData, error) {
	token, err := core.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if familyID == "" {
		familyID = uuid.New().String()
	}

	return &RefreshTokenData{
		Token:     token,
		Hash:      core.HashToken(token),
		ExpiresAt: i.RefreshTokenExpiry(),
		FamilyID:  familyID,
	}, nil
}

// GenerateTokenPair builds the signed access token and a fresh refresh
// token in one step.
func (i *TokenIssuer) GenerateTokenPair(
	claims Claims,
	familyID string,
) (*TokenPair, *RefreshTokenData, error) {
	accessToken, err := i.CreateAccessToken(claims)
	if err != nil {
		return nil, nil, fmt.Errorf("create access token: %w", err)
	}

	refreshData, err := i.CreateRefreshToken(familyID)
	if err != nil {
		return nil, nil, fmt.Errorf("create refresh token: %w", err)
	}

	pair := &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshData.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(i.config.AccessTokenExpire / time.Second),
	}

	return pair, refreshData, nil
}

// RefreshTokenExpiry derives the absolute expiry for a refresh token minted
// now.
func (i *TokenIssuer) RefreshTokenExpiry() time.Time {
	return time.Now().Add(i.config.RefreshTokenExpire)
}

// DecodeToken verifies the signature and standard claims and returns the
// decoded access token claims, or nil for any malformed, forged or expired
// input. It never fails with an error on bad input.
func (i *TokenIssuer) DecodeToken(tokenString string) *middleware.AccessTokenClaims {
	claims, err := i.VerifyAccessToken(context.Background(), tokenString)
	if err != nil {
		return nil
	}
	return claims
}

func (i *TokenIssuer) VerifyAccessToken(
	ctx context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(i.alg, i.verifyKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithAudience(i.config.Audience),
	)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil ||
		tokenType != "access" {
		return nil, fmt.Errorf(
			"verify token: invalid token type: %w",
			core.ErrTokenInvalid,
		)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	jti, ok := token.JwtID()
	if !ok || jti == "" {
		return nil, fmt.Errorf(
			"verify token: missing jti: %w",
			core.ErrTokenInvalid,
		)
	}

	expiration, ok := token.Expiration()
	if !ok {
		return nil, fmt.Errorf(
			"verify token: missing expiration: %w",
			core.ErrTokenInvalid,
		)
	}

	var tenantID string
	if err := token.Get("tenant_id", &tenantID); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing tenant_id claim: %w",
			core.ErrTokenInvalid,
		)
	}

	roles, err := stringSliceClaim(token, "roles")
	if err != nil {
		return nil, fmt.Errorf(
			"verify token: missing roles claim: %w",
			core.ErrTokenInvalid,
		)
	}

	permissions, err := stringSliceClaim(token, "permissions")
	if err != nil {
		return nil, fmt.Errorf(
			"verify token: missing permissions claim: %w",
			core.ErrTokenInvalid,
		)
	}

	return &middleware.AccessTokenClaims{
		UserID:      subject,
		TenantID:    tenantID,
		Roles:       roles,
		Permissions: permissions,
		JTI:         jti,
		ExpiresAt:   expiration,
	}, nil
}

// stringSliceClaim tolerates both []string (builder-set) and []any
// (JSON-decoded) representations of a string array claim.
func stringSliceClaim(token jwt.Token, name string) ([]string, error) {
	var direct []string
	if err := token.Get(name, &direct); err == nil {
		return direct, nil
	}

	var raw []any
	if err := token.Get(name, &raw); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("claim %s: non-string element", name)
		}
		out = append(out, s)
	}
	return out, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}

// GetJWKSHandler serves the public key set for asymmetric algorithms; for
// HS256 there is nothing to publish.
func (i *TokenIssuer) GetJWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if i.publicJWKS == nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if err := json.NewEncoder(w).Encode(i.publicJWKS); err != nil {
			http.Error(
				w,
				"Internal Server Error",
				http.StatusInternalServerError,
			)
			return
		}
	}
}

func (i *TokenIssuer) GetKeyID() string {
	var kid string
	//nolint:errcheck // key ID is only set for asymmetric keys
	_ = i.signKey.Get(jwk.KeyIDKey, &kid)
	return kid
}
