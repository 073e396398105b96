package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/util"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrTokenWrongKind = errors.New("token is of the wrong kind")
	ErrTokenMissing   = errors.New("token is missing")
	ErrInvalidPayload = errors.New("invalid token payload")
)

// TokenService signs, verifies and decodes claims for the two token kinds.
// It is pure and stateless; revocation is the caller's concern.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

func NewTokenService(cfg *util.TokenConfig) *TokenService {
	return &TokenService{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (ts *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

type TokenClaims struct {
	Email string           `json:"email"`
	Role  string           `json:"role,omitempty"`
	Kind  models.TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

func (c *TokenClaims) UserID() string { return c.Subject }

// TokenID returns the unique id embedded in refresh tokens. Empty for
// access tokens.
func (c *TokenClaims) TokenID() string { return c.ID }

func (ts *TokenService) AccessTTL() time.Duration  { return ts.accessTTL }
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

// IssueAccessToken creates a HS512 signed access token for the user.
func (ts *TokenService) IssueAccessToken(user models.User) (string, error) {
	return ts.issue(user, models.TokenKindAccess, "")
}

// IssueRefreshToken creates a HS512 signed refresh token carrying a fresh
// unique token id, returned alongside the signed string so the session
// record can be correlated without re-parsing.
func (ts *TokenService) IssueRefreshToken(user models.User) (token, tokenID string, err error) {
	tokenID = uuid.NewString()
	token, err = ts.issue(user, models.TokenKindRefresh, tokenID)
	if err != nil {
		return "", "", err
	}
	return token, tokenID, nil
}

func (ts *TokenService) issue(user models.User, kind models.TokenKind, tokenID string) (string, error) {
	if user.ID == "" || user.Email == "" {
		return "", ErrInvalidPayload
	}

	now := ts.now()
	ttl := ts.accessTTL
	secret := ts.accessSecret
	if kind == models.TokenKindRefresh {
		ttl = ts.refreshTTL
		secret = ts.refreshSecret
	}

	claims := &TokenClaims{
		Email: user.Email,
		Role:  user.Role,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   user.ID,
			Issuer:    ts.issuer,
			Audience:  jwt.ClaimStrings{ts.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signed string: %w", err)
	}

	return signedToken, nil
}

// Verify decodes the token and checks signature, expiry, issuer, audience
// and kind against the expectation. Each failure maps to a distinct error.
func (ts *TokenService) Verify(token string, expectedKind models.TokenKind) (*TokenClaims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	secret := ts.accessSecret
	if expectedKind == models.TokenKindRefresh {
		secret = ts.refreshSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(util.JWTLeeWay),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.audience),
		jwt.WithTimeFunc(ts.now),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&TokenClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		// A signature failure may simply be the other kind's secret;
		// peek at the unverified claims so the caller learns which.
		if unverified, decodeErr := ts.ClaimsFromToken(token); decodeErr == nil &&
			unverified.Kind != "" && unverified.Kind != expectedKind {
			return nil, ErrTokenWrongKind
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	if parsedToken == nil || !parsedToken.Valid {
		return nil, ErrTokenMalformed
	}

	claims, ok := parsedToken.Claims.(*TokenClaims)
	if !ok || claims.Subject == "" || claims.Email == "" {
		return nil, ErrInvalidPayload
	}

	if claims.Kind != expectedKind {
		return nil, ErrTokenWrongKind
	}
	if expectedKind == models.TokenKindRefresh && claims.ID == "" {
		return nil, ErrInvalidPayload
	}

	return claims, nil
}

// ClaimsFromToken decodes claims without verifying the signature. Used to
// read the expiry of tokens being blacklisted, which may already be stale.
func (ts *TokenService) ClaimsFromToken(token string) (*TokenClaims, error) {
	parsedToken, _, err := new(jwt.Parser).ParseUnverified(token, &TokenClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	claims, ok := parsedToken.Claims.(*TokenClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
