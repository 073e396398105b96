package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/util"
)

func testTokenConfig() *util.TokenConfig {
	return &util.TokenConfig{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "tokenguard-test",
		Audience:      "tokenguard-test-clients",
	}
}

func testUser() models.User {
	return models.User{
		ID:    "5b2d9c40-3f8e-4d0a-9c56-0d7e9f3a1b22",
		Email: "alice@example.com",
		Role:  "user",
	}
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	ts := NewTokenService(testTokenConfig())

	token, err := ts.IssueAccessToken(testUser())
	require.NoError(t, err)

	claims, err := ts.Verify(token, models.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, testUser().ID, claims.UserID())
	assert.Equal(t, testUser().Email, claims.Email)
	assert.Equal(t, models.TokenKindAccess, claims.Kind)
	assert.Empty(t, claims.TokenID())
}

func TestIssueRefreshTokenCarriesUniqueID(t *testing.T) {
	ts := NewTokenService(testTokenConfig())

	token1, id1, err := ts.IssueRefreshToken(testUser())
	require.NoError(t, err)
	token2, id2, err := ts.IssueRefreshToken(testUser())
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, token1, token2)

	claims, err := ts.Verify(token1, models.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, id1, claims.TokenID())
}

func TestIssueRequiresSubjectAndEmail(t *testing.T) {
	ts := NewTokenService(testTokenConfig())

	_, err := ts.IssueAccessToken(models.User{ID: "id-only"})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, _, err = ts.IssueRefreshToken(models.User{Email: "mail-only@example.com"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestVerifyExpiredToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := NewTokenService(testTokenConfig()).WithClock(func() time.Time { return now })

	token, err := ts.IssueAccessToken(testUser())
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	_, err = ts.Verify(token, models.TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongKind(t *testing.T) {
	ts := NewTokenService(testTokenConfig())

	refreshToken, _, err := ts.IssueRefreshToken(testUser())
	require.NoError(t, err)

	_, err = ts.Verify(refreshToken, models.TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenWrongKind)

	accessToken, err := ts.IssueAccessToken(testUser())
	require.NoError(t, err)

	_, err = ts.Verify(accessToken, models.TokenKindRefresh)
	assert.ErrorIs(t, err, ErrTokenWrongKind)
}

func TestVerifyMalformedAndMissing(t *testing.T) {
	ts := NewTokenService(testTokenConfig())

	_, err := ts.Verify("not.a.token", models.TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = ts.Verify("", models.TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	ts := NewTokenService(testTokenConfig())

	otherCfg := testTokenConfig()
	otherCfg.Issuer = "someone-else"
	other := NewTokenService(otherCfg)

	token, err := other.IssueAccessToken(testUser())
	require.NoError(t, err)

	_, err = ts.Verify(token, models.TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestClaimsFromTokenReadsExpiredTokens(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := NewTokenService(testTokenConfig()).WithClock(func() time.Time { return now })

	token, tokenID, err := ts.IssueRefreshToken(testUser())
	require.NoError(t, err)

	now = now.Add(30 * 24 * time.Hour)
	claims, err := ts.ClaimsFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, tokenID, claims.TokenID())
	assert.Equal(t, testUser().ID, claims.UserID())
}
