package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/controller"
	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/service"
	"github.com/vkazarin/tokenguard/internal/storage/memory"
	"github.com/vkazarin/tokenguard/internal/util"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()

	log := zap.NewNop().Sugar()

	tokens := service.NewTokenService(&util.TokenConfig{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "tokenguard-test",
		Audience:      "tokenguard-test-clients",
	})
	blacklist := service.NewBlacklistService(&util.BlacklistConfig{
		SweepInterval: time.Minute,
		RedisTimeout:  time.Second,
	}, nil, log)
	t.Cleanup(blacklist.Shutdown)

	throttle := service.NewThrottleService(&util.ThrottleConfig{
		MaxAttempts:     5,
		LockoutDuration: 15 * time.Minute,
	}, nil, log)
	activity := service.NewActivityService(nil, log)

	auth := service.NewAuthService(tokens, memory.NewStorage(), blacklist, throttle, activity, log)
	c := controller.NewController(log, auth)

	a := NewAPI(c, auth, &util.ServerConfig{}, log, nil)
	a.registerRoutes()
	return a
}

func doJSON(t *testing.T, a *API, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

func registerAlice(t *testing.T, a *API) models.TokenPair {
	t.Helper()

	rec := doJSON(t, a, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Tokens models.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Tokens
}

func decodeReason(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["reason"]
}

func TestPing(t *testing.T) {
	a := newTestAPI(t)

	rec := doJSON(t, a, http.MethodGet, "/api/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterConflict(t *testing.T) {
	a := newTestAPI(t)
	registerAlice(t, a)

	rec := doJSON(t, a, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "other-pass",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user already exists", decodeReason(t, rec))
}

func TestRegisterValidation(t *testing.T) {
	a := newTestAPI(t)

	rec := doJSON(t, a, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email: "alice@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	a := newTestAPI(t)
	registerAlice(t, a)

	rec := doJSON(t, a, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Identity: "alice",
		Password: "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeReason(t, rec))
}

func TestLoginThrottled(t *testing.T) {
	a := newTestAPI(t)
	registerAlice(t, a)

	for i := 0; i < 5; i++ {
		rec := doJSON(t, a, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
			Identity: "alice",
			Password: "wrong-pass",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := doJSON(t, a, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Identity: "alice",
		Password: "s3cret-pass",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRefreshFlowOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	registerAlice(t, a)

	rec := doJSON(t, a, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Identity: "alice",
		Password: "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var pair models.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))

	rec = doJSON(t, a, http.MethodPost, "/api/auth/refresh", "", models.TokenRefreshRequest{
		RefreshToken: pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Replaying the consumed token must yield the uniform rejection, with
	// no hint of which check failed.
	rec = doJSON(t, a, http.MethodPost, "/api/auth/refresh", "", models.TokenRefreshRequest{
		RefreshToken: pair.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired session", decodeReason(t, rec))
}

func TestRefreshRejectsGarbage(t *testing.T) {
	a := newTestAPI(t)

	rec := doJSON(t, a, http.MethodPost, "/api/auth/refresh", "", models.TokenRefreshRequest{
		RefreshToken: "not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired session", decodeReason(t, rec))
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	a := newTestAPI(t)
	pair := registerAlice(t, a)

	rec := doJSON(t, a, http.MethodPost, "/api/auth/refresh", "", models.TokenRefreshRequest{
		RefreshToken: pair.AccessToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired session", decodeReason(t, rec))
}

func TestSessionsRequiresBearer(t *testing.T) {
	a := newTestAPI(t)

	rec := doJSON(t, a, http.MethodGet, "/api/auth/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionsListsOwnSessions(t *testing.T) {
	a := newTestAPI(t)
	pair := registerAlice(t, a)

	rec := doJSON(t, a, http.MethodGet, "/api/auth/sessions", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []models.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 1)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	a := newTestAPI(t)
	pair := registerAlice(t, a)

	rec := doJSON(t, a, http.MethodPost, "/api/auth/logout", pair.AccessToken, models.LogoutRequest{
		RefreshToken: pair.RefreshToken,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, a, http.MethodGet, "/api/auth/sessions", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, a, http.MethodPost, "/api/auth/refresh", "", models.TokenRefreshRequest{
		RefreshToken: pair.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEverywhere(t *testing.T) {
	a := newTestAPI(t)
	registerAlice(t, a)

	rec := doJSON(t, a, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Identity: "alice",
		Password: "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var pair models.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))

	rec = doJSON(t, a, http.MethodPost, "/api/auth/logout", pair.AccessToken, models.LogoutRequest{
		Everywhere: true,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// A fresh login works; the old refresh tokens do not.
	rec = doJSON(t, a, http.MethodPost, "/api/auth/refresh", "", models.TokenRefreshRequest{
		RefreshToken: pair.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, a, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Identity: "alice",
		Password: "s3cret-pass",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
