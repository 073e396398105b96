package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/service"
	"github.com/vkazarin/tokenguard/internal/storage"
	"github.com/vkazarin/tokenguard/internal/util"
)

const (
	UserIDContextKey = "userID"
	TokenContextKey  = "token"

	locationHeader = "X-Client-Location"
)

type Controller struct {
	zapLogger   *zap.SugaredLogger
	authService *service.AuthService
}

func NewController(logger *zap.SugaredLogger, authService *service.AuthService) *Controller {
	return &Controller{
		zapLogger:   logger,
		authService: authService,
	}
}

// (GET /api/ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /api/auth/register).
func (c *Controller) Register(ctx echo.Context) error {
	var req models.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "invalid request body")
	}

	user, pair, err := c.authService.Register(ctx.Request().Context(), req, clientInfo(ctx))
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return util.NewResponseError(http.StatusConflict, "user already exists")
		}
		if errors.Is(err, service.ErrInvalidRequest) {
			return util.NewResponseError(http.StatusBadRequest, "%s", err)
		}
		return err
	}

	return ctx.JSON(http.StatusCreated, map[string]interface{}{
		"user":   user,
		"tokens": pair,
	})
}

// (POST /api/auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "invalid request body")
	}

	pair, err := c.authService.Login(ctx.Request().Context(), req.Identity, req.Password, clientInfo(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, pair)
}

// (POST /api/auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.TokenRefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "invalid request body")
	}

	pair, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken, clientInfo(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, pair)
}

// (POST /api/auth/logout). Requires a bearer access token; revokes the
// presented refresh token (or every session with everywhere=true) and
// blacklists the access token itself.
func (c *Controller) Logout(ctx echo.Context) error {
	userID, _ := ctx.Get(UserIDContextKey).(string)
	accessToken, _ := ctx.Get(TokenContextKey).(string)

	var req models.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "invalid request body")
	}

	reqCtx := ctx.Request().Context()
	if req.Everywhere {
		if _, err := c.authService.RevokeAll(reqCtx, userID); err != nil {
			return err
		}
	} else {
		if err := c.authService.RevokeOne(reqCtx, userID, req.RefreshToken); err != nil &&
			!errors.Is(err, storage.ErrSessionNotFound) {
			return err
		}
	}

	if err := c.authService.InvalidateAccessToken(reqCtx, accessToken); err != nil {
		return err
	}

	return ctx.NoContent(http.StatusNoContent)
}

// (GET /api/auth/sessions).
func (c *Controller) Sessions(ctx echo.Context) error {
	userID, _ := ctx.Get(UserIDContextKey).(string)

	sessions, err := c.authService.ListSessions(ctx.Request().Context(), userID)
	if err != nil {
		return err
	}

	resp := make([]models.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, models.SessionResponse{
			TokenID:   s.TokenID,
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	return ctx.JSON(http.StatusOK, resp)
}

func clientInfo(ctx echo.Context) models.ClientInfo {
	return models.ClientInfo{
		IPAddress: ctx.RealIP(),
		UserAgent: ctx.Request().UserAgent(),
		Location:  ctx.Request().Header.Get(locationHeader),
	}
}
