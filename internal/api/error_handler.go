package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/service"
	"github.com/vkazarin/tokenguard/internal/storage"
	"github.com/vkazarin/tokenguard/internal/util"
)

// invalidSessionMsg is deliberately uniform so callers cannot probe which
// verification step rejected their token.
const invalidSessionMsg = "invalid or expired session"

func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if isUnauthorizedTokenError(err) {
			c.JSON(http.StatusUnauthorized, map[string]string{"reason": invalidSessionMsg})
			return
		}

		if errors.Is(err, service.ErrAuthenticationFailed) {
			c.JSON(http.StatusUnauthorized, map[string]string{"reason": err.Error()})
			return
		}

		if errors.Is(err, service.ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, map[string]string{"reason": err.Error()})
			return
		}

		if errors.Is(err, service.ErrInvalidRequest) || errors.Is(err, service.ErrInvalidPayload) {
			c.JSON(http.StatusBadRequest, map[string]string{"reason": err.Error()})
			return
		}

		var customErr util.MyResponseError
		if errors.As(err, &customErr) {
			c.JSON(customErr.Status, map[string]string{"reason": customErr.Msg})
			return
		}

		he, ok := err.(*echo.HTTPError)
		if ok {
			if he.Code == http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			if msg, isStr := he.Message.(string); isStr {
				if err := c.JSON(he.Code, map[string]string{"reason": msg}); err != nil {
					log.Errorw("failed to write json response", "error", err)
				}
			} else {
				c.JSON(he.Code, map[string]string{"reason": http.StatusText(he.Code)})
			}
			return
		}

		log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		c.JSON(http.StatusInternalServerError, map[string]string{"reason": "internal server error"})
	}
}

func isUnauthorizedTokenError(err error) bool {
	return errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrTokenMalformed) ||
		errors.Is(err, service.ErrTokenRevoked) ||
		errors.Is(err, service.ErrTokenWrongKind) ||
		errors.Is(err, service.ErrTokenMissing) ||
		errors.Is(err, storage.ErrSessionNotFound)
}
