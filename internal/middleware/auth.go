package middleware

import (
	"crypto/subtle"
	"net/http"

	"provision-service/pkg/config"
	"provision-service/pkg/logger"

	"github.com/labstack/echo/v4"
)

// APIKeyMiddleware guards write endpoints with an X-API-Key header
// check. When no key is configured the check is disabled; main logs a
// warning at startup for that case.
func APIKeyMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Server.APIKey == "" {
				return next(c)
			}

			provided := c.Request().Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.Server.APIKey)) != 1 {
				logger.FromContext(c).Warn("Rejected request with invalid API key")
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error":             "unauthorized",
					"error_description": "A valid X-API-Key header is required",
				})
			}

			return next(c)
		}
	}
}
