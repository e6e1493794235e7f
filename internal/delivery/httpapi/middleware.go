package httpapi

import (
	"log/slog"
	"strings"
	"time"

	"taskquest/internal/application"
	"taskquest/internal/models"
	jwtutil "taskquest/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

const (
	localsClaims = "claims"

	cookieToken       = "token"
	cookieClientToken = "clientToken"
)

func bearerToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.Cookies(cookieToken)
}

// AuthRequired accepts a JWT from the Authorization header or the token cookie.
func AuthRequired(identity application.IdentityService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := identity.Authenticate(bearerToken(c))
		if err != nil {
			return sendError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		}
		c.Locals(localsClaims, claims)
		return c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := claimsFrom(c)
		if claims == nil {
			return sendError(c, fiber.StatusForbidden, "FORBIDDEN", "Access denied")
		}
		if models.Role(claims.Role) != models.RoleAdmin {
			logger.Warn("Admin required: account lacks admin role",
				slog.Int64("account_id", claims.AccountID), slog.String("path", c.Path()))
			return sendError(c, fiber.StatusForbidden, "FORBIDDEN", "Admin access required")
		}
		return c.Next()
	}
}

func claimsFrom(c *fiber.Ctx) *jwtutil.Claims {
	claims, _ := c.Locals(localsClaims).(*jwtutil.Claims)
	return claims
}

// LoggingMiddleware writes one access log line per request, at a level
// chosen from the response status.
func LoggingMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if claims := claimsFrom(c); claims != nil {
			attrs = append(attrs, slog.Int64("account_id", claims.AccountID))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.Log(c.Context(), level, "HTTP request processed", attrs...)
		return err
	}
}
