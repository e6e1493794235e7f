package httpapi

import (
	"time"

	"taskquest/internal/application"

	"github.com/gofiber/fiber/v2"
)

type firebaseLoginRequest struct {
	IDToken string `json:"idToken"`
}

func (s *Server) loginFirebase(c *fiber.Ctx) error {
	var req firebaseLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return sendBadRequest(c, "invalid request body")
	}

	session, err := s.svc.Identity.LoginWithFirebase(c.UserContext(), req.IDToken)
	if err != nil {
		return s.sendServiceError(c, err)
	}

	s.setSessionCookies(c, session)
	return sendSuccess(c, session)
}

func (s *Server) setSessionCookies(c *fiber.Ctx, session *application.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     cookieToken,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     cookieClientToken,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		Secure:   s.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (s *Server) protected(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	account, err := s.svc.Accounts.Get(c.UserContext(), claims.AccountID)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, fiber.Map{"user": account, "expiresAt": claims.ExpiresAt})
}

func (s *Server) logout(c *fiber.Ctx) error {
	for _, name := range []string{cookieToken, cookieClientToken} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			HTTPOnly: name == cookieToken,
			Secure:   s.cfg.CookieSecure,
		})
	}
	return sendMessage(c, "Logged out")
}

func (s *Server) dashboard(c *fiber.Ctx) error {
	d, err := s.svc.Accounts.Dashboard(c.UserContext(), claimsFrom(c).AccountID)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, d)
}
