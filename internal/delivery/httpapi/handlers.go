package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readyTimeout = 2 * time.Second

func (s *Server) ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

func (s *Server) healthz(c *fiber.Ctx) error {
	return sendSuccess(c, fiber.Map{"status": "ok"})
}

func (s *Server) readyz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.log.Warn("readiness check failed: %v", err)
		return sendError(c, fiber.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
	}
	return sendSuccess(c, fiber.Map{"status": "ready"})
}

// idParam reads a positive integer path parameter.
func idParam(c *fiber.Ctx, name string) (int64, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return int64(id), true
}

func (s *Server) notifications(c *fiber.Ctx) error {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return sendBadRequest(c, "since must be an RFC3339 timestamp")
		}
		since = &t
	}
	return sendSuccess(c, s.svc.Notifications.Since(since))
}

func (s *Server) botCommands(c *fiber.Ctx) error {
	commands, err := s.svc.BotCommands.ListActive(c.UserContext())
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, commands)
}
