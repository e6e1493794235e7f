package httpapi

import (
	"taskquest/internal/application"
	"taskquest/internal/models"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) listAccounts(c *fiber.Ctx) error {
	accounts, err := s.svc.Accounts.List(c.UserContext())
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, accounts)
}

func (s *Server) createAccount(c *fiber.Ctx) error {
	var input application.AccountInput
	if err := c.BodyParser(&input); err != nil {
		return sendBadRequest(c, "invalid request body")
	}
	account, err := s.svc.Accounts.Create(c.UserContext(), input)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendCreated(c, account)
}

func (s *Server) getAccount(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid account id")
	}
	claims := claimsFrom(c)
	if claims.AccountID != id && models.Role(claims.Role) != models.RoleAdmin {
		return sendError(c, fiber.StatusForbidden, "FORBIDDEN", "Access denied")
	}
	account, err := s.svc.Accounts.Get(c.UserContext(), id)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, account)
}

func (s *Server) updateAccount(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid account id")
	}
	var patch models.AccountPatch
	if err := c.BodyParser(&patch); err != nil {
		return sendBadRequest(c, "invalid request body")
	}
	account, err := s.svc.Accounts.Update(c.UserContext(), claimsFrom(c).AccountID, id, patch)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, account)
}

func (s *Server) deleteAccount(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid account id")
	}
	if err := s.svc.Accounts.Delete(c.UserContext(), claimsFrom(c).AccountID, id); err != nil {
		return s.sendServiceError(c, err)
	}
	return sendMessage(c, "Account deleted")
}
