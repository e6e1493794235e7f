package httpapi

import (
	"taskquest/internal/application"
	"taskquest/internal/models"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type inviteCodeRequest struct {
	ExpiresInHours int  `json:"expiresInHours"`
	MaxMembers     *int `json:"maxMembers"`
}

func (s *Server) listQuests(c *fiber.Ctx) error {
	quests, err := s.svc.Quests.ListVisible(c.UserContext(), claimsFrom(c).AccountID)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	if quests == nil {
		quests = []models.Quest{}
	}
	return sendSuccess(c, quests)
}

func (s *Server) createQuest(c *fiber.Ctx) error {
	var input application.QuestInput
	if err := c.BodyParser(&input); err != nil {
		return sendBadRequest(c, "invalid request body")
	}
	quest, err := s.svc.Quests.Create(c.UserContext(), claimsFrom(c).AccountID, input)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendCreated(c, quest)
}

func (s *Server) getQuest(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid quest id")
	}
	quest, err := s.svc.Quests.Get(c.UserContext(), claimsFrom(c).AccountID, id)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, quest)
}

func (s *Server) updateQuest(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid quest id")
	}
	var patch models.QuestPatch
	if err := c.BodyParser(&patch); err != nil {
		return sendBadRequest(c, "invalid request body")
	}
	quest, err := s.svc.Quests.Update(c.UserContext(), claimsFrom(c).AccountID, id, patch)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, quest)
}

func (s *Server) deleteQuest(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid quest id")
	}
	if err := s.svc.Quests.Delete(c.UserContext(), claimsFrom(c).AccountID, id); err != nil {
		return s.sendServiceError(c, err)
	}
	return sendMessage(c, "Quest deleted")
}

func (s *Server) questMembers(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid quest id")
	}
	members, err := s.svc.Quests.Members(c.UserContext(), claimsFrom(c).AccountID, id)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, members)
}

func (s *Server) leaveQuests(c *fiber.Ctx) error {
	left, err := s.svc.Quests.Leave(c.UserContext(), claimsFrom(c).AccountID)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, fiber.Map{"left": left})
}

func (s *Server) issueInviteCode(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid quest id")
	}
	var req inviteCodeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return sendBadRequest(c, "invalid request body")
		}
	}
	issued, err := s.svc.Links.IssueInviteCode(c.UserContext(), claimsFrom(c).AccountID, id, req.ExpiresInHours, req.MaxMembers)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, issued)
}

func (s *Server) exportQuest(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid quest id")
	}
	data, name, err := s.svc.Reports.ExportQuestXLSX(c.UserContext(), claimsFrom(c).AccountID, id)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	c.Attachment(name)
	c.Set(fiber.HeaderContentType, xlsxContentType)
	return c.Send(data)
}

func (s *Server) syncQuestSheet(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid quest id")
	}
	url, err := s.svc.Reports.SyncQuestSheet(c.UserContext(), claimsFrom(c).AccountID, id)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, fiber.Map{"url": url})
}
