package httpapi

import (
	"taskquest/internal/models"

	"github.com/gofiber/fiber/v2"
)

type questCodeRequest struct {
	QuestID int64 `json:"questId"`
}

type userCodesRequest struct {
	QuestID    int64    `json:"questId"`
	UserEmails []string `json:"userEmails"`
}

type regenerateRequest struct {
	QuestID int64  `json:"questId"`
	Type    string `json:"type"`
	UserID  int64  `json:"userId"`
}

type redeemRequest struct {
	Code             string `json:"code"`
	TelegramID       int64  `json:"telegramId"`
	TelegramUsername string `json:"telegramUsername"`
}

func (s *Server) generateQuestCode(c *fiber.Ctx) error {
	var req questCodeRequest
	if err := c.BodyParser(&req); err != nil || req.QuestID <= 0 {
		return sendBadRequest(c, "questId is required")
	}
	issued, err := s.svc.Links.IssueQuestCode(c.UserContext(), claimsFrom(c).AccountID, req.QuestID)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, issued)
}

func (s *Server) generateUserCodes(c *fiber.Ctx) error {
	var req userCodesRequest
	if err := c.BodyParser(&req); err != nil || req.QuestID <= 0 {
		return sendBadRequest(c, "questId is required")
	}
	if len(req.UserEmails) == 0 {
		return sendBadRequest(c, "Please provide user emails to generate codes for.")
	}
	codes, err := s.svc.Links.IssueMemberCodes(c.UserContext(), claimsFrom(c).AccountID, req.QuestID, req.UserEmails)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendCreated(c, fiber.Map{"questId": req.QuestID, "userCodes": codes})
}

func (s *Server) listQuestCodes(c *fiber.Ctx) error {
	questID, ok := idParam(c, "questId")
	if !ok {
		return sendBadRequest(c, "invalid quest id")
	}
	codes, err := s.svc.Links.ListQuestCodes(c.UserContext(), claimsFrom(c).AccountID, questID)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, codes)
}

func (s *Server) regenerateCode(c *fiber.Ctx) error {
	var req regenerateRequest
	if err := c.BodyParser(&req); err != nil || req.QuestID <= 0 {
		return sendBadRequest(c, "questId is required")
	}
	issued, err := s.svc.Links.RegenerateCode(c.UserContext(), claimsFrom(c).AccountID, req.QuestID, req.Type, req.UserID)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, issued)
}

// redeemCode links a Telegram identity on behalf of its owner, for operators
// helping someone whose chat cannot reach the bot.
func (s *Server) redeemCode(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil || req.TelegramID == 0 {
		return sendBadRequest(c, "code and telegramId are required")
	}
	res, err := s.svc.Links.Redeem(c.UserContext(), req.Code, models.TelegramIdentity{ID: req.TelegramID, Username: req.TelegramUsername})
	if err != nil {
		return s.sendServiceError(c, err)
	}
	if !res.Success {
		return sendBadRequest(c, res.Reason)
	}
	return sendSuccess(c, res)
}
