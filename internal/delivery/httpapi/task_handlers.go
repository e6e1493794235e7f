package httpapi

import (
	"strconv"

	"taskquest/internal/application"
	"taskquest/internal/models"

	"github.com/gofiber/fiber/v2"
)

type statusRequest struct {
	Status models.TaskStatus `json:"status"`
}

func (s *Server) listTasks(c *fiber.Ctx) error {
	ctx, accountID := c.UserContext(), claimsFrom(c).AccountID

	var (
		tasks []models.Task
		err   error
	)
	if q := c.Query("quest"); q != "" {
		questID, perr := strconv.ParseInt(q, 10, 64)
		if perr != nil || questID <= 0 {
			return sendBadRequest(c, "invalid quest id")
		}
		tasks, err = s.svc.Tasks.ListForQuest(ctx, accountID, questID)
	} else {
		tasks, err = s.svc.Tasks.ListForAssignee(ctx, accountID)
	}
	if err != nil {
		return s.sendServiceError(c, err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return sendSuccess(c, tasks)
}

func (s *Server) createTask(c *fiber.Ctx) error {
	var input application.TaskInput
	if err := c.BodyParser(&input); err != nil {
		return sendBadRequest(c, "invalid request body")
	}
	task, err := s.svc.Tasks.Create(c.UserContext(), claimsFrom(c).AccountID, input)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendCreated(c, task)
}

func (s *Server) getTask(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid task id")
	}
	task, err := s.svc.Tasks.Get(c.UserContext(), claimsFrom(c).AccountID, id)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, task)
}

func (s *Server) updateTask(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid task id")
	}
	var patch models.TaskPatch
	if err := c.BodyParser(&patch); err != nil {
		return sendBadRequest(c, "invalid request body")
	}
	task, err := s.svc.Tasks.Update(c.UserContext(), claimsFrom(c).AccountID, id, patch)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, task)
}

func (s *Server) updateTaskStatus(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid task id")
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return sendBadRequest(c, "status is required")
	}
	task, err := s.svc.Tasks.UpdateStatus(c.UserContext(), claimsFrom(c).AccountID, id, req.Status)
	if err != nil {
		return s.sendServiceError(c, err)
	}
	return sendSuccess(c, task)
}

func (s *Server) deleteTask(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return sendBadRequest(c, "invalid task id")
	}
	if err := s.svc.Tasks.Delete(c.UserContext(), claimsFrom(c).AccountID, id); err != nil {
		return s.sendServiceError(c, err)
	}
	return sendMessage(c, "Task deleted")
}
