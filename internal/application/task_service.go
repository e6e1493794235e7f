package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"
)

type TaskInput struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	AssigneeID  int64             `json:"assignedTo"`
	QuestID     int64             `json:"quest"`
	Priority    models.Priority   `json:"priority"`
	Status      models.TaskStatus `json:"status"`
	Deadline    *time.Time        `json:"deadline"`
}

type TaskServiceImpl struct {
	tasks         repository.Task
	quests        repository.Quest
	accounts      repository.Account
	notifications NotificationService
	notifier      ChatNotifier
	logger        Logger
}

func NewTaskServiceImpl(tasks repository.Task, quests repository.Quest, accounts repository.Account,
	notifications NotificationService, logger Logger) *TaskServiceImpl {
	return &TaskServiceImpl{
		tasks:         tasks,
		quests:        quests,
		accounts:      accounts,
		notifications: notifications,
		logger:        logger,
	}
}

// applyStatus keeps Completed and Status in agreement. An explicit status
// wins over the completed flag when both are given.
func applyStatus(t *models.Task, status *models.TaskStatus, completed *bool) error {
	switch {
	case status != nil:
		if !status.Valid() {
			return validationf("unknown status %q", *status)
		}
		t.Status = *status
	case completed != nil:
		if *completed {
			t.Status = models.StatusCompleted
		} else if t.Status == models.StatusCompleted {
			t.Status = models.StatusInProgress
		}
	}
	t.Completed = t.Status == models.StatusCompleted
	return nil
}

func checkDeadline(deadline *time.Time, quest *models.Quest) error {
	if deadline == nil || quest.CompletionDate == nil {
		return nil
	}
	if deadline.After(*quest.CompletionDate) {
		return fmt.Errorf("deadline %s, quest ends %s: %w",
			deadline.Format(time.DateOnly), quest.CompletionDate.Format(time.DateOnly), ErrDeadlineAfterQuest)
	}
	return nil
}

func (s *TaskServiceImpl) account(ctx context.Context, id int64) (*models.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load account", err)
	}
	if a == nil {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *TaskServiceImpl) quest(ctx context.Context, id int64) (*models.Quest, error) {
	q, err := s.quests.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load quest", err)
	}
	if q == nil {
		return nil, fmt.Errorf("quest %d: %w", id, ErrNotFound)
	}
	return q, nil
}

func (s *TaskServiceImpl) task(ctx context.Context, id int64) (*models.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load task", err)
	}
	if t == nil {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *TaskServiceImpl) Create(ctx context.Context, creatorID int64, input TaskInput) (*models.Task, error) {
	creator, err := s.account(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationf("title is required")
	}
	quest, err := s.quest(ctx, input.QuestID)
	if err != nil {
		return nil, err
	}
	if !canViewQuest(creator, quest) {
		return nil, fmt.Errorf("not a member of quest %d: %w", quest.ID, ErrForbidden)
	}

	assigneeID := input.AssigneeID
	if assigneeID == 0 {
		assigneeID = creator.ID
	}
	if !quest.HasMember(assigneeID) {
		return nil, validationf("assignee %d is not a member of quest %d", assigneeID, quest.ID)
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, validationf("unknown priority %q", priority)
	}
	if err := checkDeadline(input.Deadline, quest); err != nil {
		return nil, err
	}

	t := &models.Task{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		AssigneeID:  assigneeID,
		QuestID:     quest.ID,
		Priority:    priority,
		Deadline:    input.Deadline,
		CreatedByID: creator.ID,
		Status:      models.StatusNotStarted,
	}
	if input.Status != "" {
		if err := applyStatus(t, &input.Status, nil); err != nil {
			return nil, err
		}
	}

	created, err := s.tasks.Create(ctx, t)
	if err != nil {
		return nil, storeErr("create task", err)
	}

	s.notifications.Emit(models.EventTaskCreated, map[string]any{
		"taskId":     created.ID,
		"title":      created.Title,
		"questId":    created.QuestID,
		"assignedTo": created.AssigneeID,
	})
	if created.AssigneeID != creator.ID {
		s.notifyAssignee(ctx, created, quest)
	}
	return created, nil
}

func (s *TaskServiceImpl) notifyAssignee(ctx context.Context, t *models.Task, quest *models.Quest) {
	if s.notifier == nil {
		return
	}
	assignee, err := s.accounts.GetByID(ctx, t.AssigneeID)
	if err != nil || assignee == nil || !assignee.TelegramLinked || assignee.TelegramID == nil {
		return
	}
	text := fmt.Sprintf("New task in \"%s\": %s (priority %s)", quest.Title, t.Title, t.Priority)
	if t.Deadline != nil {
		text += ", due " + t.Deadline.Format(time.DateOnly)
	}
	if err := s.notifier.NotifyChat(*assignee.TelegramID, text); err != nil {
		s.logger.Warn("failed to notify assignee %d about task %d: %v", assignee.ID, t.ID, err)
	}
}

func (s *TaskServiceImpl) Get(ctx context.Context, requesterID, id int64) (*models.Task, error) {
	requester, err := s.account(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	t, err := s.task(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.AssigneeID == requester.ID || requester.IsAdmin() {
		return t, nil
	}
	quest, err := s.quest(ctx, t.QuestID)
	if err != nil {
		return nil, err
	}
	if !canViewQuest(requester, quest) {
		return nil, fmt.Errorf("task %d: %w", id, ErrForbidden)
	}
	return t, nil
}

func (s *TaskServiceImpl) ListForAssignee(ctx context.Context, accountID int64) ([]models.Task, error) {
	tasks, err := s.tasks.ListByAssignee(ctx, accountID)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) ListForQuest(ctx context.Context, requesterID, questID int64) ([]models.Task, error) {
	requester, err := s.account(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	quest, err := s.quest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if !canViewQuest(requester, quest) {
		return nil, fmt.Errorf("quest %d: %w", questID, ErrForbidden)
	}
	tasks, err := s.tasks.ListByQuest(ctx, questID)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) Update(ctx context.Context, requesterID, id int64, patch models.TaskPatch) (*models.Task, error) {
	requester, err := s.account(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	t, err := s.task(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.QuestID != nil && *patch.QuestID != t.QuestID {
		return nil, ErrTaskQuestImmutable
	}
	quest, err := s.quest(ctx, t.QuestID)
	if err != nil {
		return nil, err
	}
	if t.AssigneeID != requester.ID && t.CreatedByID != requester.ID && !canManageQuest(requester, quest) {
		return nil, fmt.Errorf("task %d: %w", id, ErrForbidden)
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, validationf("title cannot be empty")
		}
		t.Title = title
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, validationf("unknown priority %q", *patch.Priority)
		}
		t.Priority = *patch.Priority
	}
	if patch.AssigneeID != nil && *patch.AssigneeID != t.AssigneeID {
		if !quest.HasMember(*patch.AssigneeID) {
			return nil, validationf("assignee %d is not a member of quest %d", *patch.AssigneeID, quest.ID)
		}
		t.AssigneeID = *patch.AssigneeID
	}
	if patch.Deadline != nil {
		if err := checkDeadline(patch.Deadline, quest); err != nil {
			return nil, err
		}
		t.Deadline = patch.Deadline
	}
	if err := applyStatus(t, patch.Status, patch.Completed); err != nil {
		return nil, err
	}

	return s.save(ctx, t)
}

func (s *TaskServiceImpl) UpdateStatus(ctx context.Context, accountID, id int64, status models.TaskStatus) (*models.Task, error) {
	t, err := s.task(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.AssigneeID != accountID {
		return nil, fmt.Errorf("only the assignee can change the status of task %d: %w", id, ErrForbidden)
	}
	if err := applyStatus(t, &status, nil); err != nil {
		return nil, err
	}
	return s.save(ctx, t)
}

func (s *TaskServiceImpl) save(ctx context.Context, t *models.Task) (*models.Task, error) {
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, storeErr("update task", err)
	}
	s.notifications.Emit(models.EventTaskUpdated, map[string]any{
		"taskId":    t.ID,
		"title":     t.Title,
		"status":    t.Status,
		"completed": t.Completed,
		"questId":   t.QuestID,
	})
	return s.task(ctx, t.ID)
}

func (s *TaskServiceImpl) Delete(ctx context.Context, requesterID, id int64) error {
	requester, err := s.account(ctx, requesterID)
	if err != nil {
		return err
	}
	t, err := s.task(ctx, id)
	if err != nil {
		return err
	}
	quest, err := s.quest(ctx, t.QuestID)
	if err != nil {
		return err
	}
	if t.CreatedByID != requester.ID && !canManageQuest(requester, quest) {
		return fmt.Errorf("task %d: %w", id, ErrForbidden)
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return storeErr("delete task", err)
	}
	return nil
}
