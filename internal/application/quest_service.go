package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"
)

type QuestInput struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	CompletionDate *time.Time `json:"completionDate"`
	MaxMembers     *int       `json:"maxMembers"`
}

type QuestServiceImpl struct {
	quests        repository.Quest
	accounts      repository.Account
	tasks         repository.Task
	notifications NotificationService
	policy        QuestPolicy
	logger        Logger
}

func NewQuestServiceImpl(quests repository.Quest, accounts repository.Account, tasks repository.Task,
	notifications NotificationService, policy QuestPolicy, logger Logger) *QuestServiceImpl {
	if policy == "" {
		policy = QuestPolicyMulti
	}
	return &QuestServiceImpl{
		quests:        quests,
		accounts:      accounts,
		tasks:         tasks,
		notifications: notifications,
		policy:        policy,
		logger:        logger,
	}
}

func (s *QuestServiceImpl) requester(ctx context.Context, id int64) (*models.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load requester", err)
	}
	if a == nil {
		return nil, ErrUnauthorized
	}
	return a, nil
}

func (s *QuestServiceImpl) load(ctx context.Context, id int64) (*models.Quest, error) {
	q, err := s.quests.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load quest", err)
	}
	if q == nil {
		return nil, fmt.Errorf("quest %d: %w", id, ErrNotFound)
	}
	return q, nil
}

func (s *QuestServiceImpl) Create(ctx context.Context, creatorID int64, input QuestInput) (*models.Quest, error) {
	creator, err := s.requester(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationf("title is required")
	}
	if input.MaxMembers != nil && *input.MaxMembers <= 0 {
		return nil, validationf("maxMembers must be positive")
	}

	if s.policy == QuestPolicySingle {
		n, err := s.quests.Count(ctx)
		if err != nil {
			return nil, storeErr("count quests", err)
		}
		if n > 0 {
			return nil, ErrQuestLimit
		}
	}

	quest, err := s.quests.Create(ctx, &models.Quest{
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		CreatorID:      creator.ID,
		CompletionDate: input.CompletionDate,
		MaxMembers:     input.MaxMembers,
		IsActive:       true,
	})
	if err != nil {
		return nil, storeErr("create quest", err)
	}

	s.notifications.Emit(models.EventQuestCreated, map[string]any{
		"questId": quest.ID,
		"title":   quest.Title,
		"creator": creator.Username,
	})
	s.logger.Info("Quest %d created by account %d", quest.ID, creator.ID)
	return quest, nil
}

func (s *QuestServiceImpl) Get(ctx context.Context, requesterID, id int64) (*models.Quest, error) {
	requester, err := s.requester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	quest, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewQuest(requester, quest) {
		return nil, fmt.Errorf("not a member of quest %d: %w", id, ErrForbidden)
	}
	return quest, nil
}

func (s *QuestServiceImpl) ListVisible(ctx context.Context, requesterID int64) ([]models.Quest, error) {
	requester, err := s.requester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if requester.IsAdmin() {
		quests, err := s.quests.List(ctx)
		return quests, storeErr("list quests", err)
	}
	return s.ListForAccount(ctx, requesterID)
}

func (s *QuestServiceImpl) ListForAccount(ctx context.Context, accountID int64) ([]models.Quest, error) {
	quests, err := s.quests.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr("list quests", err)
	}
	return quests, nil
}

func (s *QuestServiceImpl) Update(ctx context.Context, requesterID, id int64, patch models.QuestPatch) (*models.Quest, error) {
	requester, err := s.requester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	quest, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageQuest(requester, quest) {
		return nil, fmt.Errorf("only the quest creator or an administrator can edit it: %w", ErrForbidden)
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, validationf("title cannot be empty")
		}
		quest.Title = title
	}
	if patch.Description != nil {
		quest.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.IsActive != nil {
		quest.IsActive = *patch.IsActive
	}
	if patch.MaxMembers != nil {
		if *patch.MaxMembers <= 0 {
			return nil, validationf("maxMembers must be positive")
		}
		quest.MaxMembers = patch.MaxMembers
	}
	if patch.Progress != nil {
		if *patch.Progress < 0 || *patch.Progress > 100 {
			return nil, validationf("progress must be between 0 and 100")
		}
		quest.Progress = *patch.Progress
	}
	if patch.Completed != nil {
		quest.Completed = *patch.Completed
	}
	if patch.CompletionDate != nil {
		latest, err := s.tasks.LatestDeadline(ctx, quest.ID)
		if err != nil {
			return nil, storeErr("check task deadlines", err)
		}
		if latest != nil && latest.After(*patch.CompletionDate) {
			return nil, fmt.Errorf("a task is due %s: %w", latest.Format(time.DateOnly), ErrDeadlineAfterQuest)
		}
		quest.CompletionDate = patch.CompletionDate
	}

	joining, err := s.newMembers(ctx, quest, patch.AddMemberIDs)
	if err != nil {
		return nil, err
	}
	if len(joining) > 0 {
		if err := s.quests.AddMembersWithHistory(ctx, quest.ID, joining, nil); err != nil {
			return nil, storeErr("add members", err)
		}
	}

	if err := s.quests.Update(ctx, quest); err != nil {
		return nil, storeErr("update quest", err)
	}

	return s.load(ctx, quest.ID)
}

// newMembers resolves the accounts to add, skipping current members, and
// checks the result against the quest's member cap.
func (s *QuestServiceImpl) newMembers(ctx context.Context, quest *models.Quest, ids []int64) ([]int64, error) {
	joining := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || quest.HasMember(id) {
			continue
		}
		seen[id] = struct{}{}

		member, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			return nil, storeErr("load member", err)
		}
		if member == nil {
			return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
		}
		joining = append(joining, id)
	}

	if len(joining) > 0 && quest.MaxMembers != nil {
		n, err := s.quests.CountMembers(ctx, quest.ID)
		if err != nil {
			return nil, storeErr("count members", err)
		}
		if n+len(joining) > *quest.MaxMembers {
			return nil, fmt.Errorf("quest %q allows %d members: %w", quest.Title, *quest.MaxMembers, ErrQuestFull)
		}
	}
	return joining, nil
}

func (s *QuestServiceImpl) Delete(ctx context.Context, requesterID, id int64) error {
	requester, err := s.requester(ctx, requesterID)
	if err != nil {
		return err
	}
	quest, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canManageQuest(requester, quest) {
		return fmt.Errorf("only the quest creator or an administrator can delete it: %w", ErrForbidden)
	}
	if err := s.quests.Delete(ctx, id); err != nil {
		return storeErr("delete quest", err)
	}
	s.logger.Info("Quest %d deleted by account %d", id, requesterID)
	return nil
}

func (s *QuestServiceImpl) Members(ctx context.Context, requesterID, id int64) ([]models.Account, error) {
	quest, err := s.Get(ctx, requesterID, id)
	if err != nil {
		return nil, err
	}
	members := make([]models.Account, 0, len(quest.MemberIDs))
	for _, memberID := range quest.MemberIDs {
		m, err := s.accounts.GetByID(ctx, memberID)
		if err != nil {
			return nil, storeErr("load member", err)
		}
		if m != nil {
			members = append(members, *m)
		}
	}
	return members, nil
}

// Leave removes the account from every quest it does not own. Its unfinished
// tasks in those quests go back to the quest creator.
func (s *QuestServiceImpl) Leave(ctx context.Context, accountID int64) (int, error) {
	account, err := s.requester(ctx, accountID)
	if err != nil {
		return 0, err
	}

	left := 0
	for _, questID := range account.QuestIDs {
		quest, err := s.quests.GetByID(ctx, questID)
		if err != nil {
			return left, storeErr("load quest", err)
		}
		if quest == nil || quest.CreatorID == account.ID {
			continue
		}
		moved, err := s.tasks.ReassignUnfinished(ctx, quest.ID, account.ID, quest.CreatorID)
		if err != nil {
			return left, storeErr("reassign tasks", err)
		}
		if err := s.quests.RemoveMember(ctx, quest.ID, account.ID); err != nil {
			return left, storeErr("leave quest", err)
		}
		left++
		s.logger.Info("Account %d left quest %d, %d tasks returned to creator", account.ID, quest.ID, moved)
	}
	return left, nil
}
