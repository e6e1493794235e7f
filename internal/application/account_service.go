package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"
)

type AccountInput struct {
	Username string       `json:"username"`
	Email    string       `json:"email"`
	Phone    string       `json:"phone"`
	Role     *models.Role `json:"role"`
}

type Dashboard struct {
	Account *models.Account `json:"user"`
	Quests  []models.Quest  `json:"quests"`
	Tasks   []models.Task   `json:"tasks"`
	Stats   DashboardStats  `json:"stats"`
}

type DashboardStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"inProgress"`
	NotStarted int `json:"notStarted"`
}

type AccountServiceImpl struct {
	accounts repository.Account
	quests   repository.Quest
	tasks    repository.Task
	logger   Logger
	now      func() time.Time
}

func NewAccountServiceImpl(accounts repository.Account, quests repository.Quest, tasks repository.Task, logger Logger) *AccountServiceImpl {
	return &AccountServiceImpl{
		accounts: accounts,
		quests:   quests,
		tasks:    tasks,
		logger:   logger,
		now:      time.Now,
	}
}

// Create ignores the requested role: the store promotes the very first
// account to ADMIN and everything after it is USER.
func (s *AccountServiceImpl) Create(ctx context.Context, input AccountInput) (*models.Account, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if input.Role != nil && !input.Role.Valid() {
		return nil, validationf("unknown role %q", *input.Role)
	}
	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = handleFromEmail(email)
	}

	a := &models.Account{Username: username, Email: email, Role: models.RoleUser}
	if phone := strings.TrimSpace(input.Phone); phone != "" {
		a.Phone = &phone
	}

	created, err := s.accounts.Create(ctx, a)
	if err != nil {
		return nil, storeErr("create account", err)
	}
	if created.IsFirstUser {
		s.logger.Info("Account %d (%s) is the first account and became administrator", created.ID, created.Username)
	}
	return created, nil
}

func (s *AccountServiceImpl) Get(ctx context.Context, id int64) (*models.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get account", err)
	}
	if a == nil {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *AccountServiceImpl) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error) {
	a, err := s.accounts.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, storeErr("get account", err)
	}
	if a == nil {
		return nil, fmt.Errorf("telegram %d: %w", telegramID, ErrNotFound)
	}
	return a, nil
}

func (s *AccountServiceImpl) List(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, storeErr("list accounts", err)
	}
	return accounts, nil
}

func (s *AccountServiceImpl) Update(ctx context.Context, requesterID, id int64, patch models.AccountPatch) (*models.Account, error) {
	requester, err := s.Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if requester.ID != id && !requester.IsAdmin() {
		return nil, fmt.Errorf("cannot edit another account: %w", ErrForbidden)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Role != nil && *patch.Role != current.Role {
		return nil, ErrRoleImmutable
	}
	patch.Role = nil
	patch.FirebaseUID = nil

	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		patch.Email = &email
	}
	if patch.Username != nil {
		u := strings.TrimSpace(*patch.Username)
		if u == "" {
			return nil, validationf("username cannot be empty")
		}
		patch.Username = &u
	}

	if err := s.accounts.Update(ctx, id, patch); err != nil {
		return nil, storeErr("update account", err)
	}
	return s.Get(ctx, id)
}

func (s *AccountServiceImpl) Delete(ctx context.Context, requesterID, id int64) error {
	requester, err := s.Get(ctx, requesterID)
	if err != nil {
		return err
	}
	if !requester.IsAdmin() {
		return fmt.Errorf("only administrators can delete accounts: %w", ErrForbidden)
	}
	if requester.ID == id {
		return validationf("administrators cannot delete themselves")
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		return storeErr("delete account", err)
	}
	s.logger.Info("Account %d deleted by %d", id, requesterID)
	return nil
}

func (s *AccountServiceImpl) Dashboard(ctx context.Context, accountID int64) (*Dashboard, error) {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	quests, err := s.quests.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr("list quests", err)
	}
	tasks, err := s.tasks.ListByAssignee(ctx, accountID)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}

	d := &Dashboard{Account: account, Quests: quests, Tasks: tasks}
	if d.Quests == nil {
		d.Quests = []models.Quest{}
	}
	if d.Tasks == nil {
		d.Tasks = []models.Task{}
	}
	for _, t := range tasks {
		d.Stats.Total++
		switch t.Status {
		case models.StatusCompleted:
			d.Stats.Completed++
		case models.StatusInProgress:
			d.Stats.InProgress++
		default:
			d.Stats.NotStarted++
		}
	}
	return d, nil
}
