package repository

import (
	"context"
	"database/sql"
	"time"

	"taskquest/internal/models"
)

type Account interface {
	// Create inserts the account. The stored role is decided by the store:
	// the first account ever becomes ADMIN with IsFirstUser set, every later
	// one is USER regardless of a.Role.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByPhone(ctx context.Context, phone string) (*models.Account, error)
	GetByFirebaseUID(ctx context.Context, uid string) (*models.Account, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error)
	GetByTelegramUsername(ctx context.Context, username string) (*models.Account, error)
	GetByLinkCode(ctx context.Context, code string, now time.Time) (*models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	Update(ctx context.Context, id int64, patch models.AccountPatch) error
	Delete(ctx context.Context, id int64) error

	LinkCodeExists(ctx context.Context, code string, now time.Time) (bool, error)
	SetLinkCode(ctx context.Context, id int64, code string, expires time.Time) error
	PurgeExpiredLinkCodes(ctx context.Context, now time.Time) error
	LinkTelegram(ctx context.Context, id int64, identity models.TelegramIdentity, linkCode string) error
}

type Quest interface {
	Create(ctx context.Context, q *models.Quest) (*models.Quest, error)
	GetByID(ctx context.Context, id int64) (*models.Quest, error)
	GetActiveByInviteCode(ctx context.Context, code string, now time.Time) (*models.Quest, error)
	FirstActive(ctx context.Context) (*models.Quest, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]models.Quest, error)
	ListForAccount(ctx context.Context, accountID int64) ([]models.Quest, error)
	Update(ctx context.Context, q *models.Quest) error
	Delete(ctx context.Context, id int64) error

	InviteCodeExists(ctx context.Context, code string, now time.Time) (bool, error)
	SetInviteCode(ctx context.Context, id int64, code string, expires time.Time, maxMembers *int) error
	PurgeExpiredInviteCodes(ctx context.Context, now time.Time) error

	// AddMember reports whether a new membership row was written.
	AddMember(ctx context.Context, questID, accountID int64) (bool, error)
	RemoveMember(ctx context.Context, questID, accountID int64) error
	CountMembers(ctx context.Context, questID int64) (int, error)
	// AddMembersWithHistory writes all memberships and history entries in one transaction.
	AddMembersWithHistory(ctx context.Context, questID int64, accountIDs []int64, entries []models.QuestCodeEntry) error
	CodeHistory(ctx context.Context, questID int64) ([]models.QuestCodeEntry, error)
}

type Task interface {
	Create(ctx context.Context, t *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	ListByAssignee(ctx context.Context, accountID int64) ([]models.Task, error)
	ListByQuest(ctx context.Context, questID int64) ([]models.Task, error)
	Update(ctx context.Context, t *models.Task) error
	Delete(ctx context.Context, id int64) error
	ReassignUnfinished(ctx context.Context, questID, fromID, toID int64) (int64, error)
	LatestDeadline(ctx context.Context, questID int64) (*time.Time, error)
}

type BotCommand interface {
	ListActive(ctx context.Context) ([]models.BotCommand, error)
	GetByCommand(ctx context.Context, command string) (*models.BotCommand, error)
}

type Repository struct {
	Account
	Quest
	Task
	BotCommand
	db *sql.DB
}

func NewRepository(db *sql.DB, cache *AccountCache) *Repository {
	return &Repository{
		Account:    NewAccountPostgres(db, cache),
		Quest:      NewQuestPostgres(db),
		Task:       NewTaskPostgres(db),
		BotCommand: NewBotCommandPostgres(db),
		db:         db,
	}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
