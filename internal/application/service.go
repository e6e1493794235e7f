package application

import (
	"context"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"
	jwtutil "taskquest/pkg/jwt"
)

type Logger interface {
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Info(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// ChatNotifier delivers a plain message to a linked Telegram chat.
type ChatNotifier interface {
	NotifyChat(chatID int64, text string) error
}

// ExternalIdentity is what the identity provider vouches for after verifying a token.
type ExternalIdentity struct {
	UID         string
	Email       string
	Phone       string
	DisplayName string
}

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*ExternalIdentity, error)
}

// EventSink receives every queued web notification.
type EventSink interface {
	Publish(n models.Notification)
}

// SheetPublisher writes a quest report to an external spreadsheet and returns its URL.
type SheetPublisher interface {
	PublishQuest(ctx context.Context, questID int64, title string, rows [][]interface{}) (string, error)
}

type AccountService interface {
	Create(ctx context.Context, input AccountInput) (*models.Account, error)
	Get(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	Update(ctx context.Context, requesterID, id int64, patch models.AccountPatch) (*models.Account, error)
	Delete(ctx context.Context, requesterID, id int64) error
	Dashboard(ctx context.Context, accountID int64) (*Dashboard, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error)
}

type QuestService interface {
	Create(ctx context.Context, creatorID int64, input QuestInput) (*models.Quest, error)
	Get(ctx context.Context, requesterID, id int64) (*models.Quest, error)
	ListVisible(ctx context.Context, requesterID int64) ([]models.Quest, error)
	ListForAccount(ctx context.Context, accountID int64) ([]models.Quest, error)
	Update(ctx context.Context, requesterID, id int64, patch models.QuestPatch) (*models.Quest, error)
	Delete(ctx context.Context, requesterID, id int64) error
	Members(ctx context.Context, requesterID, id int64) ([]models.Account, error)
	Leave(ctx context.Context, accountID int64) (int, error)
}

type TaskService interface {
	Create(ctx context.Context, creatorID int64, input TaskInput) (*models.Task, error)
	Get(ctx context.Context, requesterID, id int64) (*models.Task, error)
	ListForAssignee(ctx context.Context, accountID int64) ([]models.Task, error)
	ListForQuest(ctx context.Context, requesterID, questID int64) ([]models.Task, error)
	Update(ctx context.Context, requesterID, id int64, patch models.TaskPatch) (*models.Task, error)
	UpdateStatus(ctx context.Context, accountID, id int64, status models.TaskStatus) (*models.Task, error)
	Delete(ctx context.Context, requesterID, id int64) error
}

type LinkService interface {
	IssueQuestCode(ctx context.Context, requesterID, questID int64) (*IssuedCode, error)
	IssueMemberCodes(ctx context.Context, requesterID, questID int64, emails []string) ([]MemberCode, error)
	RegenerateCode(ctx context.Context, requesterID, questID int64, codeType string, targetID int64) (*IssuedCode, error)
	ListQuestCodes(ctx context.Context, requesterID, questID int64) (*QuestCodes, error)
	IssueInviteCode(ctx context.Context, requesterID, questID int64, expiresInHours int, maxMembers *int) (*IssuedCode, error)
	Redeem(ctx context.Context, code string, identity models.TelegramIdentity) (*RedeemResult, error)
}

type IdentityService interface {
	LoginWithFirebase(ctx context.Context, idToken string) (*Session, error)
	Authenticate(tokenStr string) (*jwtutil.Claims, error)
}

type NotificationService interface {
	Emit(eventType string, data map[string]any)
	Since(since *time.Time) []models.Notification
	Prune()
}

type ReportService interface {
	ExportQuestXLSX(ctx context.Context, requesterID, questID int64) ([]byte, string, error)
	SyncQuestSheet(ctx context.Context, requesterID, questID int64) (string, error)
}

type BotCommandService interface {
	ListActive(ctx context.Context) ([]models.BotCommand, error)
	Render(ctx context.Context, command, username string) (string, bool, error)
}

type Options struct {
	AdminCodePolicy AdminCodePolicy
	QuestPolicy     QuestPolicy
	BotUsername     string
	FrontendURL     string
	JWT             jwtutil.Config
}

type Deps struct {
	Verifier TokenVerifier
	Sheets   SheetPublisher
	Sinks    []EventSink
}

type Service struct {
	Accounts      AccountService
	Quests        QuestService
	Tasks         TaskService
	Links         LinkService
	Identity      IdentityService
	Notifications *NotificationQueue
	Reports       ReportService
	BotCommands   BotCommandService

	links *LinkServiceImpl
	tasks *TaskServiceImpl
}

func NewService(repos *repository.Repository, deps Deps, opts Options, logger Logger) *Service {
	notifications := NewNotificationQueue(logger, deps.Sinks...)
	codes := NewCodeGenerator()

	links := NewLinkServiceImpl(repos.Account, repos.Quest, codes, notifications, opts, logger)
	tasks := NewTaskServiceImpl(repos.Task, repos.Quest, repos.Account, notifications, logger)

	return &Service{
		Accounts:      NewAccountServiceImpl(repos.Account, repos.Quest, repos.Task, logger),
		Quests:        NewQuestServiceImpl(repos.Quest, repos.Account, repos.Task, notifications, opts.QuestPolicy, logger),
		Tasks:         tasks,
		Links:         links,
		Identity:      NewIdentityServiceImpl(repos.Account, repos.Quest, deps.Verifier, opts, logger),
		Notifications: notifications,
		Reports:       NewReportServiceImpl(repos.Quest, repos.Account, repos.Task, deps.Sheets, logger),
		BotCommands:   NewBotCommandServiceImpl(repos.BotCommand, opts.FrontendURL),
		links:         links,
		tasks:         tasks,
	}
}

// SetChatNotifier wires the chat transport once it exists. It must be called
// before the services start handling requests.
func (s *Service) SetChatNotifier(n ChatNotifier) {
	s.links.notifier = n
	s.tasks.notifier = n
}
