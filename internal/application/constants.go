package application

import "time"

const (
	AdminCodePrefix = "ADM"
	UserCodePrefix  = "USR"

	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength       = 6
	inviteCodeLength = 8
	// codeWidenBy is added to the random part once half of the attempts collided.
	codeWidenBy     = 2
	codeMaxAttempts = 8

	AdminCodeTTL = 30 * 24 * time.Hour
	UserCodeTTL  = 24 * time.Hour

	defaultInviteHours = 7 * 24
	maxInviteHours     = 30 * 24

	deepLinkFormat = "https://t.me/%s?start=auth_%s"

	// Notification queue
	notificationCap       = 100
	notificationRecent    = 10
	notificationMaxAge    = time.Hour
	notificationPruneTick = time.Hour

	// Spreadsheet export
	excelRosterSheet = "Roster"
	excelTasksSheet  = "Tasks"

	telegramEmailDomain = "telegram.temp"
	firebaseEmailDomain = "firebase.temp"
)

type AdminCodePolicy string

const (
	AdminCodeReuse  AdminCodePolicy = "reuse"
	AdminCodeRotate AdminCodePolicy = "rotate"
)

type QuestPolicy string

const (
	QuestPolicyMulti    QuestPolicy = "multi"
	QuestPolicySingle   QuestPolicy = "single"
	QuestPolicyAutoJoin QuestPolicy = "auto_join"
)

const (
	CodeTypeAdmin = "admin"
	CodeTypeUser  = "user"
)

// Redemption failure reasons shown to the person entering a code.
const (
	ReasonEmptyCode        = "Please provide a code."
	ReasonInvalidAdminCode = "Invalid or expired admin code."
	ReasonInvalidUserCode  = "Invalid or expired user code."
	ReasonInvalidInvite    = "Invalid or expired invite code."
	ReasonNoQuest          = "No quest found for this user."
	ReasonQuestInactive    = "Quest not found or inactive."
	ReasonCreatorMissing   = "Quest creator not found."
	ReasonTelegramTaken    = "This Telegram account is already linked to another TaskQuest account."
	ReasonInternal         = "Authentication error. Please try again."
	reasonQuestFullFormat  = "Quest \"%s\" has reached its maximum capacity of %d members."
)
