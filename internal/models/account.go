package models

import "time"

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type Account struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Phone            *string    `json:"phone,omitempty"`
	Role             Role       `json:"role"`
	IsFirstUser      bool       `json:"isFirstUser"`
	FirebaseUID      *string    `json:"-"`
	PerformanceScore int        `json:"performanceScore"`
	TelegramID       *int64     `json:"telegramId,omitempty"`
	TelegramUsername string     `json:"telegramUsername,omitempty"`
	TelegramLinked   bool       `json:"telegramLinked"`
	LinkCode         *string    `json:"-"`
	LinkCodeExpires  *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	// QuestIDs are ordered by join time, earliest first.
	QuestIDs []int64 `json:"quests"`
}

func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// TelegramIdentity is the chat-side identity bound to an account on redemption.
// Username is the Telegram handle and may be empty. FirstName is only shown
// back to the user and never used to find an account.
type TelegramIdentity struct {
	ID        int64
	Username  string
	FirstName string
}

func (t TelegramIdentity) DisplayName() string {
	if t.Username != "" {
		return t.Username
	}
	if t.FirstName != "" {
		return t.FirstName
	}
	return "there"
}

// AccountPatch carries optional field updates. Role is accepted only so that
// a change attempt can be detected and rejected.
type AccountPatch struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	FirebaseUID *string `json:"-"`
	Role        *Role   `json:"role"`
}
