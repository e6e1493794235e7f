package models

import "time"

type Quest struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	CreatorID         int64      `json:"creator"`
	Progress          int        `json:"progress"`
	Completed         bool       `json:"completed"`
	CompletionDate    *time.Time `json:"completionDate,omitempty"`
	InviteCode        *string    `json:"inviteCode,omitempty"`
	InviteCodeExpires *time.Time `json:"inviteCodeExpires,omitempty"`
	MaxMembers        *int       `json:"maxMembers,omitempty"`
	IsActive          bool       `json:"isActive"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`

	MemberIDs []int64 `json:"members"`
}

func (q *Quest) HasMember(accountID int64) bool {
	for _, id := range q.MemberIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// CodeValid reports whether the quest carries a usable invite code at now.
func (q *Quest) CodeValid(now time.Time) bool {
	if q.InviteCode == nil || *q.InviteCode == "" {
		return false
	}
	return q.InviteCodeExpires == nil || q.InviteCodeExpires.After(now)
}

// QuestCodeEntry is one row of a quest's per-member code history.
type QuestCodeEntry struct {
	QuestID   int64     `json:"questId"`
	AccountID int64     `json:"userId"`
	Username  string    `json:"username"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type QuestPatch struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	CompletionDate *time.Time `json:"completionDate"`
	IsActive       *bool      `json:"isActive"`
	MaxMembers     *int       `json:"maxMembers"`
	Progress       *int       `json:"progress"`
	Completed      *bool      `json:"completed"`
	AddMemberIDs   []int64    `json:"addMembers"`
}
