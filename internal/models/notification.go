package models

import "time"

const (
	EventMemberJoined = "member_joined"
	EventTaskCreated  = "task_created"
	EventTaskUpdated  = "task_updated"
	EventQuestCreated = "quest_created"
)

type Notification struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}
