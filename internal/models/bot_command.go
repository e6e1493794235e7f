package models

import "time"

type CommandCategory string

const (
	CategoryAuth           CommandCategory = "AUTH"
	CategoryTaskManagement CommandCategory = "TASK_MANAGEMENT"
	CategoryInfo           CommandCategory = "INFO"
	CategoryUtility        CommandCategory = "UTILITY"
)

type BotCommand struct {
	ID              int64           `json:"id"`
	Command         string          `json:"command"`
	Description     string          `json:"description"`
	ResponseMessage string          `json:"responseMessage"`
	IsActive        bool            `json:"isActive"`
	Category        CommandCategory `json:"category"`
	Parameters      []string        `json:"parameters"`
	CreatedAt       time.Time       `json:"createdAt"`
}
