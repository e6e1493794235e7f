package discord

import "taskquest/internal/models"

const (
	queueSize      = 256
	maxFieldLength = 1024
	maxFields      = 10

	// Embed colors
	colorGreen  = 0x2ECC71 // Member joined
	colorBlue   = 0x3498DB // Task created
	colorPurple = 0x9B59B6 // Task updated
	colorGold   = 0xFFD700 // Quest created
	colorGray   = 0x95A5A6 // Default/neutral
)

var eventTitles = map[string]string{
	models.EventMemberJoined: "Member joined",
	models.EventTaskCreated:  "Task created",
	models.EventTaskUpdated:  "Task updated",
	models.EventQuestCreated: "Quest created",
}

var eventColors = map[string]int{
	models.EventMemberJoined: colorGreen,
	models.EventTaskCreated:  colorBlue,
	models.EventTaskUpdated:  colorPurple,
	models.EventQuestCreated: colorGold,
}
