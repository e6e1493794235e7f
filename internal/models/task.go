package models

import "time"

type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Status      TaskStatus `json:"status"`
	AssigneeID  int64      `json:"assignedTo"`
	QuestID     int64      `json:"quest"`
	Priority    Priority   `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedByID int64      `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type TaskPatch struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Completed   *bool       `json:"completed"`
	Status      *TaskStatus `json:"status"`
	AssigneeID  *int64      `json:"assignedTo"`
	QuestID     *int64      `json:"quest"`
	Priority    *Priority   `json:"priority"`
	Deadline    *time.Time  `json:"deadline"`
}
