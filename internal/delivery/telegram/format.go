package telegram

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"taskquest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var statusEmoji = map[models.TaskStatus]string{
	models.StatusCompleted:  "✅",
	models.StatusInProgress: "🔄",
	models.StatusNotStarted: "⏳",
}

var priorityEmoji = map[models.Priority]string{
	models.PriorityHigh:   "🔴",
	models.PriorityMedium: "🟡",
	models.PriorityLow:    "🟢",
}

func statusLabel(s models.TaskStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// taskView is a task with the names the chat shows next to it.
type taskView struct {
	models.Task
	QuestTitle string
	Creator    string
}

func formatTaskList(tasks []taskView) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 <b>Your Tasks (%d)</b>\n", len(tasks)))
	for i, t := range tasks {
		sb.WriteString(fmt.Sprintf("\n%d. %s <b>%s</b>\n", i+1, statusEmoji[t.Status], html.EscapeString(t.Title)))
		sb.WriteString(fmt.Sprintf("   %s %s · %s\n", priorityEmoji[t.Priority], t.Priority, statusLabel(t.Status)))
		if t.QuestTitle != "" {
			sb.WriteString(fmt.Sprintf("   📁 %s\n", html.EscapeString(t.QuestTitle)))
		}
		if t.Deadline != nil {
			sb.WriteString(fmt.Sprintf("   📅 due %s\n", t.Deadline.Format(time.DateOnly)))
		}
	}
	sb.WriteString("\n💡 Type <code>task 1 done</code> or use /task &lt;number&gt; for details.")
	return sb.String()
}

func formatTaskDetails(n int, t taskView) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📝 <b>Task %d: %s</b>\n\n", n, html.EscapeString(t.Title)))
	if t.Description != "" {
		sb.WriteString(html.EscapeString(t.Description) + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("%s <b>Status:</b> %s\n", statusEmoji[t.Status], statusLabel(t.Status)))
	sb.WriteString(fmt.Sprintf("%s <b>Priority:</b> %s\n", priorityEmoji[t.Priority], t.Priority))
	if t.QuestTitle != "" {
		sb.WriteString(fmt.Sprintf("📁 <b>Quest:</b> %s\n", html.EscapeString(t.QuestTitle)))
	}
	if t.Creator != "" {
		sb.WriteString(fmt.Sprintf("👤 <b>Created by:</b> %s\n", html.EscapeString(t.Creator)))
	}
	if t.Deadline != nil {
		sb.WriteString(fmt.Sprintf("📅 <b>Due:</b> %s\n", t.Deadline.Format(time.DateOnly)))
	}
	sb.WriteString(fmt.Sprintf("🕒 <b>Created:</b> %s\n", t.CreatedAt.Format(time.DateOnly)))
	return sb.String()
}

type profile struct {
	Account *models.Account
	Quests  []models.Quest
	Managed []managedQuest
	Tasks   []models.Task
}

type managedQuest struct {
	Title   string
	Members int
	Linked  int
}

func formatProfile(p profile) string {
	a := p.Account
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 <b>%s</b>\n\n", html.EscapeString(a.Username)))
	sb.WriteString(fmt.Sprintf("🎭 <b>Role:</b> %s\n", a.Role))
	sb.WriteString("🔗 <b>Telegram:</b> ✅ linked\n")
	sb.WriteString(fmt.Sprintf("⭐ <b>Performance score:</b> %d\n", a.PerformanceScore))
	sb.WriteString(fmt.Sprintf("📅 <b>Member since:</b> %s\n", a.CreatedAt.Format(time.DateOnly)))

	if len(p.Quests) > 0 {
		sb.WriteString(fmt.Sprintf("\n🎯 <b>Quests (%d):</b>\n", len(p.Quests)))
		for i, q := range p.Quests {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, html.EscapeString(q.Title)))
		}
	}

	if a.IsAdmin() && len(p.Managed) > 0 {
		sb.WriteString(fmt.Sprintf("\n👑 <b>Managing (%d):</b>\n", len(p.Managed)))
		for i, q := range p.Managed {
			sb.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   👥 %d members (%d on Telegram)\n",
				i+1, html.EscapeString(q.Title), q.Members, q.Linked))
		}
	}

	if len(p.Tasks) == 0 {
		sb.WriteString("\n📋 <b>Tasks:</b> none assigned yet\n")
	} else {
		counts := make(map[models.TaskStatus]int)
		for _, t := range p.Tasks {
			counts[t.Status]++
		}
		sb.WriteString("\n📋 <b>Task summary:</b>\n")
		sb.WriteString(fmt.Sprintf("✅ Completed: %d\n", counts[models.StatusCompleted]))
		sb.WriteString(fmt.Sprintf("🔄 In progress: %d\n", counts[models.StatusInProgress]))
		sb.WriteString(fmt.Sprintf("⏳ Not started: %d\n", counts[models.StatusNotStarted]))
		sb.WriteString(fmt.Sprintf("📊 Total: %d\n", len(p.Tasks)))

		recent := append([]models.Task(nil), p.Tasks...)
		sort.SliceStable(recent, func(i, j int) bool { return recent[i].UpdatedAt.After(recent[j].UpdatedAt) })
		if len(recent) > recentTaskCount {
			recent = recent[:recentTaskCount]
		}
		sb.WriteString("\n📝 <b>Recent:</b>\n")
		for i, t := range recent {
			sb.WriteString(fmt.Sprintf("%d. %s %s\n", i+1, statusEmoji[t.Status], html.EscapeString(t.Title)))
		}
	}

	sb.WriteString("\n💡 /tasks - your tasks · /help - all commands")
	return sb.String()
}

func formatLinked(res redeemView) string {
	var sb strings.Builder
	sb.WriteString("✅ <b>Successfully Authenticated!</b>\n\n")
	sb.WriteString(fmt.Sprintf("👤 <b>Welcome:</b> %s\n", html.EscapeString(res.Username)))
	sb.WriteString(fmt.Sprintf("🎭 <b>Role:</b> %s\n", res.Role))
	if res.QuestTitle != "" {
		sb.WriteString(fmt.Sprintf("🎯 <b>Quest:</b> %s\n", html.EscapeString(res.QuestTitle)))
	}
	if res.IsNew {
		sb.WriteString("\n🆕 A new account was created for you.\n")
	}
	sb.WriteString("\n🔗 Your Telegram account is now linked!\n\n")
	if res.Role == models.RoleAdmin {
		sb.WriteString("Create tasks and follow progress on the dashboard.")
	} else {
		sb.WriteString("Use /tasks to see your assigned tasks.")
	}
	return sb.String()
}

type redeemView struct {
	Username   string
	Role       models.Role
	QuestTitle string
	IsNew      bool
}

func formatAbout(frontendURL string) string {
	text := "ℹ️ <b>About TaskQuest</b>\n\n" +
		"TaskQuest organizes team work into quests with tasks, members and progress tracking.\n\n" +
		"This bot lets you link your account, follow your tasks and update their status."
	if frontendURL != "" {
		text += fmt.Sprintf("\n\n🌐 Dashboard: %s/dashboard", html.EscapeString(frontendURL))
	}
	return text
}

func startKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔐 Authenticate", cbStartAuth)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 My Tasks", cbStartTasks)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❓ Help", cbStartHelp)),
	)
}

func authKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔑 Enter Code", cbAuthEnterCode)),
	)
}

func linkedKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 View Tasks", cbViewTasks),
			tgbotapi.NewInlineKeyboardButtonData("👤 Profile", cbViewProfile),
		),
	)
}

func taskListKeyboard(tasks []taskView) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, t := range tasks {
		if t.Status == models.StatusCompleted {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ Complete Task %d", i+1), fmt.Sprintf("%s%d", cbCompletePrefix, t.ID)),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func updateMenuKeyboard(tasks []models.Task) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks)+1)
	for i, t := range tasks {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. %s (%s)", i+1, t.Title, statusLabel(t.Status)), fmt.Sprintf("%s%d", cbUpdateTaskPref, t.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("↩️ Cancel", cbUpdateCancel)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func statusKeyboard(taskID int64) tgbotapi.InlineKeyboardMarkup {
	button := func(label string, s models.TaskStatus) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d_%s", cbStatusPrefix, taskID, s))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("✅ Mark Complete", models.StatusCompleted)),
		tgbotapi.NewInlineKeyboardRow(button("🔄 In Progress", models.StatusInProgress)),
		tgbotapi.NewInlineKeyboardRow(button("⏳ Not Started", models.StatusNotStarted)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("↩️ Cancel", cbUpdateCancel)),
	)
}

func leaveKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Yes, leave", cbLeaveConfirm)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("↩️ Cancel", cbLeaveCancel)),
	)
}
