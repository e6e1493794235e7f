package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"taskquest/internal/application"
	"taskquest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleStart(ctx context.Context, chatID int64, ident models.TelegramIdentity, args string) {
	args = strings.TrimSpace(args)
	if strings.HasPrefix(args, startAuthPrefix) {
		b.redeem(ctx, chatID, ident, strings.TrimPrefix(args, startAuthPrefix))
		return
	}

	text, ok, err := b.svc.BotCommands.Render(ctx, "start", ident.DisplayName())
	if err != nil {
		b.logger.Warn("failed to render start command: %v", err)
	}
	if !ok || err != nil {
		text = fmt.Sprintf("Welcome to TaskQuest, %s!", ident.DisplayName())
	}
	b.send(chatID, "🎯 "+html.EscapeString(text), startKeyboard())
}

func (b *Bot) handleAuth(ctx context.Context, chatID int64, ident models.TelegramIdentity, args string) {
	code := strings.TrimSpace(args)
	if code == "" {
		b.send(chatID, msgAuthUsage, authKeyboard())
		return
	}
	b.redeem(ctx, chatID, ident, code)
}

func (b *Bot) redeem(ctx context.Context, chatID int64, ident models.TelegramIdentity, code string) {
	res, err := b.svc.Links.Redeem(ctx, code, ident)
	if err != nil {
		b.logger.Error("redeem failed for telegram %d: %v", ident.ID, err)
	}
	if res == nil || !res.Success {
		reason := application.ReasonInternal
		if res != nil && res.Reason != "" {
			reason = res.Reason
		}
		b.send(chatID, "❌ <b>Authentication Failed</b>\n\n"+html.EscapeString(reason), authKeyboard())
		return
	}

	view := redeemView{
		Username: res.Account.Username,
		Role:     res.Account.Role,
		IsNew:    res.IsNewAccount,
	}
	if res.Quest != nil {
		view.QuestTitle = res.Quest.Title
	}
	b.send(chatID, formatLinked(view), linkedKeyboard())
}

// taskViews lists the account's tasks newest first with quest and creator names.
func (b *Bot) taskViews(ctx context.Context, account *models.Account) ([]taskView, error) {
	tasks, err := b.svc.Tasks.ListForAssignee(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	quests, err := b.svc.Quests.ListForAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	titles := make(map[int64]string, len(quests))
	for _, q := range quests {
		titles[q.ID] = q.Title
	}

	creators := make(map[int64]string)
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		name, ok := creators[t.CreatedByID]
		if !ok {
			if c, err := b.svc.Accounts.Get(ctx, t.CreatedByID); err == nil {
				name = c.Username
			}
			creators[t.CreatedByID] = name
		}
		views = append(views, taskView{Task: t, QuestTitle: titles[t.QuestID], Creator: name})
	}
	return views, nil
}

func (b *Bot) handleTasks(ctx context.Context, chatID int64, ident models.TelegramIdentity) {
	account := b.linkedAccount(ctx, chatID, ident)
	if account == nil {
		return
	}
	views, err := b.taskViews(ctx, account)
	if err != nil {
		b.logger.Error("failed to list tasks for account %d: %v", account.ID, err)
		b.send(chatID, msgGenericError, nil)
		return
	}
	if len(views) == 0 {
		b.send(chatID, msgNoTasks, nil)
		return
	}

	if kb := taskListKeyboard(views); kb != nil {
		b.send(chatID, formatTaskList(views), *kb)
		return
	}
	b.send(chatID, formatTaskList(views), nil)
}

func (b *Bot) handleTask(ctx context.Context, chatID int64, ident models.TelegramIdentity, args string) {
	n, ok := parseIndex(args)
	if !ok {
		b.send(chatID, msgTaskUsage, nil)
		return
	}
	account := b.linkedAccount(ctx, chatID, ident)
	if account == nil {
		return
	}
	views, err := b.taskViews(ctx, account)
	if err != nil {
		b.logger.Error("failed to list tasks for account %d: %v", account.ID, err)
		b.send(chatID, msgGenericError, nil)
		return
	}
	if n > len(views) {
		b.send(chatID, msgTaskNotFound, nil)
		return
	}
	t := views[n-1]
	b.send(chatID, formatTaskDetails(n, t), statusKeyboard(t.ID))
}

// completeByIndex handles "task <n> done".
func (b *Bot) completeByIndex(ctx context.Context, chatID int64, ident models.TelegramIdentity, n int) {
	account := b.linkedAccount(ctx, chatID, ident)
	if account == nil {
		return
	}
	tasks, err := b.svc.Tasks.ListForAssignee(ctx, account.ID)
	if err != nil {
		b.logger.Error("failed to list tasks for account %d: %v", account.ID, err)
		b.send(chatID, msgGenericError, nil)
		return
	}
	if n > len(tasks) {
		b.send(chatID, msgTaskNotFound, nil)
		return
	}
	b.setStatus(ctx, chatID, 0, account, tasks[n-1].ID, models.StatusCompleted)
}

func (b *Bot) handleUpdateMenu(ctx context.Context, chatID int64, messageID int, ident models.TelegramIdentity) {
	account := b.linkedAccount(ctx, chatID, ident)
	if account == nil {
		return
	}
	tasks, err := b.svc.Tasks.ListForAssignee(ctx, account.ID)
	if err != nil {
		b.logger.Error("failed to list tasks for account %d: %v", account.ID, err)
		b.send(chatID, msgGenericError, nil)
		return
	}
	if len(tasks) == 0 {
		b.edit(chatID, messageID, msgNoTasksToSet, nil)
		return
	}
	kb := updateMenuKeyboard(tasks)
	b.edit(chatID, messageID, "📝 <b>Update Task Status</b>\n\nSelect a task to update:", &kb)
}

func (b *Bot) setStatus(ctx context.Context, chatID int64, messageID int, account *models.Account, taskID int64, status models.TaskStatus) {
	t, err := b.svc.Tasks.UpdateStatus(ctx, account.ID, taskID, status)
	switch {
	case errors.Is(err, application.ErrNotFound), errors.Is(err, application.ErrForbidden):
		b.edit(chatID, messageID, "❌ That task is not assigned to you.", nil)
		return
	case err != nil:
		b.logger.Error("failed to update task %d for account %d: %v", taskID, account.ID, err)
		b.edit(chatID, messageID, "❌ Failed to update the task. Please try again later.", nil)
		return
	}
	b.edit(chatID, messageID, fmt.Sprintf("✅ Task <b>%s</b> updated.\n\nStatus: <b>%s</b>",
		html.EscapeString(t.Title), statusLabel(t.Status)), nil)
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, ident models.TelegramIdentity) {
	account := b.linkedAccount(ctx, chatID, ident)
	if account == nil {
		return
	}
	p, err := b.profile(ctx, account)
	if err != nil {
		b.logger.Error("failed to build profile for account %d: %v", account.ID, err)
		b.send(chatID, msgGenericError, nil)
		return
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 View Tasks", cbViewTasks)),
	}
	if account.IsAdmin() && b.frontendURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🎯 Quest Dashboard", b.frontendURL+"/dashboard"),
		))
	}
	b.send(chatID, formatProfile(p), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) profile(ctx context.Context, account *models.Account) (profile, error) {
	p := profile{Account: account}

	quests, err := b.svc.Quests.ListForAccount(ctx, account.ID)
	if err != nil {
		return p, err
	}
	p.Quests = quests

	if account.IsAdmin() {
		for _, q := range quests {
			if q.CreatorID != account.ID || !q.IsActive {
				continue
			}
			members, err := b.svc.Quests.Members(ctx, account.ID, q.ID)
			if err != nil {
				return p, err
			}
			m := managedQuest{Title: q.Title, Members: len(members)}
			for _, member := range members {
				if member.TelegramLinked {
					m.Linked++
				}
			}
			p.Managed = append(p.Managed, m)
		}
	}

	p.Tasks, err = b.svc.Tasks.ListForAssignee(ctx, account.ID)
	return p, err
}

func (b *Bot) handleLeave(chatID int64, ident models.TelegramIdentity) {
	text := fmt.Sprintf("⚠️ <b>Leave Quest</b>\n\n%s, are you sure you want to leave your quests?\n\n"+
		"• Your unfinished tasks go back to the quest creators\n"+
		"• You will need a new code to rejoin", html.EscapeString(ident.DisplayName()))
	b.send(chatID, text, leaveKeyboard())
}

func (b *Bot) confirmLeave(ctx context.Context, chatID int64, messageID int, ident models.TelegramIdentity) {
	account := b.linkedAccount(ctx, chatID, ident)
	if account == nil {
		return
	}
	left, err := b.svc.Quests.Leave(ctx, account.ID)
	if err != nil {
		b.logger.Error("account %d failed to leave quests: %v", account.ID, err)
		b.edit(chatID, messageID, msgGenericError, nil)
		return
	}
	if left == 0 {
		b.edit(chatID, messageID, "ℹ️ You are not in any quest you can leave.", nil)
		return
	}
	b.edit(chatID, messageID, fmt.Sprintf("👋 You left %d quest(s). Your unfinished tasks went back to the quest creators.", left), nil)
}

func (b *Bot) handleAbout(chatID int64) {
	if b.frontendURL == "" {
		b.send(chatID, formatAbout(""), nil)
		return
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("🌐 Open Dashboard", b.frontendURL+"/dashboard"),
	))
	b.send(chatID, formatAbout(b.frontendURL), kb)
}

// handleCustomCommand answers commands that only exist in the command table.
func (b *Bot) handleCustomCommand(ctx context.Context, chatID int64, ident models.TelegramIdentity, command string) {
	text, ok, err := b.svc.BotCommands.Render(ctx, command, ident.DisplayName())
	if err != nil {
		b.logger.Error("failed to render command %s: %v", command, err)
		b.send(chatID, msgGenericError, nil)
		return
	}
	if !ok {
		b.send(chatID, "❓ Unknown command. Try /help to see what I can do.", nil)
		return
	}
	b.send(chatID, html.EscapeString(text), nil)
}

func (b *Bot) handleText(ctx context.Context, chatID int64, ident models.TelegramIdentity, text string) {
	text = strings.TrimSpace(text)

	if b.takePending(ident.ID) {
		b.redeem(ctx, chatID, ident, text)
		return
	}
	if n, ok := parseTaskDone(text); ok {
		b.completeByIndex(ctx, chatID, ident, n)
		return
	}
	if looksLikeCode(text) {
		b.redeem(ctx, chatID, ident, text)
		return
	}
	b.send(chatID, msgUnknownText, nil)
}
