package telegram

import (
	"context"
	"strings"

	"taskquest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	b.answer(q.ID, "")
	if q.From == nil || q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID
	ident := identityOf(q.From)
	data := q.Data

	switch {
	case data == cbStartAuth:
		b.send(chatID, msgAuthUsage, authKeyboard())
	case data == cbStartTasks, data == cbViewTasks:
		b.handleTasks(ctx, chatID, ident)
	case data == cbStartHelp:
		b.send(chatID, helpText, nil)
	case data == cbAuthEnterCode:
		b.setPending(ident.ID)
		b.edit(chatID, messageID, msgEnterCode, nil)
	case data == cbViewProfile:
		b.handleInfo(ctx, chatID, ident)
	case data == cbUpdateCancel:
		b.edit(chatID, messageID, msgUpdateCancel, nil)
	case data == cbLeaveConfirm:
		b.confirmLeave(ctx, chatID, messageID, ident)
	case data == cbLeaveCancel:
		b.edit(chatID, messageID, msgLeaveCancel, nil)
	case strings.HasPrefix(data, cbUpdateTaskPref):
		id, ok := parseIDCallback(data, cbUpdateTaskPref)
		if !ok {
			return
		}
		kb := statusKeyboard(id)
		b.edit(chatID, messageID, "📝 <b>Update Task Status</b>\n\nSelect the new status for this task:", &kb)
	case strings.HasPrefix(data, cbStatusPrefix):
		id, status, ok := parseStatusCallback(data)
		if !ok {
			return
		}
		b.statusFromCallback(ctx, chatID, messageID, ident, id, status)
	case strings.HasPrefix(data, cbCompletePrefix):
		id, ok := parseIDCallback(data, cbCompletePrefix)
		if !ok {
			return
		}
		b.statusFromCallback(ctx, chatID, messageID, ident, id, models.StatusCompleted)
	default:
		b.logger.Debug("unknown callback %q from telegram %d", data, ident.ID)
	}
}

func (b *Bot) statusFromCallback(ctx context.Context, chatID int64, messageID int, ident models.TelegramIdentity, taskID int64, status models.TaskStatus) {
	account := b.linkedAccount(ctx, chatID, ident)
	if account == nil {
		return
	}
	b.setStatus(ctx, chatID, messageID, account, taskID, status)
}
