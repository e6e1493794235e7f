package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"taskquest/internal/application"
	"taskquest/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func identityOf(u *tgbotapi.User) models.TelegramIdentity {
	return models.TelegramIdentity{ID: u.ID, Username: u.UserName, FirstName: u.FirstName}
}

// send posts an HTML message. markup may be nil.
func (b *Bot) send(chatID int64, text string, markup interface{}) {
	if text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Warn("failed to send message to chat %d: %v", chatID, err)
	}
}

// edit replaces the text of a bot message, falling back to a new message
// when there is nothing to edit.
func (b *Bot) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		if markup != nil {
			b.send(chatID, text, *markup)
		} else {
			b.send(chatID, text, nil)
		}
		return
	}
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = markup
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Warn("failed to edit message %d in chat %d: %v", messageID, chatID, err)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.out.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Debug("failed to answer callback %s: %v", callbackID, err)
	}
}

// linkedAccount returns the account bound to the Telegram user, or nil after
// telling the user to authenticate first.
func (b *Bot) linkedAccount(ctx context.Context, chatID int64, ident models.TelegramIdentity) *models.Account {
	account, err := b.svc.Accounts.GetByTelegramID(ctx, ident.ID)
	if err != nil {
		if !errors.Is(err, application.ErrNotFound) {
			b.logger.Error("failed to load account for telegram %d: %v", ident.ID, err)
			b.send(chatID, msgGenericError, nil)
			return nil
		}
		account = nil
	}
	if account == nil || !account.TelegramLinked {
		b.send(chatID, msgNotLinked, authKeyboard())
		return nil
	}
	return account
}

// setPending marks the user as asked for a code and drops prompts that
// expired unanswered.
func (b *Bot) setPending(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for id, deadline := range b.pending {
		if !now.Before(deadline) {
			delete(b.pending, id)
		}
	}
	b.pending[userID] = now.Add(pendingCodeTTL)
}

// takePending reports whether the user was asked for a code and clears the mark.
func (b *Bot) takePending(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	deadline, ok := b.pending[userID]
	if !ok {
		return false
	}
	delete(b.pending, userID)
	return b.now().Before(deadline)
}

func (b *Bot) clearPending(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, userID)
}

// looksLikeCode matches free text that should be tried as a link code.
func looksLikeCode(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return false
	}
	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, application.AdminCodePrefix) || strings.HasPrefix(upper, application.UserCodePrefix) {
		return true
	}
	return len(text) >= minFreeCodeLength
}

// parseTaskDone recognises "task <n> done" and returns n.
func parseTaskDone(text string) (int, bool) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) != 3 || fields[0] != "task" || fields[2] != "done" {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// parseIndex reads a 1-based task number.
func parseIndex(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// parseStatusCallback splits "status_<id>_<status>".
func parseStatusCallback(data string) (int64, models.TaskStatus, bool) {
	rest := strings.TrimPrefix(data, cbStatusPrefix)
	i := strings.IndexByte(rest, '_')
	if i <= 0 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(rest[:i], 10, 64)
	if err != nil {
		return 0, "", false
	}
	status := models.TaskStatus(rest[i+1:])
	if !status.Valid() {
		return 0, "", false
	}
	return id, status, true
}

func parseIDCallback(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
