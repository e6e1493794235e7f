package application

import (
	"context"
	"strings"

	"taskquest/internal/models"
	"taskquest/internal/repository"
)

type BotCommandServiceImpl struct {
	commands    repository.BotCommand
	frontendURL string
}

func NewBotCommandServiceImpl(commands repository.BotCommand, frontendURL string) *BotCommandServiceImpl {
	return &BotCommandServiceImpl{commands: commands, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (s *BotCommandServiceImpl) ListActive(ctx context.Context) ([]models.BotCommand, error) {
	commands, err := s.commands.ListActive(ctx)
	if err != nil {
		return nil, storeErr("list bot commands", err)
	}
	if commands == nil {
		commands = []models.BotCommand{}
	}
	return commands, nil
}

// Render returns the stored response for command with placeholders filled in.
// The bool is false when no active command matches.
func (s *BotCommandServiceImpl) Render(ctx context.Context, command, username string) (string, bool, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(command)), "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	c, err := s.commands.GetByCommand(ctx, name)
	if err != nil {
		return "", false, storeErr("get bot command", err)
	}
	if c == nil {
		return "", false, nil
	}
	if username == "" {
		username = "there"
	}
	text := strings.NewReplacer("{username}", username, "[FRONTEND_URL]", s.frontendURL).Replace(c.ResponseMessage)
	return text, true, nil
}
