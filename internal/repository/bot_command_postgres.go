package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskquest/internal/models"

	"github.com/lib/pq"
)

type BotCommandPostgres struct {
	db *sql.DB
}

func NewBotCommandPostgres(db *sql.DB) *BotCommandPostgres {
	return &BotCommandPostgres{db: db}
}

func scanBotCommand(row rowScanner) (*models.BotCommand, error) {
	var (
		c        models.BotCommand
		category string
	)
	err := row.Scan(&c.ID, &c.Command, &c.Description, &c.ResponseMessage, &c.IsActive,
		&category, pq.Array(&c.Parameters), &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Category = models.CommandCategory(category)
	return &c, nil
}

func (r *BotCommandPostgres) ListActive(ctx context.Context) ([]models.BotCommand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, command, description, response_message, is_active, category, parameters, created_at
		FROM bot_commands
		WHERE is_active
		ORDER BY category, command
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bot commands: %w", err)
	}
	defer rows.Close()

	var commands []models.BotCommand
	for rows.Next() {
		c, err := scanBotCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bot command: %w", err)
		}
		commands = append(commands, *c)
	}
	return commands, rows.Err()
}

func (r *BotCommandPostgres) GetByCommand(ctx context.Context, command string) (*models.BotCommand, error) {
	c, err := scanBotCommand(r.db.QueryRowContext(ctx, `
		SELECT id, command, description, response_message, is_active, category, parameters, created_at
		FROM bot_commands
		WHERE command = $1 AND is_active
	`, command))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bot command: %w", err)
	}
	return c, nil
}
