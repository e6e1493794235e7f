package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskquest/internal/models"
)

const taskColumns = `
	id, title, description, completed, status, assignee_id, quest_id,
	priority, deadline, created_by, created_at, updated_at`

type TaskPostgres struct {
	db *sql.DB
}

func NewTaskPostgres(db *sql.DB) *TaskPostgres {
	return &TaskPostgres{db: db}
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t        models.Task
		status   string
		priority string
		deadline sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &status, &t.AssigneeID, &t.QuestID,
		&priority, &deadline, &t.CreatedByID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	t.Deadline = timePtr(deadline)
	return &t, nil
}

func (r *TaskPostgres) list(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *TaskPostgres) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (title, description, completed, status, assignee_id, quest_id, priority, deadline, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+taskColumns,
		t.Title, t.Description, t.Completed, string(t.Status), t.AssigneeID, t.QuestID,
		string(t.Priority), nullTime(t.Deadline), t.CreatedByID)
	created, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", mapError(err))
	}
	return created, nil
}

func (r *TaskPostgres) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (r *TaskPostgres) ListByAssignee(ctx context.Context, accountID int64) ([]models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE assignee_id = $1 ORDER BY created_at DESC, id DESC`, accountID)
}

func (r *TaskPostgres) ListByQuest(ctx context.Context, questID int64) ([]models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE quest_id = $1 ORDER BY created_at DESC, id DESC`, questID)
}

// Update never writes quest_id; the column is guarded by a trigger as well.
func (r *TaskPostgres) Update(ctx context.Context, t *models.Task) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET
			title       = $2,
			description = $3,
			completed   = $4,
			status      = $5,
			assignee_id = $6,
			priority    = $7,
			deadline    = $8,
			updated_at  = NOW()
		WHERE id = $1
	`, t.ID, t.Title, t.Description, t.Completed, string(t.Status), t.AssigneeID,
		string(t.Priority), nullTime(t.Deadline))
	if err != nil {
		return fmt.Errorf("failed to update task: %w", mapError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskPostgres) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskPostgres) ReassignUnfinished(ctx context.Context, questID, fromID, toID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET assignee_id = $3, updated_at = NOW()
		WHERE quest_id = $1 AND assignee_id = $2 AND NOT completed
	`, questID, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign tasks: %w", err)
	}
	return result.RowsAffected()
}

func (r *TaskPostgres) LatestDeadline(ctx context.Context, questID int64) (*time.Time, error) {
	var deadline sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT MAX(deadline) FROM tasks WHERE quest_id = $1`, questID).Scan(&deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest deadline: %w", err)
	}
	return timePtr(deadline), nil
}
