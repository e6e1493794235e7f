package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskquest/internal/models"

	"github.com/lib/pq"
)

const questColumns = `
	q.id, q.title, q.description, q.creator_id, q.progress, q.completed, q.completion_date,
	q.invite_code, q.invite_code_expires, q.max_members, q.is_active, q.created_at, q.updated_at,
	COALESCE((SELECT array_agg(m.account_id ORDER BY m.joined_at, m.account_id)
	          FROM quest_members m WHERE m.quest_id = q.id), '{}')`

type QuestPostgres struct {
	db *sql.DB
}

func NewQuestPostgres(db *sql.DB) *QuestPostgres {
	return &QuestPostgres{db: db}
}

func scanQuest(row rowScanner) (*models.Quest, error) {
	var (
		q          models.Quest
		completion sql.NullTime
		code       sql.NullString
		codeExp    sql.NullTime
		maxMembers sql.NullInt64
	)
	err := row.Scan(
		&q.ID, &q.Title, &q.Description, &q.CreatorID, &q.Progress, &q.Completed, &completion,
		&code, &codeExp, &maxMembers, &q.IsActive, &q.CreatedAt, &q.UpdatedAt,
		pq.Array(&q.MemberIDs),
	)
	if err != nil {
		return nil, err
	}
	q.CompletionDate = timePtr(completion)
	q.InviteCode = stringPtr(code)
	q.InviteCodeExpires = timePtr(codeExp)
	if maxMembers.Valid {
		n := int(maxMembers.Int64)
		q.MaxMembers = &n
	}
	return &q, nil
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *QuestPostgres) getOne(ctx context.Context, where string, args ...any) (*models.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests q WHERE ` + where
	q, err := scanQuest(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return q, nil
}

func (r *QuestPostgres) list(ctx context.Context, query string, args ...any) ([]models.Quest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	var quests []models.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

// Create inserts the quest and enrols its creator as the first member.
func (r *QuestPostgres) Create(ctx context.Context, q *models.Quest) (*models.Quest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO quests (title, description, creator_id, completion_date, max_members, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, q.Title, q.Description, q.CreatorID, nullTime(q.CompletionDate), nullInt(q.MaxMembers), q.IsActive).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create quest: %w", mapError(err))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO quest_members (quest_id, account_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, id, q.CreatorID); err != nil {
		return nil, fmt.Errorf("failed to add creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit quest: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *QuestPostgres) GetByID(ctx context.Context, id int64) (*models.Quest, error) {
	return r.getOne(ctx, `q.id = $1`, id)
}

func (r *QuestPostgres) GetActiveByInviteCode(ctx context.Context, code string, now time.Time) (*models.Quest, error) {
	return r.getOne(ctx, `
		q.invite_code = $1 AND q.is_active
		AND (q.invite_code_expires IS NULL OR q.invite_code_expires > $2)`, code, now)
}

func (r *QuestPostgres) FirstActive(ctx context.Context) (*models.Quest, error) {
	return r.getOne(ctx, `q.is_active ORDER BY q.created_at, q.id LIMIT 1`)
}

func (r *QuestPostgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count quests: %w", err)
	}
	return n, nil
}

func (r *QuestPostgres) List(ctx context.Context) ([]models.Quest, error) {
	return r.list(ctx, `SELECT `+questColumns+` FROM quests q ORDER BY q.created_at DESC, q.id DESC`)
}

func (r *QuestPostgres) ListForAccount(ctx context.Context, accountID int64) ([]models.Quest, error) {
	return r.list(ctx, `
		SELECT `+questColumns+`
		FROM quests q
		JOIN quest_members qm ON qm.quest_id = q.id
		WHERE qm.account_id = $1
		ORDER BY qm.joined_at, q.id`, accountID)
}

func (r *QuestPostgres) Update(ctx context.Context, q *models.Quest) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE quests SET
			title           = $2,
			description     = $3,
			progress        = $4,
			completed       = $5,
			completion_date = $6,
			max_members     = $7,
			is_active       = $8,
			updated_at      = NOW()
		WHERE id = $1
	`, q.ID, q.Title, q.Description, q.Progress, q.Completed, nullTime(q.CompletionDate),
		nullInt(q.MaxMembers), q.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", mapError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QuestPostgres) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM quests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quest: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QuestPostgres) InviteCodeExists(ctx context.Context, code string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM quests
			WHERE invite_code = $1 AND (invite_code_expires IS NULL OR invite_code_expires > $2)
		)
	`, code, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check invite code: %w", err)
	}
	return exists, nil
}

func (r *QuestPostgres) SetInviteCode(ctx context.Context, id int64, code string, expires time.Time, maxMembers *int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE quests SET
			invite_code         = $2,
			invite_code_expires = $3,
			max_members         = COALESCE($4, max_members),
			updated_at          = NOW()
		WHERE id = $1
	`, id, code, expires, nullInt(maxMembers))
	if err != nil {
		return fmt.Errorf("failed to set invite code: %w", mapError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QuestPostgres) PurgeExpiredInviteCodes(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quests SET invite_code = NULL, invite_code_expires = NULL
		WHERE invite_code IS NOT NULL AND invite_code_expires <= $1
	`, now)
	if err != nil {
		return fmt.Errorf("failed to purge invite codes: %w", err)
	}
	return nil
}

func (r *QuestPostgres) AddMember(ctx context.Context, questID, accountID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO quest_members (quest_id, account_id) VALUES ($1, $2)
		ON CONFLICT (quest_id, account_id) DO NOTHING
	`, questID, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", mapError(err))
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *QuestPostgres) RemoveMember(ctx context.Context, questID, accountID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM quest_members WHERE quest_id = $1 AND account_id = $2`, questID, accountID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

func (r *QuestPostgres) CountMembers(ctx context.Context, questID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quest_members WHERE quest_id = $1`, questID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

func (r *QuestPostgres) AddMembersWithHistory(ctx context.Context, questID int64, accountIDs []int64, entries []models.QuestCodeEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range accountIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quest_members (quest_id, account_id) VALUES ($1, $2)
			ON CONFLICT (quest_id, account_id) DO NOTHING
		`, questID, id); err != nil {
			return fmt.Errorf("failed to add member %d: %w", id, mapError(err))
		}
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quest_code_history (quest_id, account_id, username, code, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, questID, e.AccountID, e.Username, e.Code, e.CreatedAt, e.ExpiresAt); err != nil {
			return fmt.Errorf("failed to append code history: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE quests SET updated_at = NOW() WHERE id = $1`, questID); err != nil {
		return fmt.Errorf("failed to touch quest: %w", err)
	}

	return tx.Commit()
}

func (r *QuestPostgres) CodeHistory(ctx context.Context, questID int64) ([]models.QuestCodeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT quest_id, account_id, username, code, created_at, expires_at
		FROM quest_code_history
		WHERE quest_id = $1
		ORDER BY created_at, id
	`, questID)
	if err != nil {
		return nil, fmt.Errorf("failed to get code history: %w", err)
	}
	defer rows.Close()

	var entries []models.QuestCodeEntry
	for rows.Next() {
		var e models.QuestCodeEntry
		if err := rows.Scan(&e.QuestID, &e.AccountID, &e.Username, &e.Code, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan code history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
