package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskquest/internal/models"

	"github.com/lib/pq"
)

const accountColumns = `
	a.id, a.username, a.email, a.phone, a.role, a.is_first_user, a.firebase_uid,
	a.performance_score, a.telegram_id, a.telegram_username, a.telegram_linked,
	a.link_code, a.link_code_expires, a.created_at, a.updated_at,
	COALESCE((SELECT array_agg(m.quest_id ORDER BY m.joined_at, m.quest_id)
	          FROM quest_members m WHERE m.account_id = a.id), '{}')`

type rowScanner interface {
	Scan(dest ...any) error
}

type AccountPostgres struct {
	db    *sql.DB
	cache *AccountCache
}

func NewAccountPostgres(db *sql.DB, cache *AccountCache) *AccountPostgres {
	return &AccountPostgres{db: db, cache: cache}
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a          models.Account
		phone      sql.NullString
		uid        sql.NullString
		telegramID sql.NullInt64
		linkCode   sql.NullString
		linkExp    sql.NullTime
		role       string
	)
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &phone, &role, &a.IsFirstUser, &uid,
		&a.PerformanceScore, &telegramID, &a.TelegramUsername, &a.TelegramLinked,
		&linkCode, &linkExp, &a.CreatedAt, &a.UpdatedAt,
		pq.Array(&a.QuestIDs),
	)
	if err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	a.Phone = stringPtr(phone)
	a.FirebaseUID = stringPtr(uid)
	a.LinkCode = stringPtr(linkCode)
	a.LinkCodeExpires = timePtr(linkExp)
	if telegramID.Valid {
		id := telegramID.Int64
		a.TelegramID = &id
	}
	return &a, nil
}

func (r *AccountPostgres) getOne(ctx context.Context, where string, args ...any) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE ` + where
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *AccountPostgres) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	var telegramID sql.NullInt64
	if a.TelegramID != nil {
		telegramID = sql.NullInt64{Int64: *a.TelegramID, Valid: true}
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (username, email, phone, role, is_first_user, firebase_uid,
		                      telegram_id, telegram_username, telegram_linked)
		SELECT $1, $2, $3,
		       CASE WHEN f.first THEN 'ADMIN' ELSE 'USER' END,
		       f.first, $4, $5, $6, $7
		FROM (SELECT NOT EXISTS (SELECT 1 FROM accounts) AS first) f
		RETURNING id
	`, a.Username, strings.ToLower(a.Email), nullString(a.Phone), nullString(a.FirebaseUID),
		telegramID, a.TelegramUsername, a.TelegramLinked).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", mapError(err))
	}

	created, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if created != nil && created.TelegramID != nil {
		r.cache.Set(*created.TelegramID, created.ID)
	}
	return created, nil
}

func (r *AccountPostgres) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.getOne(ctx, `a.id = $1`, id)
}

func (r *AccountPostgres) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `a.email = $1`, strings.ToLower(email))
}

func (r *AccountPostgres) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.getOne(ctx, `a.username = $1`, username)
}

func (r *AccountPostgres) GetByPhone(ctx context.Context, phone string) (*models.Account, error) {
	return r.getOne(ctx, `a.phone = $1`, phone)
}

func (r *AccountPostgres) GetByFirebaseUID(ctx context.Context, uid string) (*models.Account, error) {
	return r.getOne(ctx, `a.firebase_uid = $1`, uid)
}

func (r *AccountPostgres) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error) {
	if id, ok := r.cache.Get(telegramID); ok {
		a, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if a != nil && a.TelegramID != nil && *a.TelegramID == telegramID {
			return a, nil
		}
		r.cache.Delete(telegramID)
	}

	a, err := r.getOne(ctx, `a.telegram_id = $1`, telegramID)
	if err != nil || a == nil {
		return a, err
	}
	r.cache.Set(telegramID, a.ID)
	return a, nil
}

func (r *AccountPostgres) GetByTelegramUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.getOne(ctx, `a.telegram_username = $1 ORDER BY a.id LIMIT 1`, username)
}

func (r *AccountPostgres) GetByLinkCode(ctx context.Context, code string, now time.Time) (*models.Account, error) {
	return r.getOne(ctx, `a.link_code = $1 AND a.link_code_expires > $2`, code, now)
}

func (r *AccountPostgres) List(ctx context.Context) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts a ORDER BY a.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *AccountPostgres) Update(ctx context.Context, id int64, patch models.AccountPatch) error {
	var email sql.NullString
	if patch.Email != nil {
		email = sql.NullString{String: strings.ToLower(*patch.Email), Valid: true}
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			username     = COALESCE($2, username),
			email        = COALESCE($3, email),
			phone        = COALESCE($4, phone),
			firebase_uid = COALESCE($5, firebase_uid),
			updated_at   = NOW()
		WHERE id = $1
	`, id, nullString(patch.Username), email, nullString(patch.Phone), nullString(patch.FirebaseUID))
	if err != nil {
		return fmt.Errorf("failed to update account: %w", mapError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountPostgres) Delete(ctx context.Context, id int64) error {
	var telegramID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `DELETE FROM accounts WHERE id = $1 RETURNING telegram_id`, id).Scan(&telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if telegramID.Valid {
		r.cache.Delete(telegramID.Int64)
	}
	return nil
}

func (r *AccountPostgres) LinkCodeExists(ctx context.Context, code string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE link_code = $1 AND link_code_expires > $2)
	`, code, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check link code: %w", err)
	}
	return exists, nil
}

func (r *AccountPostgres) SetLinkCode(ctx context.Context, id int64, code string, expires time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET link_code = $2, link_code_expires = $3, updated_at = NOW()
		WHERE id = $1
	`, id, code, expires)
	if err != nil {
		return fmt.Errorf("failed to set link code: %w", mapError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountPostgres) PurgeExpiredLinkCodes(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET link_code = NULL, link_code_expires = NULL
		WHERE link_code IS NOT NULL AND link_code_expires <= $1
	`, now)
	if err != nil {
		return fmt.Errorf("failed to purge link codes: %w", err)
	}
	return nil
}

// LinkTelegram binds identity to the account. A non-empty linkCode is
// consumed and must still be the account's current code.
func (r *AccountPostgres) LinkTelegram(ctx context.Context, id int64, identity models.TelegramIdentity, linkCode string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			telegram_id       = $2,
			telegram_username = $3,
			telegram_linked   = TRUE,
			link_code         = CASE WHEN $4 <> '' THEN NULL ELSE link_code END,
			link_code_expires = CASE WHEN $4 <> '' THEN NULL ELSE link_code_expires END,
			updated_at        = NOW()
		WHERE id = $1 AND ($4 = '' OR link_code = $4)
	`, id, identity.ID, identity.Username, linkCode)
	if err != nil {
		return fmt.Errorf("failed to link telegram: %w", mapError(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	r.cache.Set(identity.ID, id)
	return nil
}
