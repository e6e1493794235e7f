package application

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"taskquest/internal/models"
	"taskquest/internal/repository"
)

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", validationf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validationf("invalid email %q", raw)
	}
	return email, nil
}

// handleFromEmail derives a username from the local part of an email.
func handleFromEmail(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i >= 0 {
		local = email[:i]
	}
	return sanitizeHandle(local)
}

func sanitizeHandle(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

func disambiguate(handle string, now time.Time) string {
	return fmt.Sprintf("%s_%d", handle, now.UnixNano()%1_000_000)
}

func deepLink(botUsername, code string) string {
	return fmt.Sprintf(deepLinkFormat, botUsername, code)
}

// createAccount inserts a, and on a duplicate-key race first tries to resolve
// the account that won it, then retries once under a disambiguated handle.
func createAccount(ctx context.Context, repo repository.Account, a *models.Account, now time.Time,
	resolve func(ctx context.Context) (*models.Account, error)) (*models.Account, bool, error) {

	created, err := repo.Create(ctx, a)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, false, err
	}

	if resolve != nil {
		existing, rerr := resolve(ctx)
		if rerr != nil {
			return nil, false, rerr
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	retry := *a
	retry.Username = disambiguate(a.Username, now)
	created, err = repo.Create(ctx, &retry)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, false, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, false, err
	}
	return created, true, nil
}

// storeErr converts repository sentinels into application errors.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	case errors.Is(err, repository.ErrConstraint):
		return fmt.Errorf("%s: %w: %v", op, ErrValidation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func canManageQuest(requester *models.Account, quest *models.Quest) bool {
	return requester != nil && quest != nil && (quest.CreatorID == requester.ID || requester.IsAdmin())
}

func canViewQuest(requester *models.Account, quest *models.Quest) bool {
	return canManageQuest(requester, quest) || (requester != nil && quest != nil && quest.HasMember(requester.ID))
}
