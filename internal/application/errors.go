package application

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("service unavailable")
)

var (
	ErrRoleImmutable      = fmt.Errorf("%w: account role cannot be changed", ErrValidation)
	ErrTaskQuestImmutable = fmt.Errorf("%w: task quest cannot be changed", ErrValidation)
	ErrDeadlineAfterQuest = fmt.Errorf("%w: task deadline is after the quest completion date", ErrValidation)
	ErrQuestLimit         = fmt.Errorf("%w: only one quest is allowed", ErrConflict)
	ErrQuestFull          = fmt.Errorf("%w: quest has reached its member limit", ErrConflict)
	ErrCodeSpaceExhausted = errors.New("could not generate a unique code")
)

func validationf(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, v...))
}
