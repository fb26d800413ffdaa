package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by stores, the sync engine and the services.
// Callers test with errors.Is; the concrete sentinels below wrap one of these.
var (
	// ErrNotFound covers both a missing record and a record owned by someone else.
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
	ErrUnauthorized    = errors.New("unauthorized")
)

var (
	ErrInvalidAmount   = fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	ErrNegativeAmount  = fmt.Errorf("%w: amount must not be negative", ErrInvalidArgument)
	ErrAmountTooLarge  = fmt.Errorf("%w: amount exceeds %d cents", ErrInvalidArgument, MaxCents)
	ErrAmountOverflow  = fmt.Errorf("%w: total out of range", ErrInvalidArgument)
	ErrInvalidKind     = fmt.Errorf("%w: kind must be Income or Expense", ErrInvalidArgument)
	ErrEmptyCategory   = fmt.Errorf("%w: empty category", ErrInvalidArgument)
	ErrEmptyGoalName   = fmt.Errorf("%w: empty goal name", ErrInvalidArgument)
	ErrEmptyOwner      = fmt.Errorf("%w: empty owner", ErrInvalidArgument)
	ErrInvalidDate     = fmt.Errorf("%w: invalid date", ErrInvalidArgument)
	ErrNotesTooLong    = fmt.Errorf("%w: notes too long (max %d characters)", ErrInvalidArgument, MaxNotesLength)
	ErrReservedChannel = fmt.Errorf("%w: deposit transactions keep their kind and category", ErrInvalidArgument)
	ErrDuplicateGoal   = fmt.Errorf("%w: goal name already in use", ErrConflict)
)

// Unavailable wraps a storage failure so callers can match ErrUnavailable
// while the underlying cause stays inspectable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
