package log

import (
	"context"
	"errors"

	"savetrack/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldOwnerID       = "owner_id"
	FieldGoalID        = "goal_id"
	FieldGoalName      = "goal_name"
	FieldTransactionID = "transaction_id"
	FieldKind          = "kind"
	FieldCategory      = "category"
	FieldChannel       = "channel"
	FieldAmountCents   = "amount_cents"
	FieldDeltaCents    = "delta_cents"
	FieldCurrentCents  = "current_cents"
	FieldTargetCents   = "target_cents"
	FieldStatus        = "status"
	FieldEventID       = "event_id"
	FieldEventType     = "event_type"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentGoals   = "goals"
	ComponentDeposit = "deposit"
	ComponentSync    = "goalsync"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentOutbox  = "outbox"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpApply    = "apply"
	OpReverse  = "reverse"
	OpDeposit  = "deposit"
	OpPublish  = "publish"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// ErrorType maps an error onto the ErrorType* categories.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorTypeTimeout
	case errors.Is(err, core.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, core.ErrInvalidArgument):
		return ErrorTypeValidation
	case errors.Is(err, core.ErrConflict):
		return ErrorTypeConflict
	case errors.Is(err, core.ErrUnauthorized):
		return ErrorTypeAuth
	case errors.Is(err, core.ErrUnavailable):
		return ErrorTypeDatabase
	default:
		return ErrorTypeInternal
	}
}

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithOwner adds owner ID field
func (f LogFields) WithOwner(ownerID string) LogFields {
	f[FieldOwnerID] = ownerID
	return f
}

// WithError adds the error and its category
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = ErrorType(err)
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds transaction-related fields
func (f LogFields) WithTransaction(t core.Transaction) LogFields {
	f[FieldTransactionID] = t.ID
	f[FieldOwnerID] = t.OwnerID
	f[FieldKind] = string(t.Kind)
	f[FieldCategory] = t.Category
	f[FieldAmountCents] = t.Amount.Cents
	if t.Channel != core.ChannelNone {
		f[FieldChannel] = string(t.Channel)
	}
	return f
}

// WithGoal adds goal-related fields
func (f LogFields) WithGoal(g core.Goal) LogFields {
	f[FieldGoalID] = g.ID
	f[FieldGoalName] = g.Name
	f[FieldCurrentCents] = g.Current.Cents
	f[FieldTargetCents] = g.Target.Cents
	f[FieldStatus] = string(g.Status)
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
