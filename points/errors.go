/*
errors.go - Error taxonomy shared by every domain package

PURPOSE:
  All error kinds in one place. Domain packages return these sentinels or
  the structured errors below (which unwrap to a sentinel), so callers can
  classify any failure with errors.Is and the API can map it to a stable
  kind string plus a human-readable message.

ERROR KINDS:
  NotFound, InvalidInput, SelfRecognition, CategoryInactive,
  BudgetExceeded, InsufficientPoints, RewardUnavailable, Unauthorized,
  TransferFailed. Anything else is Internal.

SEE ALSO:
  - api/handlers.go: KindOf → HTTP status
*/
package points

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrSelfRecognition    = errors.New("cannot send recognition to yourself")
	ErrCategoryInactive   = errors.New("recognition category is not active")
	ErrBudgetExceeded     = errors.New("points exceed maximum allowed or insufficient allocation points")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrRewardUnavailable  = errors.New("reward not available")
	ErrUnauthorized       = errors.New("unauthorized")

	// ErrTransferFailed is returned when a multi-step ledger operation could
	// not commit. Nothing from the operation is left applied.
	ErrTransferFailed = errors.New("transfer failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError for the given entity and id.
func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type InsufficientPointsError struct {
	UserID    UserID
	Pool      Pool
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient %s points: available %d, requested %d",
		e.Pool, e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

type BudgetExceededError struct {
	Points            int64
	Available         int64
	MaxPerRecognition int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%v: requested %d, allocation %d, max per recognition %d",
		ErrBudgetExceeded, e.Points, e.Available, e.MaxPerRecognition)
}

func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Kind names returned by KindOf.
const (
	KindNotFound           = "NotFound"
	KindInvalidInput       = "InvalidInput"
	KindSelfRecognition    = "SelfRecognition"
	KindCategoryInactive   = "CategoryInactive"
	KindBudgetExceeded     = "BudgetExceeded"
	KindInsufficientPoints = "InsufficientPoints"
	KindRewardUnavailable  = "RewardUnavailable"
	KindUnauthorized       = "Unauthorized"
	KindTransferFailed     = "TransferFailed"
	KindInternal           = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, KindNotFound},
	{ErrInvalidInput, KindInvalidInput},
	{ErrSelfRecognition, KindSelfRecognition},
	{ErrCategoryInactive, KindCategoryInactive},
	{ErrBudgetExceeded, KindBudgetExceeded},
	{ErrInsufficientPoints, KindInsufficientPoints},
	{ErrRewardUnavailable, KindRewardUnavailable},
	{ErrUnauthorized, KindUnauthorized},
	{ErrTransferFailed, KindTransferFailed},
}

// KindOf returns the stable kind string for err. Unrecognized errors are Internal.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsClientError returns true if the error is due to the caller's request
// rather than a system failure.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInternal, KindTransferFailed, "":
		return false
	}
	return true
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
