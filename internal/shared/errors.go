package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies ledger failures so callers can react precisely.
type ErrorKind string

const (
	// KindValidation marks malformed or missing input.
	KindValidation ErrorKind = "VALIDATION"
	// KindCapacity marks a quantity ceiling violation.
	KindCapacity ErrorKind = "CAPACITY"
	// KindClaimConflict marks a fabric cut already held by another entity.
	KindClaimConflict ErrorKind = "CLAIM_CONFLICT"
	// KindStateConflict marks an operation illegal for the current status.
	KindStateConflict ErrorKind = "STATE_CONFLICT"
	// KindNotFound marks a missing entity.
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindUnavailable marks a persistence outage with no partial effect.
	KindUnavailable ErrorKind = "UNAVAILABLE"
)

// LedgerError is the structured error carried across the service boundary.
// Capacity errors include the computed ceiling and the attempted total so the
// caller can show the exact overage; claim conflicts name the holder.
type LedgerError struct {
	Kind      ErrorKind
	Message   string
	Ceiling   decimal.Decimal
	Attempted decimal.Decimal
	HeldBy    string
	Current   string
	Required  string
}

func (e *LedgerError) Error() string {
	return e.Message
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) error {
	return &LedgerError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// CapacityExceeded builds a capacity error with ceiling and attempted total.
func CapacityExceeded(what string, ceiling, attempted decimal.Decimal) error {
	return &LedgerError{
		Kind:      KindCapacity,
		Message:   fmt.Sprintf("%s: attempted %s exceeds ceiling %s", what, attempted.String(), ceiling.String()),
		Ceiling:   ceiling,
		Attempted: attempted,
	}
}

// ClaimConflict builds a conflict error naming the holding entity.
func ClaimConflict(what, heldBy string) error {
	return &LedgerError{
		Kind:    KindClaimConflict,
		Message: fmt.Sprintf("%s already held by %s", what, heldBy),
		HeldBy:  heldBy,
	}
}

// StateConflict builds an error naming current vs required status.
func StateConflict(entity, current, required string) error {
	return &LedgerError{
		Kind:     KindStateConflict,
		Message:  fmt.Sprintf("%s is %s, requires %s", entity, current, required),
		Current:  current,
		Required: required,
	}
}

// NotFound builds a not-found error, distinct from validation failures.
func NotFound(entity string) error {
	return &LedgerError{Kind: KindNotFound, Message: entity + " not found"}
}

// KindOf extracts the ErrorKind from err, or empty string when err is not a
// LedgerError.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
