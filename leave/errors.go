/*
errors.go - Centralized error types for the leave engine

ERROR CATEGORIES:
  1. Validation errors - InvalidRange, PolicyViolation
  2. Balance errors    - InsufficientBalance, LedgerInvariant
  3. Lifecycle errors  - Conflict, InvalidStateTransition, UnauthorizedTransition
  4. Store errors      - NotFound, ConcurrentModification, duplicates

USAGE:
  Every structured error unwraps to its sentinel:

    if errors.Is(err, leave.ErrConflict) { ... }

    var ise *leave.InvalidStateTransitionError
    if errors.As(err, &ise) { fmt.Println(ise.Current) }
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidRange            = errors.New("invalid date range")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrConflict                = errors.New("overlapping leave request")
	ErrPolicyViolation         = errors.New("policy violation")
	ErrNotFound                = errors.New("not found")
	ErrUnauthorizedTransition  = errors.New("actor not allowed to perform transition")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrConcurrentModification  = errors.New("concurrent modification detected")
	ErrLedgerInvariant         = errors.New("entitlement mutation would break ledger invariant")
	ErrLeaveTypeInUse          = errors.New("leave type is referenced")
	ErrDuplicateEntitlement    = errors.New("entitlement already exists")
	ErrCrossOrganizationAccess = errors.New("entity belongs to another organization")
	ErrAdminRequired           = errors.New("admin role required")
	ErrInvalidInput            = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError is returned when start is after end.
type InvalidRangeError struct {
	Start Date
	End   Date
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is after end %s", e.Start, e.End)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Key       EntitlementKey
	Remaining decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s/%d: remaining %s, requested %s",
		e.Key.UserID, e.Key.LeaveTypeID, e.Key.Year, e.Remaining, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ConflictError reports an overlapping PENDING/APPROVED request.
// When Cause is set the overlap check itself failed and the detector failed
// closed; the caller may retry.
type ConflictError struct {
	UserID     string
	Start      Date
	End        Date
	ExistingID string
	Cause      error
}

func (e *ConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("overlap check unavailable for user %s (%s..%s): %v",
			e.UserID, e.Start, e.End, e.Cause)
	}
	return fmt.Sprintf("leave %s..%s overlaps request %s", e.Start, e.End, e.ExistingID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Retryable is true when the conflict was reported because the check could not run.
func (e *ConflictError) Retryable() bool { return e.Cause != nil }

type ViolationKind string

const (
	ViolationBackdated      ViolationKind = "backdated"
	ViolationMaxConsecutive ViolationKind = "max_consecutive_days"
	ViolationMaxPerYear     ViolationKind = "max_days_per_year"
	ViolationNoticePeriod   ViolationKind = "notice_period"
	ViolationNoWorkingDays  ViolationKind = "no_working_days"
)

// PolicyViolationError names the first rule a submission broke.
type PolicyViolationError struct {
	Kind    ViolationKind
	Message string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Kind, e.Message)
}

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "request", "leave_type", "entitlement", "policy", "user"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnauthorizedTransitionError is returned when the actor may not act on a request.
type UnauthorizedTransitionError struct {
	RequestID string
	ActorID   string
	Action    string
}

func (e *UnauthorizedTransitionError) Error() string {
	return fmt.Sprintf("actor %s may not %s request %s", e.ActorID, e.Action, e.RequestID)
}

func (e *UnauthorizedTransitionError) Unwrap() error { return ErrUnauthorizedTransition }

// InvalidStateTransitionError is returned when the request is no longer PENDING.
type InvalidStateTransitionError struct {
	RequestID string
	Current   Status
	Target    Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("request %s is %s, cannot move to %s", e.RequestID, e.Current, e.Target)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrConcurrentModification) {
		return true
	}
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Retryable()
}

// IsClientError returns true if the error is due to the caller's input or actor.
func IsClientError(err error) bool {
	if IsRetryable(err) {
		return false
	}
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrPolicyViolation) ||
		errors.Is(err, ErrUnauthorizedTransition) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrLeaveTypeInUse) ||
		errors.Is(err, ErrDuplicateEntitlement) ||
		errors.Is(err, ErrCrossOrganizationAccess) ||
		errors.Is(err, ErrAdminRequired) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
