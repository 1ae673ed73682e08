/*
store.go - Persistence interfaces supplied by the caller

PURPOSE:
  The engine depends only on these contracts, never on a storage technology.
  Implementations live in leave/store (memory), store/sqlite and store/postgres.

KEY INTERFACES:
  Repository:       Everything the engine reads and writes
  Transactor:       Optional; runs a unit of work atomically
  EntitlementStore: Owns the single atomic conditional mutation

TRANSACTIONS:
  When the Repository also implements Transactor, each engine operation runs
  inside WithTx so the overlap query and the balance reservation see the same
  snapshot. Without it the engine still works, and Submit relies on its
  compensating release if the request insert fails.

NOT FOUND:
  Getters return *NotFoundError (errors.Is(err, ErrNotFound)) for missing rows.
*/
package leave

import "context"

// =============================================================================
// REPOSITORY - Interface for engine persistence
// =============================================================================

type UserReader interface {
	GetUserByID(ctx context.Context, id string) (User, error)
}

type LeaveTypeStore interface {
	CreateLeaveType(ctx context.Context, lt LeaveType) error
	GetLeaveType(ctx context.Context, id string) (LeaveType, error)
	UpdateLeaveType(ctx context.Context, lt LeaveType) error
	DeleteLeaveType(ctx context.Context, id string) error
	ListLeaveTypes(ctx context.Context, organizationID string) ([]LeaveType, error)

	// LeaveTypeInUse reports whether any entitlement or request references the type.
	LeaveTypeInUse(ctx context.Context, id string) (bool, error)
}

type PolicyStore interface {
	SavePolicy(ctx context.Context, p LeavePolicy) error
	GetPolicy(ctx context.Context, organizationID, country string) (LeavePolicy, error)
}

type HolidayStore interface {
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, organizationID, id string) error

	// ListHolidays returns the organization's holidays for country plus the
	// ones with no country. Recurring holidays are returned as stored.
	ListHolidays(ctx context.Context, organizationID, country string) ([]Holiday, error)
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r LeaveRequest) error
	GetRequest(ctx context.Context, id string) (LeaveRequest, error)
	UpdateRequest(ctx context.Context, r LeaveRequest) error
	ListRequestsByUser(ctx context.Context, userID string) ([]LeaveRequest, error)

	// FindActiveOverlapping returns the user's PENDING/APPROVED requests with
	// start <= end AND end >= start.
	FindActiveOverlapping(ctx context.Context, userID string, start, end Date) ([]LeaveRequest, error)
}

type EntitlementStore interface {
	CreateEntitlement(ctx context.Context, e LeaveEntitlement) error
	GetEntitlement(ctx context.Context, key EntitlementKey) (LeaveEntitlement, error)
	ListEntitlements(ctx context.Context, userID string, year int) ([]LeaveEntitlement, error)

	// MutateEntitlement applies m as one atomic conditional update and returns
	// the row after the update. Implementations must use EntitlementMutation.Apply
	// semantics: *InsufficientBalanceError or ErrLedgerInvariant leave the row untouched.
	MutateEntitlement(ctx context.Context, key EntitlementKey, m EntitlementMutation) (LeaveEntitlement, error)
}

// ExpiryScanner is optional. Stores implementing it let the carry-forward
// sweep find rows to expire without knowing every user.
type ExpiryScanner interface {
	// ListExpiredCarryForward returns keys with ExpiresOn before asOf and both
	// carried-forward and remaining days above zero.
	ListExpiredCarryForward(ctx context.Context, asOf Date) ([]EntitlementKey, error)
}

// Repository is the full persistence contract the engine needs.
type Repository interface {
	UserReader
	LeaveTypeStore
	PolicyStore
	HolidayStore
	RequestStore
	EntitlementStore
}

// Transactor runs fn in a transaction. If fn returns an error every write made
// through the Repository passed to fn is rolled back.
type Transactor interface {
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// RunInTx runs fn inside a transaction when repo supports it, directly otherwise.
func RunInTx(ctx context.Context, repo Repository, fn func(Repository) error) error {
	if tx, ok := repo.(Transactor); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(repo)
}
