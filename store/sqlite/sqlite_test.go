package sqlite_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var today = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func date(year int, month time.Month, day int) leave.Date {
	return leave.NewDate(year, month, day)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	store.SetClock(func() time.Time { return today })
	return store
}

// seed creates org-1 with emp-1 (manager mgr-1), mgr-1, and an "annual"
// leave type with a 10-day 2025 entitlement for emp-1.
func seed(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []leave.User{
		{ID: "emp-1", OrganizationID: "org-1", Country: "US", Role: leave.RoleEmployee, ManagerID: "mgr-1"},
		{ID: "mgr-1", OrganizationID: "org-1", Country: "US", Role: leave.RoleEmployee},
	} {
		require.NoError(t, store.SaveUser(ctx, u))
	}
	require.NoError(t, store.CreateLeaveType(ctx, leave.LeaveType{
		ID: "annual", OrganizationID: "org-1", Name: "Annual", Category: leave.CategoryAnnual,
		Paid: true, RequiresApproval: true, CreatedAt: today, UpdatedAt: today,
	}))
	require.NoError(t, store.SavePolicy(ctx, leave.LeavePolicy{ID: "p-1", OrganizationID: "org-1", AnnualDays: 10}))
	require.NoError(t, store.CreateEntitlement(ctx, leave.LeaveEntitlement{
		EntitlementKey: leave.EntitlementKey{UserID: "emp-1", LeaveTypeID: "annual", Year: 2025},
		TotalDays:      decimal.NewFromInt(10),
		UsedDays:       decimal.Zero,
		PendingDays:    decimal.Zero,
		RemainingDays:  decimal.NewFromInt(10),
		CarriedForward: decimal.Zero,
		Version:        1,
		UpdatedAt:      today,
	}))
}

func newTestService(t *testing.T) (*leave.RequestService, *sqlite.Store) {
	t.Helper()
	store := newTestStore(t)
	seed(t, store)
	svc := leave.NewRequestService(store)
	svc.Now = func() time.Time { return today }
	return svc, store
}

var annualKey = leave.EntitlementKey{UserID: "emp-1", LeaveTypeID: "annual", Year: 2025}

func balance(t *testing.T, store *sqlite.Store) leave.LeaveEntitlement {
	t.Helper()
	e, err := store.GetEntitlement(context.Background(), annualKey)
	require.NoError(t, err)
	require.True(t, e.Consistent(), "ledger invariant: %+v", e)
	return e
}

// =============================================================================
// LIFECYCLE AGAINST SQLITE
// =============================================================================

func TestSQLite_SubmitApproveThenInsufficient(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	out, err := svc.Submit(ctx, leave.SubmitCommand{UserID: "emp-1", LeaveTypeID: "annual", Start: date(2025, time.March, 10), End: date(2025, time.March, 14)})
	require.NoError(t, err)
	e := balance(t, store)
	assert.Equal(t, "5", e.PendingDays.String())
	assert.Equal(t, "5", e.RemainingDays.String())

	_, err = svc.Approve(ctx, leave.ApproveCommand{RequestID: out.Request.ID, ApproverID: "mgr-1"})
	require.NoError(t, err)
	e = balance(t, store)
	assert.Equal(t, "5", e.UsedDays.String())
	assert.Equal(t, "0", e.PendingDays.String())

	_, err = svc.Submit(ctx, leave.SubmitCommand{UserID: "emp-1", LeaveTypeID: "annual", Start: date(2025, time.March, 17), End: date(2025, time.March, 24)})
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	stored, err := store.GetRequest(ctx, out.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, stored.Status)
	require.NotNil(t, stored.ApprovedAt)
	assert.True(t, stored.ApprovedAt.Equal(today))
	assert.Equal(t, date(2025, time.March, 10), stored.StartDate)
}

func TestSQLite_OverlapAndCancel(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, leave.SubmitCommand{UserID: "emp-1", LeaveTypeID: "annual", Start: date(2025, time.March, 10), End: date(2025, time.March, 12)})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, leave.SubmitCommand{UserID: "emp-1", LeaveTypeID: "annual", Start: date(2025, time.March, 12), End: date(2025, time.March, 13)})
	assert.ErrorIs(t, err, leave.ErrConflict)

	_, err = svc.Cancel(ctx, leave.CancelCommand{RequestID: first.Request.ID, ActorID: "emp-1"})
	require.NoError(t, err)
	e := balance(t, store)
	assert.Equal(t, "0", e.PendingDays.String())
	assert.Equal(t, "10", e.RemainingDays.String())

	_, err = svc.Cancel(ctx, leave.CancelCommand{RequestID: first.Request.ID, ActorID: "emp-1"})
	assert.ErrorIs(t, err, leave.ErrInvalidStateTransition)
}

func TestSQLite_RolledBackTransactionLeavesNoTrace(t *testing.T) {
	_, store := newTestService(t)
	ctx := context.Background()
	boom := errors.New("abort")

	err := store.WithTx(ctx, func(repo leave.Repository) error {
		if _, err := repo.MutateEntitlement(ctx, annualKey, leave.EntitlementMutation{Pending: decimal.NewFromInt(3)}); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	e := balance(t, store)
	assert.Equal(t, "0", e.PendingDays.String())
	assert.Equal(t, int64(1), e.Version)
}

func TestSQLite_ConcurrentSubmitsNeverOverdraw(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(week int) {
			defer wg.Done()
			start := date(2025, time.March, 10).AddDays(7 * week)
			_, errs[week] = svc.Submit(ctx, leave.SubmitCommand{UserID: "emp-1", LeaveTypeID: "annual", Start: start, End: start.AddDays(4)})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
	}
	assert.Equal(t, 2, ok)
	e := balance(t, store)
	assert.Equal(t, "0", e.RemainingDays.String())
}

// =============================================================================
// REPOSITORY BEHAVIOUR
// =============================================================================

func TestSQLite_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetUserByID(ctx, "nobody")
	assert.True(t, leave.IsNotFound(err))
	_, err = store.GetLeaveType(ctx, "nope")
	assert.True(t, leave.IsNotFound(err))
	_, err = store.GetRequest(ctx, "nope")
	assert.True(t, leave.IsNotFound(err))
	_, err = store.GetEntitlement(ctx, annualKey)
	assert.True(t, leave.IsNotFound(err))
	_, err = store.GetPolicy(ctx, "org-1", "US")
	assert.True(t, leave.IsNotFound(err))
	err = store.UpdateRequest(ctx, leave.LeaveRequest{ID: "nope", Status: leave.StatusCancelled})
	assert.True(t, leave.IsNotFound(err))
}

func TestSQLite_DuplicateEntitlement(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	err := store.CreateEntitlement(context.Background(), leave.LeaveEntitlement{
		EntitlementKey: annualKey,
		TotalDays:      decimal.NewFromInt(1),
		RemainingDays:  decimal.NewFromInt(1),
		UpdatedAt:      today,
	})
	assert.ErrorIs(t, err, leave.ErrDuplicateEntitlement)
}

func TestSQLite_PolicyCountryFallback(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()
	require.NoError(t, store.SavePolicy(ctx, leave.LeavePolicy{ID: "p-us", OrganizationID: "org-1", Country: "US", AnnualDays: 20}))

	p, err := store.GetPolicy(ctx, "org-1", "US")
	require.NoError(t, err)
	assert.Equal(t, 20, p.AnnualDays)

	p, err = store.GetPolicy(ctx, "org-1", "FR")
	require.NoError(t, err)
	assert.Equal(t, 10, p.AnnualDays, "organization default")
}

func TestSQLite_HolidaysAndLeaveTypeReferences(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.SaveHoliday(ctx, leave.Holiday{ID: "h1", OrganizationID: "org-1", Country: "US", Date: date(2025, time.July, 4), Name: "Independence Day"}))
	require.NoError(t, store.SaveHoliday(ctx, leave.Holiday{ID: "h2", OrganizationID: "org-1", Date: date(2020, time.January, 1), Name: "New Year", Recurring: true}))
	require.NoError(t, store.SaveHoliday(ctx, leave.Holiday{ID: "h3", OrganizationID: "org-1", Country: "GB", Date: date(2025, time.May, 5), Name: "May Day"}))

	hs, err := store.ListHolidays(ctx, "org-1", "US")
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "h2", hs[0].ID)
	assert.True(t, hs[0].Recurring)

	assert.True(t, leave.IsNotFound(store.DeleteHoliday(ctx, "org-2", "h1")))
	require.NoError(t, store.DeleteHoliday(ctx, "org-1", "h1"))

	inUse, err := store.LeaveTypeInUse(ctx, "annual")
	require.NoError(t, err)
	assert.True(t, inUse)

	require.NoError(t, store.CreateLeaveType(ctx, leave.LeaveType{ID: "study", OrganizationID: "org-1", Name: "Study", Category: leave.CategoryOther, CreatedAt: today, UpdatedAt: today}))
	inUse, err = store.LeaveTypeInUse(ctx, "study")
	require.NoError(t, err)
	assert.False(t, inUse)

	types, err := store.ListLeaveTypes(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, types, 2)
}

// =============================================================================
// COMPARE-AND-SWAP (sqlmock)
// =============================================================================

var (
	selectEntitlement = regexp.QuoteMeta("FROM leave_entitlements") + `\s+WHERE user_id = \?`
	updateEntitlement = regexp.QuoteMeta("UPDATE leave_entitlements SET")
)

func entitlementRows(version int64, pending string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"user_id", "leave_type_id", "year", "total_days", "used_days", "pending_days",
		"remaining_days", "carried_forward", "expires_on", "version", "updated_at",
	}).AddRow("emp-1", "annual", 2025, "10", "0", pending, subtract("10", pending), "0", nil, version, today.Format(time.RFC3339Nano))
}

func subtract(a, b string) string {
	return decimal.RequireFromString(a).Sub(decimal.RequireFromString(b)).String()
}

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := sqlite.Open(db)
	store.SetClock(func() time.Time { return today })
	return store, mock
}

func TestSQLite_MutateRetriesOnVersionMismatch(t *testing.T) {
	// GIVEN: Another writer bumps the version between our read and update
	// WHEN: Reserving 2 days
	// THEN: The mutation is re-evaluated on the fresh row and succeeds

	store, mock := newMockStore(t)

	mock.ExpectQuery(selectEntitlement).WithArgs("emp-1", "annual", 2025).WillReturnRows(entitlementRows(1, "0"))
	mock.ExpectExec(updateEntitlement).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectEntitlement).WithArgs("emp-1", "annual", 2025).WillReturnRows(entitlementRows(2, "3"))
	mock.ExpectExec(updateEntitlement).
		WithArgs("0", "5", "5", "0", int64(3), sqlmock.AnyArg(), "emp-1", "annual", 2025, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e, err := store.MutateEntitlement(context.Background(), annualKey, leave.EntitlementMutation{Pending: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.Equal(t, "5", e.PendingDays.String())
	assert.Equal(t, int64(3), e.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_MutateGivesUpAfterRepeatedLosses(t *testing.T) {
	store, mock := newMockStore(t)

	for i := 0; i < 5; i++ {
		mock.ExpectQuery(selectEntitlement).WillReturnRows(entitlementRows(int64(i+1), "0"))
		mock.ExpectExec(updateEntitlement).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	_, err := store.MutateEntitlement(context.Background(), annualKey, leave.EntitlementMutation{Pending: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
	assert.True(t, leave.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_MutateRejectsWithoutWriting(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(selectEntitlement).WillReturnRows(entitlementRows(1, "8"))

	_, err := store.MutateEntitlement(context.Background(), annualKey, leave.EntitlementMutation{Pending: decimal.NewFromInt(3)})
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet(), "no UPDATE may be issued")
}
