package leave_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*leave.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return leave.NewLedger(mem), mem
}

func days(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func assertBalance(t *testing.T, e leave.LeaveEntitlement, total, carried, used, pending, remaining int64) {
	t.Helper()
	assert.Equal(t, days(total).String(), e.TotalDays.String(), "total")
	assert.Equal(t, days(carried).String(), e.CarriedForward.String(), "carried")
	assert.Equal(t, days(used).String(), e.UsedDays.String(), "used")
	assert.Equal(t, days(pending).String(), e.PendingDays.String(), "pending")
	assert.Equal(t, days(remaining).String(), e.RemainingDays.String(), "remaining")
	assert.True(t, e.Consistent(), "remaining must equal total + carried - used - pending")
}

var annualKey = leave.EntitlementKey{UserID: "emp-1", LeaveTypeID: "annual", Year: 2025}

// =============================================================================
// MUTATION TESTS
// =============================================================================

func TestLedger_ReserveCommitRelease(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Grant(ctx, annualKey, days(10), decimal.Zero, leave.Date{})
	require.NoError(t, err)

	e, err := ledger.Reserve(ctx, annualKey, 5)
	require.NoError(t, err)
	assertBalance(t, e, 10, 0, 0, 5, 5)

	e, err = ledger.Commit(ctx, annualKey, 3)
	require.NoError(t, err)
	assertBalance(t, e, 10, 0, 3, 2, 5)

	e, err = ledger.Release(ctx, annualKey, 2)
	require.NoError(t, err)
	assertBalance(t, e, 10, 0, 3, 0, 7)
	assert.Equal(t, int64(4), e.Version)
}

func TestLedger_ReserveBeyondRemaining(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Grant(ctx, annualKey, days(3), decimal.Zero, leave.Date{})
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, annualKey, 4)

	var balErr *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, "3", balErr.Remaining.String())
	assert.Equal(t, "4", balErr.Requested.String())

	e, err := ledger.GetRemaining(ctx, annualKey)
	require.NoError(t, err)
	assertBalance(t, e, 3, 0, 0, 0, 3)
	assert.Equal(t, int64(1), e.Version, "rejected mutation must not write")
}

func TestLedger_ReleaseMoreThanPending(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Grant(ctx, annualKey, days(10), decimal.Zero, leave.Date{})
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, annualKey, 2)
	require.NoError(t, err)

	_, err = ledger.Release(ctx, annualKey, 3)
	assert.ErrorIs(t, err, leave.ErrLedgerInvariant)

	_, err = ledger.Commit(ctx, annualKey, 3)
	assert.ErrorIs(t, err, leave.ErrLedgerInvariant)
}

func TestLedger_ReserveZeroDays(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.Reserve(context.Background(), annualKey, 0)
	assert.ErrorIs(t, err, leave.ErrLedgerInvariant)
}

func TestLedger_MissingEntitlement(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Reserve(context.Background(), annualKey, 1)

	var nf *leave.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "entitlement", nf.Entity)
}

func TestLedger_GrantDuplicate(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Grant(ctx, annualKey, days(10), decimal.Zero, leave.Date{})
	require.NoError(t, err)
	_, err = ledger.Grant(ctx, annualKey, days(12), decimal.Zero, leave.Date{})
	assert.ErrorIs(t, err, leave.ErrDuplicateEntitlement)
}

func TestLedger_InvariantHoldsUnderRandomSequence(t *testing.T) {
	// GIVEN: An entitlement with carry-forward
	// WHEN: A long random sequence of reserve/commit/release runs against it
	// THEN: Every observed row satisfies the balance invariant and no
	//       quantity goes negative

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := ledger.Grant(ctx, annualKey, days(20), days(3), leave.Date{})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	var reserved []int

	for i := 0; i < 500; i++ {
		var e leave.LeaveEntitlement
		switch op := rng.Intn(3); {
		case op == 0 || len(reserved) == 0:
			n := rng.Intn(4) + 1
			e, err = ledger.Reserve(ctx, annualKey, n)
			if err != nil {
				require.ErrorIs(t, err, leave.ErrInsufficientBalance)
				continue
			}
			reserved = append(reserved, n)
		case op == 1:
			n := reserved[0]
			reserved = reserved[1:]
			e, err = ledger.Commit(ctx, annualKey, n)
			require.NoError(t, err)
		default:
			n := reserved[len(reserved)-1]
			reserved = reserved[:len(reserved)-1]
			e, err = ledger.Release(ctx, annualKey, n)
			require.NoError(t, err)
		}
		require.True(t, e.Consistent(), "step %d: %+v", i, e)
		require.False(t, e.RemainingDays.IsNegative(), "step %d", i)
		require.False(t, e.PendingDays.IsNegative(), "step %d", i)
	}
}

func TestEntitlementMutation_Inverse(t *testing.T) {
	e := leave.LeaveEntitlement{
		EntitlementKey: annualKey,
		TotalDays:      days(10),
		UsedDays:       days(2),
		PendingDays:    days(1),
		CarriedForward: days(0),
		RemainingDays:  days(7),
	}
	m := leave.EntitlementMutation{Pending: days(-1), Used: days(1)}

	after, err := m.Apply(e, time.Now())
	require.NoError(t, err)
	back, err := m.Inverse().Apply(after, time.Now())
	require.NoError(t, err)

	assert.Equal(t, e.RemainingDays.String(), back.RemainingDays.String())
	assert.Equal(t, e.PendingDays.String(), back.PendingDays.String())
	assert.Equal(t, e.UsedDays.String(), back.UsedDays.String())
	assert.Equal(t, int64(2), back.Version)
}

// =============================================================================
// YEAR OPENING / CARRY-FORWARD
// =============================================================================

func annualType() leave.LeaveType {
	return leave.LeaveType{ID: "annual", OrganizationID: "org-1", Name: "Annual", Category: leave.CategoryAnnual, RequiresApproval: true, Paid: true}
}

func TestLedger_OpenYear_CarriesCappedRemaining(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	policy := leave.LeavePolicy{OrganizationID: "org-1", AnnualDays: 20, CarryoverCapDays: 5, CarryoverExpiryDays: 90}

	prev := leave.EntitlementKey{UserID: "emp-1", LeaveTypeID: "annual", Year: 2024}
	_, err := ledger.Grant(ctx, prev, days(20), decimal.Zero, leave.Date{})
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, prev, 12)
	require.NoError(t, err)
	_, err = ledger.Commit(ctx, prev, 12) // 8 left, cap is 5
	require.NoError(t, err)

	e, err := ledger.OpenYear(ctx, "emp-1", annualType(), 2025, policy)
	require.NoError(t, err)

	assertBalance(t, e, 20, 5, 0, 0, 25)
	assert.Equal(t, d(2025, time.April, 1), e.ExpiresOn)
}

func TestLedger_OpenYear_NoPriorYear(t *testing.T) {
	ledger, _ := newTestLedger(t)
	policy := leave.LeavePolicy{OrganizationID: "org-1", AnnualDays: 20, SickDays: 8, CarryoverCapDays: 5}

	e, err := ledger.OpenYear(context.Background(), "emp-1", annualType(), 2025, policy)
	require.NoError(t, err)
	assertBalance(t, e, 20, 0, 0, 0, 20)
	assert.True(t, e.ExpiresOn.IsZero())

	sick := leave.LeaveType{ID: "sick", OrganizationID: "org-1", Name: "Sick", Category: leave.CategorySick}
	e, err = ledger.OpenYear(context.Background(), "emp-1", sick, 2025, policy)
	require.NoError(t, err)
	assertBalance(t, e, 8, 0, 0, 0, 8)
}

func TestLedger_ExpireCarryForward(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Grant(ctx, annualKey, days(10), days(4), d(2025, time.March, 31))
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, annualKey, 11) // 3 left
	require.NoError(t, err)

	// Not yet expired
	e, err := ledger.ExpireCarryForward(ctx, annualKey, d(2025, time.March, 31))
	require.NoError(t, err)
	assertBalance(t, e, 10, 4, 0, 11, 3)

	// Expired: forfeit is capped at remaining
	e, err = ledger.ExpireCarryForward(ctx, annualKey, d(2025, time.April, 1))
	require.NoError(t, err)
	assertBalance(t, e, 10, 1, 0, 11, 0)

	// Idempotent once remaining is zero
	e, err = ledger.ExpireCarryForward(ctx, annualKey, d(2025, time.April, 2))
	require.NoError(t, err)
	assertBalance(t, e, 10, 1, 0, 11, 0)
}
