/*
ledger.go - Entitlement ledger (per user / leave type / year balance)

PURPOSE:
  The only component that changes balances. Every change is an
  EntitlementMutation applied by the store as ONE atomic conditional update,
  never a read-modify-write spread over two calls.

OPERATIONS:
  Reserve: pending += d, remaining -= d   (submit)
  Commit:  pending -= d, used += d        (approve; remaining already reduced)
  Release: pending -= d, remaining += d   (reject / cancel / compensation)
  Expire:  carried -= f, remaining -= f   (carry-forward forfeited)

MUTATION RULES (EntitlementMutation.Apply):
  remaining delta = carried delta - used delta - pending delta
  - remaining decreasing below zero      -> *InsufficientBalanceError
  - pending/used/carried below zero      -> ErrLedgerInvariant
  Because remaining moves with the same deltas, the invariant
  remaining = total + carried - used - pending holds after every mutation.

SEE ALSO:
  - store.go: EntitlementStore.MutateEntitlement
  - request.go: When the state machine calls each operation
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTITLEMENT MUTATION
// =============================================================================

// EntitlementMutation holds deltas for one atomic ledger update.
type EntitlementMutation struct {
	Pending decimal.Decimal
	Used    decimal.Decimal
	Carried decimal.Decimal
}

// RemainingDelta is the change to remaining implied by the other deltas.
func (m EntitlementMutation) RemainingDelta() decimal.Decimal {
	return m.Carried.Sub(m.Used).Sub(m.Pending)
}

// Inverse undoes m. Used for compensating actions.
func (m EntitlementMutation) Inverse() EntitlementMutation {
	return EntitlementMutation{Pending: m.Pending.Neg(), Used: m.Used.Neg(), Carried: m.Carried.Neg()}
}

// Apply returns e after m, or the error the store must report without writing.
// The returned row has Version incremented.
func (m EntitlementMutation) Apply(e LeaveEntitlement, at time.Time) (LeaveEntitlement, error) {
	delta := m.RemainingDelta()
	next := e
	next.PendingDays = e.PendingDays.Add(m.Pending)
	next.UsedDays = e.UsedDays.Add(m.Used)
	next.CarriedForward = e.CarriedForward.Add(m.Carried)
	next.RemainingDays = e.RemainingDays.Add(delta)

	if delta.IsNegative() && next.RemainingDays.IsNegative() {
		return e, &InsufficientBalanceError{
			Key:       e.EntitlementKey,
			Remaining: e.RemainingDays,
			Requested: delta.Neg(),
		}
	}
	if next.PendingDays.IsNegative() || next.UsedDays.IsNegative() || next.CarriedForward.IsNegative() {
		return e, fmt.Errorf("%w: %s/%s/%d pending=%s used=%s carried=%s",
			ErrLedgerInvariant, e.UserID, e.LeaveTypeID, e.Year,
			next.PendingDays, next.UsedDays, next.CarriedForward)
	}
	next.Version = e.Version + 1
	next.UpdatedAt = at
	return next, nil
}

func reserveMutation(days decimal.Decimal) EntitlementMutation {
	return EntitlementMutation{Pending: days}
}

func commitMutation(days decimal.Decimal) EntitlementMutation {
	return EntitlementMutation{Pending: days.Neg(), Used: days}
}

func releaseMutation(days decimal.Decimal) EntitlementMutation {
	return EntitlementMutation{Pending: days.Neg()}
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger wraps an EntitlementStore with the four balance operations.
type Ledger struct {
	Store EntitlementStore
	Now   func() time.Time
}

func NewLedger(store EntitlementStore) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// GetRemaining returns the entitlement row or *NotFoundError.
func (l *Ledger) GetRemaining(ctx context.Context, key EntitlementKey) (LeaveEntitlement, error) {
	return l.Store.GetEntitlement(ctx, key)
}

// Reserve holds days against remaining for a pending request.
func (l *Ledger) Reserve(ctx context.Context, key EntitlementKey, days int) (LeaveEntitlement, error) {
	if days <= 0 {
		return LeaveEntitlement{}, fmt.Errorf("%w: reserve of %d days", ErrLedgerInvariant, days)
	}
	return l.Store.MutateEntitlement(ctx, key, reserveMutation(decimal.NewFromInt(int64(days))))
}

// Commit moves days from pending to used.
func (l *Ledger) Commit(ctx context.Context, key EntitlementKey, days int) (LeaveEntitlement, error) {
	return l.Store.MutateEntitlement(ctx, key, commitMutation(decimal.NewFromInt(int64(days))))
}

// Release undoes a reservation.
func (l *Ledger) Release(ctx context.Context, key EntitlementKey, days int) (LeaveEntitlement, error) {
	return l.Store.MutateEntitlement(ctx, key, releaseMutation(decimal.NewFromInt(int64(days))))
}

// Grant creates an entitlement row. Used and pending start at zero and
// remaining is derived.
func (l *Ledger) Grant(ctx context.Context, key EntitlementKey, total, carried decimal.Decimal, expiresOn Date) (LeaveEntitlement, error) {
	if total.IsNegative() || carried.IsNegative() {
		return LeaveEntitlement{}, fmt.Errorf("%w: negative grant", ErrLedgerInvariant)
	}
	e := LeaveEntitlement{
		EntitlementKey: key,
		TotalDays:      total,
		UsedDays:       decimal.Zero,
		PendingDays:    decimal.Zero,
		CarriedForward: carried,
		ExpiresOn:      expiresOn,
		Version:        1,
		UpdatedAt:      l.Now().UTC(),
	}
	e.RemainingDays = e.ComputedRemaining()
	if err := l.Store.CreateEntitlement(ctx, e); err != nil {
		return LeaveEntitlement{}, err
	}
	return e, nil
}

// =============================================================================
// YEAR OPENING / CARRY-FORWARD
// =============================================================================

// OpenYear creates the year's entitlement from the policy allowance. Annual
// leave carries forward the prior year's remaining up to the policy cap; the
// carried days expire CarryoverExpiryDays after Jan 1.
func (l *Ledger) OpenYear(ctx context.Context, userID string, lt LeaveType, year int, policy LeavePolicy) (LeaveEntitlement, error) {
	key := EntitlementKey{UserID: userID, LeaveTypeID: lt.ID, Year: year}
	total := decimal.NewFromInt(int64(policy.AllowanceFor(lt)))

	carried := decimal.Zero
	var expiresOn Date
	if lt.Category == CategoryAnnual && policy.CarryoverCapDays > 0 {
		prev, err := l.Store.GetEntitlement(ctx, EntitlementKey{UserID: userID, LeaveTypeID: lt.ID, Year: year - 1})
		switch {
		case err == nil:
			carried = decimal.Min(prev.RemainingDays, decimal.NewFromInt(int64(policy.CarryoverCapDays)))
			if carried.IsNegative() {
				carried = decimal.Zero
			}
		case IsNotFound(err):
		default:
			return LeaveEntitlement{}, err
		}
		if carried.IsPositive() && policy.CarryoverExpiryDays > 0 {
			expiresOn = NewDate(year, time.January, 1).AddDays(policy.CarryoverExpiryDays)
		}
	}
	return l.Grant(ctx, key, total, carried, expiresOn)
}

// ExpireCarryForward forfeits unused carried-forward days once asOf is past
// the expiry date. Days already spent or reserved are not clawed back.
func (l *Ledger) ExpireCarryForward(ctx context.Context, key EntitlementKey, asOf Date) (LeaveEntitlement, error) {
	e, err := l.Store.GetEntitlement(ctx, key)
	if err != nil {
		return LeaveEntitlement{}, err
	}
	if e.ExpiresOn.IsZero() || !asOf.After(e.ExpiresOn) || !e.CarriedForward.IsPositive() {
		return e, nil
	}
	forfeit := decimal.Min(e.CarriedForward, e.RemainingDays)
	if !forfeit.IsPositive() {
		return e, nil
	}
	return l.Store.MutateEntitlement(ctx, key, EntitlementMutation{Carried: forfeit.Neg()})
}
