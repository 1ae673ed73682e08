/*
Package leave implements the leave-request lifecycle and entitlement engine.

PURPOSE:
  Owns everything between "an employee asks for time off" and "the balance
  reflects it": working-day calculation against organization holidays,
  overlap detection, the per-year entitlement ledger, leave-type and
  organization policy rules, and the request state machine.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType:        Organization-scoped category with its own rules
  - LeaveRequest:     One employee's ask for a date range
  - LeaveEntitlement: Per (user, leave type, year) balance row
  - LeavePolicy:      Organization + country allowances and notice rules
  - Holiday:          Organization holiday, optionally recurring
  - User:             Directory read model (who approves, who administers)

BALANCE INVARIANT:
  remaining = total + carried_forward - used - pending

  Every mutation is a delta on pending/used/carried with remaining derived
  from the same delta, so the invariant cannot drift (see ledger.go).

SEE ALSO:
  - request.go: State machine orchestrating the components
  - ledger.go:  Entitlement bookkeeping
  - store.go:   Repository interfaces supplied by the caller
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIRECTORY
// =============================================================================

type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// User is the slice of the employee directory the engine reads.
type User struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Country        string `json:"country"`
	Role           Role   `json:"role"`
	ManagerID      string `json:"manager_id,omitempty"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// =============================================================================
// LEAVE TYPE
// =============================================================================

// Category maps a leave type onto the allowance fields of a LeavePolicy.
type Category string

const (
	CategoryAnnual    Category = "annual"
	CategorySick      Category = "sick"
	CategoryMaternity Category = "maternity"
	CategoryPaternity Category = "paternity"
	CategoryOther     Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAnnual, CategorySick, CategoryMaternity, CategoryPaternity, CategoryOther:
		return true
	}
	return false
}

type LeaveType struct {
	ID               string   `json:"id"`
	OrganizationID   string   `json:"organization_id"`
	Name             string   `json:"name"`
	Category         Category `json:"category"`
	Paid             bool     `json:"paid"`
	RequiresApproval bool     `json:"requires_approval"`

	// Zero means unlimited.
	MaxConsecutiveDays int `json:"max_consecutive_days"`
	MaxDaysPerYear     int `json:"max_days_per_year"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// LEAVE POLICY
// =============================================================================

// LeavePolicy is read-only input to validation and year opening.
type LeavePolicy struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Country        string `json:"country"`

	AnnualDays    int `json:"annual_days"`
	SickDays      int `json:"sick_days"`
	MaternityDays int `json:"maternity_days"`
	PaternityDays int `json:"paternity_days"`

	CarryoverCapDays    int `json:"carryover_cap_days"`
	CarryoverExpiryDays int `json:"carryover_expiry_days"` // window from Jan 1; 0 = never expires
	NoticePeriodDays    int `json:"notice_period_days"`   // 0 = notice not enforced
}

// AllowanceFor returns the policy allowance for a leave type.
// CategoryOther falls back to the type's own yearly cap.
func (p LeavePolicy) AllowanceFor(lt LeaveType) int {
	switch lt.Category {
	case CategoryAnnual:
		return p.AnnualDays
	case CategorySick:
		return p.SickDays
	case CategoryMaternity:
		return p.MaternityDays
	case CategoryPaternity:
		return p.PaternityDays
	default:
		return lt.MaxDaysPerYear
	}
}

// =============================================================================
// HOLIDAY
// =============================================================================

type Holiday struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Country        string `json:"country"` // empty = every country of the organization
	Date           Date   `json:"date"`
	Name           string `json:"name"`
	Recurring      bool   `json:"recurring"` // same month/day every year
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is legal.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

type LeaveRequest struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	LeaveTypeID    string `json:"leave_type_id"`
	StartDate      Date   `json:"start_date"`
	EndDate        Date   `json:"end_date"`

	// DaysRequested is fixed at creation.
	DaysRequested int `json:"days_requested"`
	// EntitlementYear selects the charged entitlement row.
	EntitlementYear int `json:"entitlement_year"`

	Status           Status     `json:"status"`
	Reason           string     `json:"reason,omitempty"`
	ApproverID       string     `json:"approver_id,omitempty"`
	ApproverComments string     `json:"approver_comments,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`

	// Audit fields
	DecidedBy string     `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EntitlementKey returns the ledger row charged by this request.
func (r LeaveRequest) EntitlementKey() EntitlementKey {
	return EntitlementKey{UserID: r.UserID, LeaveTypeID: r.LeaveTypeID, Year: r.EntitlementYear}
}

// Overlaps reports inclusive intersection with [start, end].
func (r LeaveRequest) Overlaps(start, end Date) bool {
	return r.StartDate.BeforeOrEqual(end) && r.EndDate.AfterOrEqual(start)
}

// Active reports whether the request blocks overlapping submissions.
func (r LeaveRequest) Active() bool {
	return r.Status == StatusPending || r.Status == StatusApproved
}

// =============================================================================
// LEAVE ENTITLEMENT
// =============================================================================

type EntitlementKey struct {
	UserID      string `json:"user_id"`
	LeaveTypeID string `json:"leave_type_id"`
	Year        int    `json:"year"`
}

type LeaveEntitlement struct {
	EntitlementKey

	TotalDays      decimal.Decimal `json:"total_days"`
	UsedDays       decimal.Decimal `json:"used_days"`
	PendingDays    decimal.Decimal `json:"pending_days"`
	RemainingDays  decimal.Decimal `json:"remaining_days"`
	CarriedForward decimal.Decimal `json:"carried_forward"`
	ExpiresOn      Date            `json:"expires_on"`

	// Version increments on every mutation (optimistic concurrency).
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComputedRemaining evaluates the balance invariant from the other columns.
func (e LeaveEntitlement) ComputedRemaining() decimal.Decimal {
	return e.TotalDays.Add(e.CarriedForward).Sub(e.UsedDays).Sub(e.PendingDays)
}

// Consistent reports whether the stored remaining matches the invariant.
func (e LeaveEntitlement) Consistent() bool {
	return e.RemainingDays.Equal(e.ComputedRemaining())
}
