/*
policy.go - Submission rules for leave types and organization policy

CHECK ORDER (fail fast, first violation wins):
  (a) start is not before today              -> ViolationBackdated
  (b) days <= leave type max consecutive      -> ViolationMaxConsecutive
  (b') booked + days <= leave type max per year -> ViolationMaxPerYear
        (booked = used + pending on the year's entitlement row)
  (c) start >= today + policy notice period   -> ViolationNoticePeriod
  (d) leave type decides whether an approver is required

  The validator is pure: it reads its inputs and returns a Decision or a
  *PolicyViolationError. It never touches the ledger or the store.
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the validator's verdict for an accepted submission.
type Decision struct {
	RequiresApproval bool
	Paid             bool
}

// Rule is one step of the validator chain.
type Rule func(in SubmissionInput) *PolicyViolationError

// SubmissionInput is everything the rules look at.
type SubmissionInput struct {
	LeaveType     LeaveType
	Policy        LeavePolicy
	Start         Date
	End           Date
	DaysRequested int
	Today         Date
	// BookedDays is what the user already has used or pending on this leave
	// type for the entitlement year.
	BookedDays decimal.Decimal
}

// PolicyValidator runs Rules in order.
type PolicyValidator struct {
	Rules []Rule
	Now   func() time.Time
}

// NewPolicyValidator returns the standard rule chain.
func NewPolicyValidator(now func() time.Time) *PolicyValidator {
	if now == nil {
		now = time.Now
	}
	return &PolicyValidator{
		Rules: []Rule{
			ruleNotBackdated,
			ruleMaxConsecutive,
			ruleMaxPerYear,
			ruleNoticePeriod,
		},
		Now: now,
	}
}

// ValidateSubmission applies the rules to a request with nothing booked yet.
func (v *PolicyValidator) ValidateSubmission(lt LeaveType, policy LeavePolicy, start, end Date, daysRequested int) (Decision, error) {
	return v.Validate(SubmissionInput{
		LeaveType:     lt,
		Policy:        policy,
		Start:         start,
		End:           end,
		DaysRequested: daysRequested,
	})
}

// Validate applies the rules and returns the first violation. Today is
// filled from the validator clock.
func (v *PolicyValidator) Validate(in SubmissionInput) (Decision, error) {
	if in.Start.After(in.End) {
		return Decision{}, &InvalidRangeError{Start: in.Start, End: in.End}
	}
	in.Today = DateOf(v.Now().UTC())
	for _, rule := range v.Rules {
		if violation := rule(in); violation != nil {
			return Decision{}, violation
		}
	}
	return Decision{RequiresApproval: in.LeaveType.RequiresApproval, Paid: in.LeaveType.Paid}, nil
}

// =============================================================================
// RULES
// =============================================================================

func ruleNotBackdated(in SubmissionInput) *PolicyViolationError {
	if in.Start.Before(in.Today) {
		return &PolicyViolationError{
			Kind:    ViolationBackdated,
			Message: fmt.Sprintf("start date %s is before today %s", in.Start, in.Today),
		}
	}
	return nil
}

func ruleMaxConsecutive(in SubmissionInput) *PolicyViolationError {
	limit := in.LeaveType.MaxConsecutiveDays
	if limit > 0 && in.DaysRequested > limit {
		return &PolicyViolationError{
			Kind:    ViolationMaxConsecutive,
			Message: fmt.Sprintf("%d days requested, %s allows at most %d consecutive", in.DaysRequested, in.LeaveType.Name, limit),
		}
	}
	return nil
}

func ruleMaxPerYear(in SubmissionInput) *PolicyViolationError {
	limit := in.LeaveType.MaxDaysPerYear
	if limit <= 0 {
		return nil
	}
	total := in.BookedDays.Add(decimal.NewFromInt(int64(in.DaysRequested)))
	if total.GreaterThan(decimal.NewFromInt(int64(limit))) {
		return &PolicyViolationError{
			Kind: ViolationMaxPerYear,
			Message: fmt.Sprintf("%d days requested with %s already booked, %s allows at most %d per year",
				in.DaysRequested, in.BookedDays, in.LeaveType.Name, limit),
		}
	}
	return nil
}

func ruleNoticePeriod(in SubmissionInput) *PolicyViolationError {
	notice := in.Policy.NoticePeriodDays
	if notice <= 0 {
		return nil
	}
	earliest := in.Today.AddDays(notice)
	if in.Start.Before(earliest) {
		return &PolicyViolationError{
			Kind:    ViolationNoticePeriod,
			Message: fmt.Sprintf("%d days notice required, earliest start is %s", notice, earliest),
		}
	}
	return nil
}
