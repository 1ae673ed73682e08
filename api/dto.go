/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request bodies carry
  validate tags checked by go-playground/validator before any engine call;
  responses mostly reuse the engine types, which already carry JSON tags.

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Response wrappers

DATES:
  Dates travel as YYYY-MM-DD strings and are parsed with leave.ParseDate.
  Day quantities are decimal strings ("12.5") or JSON numbers.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse codes
*/
package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUESTS
// =============================================================================

type SubmitRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason      string `json:"reason" validate:"max=500"`
}

// DecisionRequest is the body of approve and reject.
type DecisionRequest struct {
	Comments string `json:"comments" validate:"max=1000"`
}

type CreateUserRequest struct {
	ID             string `json:"id" validate:"required"`
	OrganizationID string `json:"organization_id" validate:"required"`
	Country        string `json:"country" validate:"omitempty,len=2,uppercase"`
	Role           string `json:"role" validate:"omitempty,oneof=employee admin"`
	ManagerID      string `json:"manager_id"`
}

type LeaveTypeRequest struct {
	ID                 string `json:"id"`
	OrganizationID     string `json:"organization_id" validate:"required"`
	Name               string `json:"name" validate:"required,max=100"`
	Category           string `json:"category" validate:"required,oneof=annual sick maternity paternity other"`
	Paid               *bool  `json:"paid"`
	RequiresApproval   *bool  `json:"requires_approval"`
	MaxConsecutiveDays int    `json:"max_consecutive_days" validate:"min=0"`
	MaxDaysPerYear     int    `json:"max_days_per_year" validate:"min=0"`
}

type PolicyRequest struct {
	OrganizationID      string `json:"organization_id" validate:"required"`
	Country             string `json:"country" validate:"omitempty,len=2,uppercase"`
	AnnualDays          int    `json:"annual_days" validate:"min=0"`
	SickDays            int    `json:"sick_days" validate:"min=0"`
	MaternityDays       int    `json:"maternity_days" validate:"min=0"`
	PaternityDays       int    `json:"paternity_days" validate:"min=0"`
	CarryoverCapDays    int    `json:"carryover_cap_days" validate:"min=0"`
	CarryoverExpiryDays int    `json:"carryover_expiry_days" validate:"min=0"`
	NoticePeriodDays    int    `json:"notice_period_days" validate:"min=0"`
}

type HolidayRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	Country        string `json:"country" validate:"omitempty,len=2,uppercase"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	Name           string `json:"name" validate:"required,max=100"`
	Recurring      bool   `json:"recurring"`
}

type GrantRequest struct {
	UserID         string          `json:"user_id" validate:"required"`
	LeaveTypeID    string          `json:"leave_type_id" validate:"required"`
	Year           int             `json:"year" validate:"required,min=1970,max=9999"`
	TotalDays      decimal.Decimal `json:"total_days"`
	CarriedForward decimal.Decimal `json:"carried_forward"`
	ExpiresOn      string          `json:"expires_on" validate:"omitempty,datetime=2006-01-02"`
}

type OpenYearRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	Year        int    `json:"year" validate:"required,min=1970,max=9999"`
}

type ExpireCarryForwardRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	Year        int    `json:"year" validate:"required,min=1970,max=9999"`
	AsOf        string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// OutcomeResponse is returned by every state transition.
type OutcomeResponse struct {
	Request leave.LeaveRequest `json:"request"`
	Events  []leave.Event      `json:"events"`
}

type WorkingDaysResponse struct {
	OrganizationID string     `json:"organization_id"`
	Country        string     `json:"country"`
	StartDate      leave.Date `json:"start_date"`
	EndDate        leave.Date `json:"end_date"`
	WorkingDays    int        `json:"working_days"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func validationDetails(err error) []FieldError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		rule := e.Tag()
		if e.Param() != "" {
			rule = fmt.Sprintf("%s=%s", e.Tag(), e.Param())
		}
		out = append(out, FieldError{Field: e.Field(), Rule: rule})
	}
	return out
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func (r LeaveTypeRequest) toLeaveType() leave.LeaveType {
	lt := leave.LeaveType{
		ID:                 r.ID,
		OrganizationID:     r.OrganizationID,
		Name:               r.Name,
		Category:           leave.Category(r.Category),
		Paid:               true,
		RequiresApproval:   true,
		MaxConsecutiveDays: r.MaxConsecutiveDays,
		MaxDaysPerYear:     r.MaxDaysPerYear,
	}
	if r.Paid != nil {
		lt.Paid = *r.Paid
	}
	if r.RequiresApproval != nil {
		lt.RequiresApproval = *r.RequiresApproval
	}
	return lt
}

func (r PolicyRequest) toPolicy() leave.LeavePolicy {
	return leave.LeavePolicy{
		OrganizationID:      r.OrganizationID,
		Country:             r.Country,
		AnnualDays:          r.AnnualDays,
		SickDays:            r.SickDays,
		MaternityDays:       r.MaternityDays,
		PaternityDays:       r.PaternityDays,
		CarryoverCapDays:    r.CarryoverCapDays,
		CarryoverExpiryDays: r.CarryoverExpiryDays,
		NoticePeriodDays:    r.NoticePeriodDays,
	}
}

func (r CreateUserRequest) toUser() leave.User {
	role := leave.Role(r.Role)
	if role == "" {
		role = leave.RoleEmployee
	}
	return leave.User{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Country:        r.Country,
		Role:           role,
		ManagerID:      r.ManagerID,
	}
}

// parseOptionalDate returns the zero Date for "".
func parseOptionalDate(s string) (leave.Date, error) {
	if s == "" {
		return leave.Date{}, nil
	}
	return leave.ParseDate(s)
}
