/*
Package factory converts JSON organization setups into leave domain objects.

PURPOSE:
  Lets an HR admin describe an organization's leave catalog, country
  policies and holiday calendar in one JSON document, and applies it
  through the AdminService so the usual admin checks and validation hold.

JSON SCHEMA:
  {
    "organization_id": "org-acme",
    "leave_types": [
      {"id": "acme-annual", "name": "Annual Leave", "category": "annual",
       "max_consecutive_days": 15}
    ],
    "policies": [
      {"country": "US", "annual_days": 20, "sick_days": 10,
       "carryover_cap_days": 5, "carryover_expiry_days": 90,
       "notice_period_days": 7}
    ],
    "holidays": [
      {"country": "US", "date": "2025-07-04", "name": "Independence Day", "recurring": true}
    ]
  }

KEY FEATURES:
  - Validates structure with go-playground/validator
  - paid and requires_approval default to true
  - Leave types without an ID get "<organization>-<category>"
  - Apply is idempotent: unchanged types and known holidays are skipped

USAGE:
  setup, err := factory.ParseOrganization(data)
  result, err := factory.Apply(ctx, admin, "admin-1", setup)

  // From a preset
  setup, err := factory.ParseOrganization([]byte(factory.StandardOrganizationJSON(...)))

SEE ALSO:
  - presets.go: Ready-made organization documents
  - leave/catalog.go: AdminService operations Apply calls
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// OrganizationJSON is the JSON representation of an organization setup.
type OrganizationJSON struct {
	OrganizationID string          `json:"organization_id" validate:"required"`
	LeaveTypes     []LeaveTypeJSON `json:"leave_types" validate:"dive"`
	Policies       []PolicyJSON    `json:"policies" validate:"dive"`
	Holidays       []HolidayJSON   `json:"holidays" validate:"dive"`
}

type LeaveTypeJSON struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name" validate:"required"`
	Category           string `json:"category" validate:"required,oneof=annual sick maternity paternity other"`
	Paid               *bool  `json:"paid,omitempty"`
	RequiresApproval   *bool  `json:"requires_approval,omitempty"`
	MaxConsecutiveDays int    `json:"max_consecutive_days,omitempty" validate:"gte=0"`
	MaxDaysPerYear     int    `json:"max_days_per_year,omitempty" validate:"gte=0"`
}

type PolicyJSON struct {
	Country             string `json:"country"`
	AnnualDays          int    `json:"annual_days" validate:"gte=0"`
	SickDays            int    `json:"sick_days" validate:"gte=0"`
	MaternityDays       int    `json:"maternity_days" validate:"gte=0"`
	PaternityDays       int    `json:"paternity_days" validate:"gte=0"`
	CarryoverCapDays    int    `json:"carryover_cap_days" validate:"gte=0"`
	CarryoverExpiryDays int    `json:"carryover_expiry_days" validate:"gte=0"`
	NoticePeriodDays    int    `json:"notice_period_days" validate:"gte=0"`
}

type HolidayJSON struct {
	Country   string `json:"country,omitempty"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required"`
	Recurring bool   `json:"recurring,omitempty"`
}

// Setup is a parsed organization document in domain types.
type Setup struct {
	OrganizationID string
	LeaveTypes     []leave.LeaveType
	Policies       []leave.LeavePolicy
	Holidays       []leave.Holiday
}

// =============================================================================
// PARSING
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseOrganization parses and validates a JSON organization document.
func ParseOrganization(data []byte) (*Setup, error) {
	var oj OrganizationJSON
	if err := json.Unmarshal(data, &oj); err != nil {
		return nil, fmt.Errorf("failed to parse organization JSON: %w", err)
	}
	return FromJSON(oj)
}

// FromJSON converts OrganizationJSON to a Setup.
func FromJSON(oj OrganizationJSON) (*Setup, error) {
	if err := validate.Struct(oj); err != nil {
		return nil, fmt.Errorf("invalid organization document: %w", err)
	}

	setup := &Setup{OrganizationID: oj.OrganizationID}
	seen := make(map[string]bool)
	for _, tj := range oj.LeaveTypes {
		lt := leave.LeaveType{
			ID:                 tj.ID,
			OrganizationID:     oj.OrganizationID,
			Name:               tj.Name,
			Category:           leave.Category(tj.Category),
			Paid:               boolOr(tj.Paid, true),
			RequiresApproval:   boolOr(tj.RequiresApproval, true),
			MaxConsecutiveDays: tj.MaxConsecutiveDays,
			MaxDaysPerYear:     tj.MaxDaysPerYear,
		}
		if lt.ID == "" {
			lt.ID = oj.OrganizationID + "-" + string(lt.Category)
		}
		if seen[lt.ID] {
			return nil, fmt.Errorf("duplicate leave type id %q", lt.ID)
		}
		seen[lt.ID] = true
		setup.LeaveTypes = append(setup.LeaveTypes, lt)
	}

	countries := make(map[string]bool)
	for _, pj := range oj.Policies {
		country := strings.ToUpper(pj.Country)
		if countries[country] {
			return nil, fmt.Errorf("duplicate policy for country %q", country)
		}
		countries[country] = true
		setup.Policies = append(setup.Policies, leave.LeavePolicy{
			OrganizationID:      oj.OrganizationID,
			Country:             country,
			AnnualDays:          pj.AnnualDays,
			SickDays:            pj.SickDays,
			MaternityDays:       pj.MaternityDays,
			PaternityDays:       pj.PaternityDays,
			CarryoverCapDays:    pj.CarryoverCapDays,
			CarryoverExpiryDays: pj.CarryoverExpiryDays,
			NoticePeriodDays:    pj.NoticePeriodDays,
		})
	}

	for _, hj := range oj.Holidays {
		d, err := leave.ParseDate(hj.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", hj.Name, err)
		}
		setup.Holidays = append(setup.Holidays, leave.Holiday{
			OrganizationID: oj.OrganizationID,
			Country:        strings.ToUpper(hj.Country),
			Date:           d,
			Name:           hj.Name,
			Recurring:      hj.Recurring,
		})
	}
	return setup, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// =============================================================================
// APPLY
// =============================================================================

// Result counts what Apply changed.
type Result struct {
	LeaveTypesCreated int `json:"leave_types_created"`
	LeaveTypesUpdated int `json:"leave_types_updated"`
	PoliciesSaved     int `json:"policies_saved"`
	HolidaysAdded     int `json:"holidays_added"`
}

// Apply writes a setup through the admin service as actorID. It stops at the
// first failure; whatever was applied before it stays.
func Apply(ctx context.Context, admin *leave.AdminService, actorID string, setup *Setup) (Result, error) {
	var res Result

	for _, lt := range setup.LeaveTypes {
		existing, err := admin.GetLeaveType(ctx, lt.ID)
		switch {
		case leave.IsNotFound(err):
			if _, err := admin.CreateLeaveType(ctx, actorID, lt); err != nil {
				return res, fmt.Errorf("create leave type %s: %w", lt.ID, err)
			}
			res.LeaveTypesCreated++
		case err != nil:
			return res, err
		case existing.OrganizationID != lt.OrganizationID:
			return res, fmt.Errorf("leave type %s belongs to another organization: %w", lt.ID, leave.ErrUnauthorizedTransition)
		case sameLeaveType(existing, lt):
		default:
			if _, err := admin.UpdateLeaveType(ctx, actorID, lt); err != nil {
				return res, fmt.Errorf("update leave type %s: %w", lt.ID, err)
			}
			res.LeaveTypesUpdated++
		}
	}

	for _, p := range setup.Policies {
		if current, err := admin.GetPolicy(ctx, p.OrganizationID, p.Country); err == nil && current.Country == p.Country {
			p.ID = current.ID
		} else if err != nil && !leave.IsNotFound(err) {
			return res, err
		}
		if _, err := admin.SetPolicy(ctx, actorID, p); err != nil {
			return res, fmt.Errorf("save policy %q: %w", p.Country, err)
		}
		res.PoliciesSaved++
	}

	for _, h := range setup.Holidays {
		known, err := holidayExists(ctx, admin, h)
		if err != nil {
			return res, err
		}
		if known {
			continue
		}
		if _, err := admin.AddHoliday(ctx, actorID, h); err != nil {
			return res, fmt.Errorf("add holiday %s: %w", h.Date, err)
		}
		res.HolidaysAdded++
	}
	return res, nil
}

func sameLeaveType(a, b leave.LeaveType) bool {
	return a.Name == b.Name &&
		a.Category == b.Category &&
		a.Paid == b.Paid &&
		a.RequiresApproval == b.RequiresApproval &&
		a.MaxConsecutiveDays == b.MaxConsecutiveDays &&
		a.MaxDaysPerYear == b.MaxDaysPerYear
}

func holidayExists(ctx context.Context, admin *leave.AdminService, h leave.Holiday) (bool, error) {
	list, err := admin.ListHolidays(ctx, h.OrganizationID, h.Country)
	if err != nil {
		return false, err
	}
	for _, e := range list {
		if e.Country == h.Country && e.Date.Equal(h.Date) && e.Name == h.Name {
			return true, nil
		}
	}
	return false, nil
}
