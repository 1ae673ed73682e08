/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic data
	for demos and manual testing. Every scenario goes through the engine
	services with an admin actor, so the data obeys the same rules as
	anything created over the API.

AVAILABLE SCENARIOS:

	small-team:          One US organization, a manager, two employees, an
	                     admin, three leave types and one pending request
	year-end-carryover:  Prior-year balance carried into the current year
	                     via OpenYear, with an expiry the scheduler enforces

HOW SCENARIOS WORK:
 1. Seed users into the directory read model
 2. Apply a factory preset (leave types, policy, holidays) as the admin
 3. Grant or open entitlements
 4. Optionally submit requests as the employees

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-team"}

USAGE VIA CLI:

	leave-engine seed small-team

NOTE:

	Each scenario owns its organization ID; loading one twice returns 409.

SEE ALSO:
  - handlers.go: Handler context
  - factory/presets.go: Organization documents the scenarios apply
  - cmd/server/main.go: seed subcommand
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
)

// ErrScenarioLoaded is returned when a scenario's organization already exists.
var ErrScenarioLoaded = errors.New("scenario already loaded")

// ErrUnknownScenario is returned for an unlisted scenario ID.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "US organization with a manager, two employees, annual, sick and parental leave",
	},
	{
		ID:          "year-end-carryover",
		Name:        "Year-End Carryover",
		Description: "Unused annual leave carried into the current year with a 90-day expiry",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.LoadScenarioByID(r.Context(), req.ScenarioID)
	switch {
	case errors.Is(err, ErrUnknownScenario):
		writeError(w, http.StatusNotFound, "Unknown scenario", err)
	case errors.Is(err, ErrScenarioLoaded):
		writeError(w, http.StatusConflict, "Scenario already loaded", err)
	case err != nil:
		h.writeDomainError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
	}
}

// LoadScenarioByID seeds the store with the named scenario.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	switch id {
	case "small-team":
		return h.loadSmallTeamScenario(ctx)
	case "year-end-carryover":
		return h.loadYearEndCarryoverScenario(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
}

// =============================================================================
// LOADERS
// =============================================================================

// seedOrganization saves users and fails if the organization's sentinel
// leave type already exists.
func (h *Handler) seedOrganization(ctx context.Context, sentinelTypeID string, users []leave.User) error {
	if _, err := h.Store.GetLeaveType(ctx, sentinelTypeID); err == nil {
		return fmt.Errorf("%w: %s", ErrScenarioLoaded, sentinelTypeID)
	} else if !leave.IsNotFound(err) {
		return err
	}
	for _, u := range users {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save user %s: %w", u.ID, err)
		}
	}
	return nil
}

// applyPreset loads an organization document through the admin service.
func (h *Handler) applyPreset(ctx context.Context, adminID, doc string) error {
	setup, err := factory.ParseOrganization([]byte(doc))
	if err != nil {
		return err
	}
	_, err = factory.Apply(ctx, h.Admin, adminID, setup)
	return err
}

// nextMonday returns the first Monday at least minDays after d.
func nextMonday(d leave.Date, minDays int) leave.Date {
	d = d.AddDays(minDays)
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}

func (h *Handler) loadSmallTeamScenario(ctx context.Context) error {
	const (
		org   = "org-demo"
		admin = "demo-admin"
	)
	if err := h.seedOrganization(ctx, "demo-annual", []leave.User{
		{ID: admin, OrganizationID: org, Country: "US", Role: leave.RoleAdmin},
		{ID: "demo-manager", OrganizationID: org, Country: "US", Role: leave.RoleEmployee},
		{ID: "demo-alice", OrganizationID: org, Country: "US", Role: leave.RoleEmployee, ManagerID: "demo-manager"},
		{ID: "demo-bob", OrganizationID: org, Country: "US", Role: leave.RoleEmployee, ManagerID: "demo-manager"},
	}); err != nil {
		return err
	}

	if err := h.applyPreset(ctx, admin, factory.StandardOrganizationJSON(org, "demo", "US", 20, 5, 7)); err != nil {
		return err
	}
	types := []string{"demo-annual", "demo-sick", "demo-parental"}

	today := h.today()
	start := nextMonday(today, 14)
	for _, userID := range []string{"demo-alice", "demo-bob"} {
		for _, year := range []int{today.Year(), start.Year()} {
			for _, typeID := range types {
				_, err := h.Admin.OpenYear(ctx, admin, userID, typeID, year)
				if err != nil && !errors.Is(err, leave.ErrDuplicateEntitlement) {
					return fmt.Errorf("open %d %s for %s: %w", year, typeID, userID, err)
				}
			}
		}
	}

	out, err := h.Requests.Submit(ctx, leave.SubmitCommand{
		UserID: "demo-alice", LeaveTypeID: "demo-annual",
		Start: start, End: start.AddDays(2), Reason: "Family visit",
	})
	if err != nil {
		return fmt.Errorf("submit demo request: %w", err)
	}
	h.publish(ctx, out)
	return nil
}

func (h *Handler) loadYearEndCarryoverScenario(ctx context.Context) error {
	const (
		org   = "org-carry"
		admin = "carry-admin"
		user  = "carry-emp"
	)
	if err := h.seedOrganization(ctx, "carry-annual", []leave.User{
		{ID: admin, OrganizationID: org, Country: "US", Role: leave.RoleAdmin},
		{ID: user, OrganizationID: org, Country: "US", Role: leave.RoleEmployee, ManagerID: admin},
	}); err != nil {
		return err
	}
	if err := h.applyPreset(ctx, admin, factory.StandardOrganizationJSON(org, "carry", "US", 20, 5, 0)); err != nil {
		return err
	}

	// Last year: 20 granted, 12 used, 8 left; 5 of them carry over.
	year := h.today().Year()
	if _, err := h.Admin.GrantEntitlement(ctx, leave.GrantCommand{
		ActorID:   admin,
		Key:       leave.EntitlementKey{UserID: user, LeaveTypeID: "carry-annual", Year: year - 1},
		TotalDays: decimal.NewFromInt(20),
	}); err != nil {
		return err
	}
	if _, err := h.Store.MutateEntitlement(ctx,
		leave.EntitlementKey{UserID: user, LeaveTypeID: "carry-annual", Year: year - 1},
		leave.EntitlementMutation{Used: decimal.NewFromInt(12)},
	); err != nil {
		return fmt.Errorf("record prior-year usage: %w", err)
	}
	_, err := h.Admin.OpenYear(ctx, admin, user, "carry-annual", year)
	return err
}
