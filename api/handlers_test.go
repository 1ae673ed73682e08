/*
handlers_test.go - HTTP tests for the leave API

Tests for:
- Submit / approve / reject / cancel over HTTP, with event publishing
- Error status mapping (400, 401, 403, 404, 409, 422)
- Catalog administration endpoints and organization import
- Demo scenarios and the carry-forward scheduler
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Monday 2025-03-03
var testNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []leave.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...leave.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) types() []leave.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]leave.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type testServer struct {
	t         *testing.T
	mem       *store.Memory
	handler   *Handler
	router    http.Handler
	publisher *recordingPublisher
}

// newTestServer seeds org-1 with emp-1 (manager mgr-1), mgr-1, admin-1, an
// "annual" leave type and a 10-day 2025 entitlement for emp-1.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	mem.Now = func() time.Time { return testNow }
	pub := &recordingPublisher{}
	h := NewHandler(mem, pub, zaptest.NewLogger(t))
	h.SetClock(func() time.Time { return testNow })

	ctx := context.Background()
	for _, u := range []leave.User{
		{ID: "emp-1", OrganizationID: "org-1", Country: "US", Role: leave.RoleEmployee, ManagerID: "mgr-1"},
		{ID: "mgr-1", OrganizationID: "org-1", Country: "US", Role: leave.RoleEmployee},
		{ID: "admin-1", OrganizationID: "org-1", Country: "US", Role: leave.RoleAdmin},
	} {
		require.NoError(t, mem.SaveUser(ctx, u))
	}
	_, err := h.Admin.CreateLeaveType(ctx, "admin-1", leave.LeaveType{
		ID: "annual", OrganizationID: "org-1", Name: "Annual", Category: leave.CategoryAnnual, Paid: true, RequiresApproval: true,
	})
	require.NoError(t, err)
	_, err = h.Admin.SetPolicy(ctx, "admin-1", leave.LeavePolicy{OrganizationID: "org-1", AnnualDays: 10})
	require.NoError(t, err)
	_, err = h.Admin.GrantEntitlement(ctx, leave.GrantCommand{
		ActorID: "admin-1", Key: leave.EntitlementKey{UserID: "emp-1", LeaveTypeID: "annual", Year: 2025}, TotalDays: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	return &testServer{t: t, mem: mem, handler: h, router: NewRouter(h), publisher: pub}
}

func (s *testServer) do(method, path, actor string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) submit(start, end string) OutcomeResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/requests", "emp-1", SubmitRequest{
		UserID: "emp-1", LeaveTypeID: "annual", StartDate: start, EndDate: end,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[OutcomeResponse](s.t, rec)
}

func (s *testServer) remaining() string {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/api/users/emp-1/entitlements?year=2025", "", nil)
	require.Equal(s.t, http.StatusOK, rec.Code)
	ents := decodeBody[[]leave.LeaveEntitlement](s.t, rec)
	require.Len(s.t, ents, 1)
	return ents[0].RemainingDays.String()
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestAPI_SubmitApprove(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: A 5-day request
	out := s.submit("2025-03-10", "2025-03-14")
	assert.Equal(t, leave.StatusPending, out.Request.Status)
	assert.Equal(t, 5, out.Request.DaysRequested)
	assert.Equal(t, "5", s.remaining())

	// WHEN: The manager approves it
	rec := s.do(http.MethodPost, "/api/requests/"+out.Request.ID+"/approve", "mgr-1", DecisionRequest{Comments: "enjoy"})

	// THEN: The request is approved and both events were published
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeBody[OutcomeResponse](t, rec)
	assert.Equal(t, leave.StatusApproved, approved.Request.Status)
	assert.Equal(t, "enjoy", approved.Request.ApproverComments)
	assert.Equal(t, []leave.EventType{leave.EventSubmitted, leave.EventApproved}, s.publisher.types())
	assert.Equal(t, "5", s.remaining())

	rec = s.do(http.MethodGet, "/api/requests/"+out.Request.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, leave.StatusApproved, decodeBody[leave.LeaveRequest](t, rec).Status)
}

func TestAPI_ApproveWithoutBody(t *testing.T) {
	s := newTestServer(t)
	out := s.submit("2025-03-10", "2025-03-10")

	req := httptest.NewRequest(http.MethodPost, "/api/requests/"+out.Request.ID+"/approve", nil)
	req.Header.Set(ActorHeader, "mgr-1")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAPI_RejectAndCancelRestoreBalance(t *testing.T) {
	s := newTestServer(t)

	first := s.submit("2025-03-10", "2025-03-12")
	second := s.submit("2025-03-17", "2025-03-18")
	assert.Equal(t, "5", s.remaining())

	rec := s.do(http.MethodPost, "/api/requests/"+first.Request.ID+"/reject", "mgr-1", DecisionRequest{Comments: "busy week"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/api/requests/"+second.Request.ID+"/cancel", "emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "10", s.remaining())
	assert.Equal(t, []leave.EventType{leave.EventSubmitted, leave.EventSubmitted, leave.EventRejected, leave.EventCancelled}, s.publisher.types())

	rec = s.do(http.MethodGet, "/api/users/emp-1/requests", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]leave.LeaveRequest](t, rec), 2)
}

func TestAPI_PublishFailureDoesNotFailRequest(t *testing.T) {
	s := newTestServer(t)
	s.publisher.err = errors.New("broker down")

	out := s.submit("2025-03-10", "2025-03-10")
	assert.Equal(t, leave.StatusPending, out.Request.Status)
	assert.Equal(t, "9", s.remaining())
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	pending := s.submit("2025-03-10", "2025-03-11")

	tests := []struct {
		name       string
		method     string
		path       string
		actor      string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"missing actor", http.MethodPost, "/api/requests", "", SubmitRequest{UserID: "emp-1", LeaveTypeID: "annual", StartDate: "2025-03-20", EndDate: "2025-03-20"}, http.StatusUnauthorized, "missing_actor"},
		{"validation", http.MethodPost, "/api/requests", "emp-1", SubmitRequest{UserID: "emp-1", StartDate: "20-03-2025", EndDate: "2025-03-20"}, http.StatusBadRequest, "invalid_input"},
		{"submit for someone else", http.MethodPost, "/api/requests", "mgr-1", SubmitRequest{UserID: "emp-1", LeaveTypeID: "annual", StartDate: "2025-03-20", EndDate: "2025-03-20"}, http.StatusForbidden, "forbidden"},
		{"invalid range", http.MethodPost, "/api/requests", "emp-1", SubmitRequest{UserID: "emp-1", LeaveTypeID: "annual", StartDate: "2025-03-21", EndDate: "2025-03-20"}, http.StatusBadRequest, "invalid_range"},
		{"overlap", http.MethodPost, "/api/requests", "emp-1", SubmitRequest{UserID: "emp-1", LeaveTypeID: "annual", StartDate: "2025-03-11", EndDate: "2025-03-12"}, http.StatusConflict, "conflict"},
		{"insufficient", http.MethodPost, "/api/requests", "emp-1", SubmitRequest{UserID: "emp-1", LeaveTypeID: "annual", StartDate: "2025-03-17", EndDate: "2025-03-28"}, http.StatusUnprocessableEntity, "insufficient_balance"},
		{"backdated", http.MethodPost, "/api/requests", "emp-1", SubmitRequest{UserID: "emp-1", LeaveTypeID: "annual", StartDate: "2025-02-24", EndDate: "2025-02-24"}, http.StatusUnprocessableEntity, "policy_violation"},
		{"unknown request", http.MethodGet, "/api/requests/nope", "", nil, http.StatusNotFound, "not_found"},
		{"requester approves", http.MethodPost, "/api/requests/" + pending.Request.ID + "/approve", "emp-1", nil, http.StatusForbidden, "forbidden"},
		{"employee creates leave type", http.MethodPost, "/api/leave-types", "emp-1", LeaveTypeRequest{OrganizationID: "org-1", Name: "X", Category: "other"}, http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAPI_PolicyViolationCarriesKind(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/requests", "emp-1", SubmitRequest{
		UserID: "emp-1", LeaveTypeID: "annual", StartDate: "2025-03-08", EndDate: "2025-03-09",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, map[string]any{"kind": string(leave.ViolationNoWorkingDays)}, resp.Details)
}

func TestAPI_DoubleDecisionIsConflict(t *testing.T) {
	s := newTestServer(t)
	out := s.submit("2025-03-10", "2025-03-10")

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/requests/"+out.Request.ID+"/approve", "mgr-1", nil).Code)
	rec := s.do(http.MethodPost, "/api/requests/"+out.Request.ID+"/reject", "mgr-1", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decodeBody[ErrorResponse](t, rec).Code)
}

// overlapOutageStore hides the memory store's Transactor so the override is
// the one Submit sees.
type overlapOutageStore struct{ Store }

func (overlapOutageStore) FindActiveOverlapping(context.Context, string, leave.Date, leave.Date) ([]leave.LeaveRequest, error) {
	return nil, errors.New("connection reset")
}

func TestAPI_OverlapCheckOutageIsRetryable(t *testing.T) {
	// GIVEN: A store whose overlap query fails
	// WHEN: Submitting
	// THEN: 503 retryable with Retry-After, distinct from a real overlap; no days reserved

	s := newTestServer(t)
	h := NewHandler(overlapOutageStore{s.mem}, s.publisher, zaptest.NewLogger(t))
	h.SetClock(func() time.Time { return testNow })
	s.router = NewRouter(h)

	rec := s.do(http.MethodPost, "/api/requests", "emp-1", SubmitRequest{
		UserID: "emp-1", LeaveTypeID: "annual", StartDate: "2025-03-10", EndDate: "2025-03-11",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "retryable", decodeBody[ErrorResponse](t, rec).Code)
	assert.Equal(t, "10", s.remaining())

	status, code := classify(&leave.ConflictError{UserID: "emp-1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", code)
}

func TestClassify(t *testing.T) {
	status, code := classify(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)

	status, code = classify(leave.ErrConcurrentModification)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "concurrent_modification", code)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestAPI_LeaveTypeCRUD(t *testing.T) {
	s := newTestServer(t)
	noApproval := false

	rec := s.do(http.MethodPost, "/api/leave-types", "admin-1", LeaveTypeRequest{
		OrganizationID: "org-1", Name: "Sick", Category: "sick", RequiresApproval: &noApproval,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[leave.LeaveType](t, rec)
	assert.True(t, created.Paid)
	assert.False(t, created.RequiresApproval)

	rec = s.do(http.MethodPut, "/api/leave-types/"+created.ID, "admin-1", LeaveTypeRequest{
		OrganizationID: "org-1", Name: "Sick Leave", Category: "sick", MaxConsecutiveDays: 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Sick Leave", decodeBody[leave.LeaveType](t, rec).Name)

	rec = s.do(http.MethodGet, "/api/leave-types?organization_id=org-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]leave.LeaveType](t, rec), 2)

	// "annual" is referenced by an entitlement
	rec = s.do(http.MethodDelete, "/api/leave-types/annual", "admin-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "leave_type_in_use", decodeBody[ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodDelete, "/api/leave-types/"+created.ID, "admin-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/api/leave-types/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_HolidaysAndWorkingDays(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/working-days?organization_id=org-1&country=US&start=2025-03-10&end=2025-03-14", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decodeBody[WorkingDaysResponse](t, rec).WorkingDays)

	rec = s.do(http.MethodPost, "/api/holidays", "admin-1", HolidayRequest{OrganizationID: "org-1", Country: "US", Date: "2025-03-12", Name: "Founders Day"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hol := decodeBody[leave.Holiday](t, rec)

	rec = s.do(http.MethodGet, "/api/working-days?organization_id=org-1&country=US&start=2025-03-10&end=2025-03-14", "", nil)
	assert.Equal(t, 4, decodeBody[WorkingDaysResponse](t, rec).WorkingDays)

	rec = s.do(http.MethodGet, "/api/holidays?organization_id=org-1&country=US", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]leave.Holiday](t, rec), 1)

	rec = s.do(http.MethodDelete, "/api/holidays/"+hol.ID+"?organization_id=org-1", "admin-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/working-days?organization_id=org-1&start=bad&end=2025-03-14", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_PolicyAndEntitlements(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/api/policies", "admin-1", PolicyRequest{
		OrganizationID: "org-1", Country: "US", AnnualDays: 12, CarryoverCapDays: 3, CarryoverExpiryDays: 60,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/policies?organization_id=org-1&country=US", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, decodeBody[leave.LeavePolicy](t, rec).AnnualDays)

	rec = s.do(http.MethodPost, "/api/users", "", CreateUserRequest{ID: "emp-9", OrganizationID: "org-1", Country: "US", ManagerID: "mgr-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/entitlements", "admin-1", GrantRequest{
		UserID: "emp-9", LeaveTypeID: "annual", Year: 2025, TotalDays: decimal.RequireFromString("7.5"),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "7.5", decodeBody[leave.LeaveEntitlement](t, rec).RemainingDays.String())

	// emp-1 carries min(10, 3) into 2026
	rec = s.do(http.MethodPost, "/api/admin/open-year", "admin-1", OpenYearRequest{UserID: "emp-1", LeaveTypeID: "annual", Year: 2026})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decodeBody[leave.LeaveEntitlement](t, rec)
	assert.Equal(t, "15", opened.RemainingDays.String())
	assert.Equal(t, leave.NewDate(2026, time.March, 2), opened.ExpiresOn)

	rec = s.do(http.MethodPost, "/api/admin/expire-carryforward", "admin-1", ExpireCarryForwardRequest{
		UserID: "emp-1", LeaveTypeID: "annual", Year: 2026, AsOf: "2026-03-03",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "12", decodeBody[leave.LeaveEntitlement](t, rec).RemainingDays.String())

	rec = s.do(http.MethodPost, "/api/admin/open-year", "admin-1", OpenYearRequest{UserID: "emp-1", LeaveTypeID: "annual", Year: 2026})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// SCENARIOS / SCHEDULER
// =============================================================================

func TestAPI_ImportOrganization(t *testing.T) {
	// GIVEN: An organization document with one new type and a US policy
	// WHEN: An admin, an employee and a malformed document hit the endpoint
	// THEN: 200 with counts, 403, 400

	s := newTestServer(t)
	doc := factory.OrganizationJSON{
		OrganizationID: "org-1",
		LeaveTypes:     []factory.LeaveTypeJSON{{ID: "study", Name: "Study", Category: "other", MaxDaysPerYear: 3}},
		Policies:       []factory.PolicyJSON{{Country: "US", AnnualDays: 12}},
		Holidays:       factory.FixedHolidaysJSON("US"),
	}

	rec := s.do(http.MethodPost, "/api/admin/import", "emp-1", doc)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/admin/import", "admin-1", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[factory.Result](t, rec)
	assert.Equal(t, 1, res.LeaveTypesCreated)
	assert.Equal(t, 1, res.PoliciesSaved)
	assert.Equal(t, len(doc.Holidays), res.HolidaysAdded)

	p, err := s.handler.Admin.GetPolicy(context.Background(), "org-1", "US")
	require.NoError(t, err)
	assert.Equal(t, 12, p.AnnualDays)

	rec = s.do(http.MethodPost, "/api/admin/import", "admin-1", map[string]any{"leave_types": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_LoadScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/scenarios", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), len(scenarios))

	for _, sc := range scenarios {
		rec = s.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: sc.ID})
		require.Equal(t, http.StatusCreated, rec.Code, "%s: %s", sc.ID, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "small-team"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// small-team leaves one pending request for alice
	reqs, err := s.handler.Requests.ListForUser(context.Background(), "demo-alice")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, leave.StatusPending, reqs[0].Status)

	// carried 5 of 8 unused days
	ent, err := s.mem.GetEntitlement(context.Background(), leave.EntitlementKey{UserID: "carry-emp", LeaveTypeID: "carry-annual", Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, "5", ent.CarriedForward.String())
	assert.Equal(t, "25", ent.RemainingDays.String())
}

func TestCarryForwardScheduler_RunNow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.handler.LoadScenarioByID(ctx, "year-end-carryover"))
	key := leave.EntitlementKey{UserID: "carry-emp", LeaveTypeID: "carry-annual", Year: 2025}

	sched := NewCarryForwardScheduler(s.handler.Admin, zaptest.NewLogger(t))
	assert.True(t, sched.NextRunTime().IsZero())

	// GIVEN: today is before the April 1 expiry
	sched.Now = func() time.Time { return testNow }
	changed, err := sched.RunNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)

	// WHEN: the clock passes the expiry
	sched.Now = func() time.Time { return time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC) }
	changed, err = sched.RunNow(ctx)

	// THEN: the carried days are forfeited once
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	ent, err := s.mem.GetEntitlement(ctx, key)
	require.NoError(t, err)
	assert.True(t, ent.CarriedForward.IsZero())
	assert.Equal(t, "20", ent.RemainingDays.String())
	assert.Equal(t, time.Date(2025, time.April, 2, 1, 0, 0, 0, time.UTC), sched.NextRunTime())
}

func TestCarryForwardScheduler_StartStop(t *testing.T) {
	s := newTestServer(t)
	sched := NewCarryForwardScheduler(s.handler.Admin, zaptest.NewLogger(t))
	sched.CheckInterval = time.Millisecond

	sched.Start()
	sched.Start()
	assert.Eventually(t, func() bool { return !sched.NextRunTime().IsZero() }, time.Second, time.Millisecond)
	sched.Stop()
	sched.Stop()

	sched.Enabled = false
	sched.Start()
	sched.Stop()
}
