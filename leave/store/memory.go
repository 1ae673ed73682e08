// Package store provides an in-memory leave.Repository.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu  *sync.RWMutex // nil inside a transaction view; the transaction holds the lock
	st  *state
	Now func() time.Time
}

type policyKey struct {
	OrganizationID string
	Country        string
}

type state struct {
	users        map[string]leave.User
	leaveTypes   map[string]leave.LeaveType
	policies     map[policyKey]leave.LeavePolicy
	holidays     map[string]leave.Holiday
	requests     map[string]leave.LeaveRequest
	entitlements map[leave.EntitlementKey]leave.LeaveEntitlement
}

func newState() *state {
	return &state{
		users:        make(map[string]leave.User),
		leaveTypes:   make(map[string]leave.LeaveType),
		policies:     make(map[policyKey]leave.LeavePolicy),
		holidays:     make(map[string]leave.Holiday),
		requests:     make(map[string]leave.LeaveRequest),
		entitlements: make(map[leave.EntitlementKey]leave.LeaveEntitlement),
	}
}

func NewMemory() *Memory {
	return &Memory{mu: &sync.RWMutex{}, st: newState(), Now: time.Now}
}

func (m *Memory) write() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) read() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store lock is held for the whole of fn, so transactions are serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	if m.mu == nil {
		// Already inside a transaction.
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	view := &Memory{st: m.st, Now: m.Now}
	if err := fn(view); err != nil {
		m.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.leaveTypes {
		c.leaveTypes[k] = v
	}
	for k, v := range s.policies {
		c.policies[k] = v
	}
	for k, v := range s.holidays {
		c.holidays[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.entitlements {
		c.entitlements[k] = v
	}
	return c
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser seeds the directory read model.
func (m *Memory) SaveUser(_ context.Context, u leave.User) error {
	defer m.write()()
	m.st.users[u.ID] = u
	return nil
}

func (m *Memory) GetUserByID(_ context.Context, id string) (leave.User, error) {
	defer m.read()()
	u, ok := m.st.users[id]
	if !ok {
		return leave.User{}, &leave.NotFoundError{Entity: "user", ID: id}
	}
	return u, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (m *Memory) CreateLeaveType(_ context.Context, lt leave.LeaveType) error {
	defer m.write()()
	if _, exists := m.st.leaveTypes[lt.ID]; exists {
		return fmt.Errorf("leave type %s already exists", lt.ID)
	}
	m.st.leaveTypes[lt.ID] = lt
	return nil
}

func (m *Memory) GetLeaveType(_ context.Context, id string) (leave.LeaveType, error) {
	defer m.read()()
	lt, ok := m.st.leaveTypes[id]
	if !ok {
		return leave.LeaveType{}, &leave.NotFoundError{Entity: "leave_type", ID: id}
	}
	return lt, nil
}

func (m *Memory) UpdateLeaveType(_ context.Context, lt leave.LeaveType) error {
	defer m.write()()
	if _, ok := m.st.leaveTypes[lt.ID]; !ok {
		return &leave.NotFoundError{Entity: "leave_type", ID: lt.ID}
	}
	m.st.leaveTypes[lt.ID] = lt
	return nil
}

func (m *Memory) DeleteLeaveType(_ context.Context, id string) error {
	defer m.write()()
	if _, ok := m.st.leaveTypes[id]; !ok {
		return &leave.NotFoundError{Entity: "leave_type", ID: id}
	}
	delete(m.st.leaveTypes, id)
	return nil
}

func (m *Memory) ListLeaveTypes(_ context.Context, organizationID string) ([]leave.LeaveType, error) {
	defer m.read()()
	var out []leave.LeaveType
	for _, lt := range m.st.leaveTypes {
		if lt.OrganizationID == organizationID {
			out = append(out, lt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) LeaveTypeInUse(_ context.Context, id string) (bool, error) {
	defer m.read()()
	for k := range m.st.entitlements {
		if k.LeaveTypeID == id {
			return true, nil
		}
	}
	for _, r := range m.st.requests {
		if r.LeaveTypeID == id {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// POLICIES / HOLIDAYS
// =============================================================================

func (m *Memory) SavePolicy(_ context.Context, p leave.LeavePolicy) error {
	defer m.write()()
	m.st.policies[policyKey{p.OrganizationID, p.Country}] = p
	return nil
}

// GetPolicy returns the country policy, falling back to the organization
// default stored with an empty country.
func (m *Memory) GetPolicy(_ context.Context, organizationID, country string) (leave.LeavePolicy, error) {
	defer m.read()()
	if p, ok := m.st.policies[policyKey{organizationID, country}]; ok {
		return p, nil
	}
	if p, ok := m.st.policies[policyKey{organizationID, ""}]; ok {
		return p, nil
	}
	return leave.LeavePolicy{}, &leave.NotFoundError{Entity: "policy", ID: organizationID + "/" + country}
}

func (m *Memory) SaveHoliday(_ context.Context, h leave.Holiday) error {
	defer m.write()()
	m.st.holidays[h.ID] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, organizationID, id string) error {
	defer m.write()()
	h, ok := m.st.holidays[id]
	if !ok || h.OrganizationID != organizationID {
		return &leave.NotFoundError{Entity: "holiday", ID: id}
	}
	delete(m.st.holidays, id)
	return nil
}

func (m *Memory) ListHolidays(_ context.Context, organizationID, country string) ([]leave.Holiday, error) {
	defer m.read()()
	var out []leave.Holiday
	for _, h := range m.st.holidays {
		if h.OrganizationID != organizationID {
			continue
		}
		if h.Country != "" && h.Country != country {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) CreateRequest(_ context.Context, r leave.LeaveRequest) error {
	defer m.write()()
	if _, exists := m.st.requests[r.ID]; exists {
		return fmt.Errorf("leave request %s already exists", r.ID)
	}
	m.st.requests[r.ID] = r
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (leave.LeaveRequest, error) {
	defer m.read()()
	r, ok := m.st.requests[id]
	if !ok {
		return leave.LeaveRequest{}, &leave.NotFoundError{Entity: "request", ID: id}
	}
	return r, nil
}

func (m *Memory) UpdateRequest(_ context.Context, r leave.LeaveRequest) error {
	defer m.write()()
	if _, ok := m.st.requests[r.ID]; !ok {
		return &leave.NotFoundError{Entity: "request", ID: r.ID}
	}
	m.st.requests[r.ID] = r
	return nil
}

func (m *Memory) ListRequestsByUser(_ context.Context, userID string) ([]leave.LeaveRequest, error) {
	defer m.read()()
	var out []leave.LeaveRequest
	for _, r := range m.st.requests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func (m *Memory) FindActiveOverlapping(_ context.Context, userID string, start, end leave.Date) ([]leave.LeaveRequest, error) {
	defer m.read()()
	var out []leave.LeaveRequest
	for _, r := range m.st.requests {
		if r.UserID == userID && r.Active() && r.Overlaps(start, end) {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func sortRequests(rs []leave.LeaveRequest) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].StartDate.Equal(rs[j].StartDate) {
			return rs[i].StartDate.Before(rs[j].StartDate)
		}
		return rs[i].ID < rs[j].ID
	})
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

func (m *Memory) CreateEntitlement(_ context.Context, e leave.LeaveEntitlement) error {
	defer m.write()()
	if _, exists := m.st.entitlements[e.EntitlementKey]; exists {
		return fmt.Errorf("%w: %s/%s/%d", leave.ErrDuplicateEntitlement, e.UserID, e.LeaveTypeID, e.Year)
	}
	m.st.entitlements[e.EntitlementKey] = e
	return nil
}

func (m *Memory) GetEntitlement(_ context.Context, key leave.EntitlementKey) (leave.LeaveEntitlement, error) {
	defer m.read()()
	e, ok := m.st.entitlements[key]
	if !ok {
		return leave.LeaveEntitlement{}, entitlementNotFound(key)
	}
	return e, nil
}

func (m *Memory) ListEntitlements(_ context.Context, userID string, year int) ([]leave.LeaveEntitlement, error) {
	defer m.read()()
	var out []leave.LeaveEntitlement
	for k, e := range m.st.entitlements {
		if k.UserID == userID && k.Year == year {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeaveTypeID < out[j].LeaveTypeID })
	return out, nil
}

func (m *Memory) ListExpiredCarryForward(_ context.Context, asOf leave.Date) ([]leave.EntitlementKey, error) {
	defer m.read()()
	var out []leave.EntitlementKey
	for k, e := range m.st.entitlements {
		if !e.ExpiresOn.IsZero() && e.ExpiresOn.Before(asOf) && e.CarriedForward.IsPositive() && e.RemainingDays.IsPositive() {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		if out[i].LeaveTypeID != out[j].LeaveTypeID {
			return out[i].LeaveTypeID < out[j].LeaveTypeID
		}
		return out[i].Year < out[j].Year
	})
	return out, nil
}

// MutateEntitlement applies m under the write lock, so the check and the
// write cannot interleave with another mutation.
func (m *Memory) MutateEntitlement(_ context.Context, key leave.EntitlementKey, mut leave.EntitlementMutation) (leave.LeaveEntitlement, error) {
	defer m.write()()
	e, ok := m.st.entitlements[key]
	if !ok {
		return leave.LeaveEntitlement{}, entitlementNotFound(key)
	}
	next, err := mut.Apply(e, m.Now().UTC())
	if err != nil {
		return leave.LeaveEntitlement{}, err
	}
	m.st.entitlements[key] = next
	return next, nil
}

func entitlementNotFound(key leave.EntitlementKey) error {
	return &leave.NotFoundError{Entity: "entitlement", ID: fmt.Sprintf("%s/%s/%d", key.UserID, key.LeaveTypeID, key.Year)}
}

var (
	_ leave.Repository    = (*Memory)(nil)
	_ leave.Transactor    = (*Memory)(nil)
	_ leave.ExpiryScanner = (*Memory)(nil)
)
