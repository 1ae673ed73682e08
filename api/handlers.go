/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response, JSON
  serialization and input validation, and delegates to leave.RequestService
  and leave.AdminService.

ENDPOINTS:
  Requests:
    POST   /api/requests                    Submit a leave request
    GET    /api/requests/{id}               Get one request
    POST   /api/requests/{id}/approve       Approve (approver or admin)
    POST   /api/requests/{id}/reject        Reject (approver or admin)
    POST   /api/requests/{id}/cancel        Cancel (requester or admin)

  Users:
    POST   /api/users                       Seed the directory read model
    GET    /api/users/{id}/requests         Requests of one user
    GET    /api/users/{id}/entitlements     Balances (?year=, default current)

  Catalog (admin):
    GET    /api/leave-types                 ?organization_id=
    POST   /api/leave-types
    GET    /api/leave-types/{id}
    PUT    /api/leave-types/{id}
    DELETE /api/leave-types/{id}
    GET    /api/policies                    ?organization_id=&country=
    PUT    /api/policies
    GET    /api/holidays                    ?organization_id=&country=
    POST   /api/holidays
    DELETE /api/holidays/{id}               ?organization_id=
    POST   /api/entitlements                Explicit grant
    POST   /api/admin/open-year             Entitlement from policy
    POST   /api/admin/expire-carryforward   Forfeit expired carried days
    POST   /api/admin/import                Apply a factory organization document

  Preview:
    GET    /api/working-days                ?organization_id=&country=&start=&end=

ACTOR IDENTITY:
  Mutating endpoints read the acting user from the X-Actor-ID header. It
  stands in for an upstream authentication layer; this service trusts it.

REQUEST FLOW:
  1. Decode body and validate (go-playground/validator)
  2. Call the engine
  3. On success publish returned events (failures are logged, not returned)
  4. Serialize response, or map the error in errors.go

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/events"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// ActorHeader carries the acting user's ID.
const ActorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the repository plus directory seeding.
type Store interface {
	leave.Repository
	SaveUser(ctx context.Context, u leave.User) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Requests  *leave.RequestService
	Admin     *leave.AdminService
	Publisher events.Publisher
	Now       func() time.Time

	logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler wires both engine services over store. A nil publisher logs
// events through logger.
func NewHandler(store Store, publisher events.Publisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	return &Handler{
		Store:     store,
		Requests:  leave.NewRequestService(store, logger),
		Admin:     leave.NewAdminService(store, logger),
		Publisher: publisher,
		Now:       time.Now,
		logger:    logger.Named("api"),
		validate:  newValidator(),
	}
}

// SetClock replaces the clock of the handler and both services.
func (h *Handler) SetClock(now func() time.Time) {
	h.Now = now
	h.Requests.Now = now
	h.Admin.Now = now
}

func (h *Handler) today() leave.Date { return leave.DateOf(h.Now().UTC()) }

// decode reads and validates a JSON body. An empty body decodes to the zero
// value. It writes the error response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// actor returns the X-Actor-ID header or writes 401.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(ActorHeader)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ActorHeader + " header is required", Code: "missing_actor"})
		return "", false
	}
	return id, true
}

func (h *Handler) publish(ctx context.Context, out *leave.Outcome) {
	if len(out.Events) == 0 {
		return
	}
	if err := h.Publisher.Publish(ctx, out.Events...); err != nil {
		h.logger.Warn("publish events failed",
			zap.String("request_id", out.Request.ID),
			zap.Int("events", len(out.Events)),
			zap.Error(err),
		)
	}
}

func (h *Handler) writeOutcome(w http.ResponseWriter, r *http.Request, status int, out *leave.Outcome) {
	h.publish(r.Context(), out)
	writeJSON(w, status, OutcomeResponse{Request: out.Request, Events: out.Events})
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	if actorID != req.UserID {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "requests are submitted by the requesting user", Code: "forbidden"})
		return
	}
	start, err := leave.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := leave.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	out, err := h.Requests.Submit(r.Context(), leave.SubmitCommand{
		UserID:      req.UserID,
		LeaveTypeID: req.LeaveTypeID,
		Start:       start,
		End:         end,
		Reason:      req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeOutcome(w, r, http.StatusCreated, out)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Requests.Approve(r.Context(), leave.ApproveCommand{
		RequestID: chi.URLParam(r, "id"), ApproverID: actorID, Comments: req.Comments,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeOutcome(w, r, http.StatusOK, out)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Requests.Reject(r.Context(), leave.RejectCommand{
		RequestID: chi.URLParam(r, "id"), ApproverID: actorID, Comments: req.Comments,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeOutcome(w, r, http.StatusOK, out)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	out, err := h.Requests.Cancel(r.Context(), leave.CancelCommand{RequestID: chi.URLParam(r, "id"), ActorID: actorID})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeOutcome(w, r, http.StatusOK, out)
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser upserts a directory entry. Users are owned upstream; this only
// feeds the read model the engine checks organization and manager against.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u := req.toUser()
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) ListUserRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Requests.ListForUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []leave.LeaveRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *Handler) ListUserEntitlements(w http.ResponseWriter, r *http.Request) {
	year := h.today().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}
	ents, err := h.Requests.Balances(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if ents == nil {
		ents = []leave.LeaveEntitlement{}
	}
	writeJSON(w, http.StatusOK, ents)
}

// =============================================================================
// LEAVE TYPE HANDLERS
// =============================================================================

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required", nil)
		return
	}
	types, err := h.Admin.ListLeaveTypes(r.Context(), orgID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if types == nil {
		types = []leave.LeaveType{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req LeaveTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	lt, err := h.Admin.CreateLeaveType(r.Context(), actorID, req.toLeaveType())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lt)
}

func (h *Handler) GetLeaveType(w http.ResponseWriter, r *http.Request) {
	lt, err := h.Admin.GetLeaveType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lt)
}

func (h *Handler) UpdateLeaveType(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req LeaveTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	lt, err := h.Admin.UpdateLeaveType(r.Context(), actorID, req.toLeaveType())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lt)
}

func (h *Handler) DeleteLeaveType(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.Admin.DeleteLeaveType(r.Context(), actorID, chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// POLICY / HOLIDAY HANDLERS
// =============================================================================

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("organization_id") == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required", nil)
		return
	}
	p, err := h.Admin.GetPolicy(r.Context(), q.Get("organization_id"), q.Get("country"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req PolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Admin.SetPolicy(r.Context(), actorID, req.toPolicy())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("organization_id") == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required", nil)
		return
	}
	hs, err := h.Admin.ListHolidays(r.Context(), q.Get("organization_id"), q.Get("country"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if hs == nil {
		hs = []leave.Holiday{}
	}
	writeJSON(w, http.StatusOK, hs)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req HolidayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := leave.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	hol, err := h.Admin.AddHoliday(r.Context(), actorID, leave.Holiday{
		OrganizationID: req.OrganizationID,
		Country:        req.Country,
		Date:           date,
		Name:           req.Name,
		Recurring:      req.Recurring,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hol)
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required", nil)
		return
	}
	if err := h.Admin.RemoveHoliday(r.Context(), actorID, orgID, chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WorkingDays previews the working-day count of a range without submitting.
func (h *Handler) WorkingDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("organization_id") == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required", nil)
		return
	}
	start, err := leave.ParseDate(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	end, err := leave.ParseDate(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end", err)
		return
	}
	n, err := h.Requests.WorkingDays(r.Context(), q.Get("organization_id"), q.Get("country"), start, end)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WorkingDaysResponse{
		OrganizationID: q.Get("organization_id"),
		Country:        q.Get("country"),
		StartDate:      start,
		EndDate:        end,
		WorkingDays:    n,
	})
}

// =============================================================================
// ENTITLEMENT HANDLERS
// =============================================================================

func (h *Handler) GrantEntitlement(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req GrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	expiresOn, err := parseOptionalDate(req.ExpiresOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expires_on", err)
		return
	}
	ent, err := h.Admin.GrantEntitlement(r.Context(), leave.GrantCommand{
		ActorID:        actorID,
		Key:            leave.EntitlementKey{UserID: req.UserID, LeaveTypeID: req.LeaveTypeID, Year: req.Year},
		TotalDays:      req.TotalDays,
		CarriedForward: req.CarriedForward,
		ExpiresOn:      expiresOn,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

func (h *Handler) OpenYear(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req OpenYearRequest
	if !h.decode(w, r, &req) {
		return
	}
	ent, err := h.Admin.OpenYear(r.Context(), actorID, req.UserID, req.LeaveTypeID, req.Year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

func (h *Handler) ExpireCarryForward(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req ExpireCarryForwardRequest
	if !h.decode(w, r, &req) {
		return
	}
	asOf, err := parseOptionalDate(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}
	if asOf.IsZero() {
		asOf = h.today()
	}
	ent, err := h.Admin.ExpireCarryForward(r.Context(), actorID,
		leave.EntitlementKey{UserID: req.UserID, LeaveTypeID: req.LeaveTypeID, Year: req.Year}, asOf)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

// ImportOrganization applies a factory organization document (leave types,
// policies, holidays) as the acting admin.
func (h *Handler) ImportOrganization(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	setup, err := factory.ParseOrganization(body)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	res, err := factory.Apply(r.Context(), h.Admin, actorID, setup)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("organization imported",
		zap.String("organization_id", setup.OrganizationID),
		zap.String("actor_id", actorID),
		zap.Int("leave_types_created", res.LeaveTypesCreated),
		zap.Int("leave_types_updated", res.LeaveTypesUpdated),
	)
	writeJSON(w, http.StatusOK, res)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
