/*
request.go - Leave request state machine

PURPOSE:
  Owns the request lifecycle and orchestrates calendar, validator, conflict
  detector and ledger on every transition.

STATES:
  PENDING ──▶ APPROVED    (Commit:  pending -> used)
          ──▶ REJECTED    (Release: pending -> remaining)
          ──▶ CANCELLED   (Release: pending -> remaining)

  Terminal states are final. A transition on a non-PENDING request returns
  *InvalidStateTransitionError naming the current status.

SUBMIT FLOW:
  range ─▶ holidays ─▶ working days ─▶ policy rules ─▶ overlap ─▶ Reserve ─▶ persist
                                                                      │
                                          persist fails ◀─────────────┘
                                          └─▶ compensating Release, original error returned

  When the repository implements Transactor the whole flow is one
  transaction, so the overlap query and the reservation share a snapshot.
  The ledger call is made only after every check has passed.

AUTO-APPROVAL:
  A leave type that does not require approval is approved in the same unit
  of work: submitted and approved events are both returned.

AUTHORIZATION:
  Approve/Reject: the assigned approver, or an admin of the organization.
  Cancel:         the requester, or an admin of the organization.

SEE ALSO:
  - ledger.go:   Reserve/Commit/Release semantics
  - policy.go:   Submission rules
  - conflict.go: Overlap detection (fails closed)
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SystemActor is recorded as the decider of auto-approved requests.
const SystemActor = "system"

// =============================================================================
// REQUEST SERVICE
// =============================================================================

type RequestService struct {
	Repo      Repository
	Calendar  HolidayCalendar // nil = holidays from Repo
	Validator *PolicyValidator
	Now       func() time.Time
	NewID     func() string
	logger    *zap.Logger
}

func NewRequestService(repo Repository, logger ...*zap.Logger) *RequestService {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	s := &RequestService{
		Repo:   repo,
		Now:    time.Now,
		NewID:  uuid.NewString,
		logger: l.Named("leave.requests"),
	}
	s.Validator = NewPolicyValidator(func() time.Time { return s.Now() })
	return s
}

func (s *RequestService) now() time.Time { return s.Now().UTC() }

func (s *RequestService) calendar(repo Repository) HolidayCalendar {
	if s.Calendar != nil {
		return s.Calendar
	}
	return NewStoreCalendar(repo)
}

func (s *RequestService) ledger(repo Repository) *Ledger {
	return &Ledger{Store: repo, Now: s.Now}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit validates and reserves a new request. The request is persisted as
// PENDING, or APPROVED straight away when its leave type needs no approval.
func (s *RequestService) Submit(ctx context.Context, cmd SubmitCommand) (*Outcome, error) {
	s.logger.Debug("submit leave requested",
		zap.String("user_id", cmd.UserID),
		zap.String("leave_type_id", cmd.LeaveTypeID),
		zap.Stringer("start_date", cmd.Start),
		zap.Stringer("end_date", cmd.End),
	)
	if cmd.Start.After(cmd.End) {
		return nil, &InvalidRangeError{Start: cmd.Start, End: cmd.End}
	}

	var out *Outcome
	err := RunInTx(ctx, s.Repo, func(repo Repository) error {
		user, err := repo.GetUserByID(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		lt, err := repo.GetLeaveType(ctx, cmd.LeaveTypeID)
		if err != nil {
			return err
		}
		if lt.OrganizationID != user.OrganizationID {
			return fmt.Errorf("%w: leave type %s", ErrCrossOrganizationAccess, lt.ID)
		}
		policy, err := repo.GetPolicy(ctx, user.OrganizationID, user.Country)
		if err != nil {
			return err
		}

		holidays, err := s.calendar(repo).Holidays(ctx, user.OrganizationID, user.Country, cmd.Start, cmd.End)
		if err != nil {
			return err
		}
		days, err := CountWorkingDays(cmd.Start, cmd.End, holidays)
		if err != nil {
			return err
		}
		if days == 0 {
			return &PolicyViolationError{
				Kind:    ViolationNoWorkingDays,
				Message: fmt.Sprintf("%s..%s contains no working days", cmd.Start, cmd.End),
			}
		}

		booked, err := bookedDays(ctx, repo, lt, EntitlementKey{UserID: user.ID, LeaveTypeID: lt.ID, Year: cmd.Start.Year()})
		if err != nil {
			return err
		}
		decision, err := s.Validator.Validate(SubmissionInput{
			LeaveType:     lt,
			Policy:        policy,
			Start:         cmd.Start,
			End:           cmd.End,
			DaysRequested: days,
			BookedDays:    booked,
		})
		if err != nil {
			return err
		}
		if err := NewConflictDetector(repo).Check(ctx, user.ID, cmd.Start, cmd.End); err != nil {
			return err
		}

		now := s.now()
		req := LeaveRequest{
			ID:              s.NewID(),
			OrganizationID:  user.OrganizationID,
			UserID:          user.ID,
			LeaveTypeID:     lt.ID,
			StartDate:       cmd.Start,
			EndDate:         cmd.End,
			DaysRequested:   days,
			EntitlementYear: cmd.Start.Year(),
			Status:          StatusPending,
			Reason:          cmd.Reason,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if decision.RequiresApproval {
			req.ApproverID = user.ManagerID
		}

		ledger := s.ledger(repo)
		if _, err := ledger.Reserve(ctx, req.EntitlementKey(), days); err != nil {
			return err
		}
		if err := repo.CreateRequest(ctx, req); err != nil {
			s.compensate(ctx, repo, req, reserveMutation(decimal.NewFromInt(int64(days))))
			return fmt.Errorf("persist request: %w", err)
		}
		out = &Outcome{Request: req, Events: []Event{newEvent(EventSubmitted, req, user.ID, now)}}

		if !decision.RequiresApproval {
			approved, err := s.apply(ctx, repo, req, approveTransition, User{ID: SystemActor}, "")
			if err != nil {
				s.abandon(ctx, repo, req)
				return err
			}
			out.Request = approved.Request
			out.Events = append(out.Events, approved.Events...)
		}
		return nil
	})
	if err != nil {
		s.logFailure("submit leave", err, zap.String("user_id", cmd.UserID))
		return nil, err
	}
	s.logger.Info("submit leave success",
		zap.String("request_id", out.Request.ID),
		zap.String("user_id", out.Request.UserID),
		zap.Int("days", out.Request.DaysRequested),
		zap.String("status", string(out.Request.Status)),
	)
	return out, nil
}

// bookedDays returns used + pending on the row a request would charge. It is
// only read when the leave type caps days per year; a missing row counts as
// nothing booked and Reserve reports it.
func bookedDays(ctx context.Context, repo Repository, lt LeaveType, key EntitlementKey) (decimal.Decimal, error) {
	if lt.MaxDaysPerYear <= 0 {
		return decimal.Zero, nil
	}
	ent, err := repo.GetEntitlement(ctx, key)
	if IsNotFound(err) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return ent.UsedDays.Add(ent.PendingDays), nil
}

// =============================================================================
// APPROVE / REJECT / CANCEL
// =============================================================================

func (s *RequestService) Approve(ctx context.Context, cmd ApproveCommand) (*Outcome, error) {
	return s.transition(ctx, cmd.RequestID, cmd.ApproverID, approveTransition, cmd.Comments)
}

func (s *RequestService) Reject(ctx context.Context, cmd RejectCommand) (*Outcome, error) {
	return s.transition(ctx, cmd.RequestID, cmd.ApproverID, rejectTransition, cmd.Comments)
}

func (s *RequestService) Cancel(ctx context.Context, cmd CancelCommand) (*Outcome, error) {
	return s.transition(ctx, cmd.RequestID, cmd.ActorID, cancelTransition, "")
}

// transitionSpec describes one PENDING -> terminal edge.
type transitionSpec struct {
	action    string
	target    Status
	event     EventType
	mutation  func(days decimal.Decimal) EntitlementMutation
	authorize func(r LeaveRequest, actor User) bool
}

var (
	approveTransition = transitionSpec{
		action:    "approve",
		target:    StatusApproved,
		event:     EventApproved,
		mutation:  commitMutation,
		authorize: canDecide,
	}
	rejectTransition = transitionSpec{
		action:    "reject",
		target:    StatusRejected,
		event:     EventRejected,
		mutation:  releaseMutation,
		authorize: canDecide,
	}
	cancelTransition = transitionSpec{
		action:    "cancel",
		target:    StatusCancelled,
		event:     EventCancelled,
		mutation:  releaseMutation,
		authorize: canCancel,
	}
)

func isOrgAdmin(r LeaveRequest, actor User) bool {
	return actor.IsAdmin() && actor.OrganizationID == r.OrganizationID
}

func canDecide(r LeaveRequest, actor User) bool {
	return (r.ApproverID != "" && actor.ID == r.ApproverID) || isOrgAdmin(r, actor)
}

func canCancel(r LeaveRequest, actor User) bool {
	return actor.ID == r.UserID || isOrgAdmin(r, actor)
}

func (s *RequestService) transition(ctx context.Context, requestID, actorID string, ts transitionSpec, comments string) (*Outcome, error) {
	s.logger.Debug(ts.action+" leave requested",
		zap.String("request_id", requestID),
		zap.String("actor_id", actorID),
	)

	var out *Outcome
	err := RunInTx(ctx, s.Repo, func(repo Repository) error {
		req, err := repo.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return &InvalidStateTransitionError{RequestID: req.ID, Current: req.Status, Target: ts.target}
		}
		actor, err := repo.GetUserByID(ctx, actorID)
		if err != nil {
			return err
		}
		if !ts.authorize(req, actor) {
			return &UnauthorizedTransitionError{RequestID: req.ID, ActorID: actorID, Action: ts.action}
		}
		out, err = s.apply(ctx, repo, req, ts, actor, comments)
		return err
	})
	if err != nil {
		s.logFailure(ts.action+" leave", err, zap.String("request_id", requestID), zap.String("actor_id", actorID))
		return nil, err
	}
	s.logger.Info(ts.action+" leave success",
		zap.String("request_id", out.Request.ID),
		zap.String("status", string(out.Request.Status)),
	)
	return out, nil
}

// apply performs the ledger mutation and then persists the new status. If the
// status update fails the mutation is reverted.
func (s *RequestService) apply(ctx context.Context, repo Repository, req LeaveRequest, ts transitionSpec, actor User, comments string) (*Outcome, error) {
	m := ts.mutation(decimal.NewFromInt(int64(req.DaysRequested)))
	if _, err := repo.MutateEntitlement(ctx, req.EntitlementKey(), m); err != nil {
		return nil, err
	}

	now := s.now()
	next := req
	next.Status = ts.target
	next.DecidedBy = actor.ID
	next.DecidedAt = &now
	next.UpdatedAt = now
	if ts.target == StatusApproved {
		next.ApprovedAt = &now
	}
	if ts.target == StatusApproved || ts.target == StatusRejected {
		next.ApproverComments = comments
		if next.ApproverID == "" {
			next.ApproverID = actor.ID
		}
	}

	if err := repo.UpdateRequest(ctx, next); err != nil {
		s.compensate(ctx, repo, req, m)
		return nil, fmt.Errorf("persist %s: %w", ts.action, err)
	}
	return &Outcome{Request: next, Events: []Event{newEvent(ts.event, next, actor.ID, now)}}, nil
}

// compensate reverts a ledger mutation whose follow-up write failed. A failed
// compensation is logged; the caller still reports the original error.
func (s *RequestService) compensate(ctx context.Context, repo Repository, req LeaveRequest, applied EntitlementMutation) {
	if _, err := repo.MutateEntitlement(ctx, req.EntitlementKey(), applied.Inverse()); err != nil {
		s.logger.Error("compensating ledger mutation failed",
			zap.String("request_id", req.ID),
			zap.String("user_id", req.UserID),
			zap.String("leave_type_id", req.LeaveTypeID),
			zap.Int("year", req.EntitlementYear),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("ledger mutation compensated",
		zap.String("request_id", req.ID),
		zap.Int("days", req.DaysRequested),
	)
}

// abandon undoes a submission whose auto-approval failed after the request
// was stored: the reservation is released and the request is cancelled by
// the system. Inside a transaction the rollback already covers this.
func (s *RequestService) abandon(ctx context.Context, repo Repository, req LeaveRequest) {
	if _, ok := s.Repo.(Transactor); ok {
		return
	}
	s.compensate(ctx, repo, req, reserveMutation(decimal.NewFromInt(int64(req.DaysRequested))))

	now := s.now()
	req.Status = StatusCancelled
	req.DecidedBy = SystemActor
	req.DecidedAt = &now
	req.UpdatedAt = now
	if err := repo.UpdateRequest(ctx, req); err != nil {
		s.logger.Error("cancelling unapproved request failed",
			zap.String("request_id", req.ID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
	}
}

func (s *RequestService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if IsClientError(err) || IsNotFound(err) {
		s.logger.Warn(op+" rejected", fields...)
		return
	}
	s.logger.Error(op+" failed", fields...)
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *RequestService) Get(ctx context.Context, requestID string) (LeaveRequest, error) {
	return s.Repo.GetRequest(ctx, requestID)
}

func (s *RequestService) ListForUser(ctx context.Context, userID string) ([]LeaveRequest, error) {
	return s.Repo.ListRequestsByUser(ctx, userID)
}

// Balance returns the entitlement row for key.
func (s *RequestService) Balance(ctx context.Context, key EntitlementKey) (LeaveEntitlement, error) {
	return s.ledger(s.Repo).GetRemaining(ctx, key)
}

// Balances lists a user's entitlement rows for a year.
func (s *RequestService) Balances(ctx context.Context, userID string, year int) ([]LeaveEntitlement, error) {
	return s.Repo.ListEntitlements(ctx, userID, year)
}

// WorkingDays previews the business-day count a submission would charge.
func (s *RequestService) WorkingDays(ctx context.Context, organizationID, country string, start, end Date) (int, error) {
	if start.After(end) {
		return 0, &InvalidRangeError{Start: start, End: end}
	}
	holidays, err := s.calendar(s.Repo).Holidays(ctx, organizationID, country, start, end)
	if err != nil {
		return 0, err
	}
	return CountWorkingDays(start, end, holidays)
}
