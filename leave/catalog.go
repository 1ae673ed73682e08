/*
catalog.go - Organization administration: leave types, policy, holidays, entitlements

PURPOSE:
  Everything an organization admin configures before employees submit
  requests. Every method takes the acting user's ID and requires an admin of
  the organization being changed.

LEAVE TYPE REFERENCE RULES:
  A leave type referenced by any entitlement or request may not be updated
  or deleted (ErrLeaveTypeInUse). Create a new type instead.

ENTITLEMENT ADMINISTRATION:
  GrantEntitlement   - explicit row with a total and optional carry-forward
  OpenYear           - row derived from the organization policy
  ExpireCarryForward - forfeit unused carried days after their expiry

  SweepExpiredCarryForward is the one method without an actor: it is run by
  the scheduler as SystemActor over every row the store reports as expired.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AdminService struct {
	Repo   Repository
	Now    func() time.Time
	NewID  func() string
	logger *zap.Logger
}

func NewAdminService(repo Repository, logger ...*zap.Logger) *AdminService {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &AdminService{
		Repo:   repo,
		Now:    time.Now,
		NewID:  uuid.NewString,
		logger: l.Named("leave.admin"),
	}
}

// requireAdmin loads the actor and checks it administers organizationID.
func requireAdmin(ctx context.Context, users UserReader, actorID, organizationID string) (User, error) {
	actor, err := users.GetUserByID(ctx, actorID)
	if err != nil {
		return User{}, err
	}
	if !actor.IsAdmin() {
		return User{}, fmt.Errorf("%w: user %s", ErrAdminRequired, actorID)
	}
	if actor.OrganizationID != organizationID {
		return User{}, fmt.Errorf("%w: user %s is not in organization %s", ErrCrossOrganizationAccess, actorID, organizationID)
	}
	return actor, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func validateLeaveType(lt LeaveType) error {
	switch {
	case strings.TrimSpace(lt.Name) == "":
		return invalid("leave type name is required")
	case !lt.Category.Valid():
		return invalid("unknown category %q", lt.Category)
	case lt.MaxConsecutiveDays < 0 || lt.MaxDaysPerYear < 0:
		return invalid("leave type limits must not be negative")
	}
	return nil
}

func (s *AdminService) CreateLeaveType(ctx context.Context, actorID string, lt LeaveType) (LeaveType, error) {
	if err := validateLeaveType(lt); err != nil {
		return LeaveType{}, err
	}
	if _, err := requireAdmin(ctx, s.Repo, actorID, lt.OrganizationID); err != nil {
		return LeaveType{}, err
	}
	now := s.Now().UTC()
	if lt.ID == "" {
		lt.ID = s.NewID()
	}
	lt.CreatedAt = now
	lt.UpdatedAt = now
	if err := s.Repo.CreateLeaveType(ctx, lt); err != nil {
		s.logger.Error("create leave type failed", zap.String("organization_id", lt.OrganizationID), zap.Error(err))
		return LeaveType{}, err
	}
	s.logger.Info("leave type created",
		zap.String("leave_type_id", lt.ID),
		zap.String("organization_id", lt.OrganizationID),
		zap.String("category", string(lt.Category)),
	)
	return lt, nil
}

// UpdateLeaveType replaces a leave type's attributes. The organization of an
// existing type never changes.
func (s *AdminService) UpdateLeaveType(ctx context.Context, actorID string, lt LeaveType) (LeaveType, error) {
	if err := validateLeaveType(lt); err != nil {
		return LeaveType{}, err
	}
	var out LeaveType
	err := RunInTx(ctx, s.Repo, func(repo Repository) error {
		current, err := repo.GetLeaveType(ctx, lt.ID)
		if err != nil {
			return err
		}
		if _, err := requireAdmin(ctx, repo, actorID, current.OrganizationID); err != nil {
			return err
		}
		if err := ensureUnreferenced(ctx, repo, current.ID); err != nil {
			return err
		}
		lt.OrganizationID = current.OrganizationID
		lt.CreatedAt = current.CreatedAt
		lt.UpdatedAt = s.Now().UTC()
		if err := repo.UpdateLeaveType(ctx, lt); err != nil {
			return err
		}
		out = lt
		return nil
	})
	if err != nil {
		s.logger.Warn("update leave type rejected", zap.String("leave_type_id", lt.ID), zap.Error(err))
		return LeaveType{}, err
	}
	return out, nil
}

func (s *AdminService) DeleteLeaveType(ctx context.Context, actorID, leaveTypeID string) error {
	err := RunInTx(ctx, s.Repo, func(repo Repository) error {
		current, err := repo.GetLeaveType(ctx, leaveTypeID)
		if err != nil {
			return err
		}
		if _, err := requireAdmin(ctx, repo, actorID, current.OrganizationID); err != nil {
			return err
		}
		if err := ensureUnreferenced(ctx, repo, current.ID); err != nil {
			return err
		}
		return repo.DeleteLeaveType(ctx, current.ID)
	})
	if err != nil {
		s.logger.Warn("delete leave type rejected", zap.String("leave_type_id", leaveTypeID), zap.Error(err))
		return err
	}
	s.logger.Info("leave type deleted", zap.String("leave_type_id", leaveTypeID))
	return nil
}

func ensureUnreferenced(ctx context.Context, repo LeaveTypeStore, id string) error {
	inUse, err := repo.LeaveTypeInUse(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: %s", ErrLeaveTypeInUse, id)
	}
	return nil
}

func (s *AdminService) GetLeaveType(ctx context.Context, id string) (LeaveType, error) {
	return s.Repo.GetLeaveType(ctx, id)
}

func (s *AdminService) ListLeaveTypes(ctx context.Context, organizationID string) ([]LeaveType, error) {
	return s.Repo.ListLeaveTypes(ctx, organizationID)
}

// =============================================================================
// POLICY
// =============================================================================

// SetPolicy creates or replaces the policy for (organization, country).
func (s *AdminService) SetPolicy(ctx context.Context, actorID string, p LeavePolicy) (LeavePolicy, error) {
	for name, v := range map[string]int{
		"annual_days":           p.AnnualDays,
		"sick_days":             p.SickDays,
		"maternity_days":        p.MaternityDays,
		"paternity_days":        p.PaternityDays,
		"carryover_cap_days":    p.CarryoverCapDays,
		"carryover_expiry_days": p.CarryoverExpiryDays,
		"notice_period_days":    p.NoticePeriodDays,
	} {
		if v < 0 {
			return LeavePolicy{}, invalid("%s must not be negative", name)
		}
	}
	if _, err := requireAdmin(ctx, s.Repo, actorID, p.OrganizationID); err != nil {
		return LeavePolicy{}, err
	}
	if p.ID == "" {
		p.ID = s.NewID()
	}
	if err := s.Repo.SavePolicy(ctx, p); err != nil {
		s.logger.Error("save policy failed", zap.String("organization_id", p.OrganizationID), zap.Error(err))
		return LeavePolicy{}, err
	}
	s.logger.Info("policy saved", zap.String("organization_id", p.OrganizationID), zap.String("country", p.Country))
	return p, nil
}

func (s *AdminService) GetPolicy(ctx context.Context, organizationID, country string) (LeavePolicy, error) {
	return s.Repo.GetPolicy(ctx, organizationID, country)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *AdminService) AddHoliday(ctx context.Context, actorID string, h Holiday) (Holiday, error) {
	if h.Date.IsZero() {
		return Holiday{}, invalid("holiday date is required")
	}
	if strings.TrimSpace(h.Name) == "" {
		return Holiday{}, invalid("holiday name is required")
	}
	if _, err := requireAdmin(ctx, s.Repo, actorID, h.OrganizationID); err != nil {
		return Holiday{}, err
	}
	if h.ID == "" {
		h.ID = s.NewID()
	}
	if err := s.Repo.SaveHoliday(ctx, h); err != nil {
		return Holiday{}, err
	}
	s.logger.Info("holiday added",
		zap.String("organization_id", h.OrganizationID),
		zap.Stringer("date", h.Date),
		zap.Bool("recurring", h.Recurring),
	)
	return h, nil
}

func (s *AdminService) RemoveHoliday(ctx context.Context, actorID, organizationID, holidayID string) error {
	if _, err := requireAdmin(ctx, s.Repo, actorID, organizationID); err != nil {
		return err
	}
	return s.Repo.DeleteHoliday(ctx, organizationID, holidayID)
}

func (s *AdminService) ListHolidays(ctx context.Context, organizationID, country string) ([]Holiday, error) {
	return s.Repo.ListHolidays(ctx, organizationID, country)
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

// GrantCommand creates an entitlement row explicitly.
type GrantCommand struct {
	ActorID        string
	Key            EntitlementKey
	TotalDays      decimal.Decimal
	CarriedForward decimal.Decimal
	ExpiresOn      Date
}

func (s *AdminService) GrantEntitlement(ctx context.Context, cmd GrantCommand) (LeaveEntitlement, error) {
	var out LeaveEntitlement
	err := RunInTx(ctx, s.Repo, func(repo Repository) error {
		if _, _, err := s.entitlementScope(ctx, repo, cmd.ActorID, cmd.Key.UserID, cmd.Key.LeaveTypeID); err != nil {
			return err
		}
		var err error
		out, err = (&Ledger{Store: repo, Now: s.Now}).Grant(ctx, cmd.Key, cmd.TotalDays, cmd.CarriedForward, cmd.ExpiresOn)
		return err
	})
	if err != nil {
		s.logger.Warn("grant entitlement rejected", zap.String("user_id", cmd.Key.UserID), zap.Error(err))
		return LeaveEntitlement{}, err
	}
	s.logger.Info("entitlement granted",
		zap.String("user_id", out.UserID),
		zap.String("leave_type_id", out.LeaveTypeID),
		zap.Int("year", out.Year),
		zap.Stringer("total_days", out.TotalDays),
	)
	return out, nil
}

// OpenYear creates a user's entitlement for year from the organization policy.
func (s *AdminService) OpenYear(ctx context.Context, actorID, userID, leaveTypeID string, year int) (LeaveEntitlement, error) {
	var out LeaveEntitlement
	err := RunInTx(ctx, s.Repo, func(repo Repository) error {
		user, lt, err := s.entitlementScope(ctx, repo, actorID, userID, leaveTypeID)
		if err != nil {
			return err
		}
		policy, err := repo.GetPolicy(ctx, user.OrganizationID, user.Country)
		if err != nil {
			return err
		}
		out, err = (&Ledger{Store: repo, Now: s.Now}).OpenYear(ctx, user.ID, lt, year, policy)
		return err
	})
	if err != nil {
		s.logger.Warn("open year rejected", zap.String("user_id", userID), zap.Int("year", year), zap.Error(err))
		return LeaveEntitlement{}, err
	}
	s.logger.Info("entitlement year opened",
		zap.String("user_id", out.UserID),
		zap.String("leave_type_id", out.LeaveTypeID),
		zap.Int("year", out.Year),
		zap.Stringer("carried_forward", out.CarriedForward),
	)
	return out, nil
}

// ExpireCarryForward forfeits expired carried-forward days on one row.
func (s *AdminService) ExpireCarryForward(ctx context.Context, actorID string, key EntitlementKey, asOf Date) (LeaveEntitlement, error) {
	var out LeaveEntitlement
	err := RunInTx(ctx, s.Repo, func(repo Repository) error {
		if _, _, err := s.entitlementScope(ctx, repo, actorID, key.UserID, key.LeaveTypeID); err != nil {
			return err
		}
		var err error
		out, err = (&Ledger{Store: repo, Now: s.Now}).ExpireCarryForward(ctx, key, asOf)
		return err
	})
	if err != nil {
		s.logger.Warn("expire carry-forward rejected", zap.String("user_id", key.UserID), zap.Error(err))
		return LeaveEntitlement{}, err
	}
	return out, nil
}

// entitlementScope loads the user and leave type and checks the actor
// administers the organization both belong to.
func (s *AdminService) entitlementScope(ctx context.Context, repo Repository, actorID, userID, leaveTypeID string) (User, LeaveType, error) {
	user, err := repo.GetUserByID(ctx, userID)
	if err != nil {
		return User{}, LeaveType{}, err
	}
	if _, err := requireAdmin(ctx, repo, actorID, user.OrganizationID); err != nil {
		return User{}, LeaveType{}, err
	}
	lt, err := repo.GetLeaveType(ctx, leaveTypeID)
	if err != nil {
		return User{}, LeaveType{}, err
	}
	if lt.OrganizationID != user.OrganizationID {
		return User{}, LeaveType{}, fmt.Errorf("%w: leave type %s", ErrCrossOrganizationAccess, lt.ID)
	}
	return user, lt, nil
}

// ErrScanUnsupported is returned by SweepExpiredCarryForward when the
// repository does not implement ExpiryScanner.
var ErrScanUnsupported = errors.New("repository cannot scan for expired carry-forward")

// SweepExpiredCarryForward expires every carried-forward balance past its
// expiry as of asOf. Each row is its own unit of work; a failing row does not
// stop the sweep. It returns the number of rows changed.
func (s *AdminService) SweepExpiredCarryForward(ctx context.Context, asOf Date) (int, error) {
	scanner, ok := s.Repo.(ExpiryScanner)
	if !ok {
		return 0, ErrScanUnsupported
	}
	keys, err := scanner.ListExpiredCarryForward(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("list expired carry-forward: %w", err)
	}

	changed := 0
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var before, after LeaveEntitlement
		err := RunInTx(ctx, s.Repo, func(repo Repository) error {
			var err error
			if before, err = repo.GetEntitlement(ctx, key); err != nil {
				return err
			}
			after, err = (&Ledger{Store: repo, Now: s.Now}).ExpireCarryForward(ctx, key, asOf)
			return err
		})
		if err != nil {
			s.logger.Error("carry-forward expiry failed",
				zap.String("user_id", key.UserID),
				zap.String("leave_type_id", key.LeaveTypeID),
				zap.Int("year", key.Year),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if after.Version != before.Version {
			changed++
			s.logger.Info("carry-forward expired",
				zap.String("user_id", key.UserID),
				zap.String("leave_type_id", key.LeaveTypeID),
				zap.Int("year", key.Year),
				zap.Stringer("forfeited", before.CarriedForward.Sub(after.CarriedForward)),
				zap.String("actor_id", SystemActor),
			)
		}
	}
	return changed, errors.Join(errs...)
}
