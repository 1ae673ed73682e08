/*
Package postgres provides a PostgreSQL-backed leave.Repository using pgx.

ATOMIC LEDGER MUTATION:
  MutateEntitlement is one conditional statement:

    UPDATE leave_entitlements SET <column += delta>, version = version + 1
    WHERE <key> AND <every guard of EntitlementMutation.Apply>
    RETURNING ...

  When no row comes back the current row is re-read and the mutation is run
  through Apply to report the exact error (insufficient balance, invariant
  breach, or a concurrent writer if the fresh row would now accept it).

TRANSACTIONS:
  WithTx runs SERIALIZABLE. Serialization failures (SQLSTATE 40001) and
  deadlocks (40P01) surface as leave.ErrConcurrentModification, which
  callers may retry.

NUMERIC COLUMNS:
  Day quantities are NUMERIC; they cross the wire as text and are parsed
  with shopspring/decimal, so no float rounding is involved.
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements leave.Repository and leave.Transactor.
type Store struct {
	*repo
	pool *pgxpool.Pool
}

type repo struct {
	q   querier
	now func() time.Time
}

// Connect opens a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{repo: &repo{q: pool, now: time.Now}, pool: pool}
}

func (s *Store) SetClock(now func() time.Time) { s.repo.now = now }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context, logger *zap.Logger) error {
	return s.runMigrations(ctx, logger, false)
}

// Rollback reverts the latest migration.
func (s *Store) Rollback(ctx context.Context, logger *zap.Logger) error {
	return s.runMigrations(ctx, logger, true)
}

func (s *Store) runMigrations(ctx context.Context, logger *zap.Logger, down bool) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger.Named("migrate").Sugar()})
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if down {
		return goose.DownContext(ctx, db, "migrations")
	}
	return goose.UpContext(ctx, db, "migrations")
}

type gooseLogger struct{ s *zap.SugaredLogger }

func (l gooseLogger) Printf(format string, v ...any) { l.s.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.s.Fatalf(format, v...) }

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&repo{q: tx, now: s.repo.now}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected) {
		return fmt.Errorf("%w: %v", leave.ErrConcurrentModification, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// =============================================================================
// USERS
// =============================================================================

func (r *repo) SaveUser(ctx context.Context, u leave.User) error {
	_, err := r.q.Exec(ctx, `
    INSERT INTO users (id, organization_id, country, role, manager_id)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (id) DO UPDATE SET
      organization_id = EXCLUDED.organization_id,
      country = EXCLUDED.country,
      role = EXCLUDED.role,
      manager_id = EXCLUDED.manager_id
  `, u.ID, u.OrganizationID, u.Country, string(u.Role), u.ManagerID)
	return err
}

func (r *repo) GetUserByID(ctx context.Context, id string) (leave.User, error) {
	var u leave.User
	var role string
	err := r.q.QueryRow(ctx, `
    SELECT id, organization_id, country, role, manager_id FROM users WHERE id = $1
  `, id).Scan(&u.ID, &u.OrganizationID, &u.Country, &role, &u.ManagerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.User{}, &leave.NotFoundError{Entity: "user", ID: id}
	}
	if err != nil {
		return leave.User{}, mapError(err)
	}
	u.Role = leave.Role(role)
	return u, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = `id, organization_id, name, category, paid, requires_approval,
  max_consecutive_days, max_days_per_year, created_at, updated_at`

func (r *repo) CreateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	_, err := r.q.Exec(ctx, `
    INSERT INTO leave_types (`+leaveTypeColumns+`)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
  `, lt.ID, lt.OrganizationID, lt.Name, string(lt.Category), lt.Paid, lt.RequiresApproval,
		lt.MaxConsecutiveDays, lt.MaxDaysPerYear, lt.CreatedAt, lt.UpdatedAt)
	return mapError(err)
}

func (r *repo) GetLeaveType(ctx context.Context, id string) (leave.LeaveType, error) {
	lt, err := scanLeaveType(r.q.QueryRow(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveType{}, &leave.NotFoundError{Entity: "leave_type", ID: id}
	}
	return lt, mapError(err)
}

func (r *repo) UpdateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	tag, err := r.q.Exec(ctx, `
    UPDATE leave_types SET
      name = $2, category = $3, paid = $4, requires_approval = $5,
      max_consecutive_days = $6, max_days_per_year = $7, updated_at = $8
    WHERE id = $1
  `, lt.ID, lt.Name, string(lt.Category), lt.Paid, lt.RequiresApproval,
		lt.MaxConsecutiveDays, lt.MaxDaysPerYear, lt.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return requireRow(tag, "leave_type", lt.ID)
}

func (r *repo) DeleteLeaveType(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM leave_types WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(tag, "leave_type", id)
}

func (r *repo) ListLeaveTypes(ctx context.Context, organizationID string) ([]leave.LeaveType, error) {
	rows, err := r.q.Query(ctx, `
    SELECT `+leaveTypeColumns+` FROM leave_types WHERE organization_id = $1 ORDER BY name
  `, organizationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]leave.LeaveType, 0)
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

func (r *repo) LeaveTypeInUse(ctx context.Context, id string) (bool, error) {
	var inUse bool
	err := r.q.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM leave_entitlements WHERE leave_type_id = $1)
        OR EXISTS (SELECT 1 FROM leave_requests WHERE leave_type_id = $1)
  `, id).Scan(&inUse)
	return inUse, mapError(err)
}

func scanLeaveType(row pgx.Row) (leave.LeaveType, error) {
	var lt leave.LeaveType
	var category string
	err := row.Scan(&lt.ID, &lt.OrganizationID, &lt.Name, &category, &lt.Paid, &lt.RequiresApproval,
		&lt.MaxConsecutiveDays, &lt.MaxDaysPerYear, &lt.CreatedAt, &lt.UpdatedAt)
	lt.Category = leave.Category(category)
	return lt, err
}

// =============================================================================
// POLICIES / HOLIDAYS
// =============================================================================

func (r *repo) SavePolicy(ctx context.Context, p leave.LeavePolicy) error {
	_, err := r.q.Exec(ctx, `
    INSERT INTO leave_policies
      (id, organization_id, country, annual_days, sick_days, maternity_days, paternity_days,
       carryover_cap_days, carryover_expiry_days, notice_period_days)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (organization_id, country) DO UPDATE SET
      annual_days = EXCLUDED.annual_days,
      sick_days = EXCLUDED.sick_days,
      maternity_days = EXCLUDED.maternity_days,
      paternity_days = EXCLUDED.paternity_days,
      carryover_cap_days = EXCLUDED.carryover_cap_days,
      carryover_expiry_days = EXCLUDED.carryover_expiry_days,
      notice_period_days = EXCLUDED.notice_period_days
  `, p.ID, p.OrganizationID, p.Country, p.AnnualDays, p.SickDays, p.MaternityDays, p.PaternityDays,
		p.CarryoverCapDays, p.CarryoverExpiryDays, p.NoticePeriodDays)
	return mapError(err)
}

func (r *repo) GetPolicy(ctx context.Context, organizationID, country string) (leave.LeavePolicy, error) {
	var p leave.LeavePolicy
	err := r.q.QueryRow(ctx, `
    SELECT id, organization_id, country, annual_days, sick_days, maternity_days, paternity_days,
           carryover_cap_days, carryover_expiry_days, notice_period_days
    FROM leave_policies
    WHERE organization_id = $1 AND country IN ($2, '')
    ORDER BY country DESC
    LIMIT 1
  `, organizationID, country).Scan(&p.ID, &p.OrganizationID, &p.Country, &p.AnnualDays, &p.SickDays,
		&p.MaternityDays, &p.PaternityDays, &p.CarryoverCapDays, &p.CarryoverExpiryDays, &p.NoticePeriodDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.LeavePolicy{}, &leave.NotFoundError{Entity: "policy", ID: organizationID + "/" + country}
	}
	return p, mapError(err)
}

func (r *repo) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	_, err := r.q.Exec(ctx, `
    INSERT INTO holidays (id, organization_id, country, date, name, recurring)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (id) DO UPDATE SET
      country = EXCLUDED.country, date = EXCLUDED.date,
      name = EXCLUDED.name, recurring = EXCLUDED.recurring
  `, h.ID, h.OrganizationID, h.Country, h.Date.Time(), h.Name, h.Recurring)
	return mapError(err)
}

func (r *repo) DeleteHoliday(ctx context.Context, organizationID, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM holidays WHERE id = $1 AND organization_id = $2`, id, organizationID)
	if err != nil {
		return mapError(err)
	}
	return requireRow(tag, "holiday", id)
}

func (r *repo) ListHolidays(ctx context.Context, organizationID, country string) ([]leave.Holiday, error) {
	rows, err := r.q.Query(ctx, `
    SELECT id, organization_id, country, date, name, recurring
    FROM holidays
    WHERE organization_id = $1 AND country IN ($2, '')
    ORDER BY date
  `, organizationID, country)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]leave.Holiday, 0)
	for rows.Next() {
		var h leave.Holiday
		var date time.Time
		if err := rows.Scan(&h.ID, &h.OrganizationID, &h.Country, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date = leave.DateOf(date)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, organization_id, user_id, leave_type_id, start_date, end_date,
  days_requested, entitlement_year, status, reason, approver_id, approver_comments,
  approved_at, decided_by, decided_at, created_at, updated_at`

func (r *repo) CreateRequest(ctx context.Context, req leave.LeaveRequest) error {
	_, err := r.q.Exec(ctx, `
    INSERT INTO leave_requests (`+requestColumns+`)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
  `, req.ID, req.OrganizationID, req.UserID, req.LeaveTypeID, req.StartDate.Time(), req.EndDate.Time(),
		req.DaysRequested, req.EntitlementYear, string(req.Status), req.Reason, req.ApproverID, req.ApproverComments,
		req.ApprovedAt, req.DecidedBy, req.DecidedAt, req.CreatedAt, req.UpdatedAt)
	return mapError(err)
}

func (r *repo) GetRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	req, err := scanRequest(r.q.QueryRow(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveRequest{}, &leave.NotFoundError{Entity: "request", ID: id}
	}
	return req, mapError(err)
}

func (r *repo) UpdateRequest(ctx context.Context, req leave.LeaveRequest) error {
	tag, err := r.q.Exec(ctx, `
    UPDATE leave_requests SET
      status = $2, reason = $3, approver_id = $4, approver_comments = $5,
      approved_at = $6, decided_by = $7, decided_at = $8, updated_at = $9
    WHERE id = $1
  `, req.ID, string(req.Status), req.Reason, req.ApproverID, req.ApproverComments,
		req.ApprovedAt, req.DecidedBy, req.DecidedAt, req.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return requireRow(tag, "request", req.ID)
}

func (r *repo) ListRequestsByUser(ctx context.Context, userID string) ([]leave.LeaveRequest, error) {
	return r.queryRequests(ctx, `
    SELECT `+requestColumns+` FROM leave_requests WHERE user_id = $1 ORDER BY start_date, id
  `, userID)
}

func (r *repo) FindActiveOverlapping(ctx context.Context, userID string, start, end leave.Date) ([]leave.LeaveRequest, error) {
	return r.queryRequests(ctx, `
    SELECT `+requestColumns+`
    FROM leave_requests
    WHERE user_id = $1
      AND status IN ('PENDING', 'APPROVED')
      AND start_date <= $3 AND end_date >= $2
    ORDER BY start_date, id
  `, userID, start.Time(), end.Time())
}

func (r *repo) queryRequests(ctx context.Context, sql string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]leave.LeaveRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, mapError(rows.Err())
}

func scanRequest(row pgx.Row) (leave.LeaveRequest, error) {
	var (
		req        leave.LeaveRequest
		start, end time.Time
		status     string
	)
	err := row.Scan(&req.ID, &req.OrganizationID, &req.UserID, &req.LeaveTypeID, &start, &end,
		&req.DaysRequested, &req.EntitlementYear, &status, &req.Reason, &req.ApproverID, &req.ApproverComments,
		&req.ApprovedAt, &req.DecidedBy, &req.DecidedAt, &req.CreatedAt, &req.UpdatedAt)
	req.StartDate = leave.DateOf(start)
	req.EndDate = leave.DateOf(end)
	req.Status = leave.Status(status)
	return req, err
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

const entitlementReturning = `user_id, leave_type_id, year, total_days::text, used_days::text,
  pending_days::text, remaining_days::text, carried_forward::text, expires_on, version, updated_at`

func (r *repo) CreateEntitlement(ctx context.Context, e leave.LeaveEntitlement) error {
	var expiresOn *time.Time
	if !e.ExpiresOn.IsZero() {
		t := e.ExpiresOn.Time()
		expiresOn = &t
	}
	_, err := r.q.Exec(ctx, `
    INSERT INTO leave_entitlements
      (user_id, leave_type_id, year, total_days, used_days, pending_days, remaining_days,
       carried_forward, expires_on, version, updated_at)
    VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11)
  `, e.UserID, e.LeaveTypeID, e.Year, e.TotalDays.String(), e.UsedDays.String(), e.PendingDays.String(),
		e.RemainingDays.String(), e.CarriedForward.String(), expiresOn, e.Version, e.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s/%d", leave.ErrDuplicateEntitlement, e.UserID, e.LeaveTypeID, e.Year)
	}
	return mapError(err)
}

func (r *repo) GetEntitlement(ctx context.Context, key leave.EntitlementKey) (leave.LeaveEntitlement, error) {
	e, err := scanEntitlement(r.q.QueryRow(ctx, `
    SELECT `+entitlementReturning+`
    FROM leave_entitlements
    WHERE user_id = $1 AND leave_type_id = $2 AND year = $3
  `, key.UserID, key.LeaveTypeID, key.Year))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveEntitlement{}, entitlementNotFound(key)
	}
	return e, mapError(err)
}

func (r *repo) ListEntitlements(ctx context.Context, userID string, year int) ([]leave.LeaveEntitlement, error) {
	rows, err := r.q.Query(ctx, `
    SELECT `+entitlementReturning+`
    FROM leave_entitlements
    WHERE user_id = $1 AND year = $2
    ORDER BY leave_type_id
  `, userID, year)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]leave.LeaveEntitlement, 0)
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) ListExpiredCarryForward(ctx context.Context, asOf leave.Date) ([]leave.EntitlementKey, error) {
	rows, err := r.q.Query(ctx, `
    SELECT user_id, leave_type_id, year
    FROM leave_entitlements
    WHERE expires_on < $1 AND carried_forward > 0 AND remaining_days > 0
    ORDER BY user_id, leave_type_id, year
  `, asOf.Time())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []leave.EntitlementKey
	for rows.Next() {
		var k leave.EntitlementKey
		if err := rows.Scan(&k.UserID, &k.LeaveTypeID, &k.Year); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// MutateEntitlement applies m as a single guarded UPDATE.
func (r *repo) MutateEntitlement(ctx context.Context, key leave.EntitlementKey, m leave.EntitlementMutation) (leave.LeaveEntitlement, error) {
	e, err := scanEntitlement(r.q.QueryRow(ctx, `
    UPDATE leave_entitlements SET
      pending_days    = pending_days + $4::numeric,
      used_days       = used_days + $5::numeric,
      carried_forward = carried_forward + $6::numeric,
      remaining_days  = remaining_days + $7::numeric,
      version         = version + 1,
      updated_at      = $8
    WHERE user_id = $1 AND leave_type_id = $2 AND year = $3
      AND ($7::numeric >= 0 OR remaining_days + $7::numeric >= 0)
      AND pending_days + $4::numeric >= 0
      AND used_days + $5::numeric >= 0
      AND carried_forward + $6::numeric >= 0
    RETURNING `+entitlementReturning,
		key.UserID, key.LeaveTypeID, key.Year,
		m.Pending.String(), m.Used.String(), m.Carried.String(), m.RemainingDelta().String(),
		r.now().UTC(),
	))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return leave.LeaveEntitlement{}, mapError(err)
	}

	// Guard failed or the row is missing; classify against the current row.
	current, err := r.GetEntitlement(ctx, key)
	if err != nil {
		return leave.LeaveEntitlement{}, err
	}
	if _, err := m.Apply(current, r.now().UTC()); err != nil {
		return leave.LeaveEntitlement{}, err
	}
	return leave.LeaveEntitlement{}, fmt.Errorf("%w: entitlement %s/%s/%d changed concurrently",
		leave.ErrConcurrentModification, key.UserID, key.LeaveTypeID, key.Year)
}

func scanEntitlement(row pgx.Row) (leave.LeaveEntitlement, error) {
	var (
		e                                        leave.LeaveEntitlement
		total, used, pending, remaining, carried string
		expiresOn                                *time.Time
	)
	err := row.Scan(&e.UserID, &e.LeaveTypeID, &e.Year, &total, &used, &pending, &remaining, &carried,
		&expiresOn, &e.Version, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	amounts := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&e.TotalDays, total}, {&e.UsedDays, used}, {&e.PendingDays, pending},
		{&e.RemainingDays, remaining}, {&e.CarriedForward, carried},
	}
	for _, a := range amounts {
		if *a.dst, err = decimal.NewFromString(a.src); err != nil {
			return e, fmt.Errorf("parse entitlement amount %q: %w", a.src, err)
		}
	}
	if expiresOn != nil {
		e.ExpiresOn = leave.DateOf(*expiresOn)
	}
	return e, nil
}

func entitlementNotFound(key leave.EntitlementKey) error {
	return &leave.NotFoundError{Entity: "entitlement", ID: fmt.Sprintf("%s/%s/%d", key.UserID, key.LeaveTypeID, key.Year)}
}

func requireRow(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return &leave.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

var (
	_ leave.Repository    = (*Store)(nil)
	_ leave.Transactor    = (*Store)(nil)
	_ leave.ExpiryScanner = (*Store)(nil)
)
