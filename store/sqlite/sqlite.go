/*
Package sqlite provides a SQLite-backed leave.Repository.

PURPOSE:
  Implements every persistence interface the leave engine needs
  (leave.Repository + leave.Transactor) on a single SQLite database.

KEY TABLES:
  users:              Directory read model (seeded by the host application)
  leave_types:        Per-organization leave types
  leave_policies:     One row per (organization, country)
  holidays:           One-off and recurring holidays
  leave_requests:     Request lifecycle rows
  leave_entitlements: Ledger rows keyed by (user, leave type, year)

ATOMIC LEDGER MUTATION:
  MutateEntitlement is a version-checked compare-and-swap:

    read row (version v) -> EntitlementMutation.Apply -> UPDATE ... WHERE version = v

  Zero affected rows means another writer got there first; the mutation is
  re-evaluated against the fresh row, up to maxCASAttempts times, then
  leave.ErrConcurrentModification is returned.

CONCURRENCY:
  The pool is limited to one connection, so transactions are serialized and
  ":memory:" databases are shared by every caller.

WAL MODE:
  File databases are opened with WAL journaling and foreign keys enabled.

MIGRATION:
  Versioned goose migrations are embedded (migrations/*.sql). New() applies
  them; Open() does not, for callers that migrate separately.

USAGE:
  store, err := sqlite.New(ctx, "./data/leave.db")
  if err != nil {
      return err
  }
  defer store.Close()

  requests := leave.NewRequestService(store, logger)

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/store/memory.go: In-memory implementation for tests
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	timeLayout     = time.RFC3339Nano
	maxCASAttempts = 5
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements leave.Repository and leave.Transactor using SQLite.
type Store struct {
	*repo
	db *sql.DB
}

// repo holds the queries; it runs against the pool or a transaction.
type repo struct {
	q   querier
	now func() time.Time
}

// New opens dbPath and applies migrations. Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := Open(db)
	if err := store.Migrate(ctx, nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Open wraps an existing handle without migrating.
func Open(db *sql.DB) *Store {
	return &Store{repo: &repo{q: db, now: time.Now}, db: db}
}

// SetClock overrides the time source for updated_at columns.
func (s *Store) SetClock(now func() time.Time) { s.repo.now = now }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context, logger *zap.Logger) error {
	return runMigrations(ctx, s.db, logger, false)
}

// Rollback reverts the latest migration.
func (s *Store) Rollback(ctx context.Context, logger *zap.Logger) error {
	return runMigrations(ctx, s.db, logger, true)
}

func runMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger, down bool) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger.Named("migrate").Sugar()})
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if down {
		return goose.DownContext(ctx, db, "migrations")
	}
	return goose.UpContext(ctx, db, "migrations")
}

// gooseLogger routes goose output through zap.
type gooseLogger struct{ s *zap.SugaredLogger }

func (l gooseLogger) Printf(format string, v ...any) { l.s.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.s.Fatalf(format, v...) }

// =============================================================================
// TRANSACTIONAL STORE (leave.Transactor interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&repo{q: sqlTx, now: s.repo.now}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser upserts a directory row.
func (r *repo) SaveUser(ctx context.Context, u leave.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, country, role, manager_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organization_id = excluded.organization_id,
			country = excluded.country,
			role = excluded.role,
			manager_id = excluded.manager_id
	`, u.ID, u.OrganizationID, u.Country, string(u.Role), u.ManagerID)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (r *repo) GetUserByID(ctx context.Context, id string) (leave.User, error) {
	var u leave.User
	var role string
	err := r.q.QueryRowContext(ctx,
		"SELECT id, organization_id, country, role, manager_id FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.OrganizationID, &u.Country, &role, &u.ManagerID)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.User{}, &leave.NotFoundError{Entity: "user", ID: id}
	}
	if err != nil {
		return leave.User{}, fmt.Errorf("failed to get user: %w", err)
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
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO leave_types (`+leaveTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		lt.ID, lt.OrganizationID, lt.Name, string(lt.Category), lt.Paid, lt.RequiresApproval,
		lt.MaxConsecutiveDays, lt.MaxDaysPerYear,
		lt.CreatedAt.UTC().Format(timeLayout), lt.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create leave type: %w", err)
	}
	return nil
}

func (r *repo) GetLeaveType(ctx context.Context, id string) (leave.LeaveType, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+leaveTypeColumns+" FROM leave_types WHERE id = ?", id)
	lt, err := scanLeaveType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveType{}, &leave.NotFoundError{Entity: "leave_type", ID: id}
	}
	return lt, err
}

func (r *repo) UpdateLeaveType(ctx context.Context, lt leave.LeaveType) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE leave_types SET
			name = ?, category = ?, paid = ?, requires_approval = ?,
			max_consecutive_days = ?, max_days_per_year = ?, updated_at = ?
		WHERE id = ?
	`,
		lt.Name, string(lt.Category), lt.Paid, lt.RequiresApproval,
		lt.MaxConsecutiveDays, lt.MaxDaysPerYear, lt.UpdatedAt.UTC().Format(timeLayout),
		lt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave type: %w", err)
	}
	return requireRow(res, "leave_type", lt.ID)
}

func (r *repo) DeleteLeaveType(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM leave_types WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete leave type: %w", err)
	}
	return requireRow(res, "leave_type", id)
}

func (r *repo) ListLeaveTypes(ctx context.Context, organizationID string) ([]leave.LeaveType, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+leaveTypeColumns+" FROM leave_types WHERE organization_id = ? ORDER BY name ASC",
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave types: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveType
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
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM leave_entitlements WHERE leave_type_id = ?)
		    OR EXISTS (SELECT 1 FROM leave_requests WHERE leave_type_id = ?)
	`, id, id).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("failed to check leave type references: %w", err)
	}
	return inUse, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLeaveType(row scanner) (leave.LeaveType, error) {
	var (
		lt                   leave.LeaveType
		category             string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&lt.ID, &lt.OrganizationID, &lt.Name, &category, &lt.Paid, &lt.RequiresApproval,
		&lt.MaxConsecutiveDays, &lt.MaxDaysPerYear, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lt, err
		}
		return lt, fmt.Errorf("failed to scan leave type: %w", err)
	}
	lt.Category = leave.Category(category)
	lt.CreatedAt = parseTime(createdAt)
	lt.UpdatedAt = parseTime(updatedAt)
	return lt, nil
}

// =============================================================================
// POLICIES
// =============================================================================

func (r *repo) SavePolicy(ctx context.Context, p leave.LeavePolicy) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO leave_policies
		(id, organization_id, country, annual_days, sick_days, maternity_days, paternity_days,
		 carryover_cap_days, carryover_expiry_days, notice_period_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization_id, country) DO UPDATE SET
			annual_days = excluded.annual_days,
			sick_days = excluded.sick_days,
			maternity_days = excluded.maternity_days,
			paternity_days = excluded.paternity_days,
			carryover_cap_days = excluded.carryover_cap_days,
			carryover_expiry_days = excluded.carryover_expiry_days,
			notice_period_days = excluded.notice_period_days
	`,
		p.ID, p.OrganizationID, p.Country, p.AnnualDays, p.SickDays, p.MaternityDays, p.PaternityDays,
		p.CarryoverCapDays, p.CarryoverExpiryDays, p.NoticePeriodDays,
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// GetPolicy returns the country policy, falling back to the organization
// default stored with an empty country.
func (r *repo) GetPolicy(ctx context.Context, organizationID, country string) (leave.LeavePolicy, error) {
	var p leave.LeavePolicy
	err := r.q.QueryRowContext(ctx, `
		SELECT id, organization_id, country, annual_days, sick_days, maternity_days, paternity_days,
		       carryover_cap_days, carryover_expiry_days, notice_period_days
		FROM leave_policies
		WHERE organization_id = ? AND (country = ? OR country = '')
		ORDER BY country DESC
		LIMIT 1
	`, organizationID, country).Scan(
		&p.ID, &p.OrganizationID, &p.Country, &p.AnnualDays, &p.SickDays, &p.MaternityDays, &p.PaternityDays,
		&p.CarryoverCapDays, &p.CarryoverExpiryDays, &p.NoticePeriodDays,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeavePolicy{}, &leave.NotFoundError{Entity: "policy", ID: organizationID + "/" + country}
	}
	if err != nil {
		return leave.LeavePolicy{}, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (r *repo) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO holidays (id, organization_id, country, date, name, recurring)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			country = excluded.country,
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring
	`, h.ID, h.OrganizationID, h.Country, h.Date.String(), h.Name, h.Recurring)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (r *repo) DeleteHoliday(ctx context.Context, organizationID, id string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM holidays WHERE id = ? AND organization_id = ?", id, organizationID)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	return requireRow(res, "holiday", id)
}

// ListHolidays returns org holidays for the country plus country-less ones.
func (r *repo) ListHolidays(ctx context.Context, organizationID, country string) ([]leave.Holiday, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, organization_id, country, date, name, recurring
		FROM holidays
		WHERE organization_id = ? AND (country = ? OR country = '')
		ORDER BY date ASC
	`, organizationID, country)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	var out []leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var date string
		if err := rows.Scan(&h.ID, &h.OrganizationID, &h.Country, &date, &h.Name, &h.Recurring); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if h.Date, err = leave.ParseDate(date); err != nil {
			return nil, fmt.Errorf("holiday %s: %w", h.ID, err)
		}
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
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID, req.OrganizationID, req.UserID, req.LeaveTypeID,
		req.StartDate.String(), req.EndDate.String(),
		req.DaysRequested, req.EntitlementYear, string(req.Status), req.Reason,
		req.ApproverID, req.ApproverComments, nullTime(req.ApprovedAt),
		req.DecidedBy, nullTime(req.DecidedAt),
		req.CreatedAt.UTC().Format(timeLayout), req.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

func (r *repo) GetRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveRequest{}, &leave.NotFoundError{Entity: "request", ID: id}
	}
	return req, err
}

// UpdateRequest writes the mutable lifecycle columns. Dates and
// days_requested are fixed at creation and never rewritten.
func (r *repo) UpdateRequest(ctx context.Context, req leave.LeaveRequest) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE leave_requests SET
			status = ?, reason = ?, approver_id = ?, approver_comments = ?,
			approved_at = ?, decided_by = ?, decided_at = ?, updated_at = ?
		WHERE id = ?
	`,
		string(req.Status), req.Reason, req.ApproverID, req.ApproverComments,
		nullTime(req.ApprovedAt), req.DecidedBy, nullTime(req.DecidedAt),
		req.UpdatedAt.UTC().Format(timeLayout),
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	return requireRow(res, "request", req.ID)
}

func (r *repo) ListRequestsByUser(ctx context.Context, userID string) ([]leave.LeaveRequest, error) {
	return r.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM leave_requests WHERE user_id = ? ORDER BY start_date ASC, id ASC",
		userID,
	)
}

func (r *repo) FindActiveOverlapping(ctx context.Context, userID string, start, end leave.Date) ([]leave.LeaveRequest, error) {
	return r.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM leave_requests
		WHERE user_id = ?
		  AND status IN ('PENDING', 'APPROVED')
		  AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC
	`, userID, end.String(), start.String())
}

func (r *repo) queryRequests(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row scanner) (leave.LeaveRequest, error) {
	var (
		req                  leave.LeaveRequest
		start, end, status   string
		approvedAt           sql.NullString
		decidedAt            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&req.ID, &req.OrganizationID, &req.UserID, &req.LeaveTypeID, &start, &end,
		&req.DaysRequested, &req.EntitlementYear, &status, &req.Reason, &req.ApproverID, &req.ApproverComments,
		&approvedAt, &req.DecidedBy, &decidedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return req, err
		}
		return req, fmt.Errorf("failed to scan leave request: %w", err)
	}
	if req.StartDate, err = leave.ParseDate(start); err != nil {
		return req, err
	}
	if req.EndDate, err = leave.ParseDate(end); err != nil {
		return req, err
	}
	req.Status = leave.Status(status)
	req.ApprovedAt = parseNullTime(approvedAt)
	req.DecidedAt = parseNullTime(decidedAt)
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)
	return req, nil
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

const entitlementColumns = `user_id, leave_type_id, year, total_days, used_days, pending_days,
	remaining_days, carried_forward, expires_on, version, updated_at`

func (r *repo) CreateEntitlement(ctx context.Context, e leave.LeaveEntitlement) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO leave_entitlements (`+entitlementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.UserID, e.LeaveTypeID, e.Year,
		e.TotalDays.String(), e.UsedDays.String(), e.PendingDays.String(),
		e.RemainingDays.String(), e.CarriedForward.String(),
		nullDate(e.ExpiresOn), e.Version, e.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s/%s/%d", leave.ErrDuplicateEntitlement, e.UserID, e.LeaveTypeID, e.Year)
		}
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	return nil
}

func (r *repo) GetEntitlement(ctx context.Context, key leave.EntitlementKey) (leave.LeaveEntitlement, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+entitlementColumns+`
		FROM leave_entitlements
		WHERE user_id = ? AND leave_type_id = ? AND year = ?
	`, key.UserID, key.LeaveTypeID, key.Year)
	e, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveEntitlement{}, &leave.NotFoundError{
			Entity: "entitlement",
			ID:     fmt.Sprintf("%s/%s/%d", key.UserID, key.LeaveTypeID, key.Year),
		}
	}
	return e, err
}

func (r *repo) ListEntitlements(ctx context.Context, userID string, year int) ([]leave.LeaveEntitlement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+entitlementColumns+`
		FROM leave_entitlements
		WHERE user_id = ? AND year = ?
		ORDER BY leave_type_id ASC
	`, userID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveEntitlement
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
	rows, err := r.q.QueryContext(ctx, `
		SELECT user_id, leave_type_id, year
		FROM leave_entitlements
		WHERE expires_on IS NOT NULL AND expires_on < ?
		  AND CAST(carried_forward AS REAL) > 0
		  AND CAST(remaining_days AS REAL) > 0
		ORDER BY user_id, leave_type_id, year
	`, asOf.String())
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired carry-forward: %w", err)
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

// MutateEntitlement applies m with a version compare-and-swap.
func (r *repo) MutateEntitlement(ctx context.Context, key leave.EntitlementKey, m leave.EntitlementMutation) (leave.LeaveEntitlement, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := r.GetEntitlement(ctx, key)
		if err != nil {
			return leave.LeaveEntitlement{}, err
		}
		next, err := m.Apply(current, r.now().UTC())
		if err != nil {
			return leave.LeaveEntitlement{}, err
		}

		res, err := r.q.ExecContext(ctx, `
			UPDATE leave_entitlements SET
				used_days = ?, pending_days = ?, remaining_days = ?, carried_forward = ?,
				version = ?, updated_at = ?
			WHERE user_id = ? AND leave_type_id = ? AND year = ? AND version = ?
		`,
			next.UsedDays.String(), next.PendingDays.String(), next.RemainingDays.String(), next.CarriedForward.String(),
			next.Version, next.UpdatedAt.Format(timeLayout),
			key.UserID, key.LeaveTypeID, key.Year, current.Version,
		)
		if err != nil {
			return leave.LeaveEntitlement{}, fmt.Errorf("failed to mutate entitlement: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return leave.LeaveEntitlement{}, fmt.Errorf("failed to mutate entitlement: %w", err)
		}
		if n == 1 {
			return next, nil
		}
	}
	return leave.LeaveEntitlement{}, fmt.Errorf("%w: entitlement %s/%s/%d after %d attempts",
		leave.ErrConcurrentModification, key.UserID, key.LeaveTypeID, key.Year, maxCASAttempts)
}

func scanEntitlement(row scanner) (leave.LeaveEntitlement, error) {
	var (
		e                                        leave.LeaveEntitlement
		total, used, pending, remaining, carried string
		expiresOn                                sql.NullString
		updatedAt                                string
	)
	err := row.Scan(
		&e.UserID, &e.LeaveTypeID, &e.Year,
		&total, &used, &pending, &remaining, &carried,
		&expiresOn, &e.Version, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan entitlement: %w", err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&e.TotalDays, total}, {&e.UsedDays, used}, {&e.PendingDays, pending},
		{&e.RemainingDays, remaining}, {&e.CarriedForward, carried},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return e, fmt.Errorf("failed to parse entitlement amount %q: %w", f.src, err)
		}
	}
	if expiresOn.Valid && expiresOn.String != "" {
		if e.ExpiresOn, err = leave.ParseDate(expiresOn.String); err != nil {
			return e, err
		}
	}
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &leave.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func nullDate(d leave.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

var (
	_ leave.Repository    = (*Store)(nil)
	_ leave.Transactor    = (*Store)(nil)
	_ leave.ExpiryScanner = (*Store)(nil)
)
