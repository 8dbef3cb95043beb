/*
Package sqlite provides the durable SQLite-backed implementation of
timestore.Store, ledger.Backend, and rollover.Lease.

INTERFACES IMPLEMENTED:
  timestore.Store: CRUD + aggregation reads for C2
  ledger.Backend:  append-only journal persistence for C3
  rollover.Lease:  per-year claim via a unique index + INSERT OR IGNORE

APPEND-ONLY ENFORCEMENT:
  - No UPDATE/DELETE on overtime_transactions except the orchestrator's
    own DeleteWhere + re-chain sequence, which always runs inside one
    sql.Tx so a crash mid-sequence cannot leave a partially-applied chain.

WAL MODE: opened with _journal_mode=WAL and _foreign_keys=on to allow
  concurrent readers alongside the single writer and to survive a crash
  without corrupting the database file.

MIGRATION: schema is auto-migrated on New(). Production deployments should
  move to a versioned migration tool (golang-migrate, goose); unnecessary
  for this engine's scope.

SEE ALSO:
  - timestore/timestore.go: Store interface definition
  - ledger/ledger.go: Backend interface definition
  - store/memory: in-memory double used by unit tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/apperr"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/rollover"
	"github.com/warp/overtime-engine/timestore"
)

// Store implements timestore.Store, ledger.Backend, and rollover.Lease
// against a single SQLite database.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	loc *time.Location
}

// New opens (creating if needed) the database at dbPath and migrates the
// schema. Use ":memory:" for an ephemeral database. loc is the civil
// timezone every stored date is parsed/formatted in.
func New(dbPath string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL DEFAULT 'employee',
		weekly_hours REAL NOT NULL DEFAULT 0,
		work_schedule_json TEXT,
		hire_date TEXT NOT NULL,
		end_date TEXT,
		vacation_days_per_year REAL NOT NULL DEFAULT 0,
		deleted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		hours TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_time_entries_user_date ON time_entries(user_id, date);

	CREATE TABLE IF NOT EXISTS absence_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		decided_by TEXT,
		decided_at TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_absences_user ON absence_requests(user_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS overtime_corrections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_corrections_user_date ON overtime_corrections(user_id, date);

	CREATE TABLE IF NOT EXISTS overtime_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		hours TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference_kind TEXT,
		reference_id TEXT,
		description TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		idempotency_key TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tx_user_date ON overtime_transactions(user_id, date, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_idempotency ON overtime_transactions(idempotency_key)
		WHERE idempotency_key IS NOT NULL AND idempotency_key != '';

	CREATE TABLE IF NOT EXISTS overtime_balance (
		user_id TEXT NOT NULL,
		month TEXT NOT NULL,
		target_hours REAL NOT NULL DEFAULT 0,
		actual_hours REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, month)
	);

	CREATE TABLE IF NOT EXISTS vacation_balance (
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		entitlement REAL NOT NULL DEFAULT 0,
		carryover REAL NOT NULL DEFAULT 0,
		taken REAL NOT NULL DEFAULT 0,
		pending REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, year)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		scope TEXT
	);

	CREATE TABLE IF NOT EXISTS rollover_leases (
		year INTEGER PRIMARY KEY,
		acquired_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduleJSON, err := json.Marshal(workScheduleKeys(u.WorkSchedule))
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, "marshalling work schedule", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, weekly_hours, work_schedule_json, hire_date, end_date, vacation_days_per_year, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, string(u.Role), u.WeeklyHours, string(scheduleJSON),
		u.HireDate.String(), nullableDate(u.EndDate), u.VacationDaysPerYear, nullableTime(u.DeletedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return apperr.Newf(apperr.Conflict, "user %s already exists", u.ID)
		}
		return apperr.Wrap(apperr.Transient, "inserting user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, weekly_hours, work_schedule_json, hire_date, end_date, vacation_days_per_year, deleted_at
		FROM users WHERE id = ?`, id)
	u, err := s.scanUser(row)
	if err == sql.ErrNoRows {
		return model.User{}, apperr.Newf(apperr.NotFound, "user %s not found", id)
	}
	if err != nil {
		return model.User{}, apperr.Wrap(apperr.Transient, "loading user", err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduleJSON, err := json.Marshal(workScheduleKeys(u.WorkSchedule))
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, "marshalling work schedule", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET username=?, email=?, role=?, weekly_hours=?, work_schedule_json=?, hire_date=?, end_date=?, vacation_days_per_year=?, deleted_at=?
		WHERE id=?`,
		u.Username, u.Email, string(u.Role), u.WeeklyHours, string(scheduleJSON),
		u.HireDate.String(), nullableDate(u.EndDate), u.VacationDaysPerYear, nullableTime(u.DeletedAt), u.ID)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "updating user", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Newf(apperr.NotFound, "user %s not found", u.ID)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, role, weekly_hours, work_schedule_json, hire_date, end_date, vacation_days_per_year, deleted_at
		FROM users ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "listing users", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scanning user", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (model.User, error) {
	var (
		u            model.User
		role         string
		scheduleJSON sql.NullString
		hireDate     string
		endDate      sql.NullString
		deletedAt    sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.WeeklyHours, &scheduleJSON,
		&hireDate, &endDate, &u.VacationDaysPerYear, &deletedAt); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.HireDate, _ = civil.Parse(s.loc, hireDate)
	if endDate.Valid && endDate.String != "" {
		d, _ := civil.Parse(s.loc, endDate.String)
		u.EndDate = &d
	}
	if deletedAt.Valid && deletedAt.String != "" {
		t, _ := time.Parse(time.RFC3339, deletedAt.String)
		u.DeletedAt = &t
	}
	if scheduleJSON.Valid && scheduleJSON.String != "" && scheduleJSON.String != "null" {
		var keyed map[string]float64
		if err := json.Unmarshal([]byte(scheduleJSON.String), &keyed); err == nil && len(keyed) > 0 {
			u.WorkSchedule = unkeyWorkSchedule(keyed)
		}
	}
	return u, nil
}

// workScheduleKeys/unkeyWorkSchedule round-trip model.WorkSchedule (keyed by
// time.Weekday, not a valid JSON object key type) through a weekday-name map.
func workScheduleKeys(ws model.WorkSchedule) map[string]float64 {
	if ws == nil {
		return nil
	}
	out := make(map[string]float64, len(ws))
	for wd, hours := range ws {
		out[wd.String()] = hours
	}
	return out
}

func unkeyWorkSchedule(keyed map[string]float64) model.WorkSchedule {
	names := map[string]time.Weekday{
		"Sunday": time.Sunday, "Monday": time.Monday, "Tuesday": time.Tuesday,
		"Wednesday": time.Wednesday, "Thursday": time.Thursday, "Friday": time.Friday, "Saturday": time.Saturday,
	}
	out := make(model.WorkSchedule, len(keyed))
	for name, hours := range keyed {
		if wd, ok := names[name]; ok {
			out[wd] = hours
		}
	}
	return out
}

func nullableDate(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (s *Store) CreateTimeEntry(ctx context.Context, e model.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.getUserLocked(ctx, e.UserID)
	if err != nil {
		return err
	}
	if !u.IsActiveOn(e.Date) {
		return apperr.Newf(apperr.PreconditionFailed, "time entry %s outside user %s active range", e.Date, e.UserID)
	}
	if e.Hours.IsNegative() || e.Hours.GreaterThan(decimal.NewFromInt(24)) {
		return apperr.Newf(apperr.InvalidInput, "hours %s out of [0,24]", e.Hours)
	}

	if e.ID == "" {
		e.ID = newID()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO time_entries (id, user_id, date, hours) VALUES (?, ?, ?, ?)`,
		e.ID, e.UserID, e.Date.String(), e.Hours.String())
	if err != nil {
		return apperr.Wrap(apperr.Transient, "inserting time entry", err)
	}
	return nil
}

func (s *Store) getUserLocked(ctx context.Context, id string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, weekly_hours, work_schedule_json, hire_date, end_date, vacation_days_per_year, deleted_at
		FROM users WHERE id = ?`, id)
	u, err := s.scanUser(row)
	if err == sql.ErrNoRows {
		return model.User{}, apperr.Newf(apperr.NotFound, "user %s not found", id)
	}
	if err != nil {
		return model.User{}, apperr.Wrap(apperr.Transient, "loading user", err)
	}
	return u, nil
}

func (s *Store) DeleteTimeEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "deleting time entry", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Newf(apperr.NotFound, "time entry %s not found", id)
	}
	return nil
}

func (s *Store) TimeEntriesForUserDate(ctx context.Context, userID string, d civil.Date) ([]model.TimeEntry, error) {
	return s.queryTimeEntries(ctx, `SELECT id, user_id, date, hours FROM time_entries WHERE user_id = ? AND date = ?`, userID, d.String())
}

func (s *Store) TimeEntriesInRange(ctx context.Context, userID string, from, to civil.Date) ([]model.TimeEntry, error) {
	return s.queryTimeEntries(ctx, `SELECT id, user_id, date, hours FROM time_entries WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date`,
		userID, from.String(), to.String())
}

func (s *Store) queryTimeEntries(ctx context.Context, query string, args ...any) ([]model.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "querying time entries", err)
	}
	defer rows.Close()

	var out []model.TimeEntry
	for rows.Next() {
		var e model.TimeEntry
		var date, hours string
		if err := rows.Scan(&e.ID, &e.UserID, &date, &hours); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scanning time entry", err)
		}
		e.Date, _ = civil.Parse(s.loc, date)
		e.Hours, _ = decimal.NewFromString(hours)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// ABSENCE REQUESTS
// =============================================================================

func (s *Store) CreateAbsence(ctx context.Context, a model.AbsenceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.EndDate.Before(a.StartDate) {
		return apperr.Newf(apperr.InvalidInput, "absence end %s before start %s", a.EndDate, a.StartDate)
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO absence_requests (id, user_id, type, start_date, end_date, status, reason, decided_by, decided_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Type), a.StartDate.String(), a.EndDate.String(), string(a.Status), a.Reason,
		derefString(a.DecidedBy), nullableTime(a.DecidedAt), createdAt.Format(time.RFC3339))
	if err != nil {
		return apperr.Wrap(apperr.Transient, "inserting absence", err)
	}
	return nil
}

func (s *Store) UpdateAbsence(ctx context.Context, a model.AbsenceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE absence_requests SET type=?, start_date=?, end_date=?, status=?, reason=?, decided_by=?, decided_at=?
		WHERE id=?`,
		string(a.Type), a.StartDate.String(), a.EndDate.String(), string(a.Status), a.Reason,
		derefString(a.DecidedBy), nullableTime(a.DecidedAt), a.ID)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "updating absence", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Newf(apperr.NotFound, "absence %s not found", a.ID)
	}
	return nil
}

func (s *Store) GetAbsence(ctx context.Context, id string) (model.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, start_date, end_date, status, reason, decided_by, decided_at, created_at
		FROM absence_requests WHERE id = ?`, id)
	a, err := s.scanAbsence(row)
	if err == sql.ErrNoRows {
		return model.AbsenceRequest{}, apperr.Newf(apperr.NotFound, "absence %s not found", id)
	}
	if err != nil {
		return model.AbsenceRequest{}, apperr.Wrap(apperr.Transient, "loading absence", err)
	}
	return a, nil
}

func (s *Store) scanAbsence(row rowScanner) (model.AbsenceRequest, error) {
	var (
		a                               model.AbsenceRequest
		typ, status, start, end         string
		decidedBy, decidedAt, createdAt sql.NullString
	)
	if err := row.Scan(&a.ID, &a.UserID, &typ, &start, &end, &status, &a.Reason, &decidedBy, &decidedAt, &createdAt); err != nil {
		return model.AbsenceRequest{}, err
	}
	a.Type = model.AbsenceType(typ)
	a.Status = model.AbsenceStatus(status)
	a.StartDate, _ = civil.Parse(s.loc, start)
	a.EndDate, _ = civil.Parse(s.loc, end)
	if decidedBy.Valid && decidedBy.String != "" {
		v := decidedBy.String
		a.DecidedBy = &v
	}
	if decidedAt.Valid && decidedAt.String != "" {
		t, _ := time.Parse(time.RFC3339, decidedAt.String)
		a.DecidedAt = &t
	}
	if createdAt.Valid && createdAt.String != "" {
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}
	return a, nil
}

func (s *Store) AbsencesOverlapping(ctx context.Context, userID string, absType model.AbsenceType, status model.AbsenceStatus, start, end civil.Date) ([]model.AbsenceRequest, error) {
	return s.queryAbsences(ctx, `
		SELECT id, user_id, type, start_date, end_date, status, reason, decided_by, decided_at, created_at
		FROM absence_requests WHERE user_id = ? AND type = ? AND status = ? AND start_date <= ? AND end_date >= ?`,
		userID, string(absType), string(status), end.String(), start.String())
}

func (s *Store) AbsencesForUserInRange(ctx context.Context, userID string, from, to civil.Date) ([]model.AbsenceRequest, error) {
	return s.queryAbsences(ctx, `
		SELECT id, user_id, type, start_date, end_date, status, reason, decided_by, decided_at, created_at
		FROM absence_requests WHERE user_id = ? AND start_date <= ? AND end_date >= ?`,
		userID, to.String(), from.String())
}

func (s *Store) AbsencesForUserYear(ctx context.Context, userID string, year int) ([]model.AbsenceRequest, error) {
	y := strconv.Itoa(year)
	return s.queryAbsences(ctx, `
		SELECT id, user_id, type, start_date, end_date, status, reason, decided_by, decided_at, created_at
		FROM absence_requests WHERE user_id = ? AND (substr(start_date,1,4) = ? OR substr(end_date,1,4) = ?)`,
		userID, y, y)
}

func (s *Store) queryAbsences(ctx context.Context, query string, args ...any) ([]model.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "querying absences", err)
	}
	defer rows.Close()

	var out []model.AbsenceRequest
	for rows.Next() {
		a, err := s.scanAbsence(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scanning absence", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) CreateHoliday(ctx context.Context, h model.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (date, name, scope) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET name=excluded.name, scope=excluded.scope`,
		h.Date.String(), h.Name, h.Scope)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "inserting holiday", err)
	}
	return nil
}

func (s *Store) IsHoliday(ctx context.Context, d civil.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM holidays WHERE date = ?`, d.String()).Scan(&count)
	if err != nil {
		return false, apperr.Wrap(apperr.Transient, "checking holiday", err)
	}
	return count > 0, nil
}

func (s *Store) ListHolidays(ctx context.Context) ([]model.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT date, name, scope FROM holidays ORDER BY date`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "listing holidays", err)
	}
	defer rows.Close()

	var out []model.Holiday
	for rows.Next() {
		var h model.Holiday
		var date string
		var scope sql.NullString
		if err := rows.Scan(&date, &h.Name, &scope); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scanning holiday", err)
		}
		h.Date, _ = civil.Parse(s.loc, date)
		h.Scope = scope.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// CORRECTIONS
// =============================================================================

func (s *Store) CreateCorrection(ctx context.Context, c model.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overtime_corrections (id, user_id, date, hours, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Date.String(), c.Hours.String(), c.Reason, c.CreatedBy, createdAt.Format(time.RFC3339))
	if err != nil {
		return apperr.Wrap(apperr.Transient, "inserting correction", err)
	}
	return nil
}

func (s *Store) DeleteCorrection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM overtime_corrections WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "deleting correction", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Newf(apperr.NotFound, "correction %s not found", id)
	}
	return nil
}

func (s *Store) GetCorrection(ctx context.Context, id string) (model.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, date, hours, reason, created_by, created_at FROM overtime_corrections WHERE id = ?`, id)
	c, err := s.scanCorrection(row)
	if err == sql.ErrNoRows {
		return model.Correction{}, apperr.Newf(apperr.NotFound, "correction %s not found", id)
	}
	if err != nil {
		return model.Correction{}, apperr.Wrap(apperr.Transient, "loading correction", err)
	}
	return c, nil
}

func (s *Store) CorrectionsForUserDate(ctx context.Context, userID string, d civil.Date) ([]model.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, date, hours, reason, created_by, created_at FROM overtime_corrections WHERE user_id = ? AND date = ?`,
		userID, d.String())
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "querying corrections", err)
	}
	defer rows.Close()

	var out []model.Correction
	for rows.Next() {
		c, err := s.scanCorrection(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scanning correction", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) scanCorrection(row rowScanner) (model.Correction, error) {
	var (
		c                model.Correction
		date, hours      string
		reason, createdBy, createdAt sql.NullString
	)
	if err := row.Scan(&c.ID, &c.UserID, &date, &hours, &reason, &createdBy, &createdAt); err != nil {
		return model.Correction{}, err
	}
	c.Date, _ = civil.Parse(s.loc, date)
	c.Hours, _ = decimal.NewFromString(hours)
	c.Reason = reason.String
	c.CreatedBy = createdBy.String
	if createdAt.Valid && createdAt.String != "" {
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}
	return c, nil
}

// =============================================================================
// AGGREGATION READS (consumed by daily.Calculator)
// =============================================================================

func (s *Store) Worked(ctx context.Context, userID string, d civil.Date) (decimal.Decimal, error) {
	entries, err := s.TimeEntriesForUserDate(ctx, userID, d)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Hours)
	}
	return total, nil
}

func (s *Store) ActiveAbsences(ctx context.Context, userID string, d civil.Date) ([]timestore.ActiveAbsence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type FROM absence_requests
		WHERE user_id = ? AND status = ? AND start_date <= ? AND end_date >= ?`,
		userID, string(model.AbsenceApproved), d.String(), d.String())
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "querying active absences", err)
	}
	defer rows.Close()

	var out []timestore.ActiveAbsence
	for rows.Next() {
		var aa timestore.ActiveAbsence
		var typ string
		if err := rows.Scan(&aa.ID, &typ); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scanning active absence", err)
		}
		aa.Type = model.AbsenceType(typ)
		out = append(out, aa)
	}
	return out, rows.Err()
}

func (s *Store) Corrections(ctx context.Context, userID string, d civil.Date) ([]model.Correction, error) {
	return s.CorrectionsForUserDate(ctx, userID, d)
}

// =============================================================================
// VACATION BALANCE
// =============================================================================

func (s *Store) GetVacationBalance(ctx context.Context, userID string, year int) (model.VacationBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v model.VacationBalance
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, year, entitlement, carryover, taken, pending FROM vacation_balance WHERE user_id = ? AND year = ?`,
		userID, year).Scan(&v.UserID, &v.Year, &v.Entitlement, &v.Carryover, &v.Taken, &v.Pending)
	if err == sql.ErrNoRows {
		return model.VacationBalance{UserID: userID, Year: year}, nil
	}
	if err != nil {
		return model.VacationBalance{}, apperr.Wrap(apperr.Transient, "loading vacation balance", err)
	}
	return v, nil
}

func (s *Store) PutVacationBalance(ctx context.Context, v model.VacationBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vacation_balance (user_id, year, entitlement, carryover, taken, pending) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, year) DO UPDATE SET entitlement=excluded.entitlement, carryover=excluded.carryover,
			taken=excluded.taken, pending=excluded.pending`,
		v.UserID, v.Year, v.Entitlement, v.Carryover, v.Taken, v.Pending)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "upserting vacation balance", err)
	}
	return nil
}

// =============================================================================
// MONTHLY BALANCE CACHE
// =============================================================================

func (s *Store) GetMonthlyBalance(ctx context.Context, userID, month string) (model.MonthlyBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mb model.MonthlyBalance
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, month, target_hours, actual_hours FROM overtime_balance WHERE user_id = ? AND month = ?`,
		userID, month).Scan(&mb.UserID, &mb.Month, &mb.TargetHours, &mb.ActualHours)
	if err == sql.ErrNoRows {
		return model.MonthlyBalance{UserID: userID, Month: month}, nil
	}
	if err != nil {
		return model.MonthlyBalance{}, apperr.Wrap(apperr.Transient, "loading monthly balance", err)
	}
	return mb, nil
}

func (s *Store) PutMonthlyBalance(ctx context.Context, mb model.MonthlyBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overtime_balance (user_id, month, target_hours, actual_hours) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, month) DO UPDATE SET target_hours=excluded.target_hours, actual_hours=excluded.actual_hours`,
		mb.UserID, mb.Month, mb.TargetHours, mb.ActualHours)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "upserting monthly balance", err)
	}
	return nil
}

// =============================================================================
// LEDGER BACKEND (ledger.Backend)
// =============================================================================

func (s *Store) InsertTransactions(ctx context.Context, txs []model.OvertimeTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "beginning transaction", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO overtime_transactions
			(id, user_id, date, type, hours, balance_before, balance_after, reference_kind, reference_id, description, created_by, created_at, idempotency_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.ID, tx.UserID, tx.Date.String(), string(tx.Type), tx.Hours.String(),
			tx.BalanceBefore.String(), tx.BalanceAfter.String(), string(tx.ReferenceKind), tx.ReferenceID,
			tx.Description, tx.CreatedBy, tx.CreatedAt.UTC().Format(time.RFC3339), nullEmpty(tx.IdempotencyKey)); err != nil {
			if isUniqueConstraintError(err) {
				return apperr.Newf(apperr.Conflict, "duplicate idempotency key %s", tx.IdempotencyKey)
			}
			return apperr.Wrap(apperr.Transient, "inserting journal entry", err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return apperr.Wrap(apperr.Transient, "committing journal insert", err)
	}
	return nil
}

func nullEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) DeleteTransactionsWhere(ctx context.Context, userID string, dates []string, types []model.TransactionType) error {
	if len(dates) == 0 || len(types) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	datePlaceholders := strings.TrimRight(strings.Repeat("?,", len(dates)), ",")
	typePlaceholders := strings.TrimRight(strings.Repeat("?,", len(types)), ",")
	query := fmt.Sprintf(`DELETE FROM overtime_transactions WHERE user_id = ? AND date IN (%s) AND type IN (%s)`,
		datePlaceholders, typePlaceholders)

	args := make([]any, 0, 1+len(dates)+len(types))
	args = append(args, userID)
	for _, d := range dates {
		args = append(args, d)
	}
	for _, t := range types {
		args = append(args, string(t))
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Transient, "deleting journal entries", err)
	}
	return nil
}

func (s *Store) TransactionsForUser(ctx context.Context, userID string) ([]model.OvertimeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, date, type, hours, balance_before, balance_after, reference_kind, reference_id, description, created_by, created_at, idempotency_key
		FROM overtime_transactions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "querying journal", err)
	}
	defer rows.Close()

	var out []model.OvertimeTransaction
	for rows.Next() {
		tx, err := s.scanTransaction(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scanning journal entry", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) scanTransaction(row rowScanner) (model.OvertimeTransaction, error) {
	var (
		tx                                          model.OvertimeTransaction
		date, typ, hours, before, after              string
		refKind, refID, desc, createdBy, idempotency sql.NullString
		createdAt                                    string
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &date, &typ, &hours, &before, &after,
		&refKind, &refID, &desc, &createdBy, &createdAt, &idempotency); err != nil {
		return model.OvertimeTransaction{}, err
	}
	tx.Date, _ = civil.Parse(s.loc, date)
	tx.Type = model.TransactionType(typ)
	tx.Hours, _ = decimal.NewFromString(hours)
	tx.BalanceBefore, _ = decimal.NewFromString(before)
	tx.BalanceAfter, _ = decimal.NewFromString(after)
	tx.ReferenceKind = model.ReferenceKind(refKind.String)
	tx.ReferenceID = refID.String
	tx.Description = desc.String
	tx.CreatedBy = createdBy.String
	tx.IdempotencyKey = idempotency.String
	if createdAt != "" {
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	}
	return tx, nil
}

// ReplaceChainForUser atomically replaces every journal row for userID with
// the rechained set - the delete and the reinsert run in one sql.Tx so a
// crash mid-rechain cannot leave a partially-applied balance chain
// (ledger.go's chain invariant).
func (s *Store) ReplaceChainForUser(ctx context.Context, userID string, txs []model.OvertimeTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "beginning rechain transaction", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM overtime_transactions WHERE user_id = ?`, userID); err != nil {
		return apperr.Wrap(apperr.Transient, "clearing journal for rechain", err)
	}

	for _, tx := range txs {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO overtime_transactions
			(id, user_id, date, type, hours, balance_before, balance_after, reference_kind, reference_id, description, created_by, created_at, idempotency_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.ID, tx.UserID, tx.Date.String(), string(tx.Type), tx.Hours.String(),
			tx.BalanceBefore.String(), tx.BalanceAfter.String(), string(tx.ReferenceKind), tx.ReferenceID,
			tx.Description, tx.CreatedBy, tx.CreatedAt.UTC().Format(time.RFC3339), nullEmpty(tx.IdempotencyKey)); err != nil {
			return apperr.Wrap(apperr.Transient, "reinserting rechained entry", err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return apperr.Wrap(apperr.Transient, "committing rechain", err)
	}
	return nil
}

func (s *Store) ExistsIdempotencyKey(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM overtime_transactions WHERE idempotency_key = ?`, key).Scan(&count)
	if err != nil {
		return false, apperr.Wrap(apperr.Transient, "checking idempotency key", err)
	}
	return count > 0, nil
}

// =============================================================================
// ROLLOVER LEASE (rollover.Lease)
// =============================================================================

// Acquire wins the lease for year via INSERT OR IGNORE against the unique
// primary key: only the first caller's insert actually lands a row.
func (s *Store) Acquire(ctx context.Context, year int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO rollover_leases (year, acquired_at) VALUES (?, ?)`,
		year, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, apperr.Wrap(apperr.Transient, "acquiring rollover lease", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.Transient, "checking rollover lease result", err)
	}
	return n > 0, nil
}

func newID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

var (
	_ timestore.Store  = (*Store)(nil)
	_ ledger.Backend   = (*Store)(nil)
	_ rollover.Lease   = (*Store)(nil)
)
