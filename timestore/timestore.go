/*
timestore.go - Time Store (C2)

PURPOSE:
  CRUD on raw entities (User, TimeEntry, AbsenceRequest, Holiday,
  Correction) plus the aggregation reads C4 needs. Enforces hire/term
  gating on time entries at write time. Absence overlap is not checked by
  the store: absence.Machine rejects approving an absence that overlaps an
  approved one of the same type (via AbsencesOverlapping). Time-entry
  range reads, ListUsers and ListHolidays return sorted results; absence
  and correction reads come back in storage order.

SEE ALSO:
  - store/memory: in-memory double used by tests
  - store/sqlite: durable implementation
*/
package timestore

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/model"
)

// ActiveAbsence is the narrowed view C4 needs: just the type of any
// absence active on a given date.
type ActiveAbsence struct {
	Type model.AbsenceType
	ID   string
}

// Store is the full Time Store contract (C2). Implementations: store/memory
// (tests), store/sqlite (production).
type Store interface {
	// Users
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	UpdateUser(ctx context.Context, u model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)

	// TimeEntry
	CreateTimeEntry(ctx context.Context, e model.TimeEntry) error
	DeleteTimeEntry(ctx context.Context, id string) error
	TimeEntriesForUserDate(ctx context.Context, userID string, d civil.Date) ([]model.TimeEntry, error)
	TimeEntriesInRange(ctx context.Context, userID string, from, to civil.Date) ([]model.TimeEntry, error)

	// AbsenceRequest
	CreateAbsence(ctx context.Context, a model.AbsenceRequest) error
	UpdateAbsence(ctx context.Context, a model.AbsenceRequest) error
	GetAbsence(ctx context.Context, id string) (model.AbsenceRequest, error)
	AbsencesOverlapping(ctx context.Context, userID string, absType model.AbsenceType, status model.AbsenceStatus, start, end civil.Date) ([]model.AbsenceRequest, error)
	AbsencesForUserInRange(ctx context.Context, userID string, from, to civil.Date) ([]model.AbsenceRequest, error)
	AbsencesForUserYear(ctx context.Context, userID string, year int) ([]model.AbsenceRequest, error)

	// Holiday
	CreateHoliday(ctx context.Context, h model.Holiday) error
	IsHoliday(ctx context.Context, d civil.Date) (bool, error)
	ListHolidays(ctx context.Context) ([]model.Holiday, error)

	// Correction
	CreateCorrection(ctx context.Context, c model.Correction) error
	DeleteCorrection(ctx context.Context, id string) error
	GetCorrection(ctx context.Context, id string) (model.Correction, error)
	CorrectionsForUserDate(ctx context.Context, userID string, d civil.Date) ([]model.Correction, error)

	// Aggregation reads consumed by C4
	Worked(ctx context.Context, userID string, d civil.Date) (decimal.Decimal, error)
	ActiveAbsences(ctx context.Context, userID string, d civil.Date) ([]ActiveAbsence, error)
	Corrections(ctx context.Context, userID string, d civil.Date) ([]model.Correction, error)

	// VacationBalance
	GetVacationBalance(ctx context.Context, userID string, year int) (model.VacationBalance, error)
	PutVacationBalance(ctx context.Context, v model.VacationBalance) error

	// MonthlyBalance cache
	GetMonthlyBalance(ctx context.Context, userID, month string) (model.MonthlyBalance, error)
	PutMonthlyBalance(ctx context.Context, mb model.MonthlyBalance) error
}

// HolidayAdapter lets timestore.Store satisfy calendar.HolidaySet directly.
type HolidayAdapter struct {
	Store Store
}

func (h HolidayAdapter) IsHoliday(d civil.Date) (bool, error) {
	return h.Store.IsHoliday(context.Background(), d)
}
