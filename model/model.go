/*
model.go - Domain entities

PURPOSE:
  Plain structs for every entity the engine reasons about. No behavior
  lives here beyond small accessors; computation lives in calendar, daily,
  ledger, orchestrator, absence and rollover.
*/
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/civil"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// WorkSchedule maps weekday to target hours for that weekday. When present
// it fully supersedes WeeklyHours for day-target computation.
type WorkSchedule map[time.Weekday]float64

type User struct {
	ID           string
	Username     string
	Email        string
	Role         Role
	WeeklyHours  float64
	WorkSchedule WorkSchedule // nil means "use WeeklyHours/5 Mon-Fri"
	HireDate     civil.Date
	EndDate      *civil.Date
	VacationDaysPerYear float64
	DeletedAt    *time.Time
}

func (u User) IsActiveOn(d civil.Date) bool {
	if d.Before(u.HireDate) {
		return false
	}
	if u.EndDate != nil && d.After(*u.EndDate) {
		return false
	}
	return true
}

type TimeEntry struct {
	ID     string
	UserID string
	Date   civil.Date
	Hours  decimal.Decimal
}

type AbsenceType string

const (
	AbsenceVacation     AbsenceType = "vacation"
	AbsenceSick         AbsenceType = "sick"
	AbsenceOvertimeComp AbsenceType = "overtime_comp"
	AbsenceSpecial      AbsenceType = "special"
	AbsenceUnpaid       AbsenceType = "unpaid"
)

// IsPaidCredit reports whether an approved absence of this type credits
// the scheduled target hours for the day.
func (t AbsenceType) IsPaidCredit() bool {
	switch t {
	case AbsenceVacation, AbsenceSick, AbsenceOvertimeComp, AbsenceSpecial:
		return true
	default:
		return false
	}
}

type AbsenceStatus string

const (
	AbsencePending  AbsenceStatus = "pending"
	AbsenceApproved AbsenceStatus = "approved"
	AbsenceRejected AbsenceStatus = "rejected"
)

type AbsenceRequest struct {
	ID        string
	UserID    string
	Type      AbsenceType
	StartDate civil.Date
	EndDate   civil.Date
	Status    AbsenceStatus
	Reason    string
	DecidedBy *string
	DecidedAt *time.Time
	CreatedAt time.Time
}

type Holiday struct {
	Date  civil.Date
	Name  string
	Scope string
}

type Correction struct {
	ID        string
	UserID    string
	Date      civil.Date
	Hours     decimal.Decimal
	Reason    string
	CreatedBy string
	CreatedAt time.Time
}

type TransactionType string

const (
	TxEarned        TransactionType = "earned"
	TxAbsenceCredit TransactionType = "absence_credit"
	TxUnpaidAdjust  TransactionType = "unpaid_adjust"
	TxCompensation  TransactionType = "compensation"
	TxCorrection    TransactionType = "correction"
	TxCarryover     TransactionType = "carryover"
)

// RecomputedKinds are the transaction types owned exclusively by the daily
// recompute pass; compensation and carryover reference independent domain
// events (an absence decision, a year boundary) and are reversed by their
// own owners instead of by a date-level recompute.
var RecomputedKinds = []TransactionType{TxEarned, TxAbsenceCredit, TxUnpaidAdjust, TxCorrection}

type ReferenceKind string

const (
	RefAbsence    ReferenceKind = "absence"
	RefCorrection ReferenceKind = "correction"
	RefTimeEntry  ReferenceKind = "time_entry"
	RefYear       ReferenceKind = "year"
)

// OvertimeTransaction is one append-only journal entry (C3).
type OvertimeTransaction struct {
	ID             string
	UserID         string
	Date           civil.Date
	Type           TransactionType
	Hours          decimal.Decimal
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
	ReferenceKind  ReferenceKind
	ReferenceID    string
	Description    string
	CreatedBy      string
	CreatedAt      time.Time
	IdempotencyKey string
}

type MonthlyBalance struct {
	UserID      string
	Month       string // "YYYY-MM"
	TargetHours float64
	ActualHours float64
}

func (m MonthlyBalance) Overtime() float64 { return m.ActualHours - m.TargetHours }

type VacationBalance struct {
	UserID      string
	Year        int
	Entitlement float64
	Carryover   float64
	Taken       float64
	Pending     float64
}

func (v VacationBalance) Remaining() float64 {
	return v.Entitlement + v.Carryover - v.Taken - v.Pending
}

// DailyBreakdown is the C4 pure-calculator output for one (user, date).
type DailyBreakdown struct {
	Date            civil.Date
	Target          float64
	Worked          float64
	AbsenceCredit   float64
	CorrectionHours float64
	EffectiveTarget float64
	Actual          float64
	Overtime        float64
	HasUnpaid       bool
	HasPaidCredit   bool
}
