/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Decouples the internal domain model from the wire contract: field
  renaming, JSON-specific shapes (floats instead of decimal.Decimal,
  "YYYY-MM-DD" strings instead of civil.Date) without touching model.go.

VALIDATION:
  Request DTOs carry go-playground/validator/v10 struct tags; handlers
  call validate.Struct before translating into domain calls.

SEE ALSO:
  - handlers.go: uses these types
  - server.go: router wiring
*/
package api

import (
	"github.com/warp/overtime-engine/model"
)

// ErrorResponse is the uniform error body for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// TimeEntryRequest is the body of POST /api/time-entries.
type TimeEntryRequest struct {
	UserID string  `json:"userId" validate:"required"`
	Date   string  `json:"date" validate:"required,len=10"`
	Hours  float64 `json:"hours" validate:"required"`
}

// TimeEntryDTO is the response shape for a stored time entry.
type TimeEntryDTO struct {
	ID     string  `json:"id"`
	UserID string  `json:"userId"`
	Date   string  `json:"date"`
	Hours  float64 `json:"hours"`
}

func timeEntryDTO(e model.TimeEntry) TimeEntryDTO {
	hours, _ := e.Hours.Float64()
	return TimeEntryDTO{ID: e.ID, UserID: e.UserID, Date: e.Date.String(), Hours: hours}
}

// AbsenceRequestDTO is the body of POST /api/absences.
type AbsenceRequestDTO struct {
	UserID    string `json:"userId" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=vacation sick overtime_comp special unpaid"`
	StartDate string `json:"startDate" validate:"required,len=10"`
	EndDate   string `json:"endDate" validate:"required,len=10"`
	Reason    string `json:"reason"`
}

// AbsenceDecisionRequest is the body of POST /api/absences/{id}/decision.
type AbsenceDecisionRequest struct {
	Action    string `json:"action" validate:"required,oneof=approve reject"`
	DecidedBy string `json:"decidedBy" validate:"required"`
}

// AbsenceResetRequest is the body of POST /api/absences/{id}/reset.
type AbsenceResetRequest struct {
	DecidedBy string `json:"decidedBy" validate:"required"`
}

// AbsenceDTO is the response shape for an absence request.
type AbsenceDTO struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Type      string  `json:"type"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	Status    string  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	DecidedBy *string `json:"decidedBy,omitempty"`
}

func absenceDTO(a model.AbsenceRequest) AbsenceDTO {
	return AbsenceDTO{
		ID:        a.ID,
		UserID:    a.UserID,
		Type:      string(a.Type),
		StartDate: a.StartDate.String(),
		EndDate:   a.EndDate.String(),
		Status:    string(a.Status),
		Reason:    a.Reason,
		DecidedBy: a.DecidedBy,
	}
}

// CorrectionRequest is the body of POST /api/overtime-corrections.
type CorrectionRequest struct {
	UserID    string  `json:"userId" validate:"required"`
	Date      string  `json:"date" validate:"required,len=10"`
	Hours     float64 `json:"hours" validate:"required"`
	Reason    string  `json:"reason" validate:"required"`
	CreatedBy string  `json:"createdBy" validate:"required"`
}

// CorrectionDTO is the response shape for a stored correction.
type CorrectionDTO struct {
	ID     string  `json:"id"`
	UserID string  `json:"userId"`
	Date   string  `json:"date"`
	Hours  float64 `json:"hours"`
	Reason string  `json:"reason"`
}

func correctionDTO(c model.Correction) CorrectionDTO {
	hours, _ := c.Hours.Float64()
	return CorrectionDTO{ID: c.ID, UserID: c.UserID, Date: c.Date.String(), Hours: hours, Reason: c.Reason}
}

// TransactionDTO is one line in an overtime report.
type TransactionDTO struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	Type          string  `json:"type"`
	Hours         float64 `json:"hours"`
	BalanceBefore float64 `json:"balanceBefore"`
	BalanceAfter  float64 `json:"balanceAfter"`
	Description   string  `json:"description,omitempty"`
}

func transactionDTO(tx model.OvertimeTransaction) TransactionDTO {
	hours, _ := tx.Hours.Float64()
	before, _ := tx.BalanceBefore.Float64()
	after, _ := tx.BalanceAfter.Float64()
	return TransactionDTO{
		ID:            tx.ID,
		Date:          tx.Date.String(),
		Type:          string(tx.Type),
		Hours:         hours,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   tx.Description,
	}
}

func transactionDTOs(txs []model.OvertimeTransaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		out[i] = transactionDTO(tx)
	}
	return out
}

// OvertimeReportDTO is the response of GET /api/reports/overtime.
type OvertimeReportDTO struct {
	UserID       string           `json:"userId"`
	Month        string           `json:"month,omitempty"`
	TargetHours  float64          `json:"targetHours,omitempty"`
	ActualHours  float64          `json:"actualHours,omitempty"`
	Overtime     float64          `json:"overtime,omitempty"`
	Balance      float64          `json:"balance"`
	Transactions []TransactionDTO `json:"transactions"`
}

// VacationBalanceDTO is the response of GET /api/users/{id}/vacation-balance.
type VacationBalanceDTO struct {
	UserID      string  `json:"userId"`
	Year        int     `json:"year"`
	Entitlement float64 `json:"entitlement"`
	Carryover   float64 `json:"carryover"`
	Taken       float64 `json:"taken"`
	Pending     float64 `json:"pending"`
	Remaining   float64 `json:"remaining"`
}

func vacationBalanceDTO(v model.VacationBalance) VacationBalanceDTO {
	return VacationBalanceDTO{
		UserID:      v.UserID,
		Year:        v.Year,
		Entitlement: v.Entitlement,
		Carryover:   v.Carryover,
		Taken:       v.Taken,
		Pending:     v.Pending,
		Remaining:   v.Remaining(),
	}
}

// HolidayRequest is the body of POST /api/holidays.
type HolidayRequest struct {
	Date  string `json:"date" validate:"required,len=10"`
	Name  string `json:"name" validate:"required"`
	Scope string `json:"scope"`
}

// HolidayDTO is the response shape for a holiday.
type HolidayDTO struct {
	Date  string `json:"date"`
	Name  string `json:"name"`
	Scope string `json:"scope,omitempty"`
}

func holidayDTO(h model.Holiday) HolidayDTO {
	return HolidayDTO{Date: h.Date.String(), Name: h.Name, Scope: h.Scope}
}

// RolloverRequest is the body of POST /api/admin/rollover.
type RolloverRequest struct {
	Year int `json:"year" validate:"required"`
}
