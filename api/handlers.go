/*
handlers.go - HTTP API handlers for the overtime engine

PURPOSE:
  Exposes the overtime accounting engine over REST. Handles HTTP request
  and response concerns (decode, validate, translate errors); all domain
  logic is delegated to the component it belongs to - orchestrator.Recompute
  for mutations, ledger.Journal for reads, absence.Machine for absence
  decisions, rollover.Rollover for the manual admin trigger.

REQUEST FLOW:
  1. Decode JSON body into a DTO.
  2. Validate with go-playground/validator.
  3. Call domain logic.
  4. Translate apperr.Kind to HTTP status, or encode the success DTO.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
  - errors.go: apperr.Kind -> HTTP status translation
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/absence"
	"github.com/warp/overtime-engine/apperr"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/eventbus"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/orchestrator"
	"github.com/warp/overtime-engine/rollover"
	"github.com/warp/overtime-engine/timestore"
)

var validate = validator.New()

// Handler holds every dependency the HTTP layer needs.
type Handler struct {
	Store    timestore.Store
	Calendar *calendar.Calendar
	Journal  *ledger.Journal
	Orch     *orchestrator.Orchestrator
	Absence  *absence.Machine
	Rollover *rollover.Rollover
	Bus      *eventbus.Bus
	Hub      *eventbus.Hub
	Clock    civil.Clock
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "invalid request body", err)
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "validation failed", err)
	}
	return nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

// CreateTimeEntry stores a time entry and recomputes its day.
// POST /api/time-entries
func (h *Handler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req TimeEntryRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err, "invalid time entry")
		return
	}

	loc := h.Clock.Location()
	d, err := civil.Parse(loc, req.Date)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, "invalid date", err), "invalid date")
		return
	}

	entry := model.TimeEntry{UserID: req.UserID, Date: d, Hours: decimalFromFloat(req.Hours)}
	ctx := r.Context()
	if err := h.Store.CreateTimeEntry(ctx, entry); err != nil {
		writeError(w, err, "failed to store time entry")
		return
	}

	if err := h.Orch.Recompute(ctx, req.UserID, orchestrator.ExpandSingle(d)); err != nil {
		writeError(w, err, "failed to recompute")
		return
	}

	h.Bus.Publish(ctx, eventbus.Event{
		Kind: eventbus.EventTimeEntryCreated, UserID: req.UserID, TimestampUTC: time.Now().UTC(),
	})

	writeJSON(w, http.StatusCreated, timeEntryDTO(entry))
}

// ListTimeEntries returns time entries for a user in a date range.
// GET /api/time-entries?user=&from=&to=
func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, apperr.New(apperr.InvalidInput, "user is required"), "user is required")
		return
	}
	loc := h.Clock.Location()
	from, to, err := parseRange(loc, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, err, "invalid range")
		return
	}

	entries, err := h.Store.TimeEntriesInRange(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, err, "failed to load time entries")
		return
	}

	out := make([]TimeEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = timeEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// ABSENCES
// =============================================================================

// CreateAbsence submits a new pending absence request.
// POST /api/absences
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	var req AbsenceRequestDTO
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err, "invalid absence request")
		return
	}

	loc := h.Clock.Location()
	start, err := civil.Parse(loc, req.StartDate)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, "invalid startDate", err), "invalid startDate")
		return
	}
	end, err := civil.Parse(loc, req.EndDate)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, "invalid endDate", err), "invalid endDate")
		return
	}

	ctx := r.Context()
	created, err := h.Absence.Create(ctx, model.AbsenceRequest{
		UserID:    req.UserID,
		Type:      model.AbsenceType(req.Type),
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(w, err, "failed to create absence request")
		return
	}

	h.Bus.Publish(ctx, eventbus.Event{
		Kind: eventbus.EventAbsenceCreated, UserID: req.UserID, TimestampUTC: time.Now().UTC(),
	})

	writeJSON(w, http.StatusCreated, absenceDTO(created))
}

// DecideAbsence approves or rejects an absence: a pending one, or one whose
// earlier decision is reversed (approved <-> rejected).
// POST /api/absences/{id}/decision
func (h *Handler) DecideAbsence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req AbsenceDecisionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err, "invalid decision")
		return
	}

	ctx := r.Context()
	updated, err := h.Absence.Decide(ctx, id, absence.Action(req.Action), req.DecidedBy)
	if err != nil {
		writeError(w, err, "failed to decide absence")
		return
	}

	kind := eventbus.EventAbsenceRejected
	if updated.Status == model.AbsenceApproved {
		kind = eventbus.EventAbsenceApproved
	}
	h.Bus.Publish(ctx, eventbus.Event{Kind: kind, UserID: updated.UserID, TimestampUTC: time.Now().UTC()})

	writeJSON(w, http.StatusOK, absenceDTO(updated))
}

// ResetAbsence is the admin-only transition back to pending.
// POST /api/absences/{id}/reset
func (h *Handler) ResetAbsence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req AbsenceResetRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err, "invalid reset request")
		return
	}

	updated, err := h.Absence.Decide(r.Context(), id, absence.Reset, req.DecidedBy)
	if err != nil {
		writeError(w, err, "failed to reset absence")
		return
	}
	writeJSON(w, http.StatusOK, absenceDTO(updated))
}

// =============================================================================
// OVERTIME CORRECTIONS
// =============================================================================

// CreateCorrection stores a manual correction and recomputes its day.
// POST /api/overtime-corrections
func (h *Handler) CreateCorrection(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err, "invalid correction")
		return
	}

	loc := h.Clock.Location()
	d, err := civil.Parse(loc, req.Date)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, "invalid date", err), "invalid date")
		return
	}

	correction := model.Correction{
		UserID: req.UserID, Date: d, Hours: decimalFromFloat(req.Hours),
		Reason: req.Reason, CreatedBy: req.CreatedBy,
	}

	ctx := r.Context()
	if err := h.Store.CreateCorrection(ctx, correction); err != nil {
		writeError(w, err, "failed to store correction")
		return
	}

	if err := h.Orch.Recompute(ctx, req.UserID, orchestrator.ExpandSingle(d)); err != nil {
		writeError(w, err, "failed to recompute")
		return
	}

	writeJSON(w, http.StatusCreated, correctionDTO(correction))
}

// DeleteCorrection removes a correction and recomputes its day - the
// delete-then-recompute sequence must be idempotent under repeated
// application.
// DELETE /api/overtime-corrections/{id}
func (h *Handler) DeleteCorrection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	correction, err := h.Store.GetCorrection(ctx, id)
	if err != nil {
		writeError(w, err, "correction not found")
		return
	}

	if err := h.Store.DeleteCorrection(ctx, id); err != nil {
		writeError(w, err, "failed to delete correction")
		return
	}

	if err := h.Orch.Recompute(ctx, correction.UserID, orchestrator.ExpandSingle(correction.Date)); err != nil {
		writeError(w, err, "failed to recompute")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// REPORTS
// =============================================================================

// OvertimeReport returns the journal and current balance for a user,
// optionally narrowed to a month.
// GET /api/reports/overtime?user=&year=&month=
func (h *Handler) OvertimeReport(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, apperr.New(apperr.InvalidInput, "user is required"), "user is required")
		return
	}

	ctx := r.Context()
	year := r.URL.Query().Get("year")
	month := r.URL.Query().Get("month")

	var from, to string
	if year != "" && month != "" {
		from = year + "-" + padMonth(month) + "-01"
		loc := h.Clock.Location()
		d, err := civil.Parse(loc, from)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.InvalidInput, "invalid year/month", err), "invalid year/month")
			return
		}
		to = d.EndOfMonth().String()
	}

	txs, err := h.Journal.Transactions(ctx, userID, from, to)
	if err != nil {
		writeError(w, err, "failed to load transactions")
		return
	}
	balance, err := h.Journal.BalanceAsOf(ctx, userID, "")
	if err != nil {
		writeError(w, err, "failed to compute balance")
		return
	}
	bf, _ := balance.Float64()

	report := OvertimeReportDTO{UserID: userID, Balance: bf, Transactions: transactionDTOs(txs)}
	if year != "" && month != "" {
		monthKey := year + "-" + padMonth(month)
		mb, err := h.Store.GetMonthlyBalance(ctx, userID, monthKey)
		if err != nil {
			writeError(w, err, "failed to load monthly balance")
			return
		}
		report.Month = mb.Month
		report.TargetHours = mb.TargetHours
		report.ActualHours = mb.ActualHours
		report.Overtime = mb.Overtime()
	}

	writeJSON(w, http.StatusOK, report)
}

// GetVacationBalance returns the vacation balance for a user/year.
// GET /api/users/{id}/vacation-balance?year=
func (h *Handler) GetVacationBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	year := r.URL.Query().Get("year")
	y := h.Clock.Now().Year()
	if year != "" {
		parsed, err := parseYear(year)
		if err != nil {
			writeError(w, err, "invalid year")
			return
		}
		y = parsed
	}

	vb, err := h.Store.GetVacationBalance(r.Context(), userID, y)
	if err != nil {
		writeError(w, err, "failed to load vacation balance")
		return
	}
	writeJSON(w, http.StatusOK, vacationBalanceDTO(vb))
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerRollover runs the year-end rollover for a specific year on demand.
// POST /api/admin/rollover
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err, "invalid rollover request")
		return
	}

	if err := h.Rollover.RunForYear(r.Context(), req.Year); err != nil {
		writeError(w, err, "rollover failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "year": req.Year})
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// ListHolidays returns every configured holiday.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		writeError(w, err, "failed to load holidays")
		return
	}
	out := make([]HolidayDTO, len(holidays))
	for i, hd := range holidays {
		out[i] = holidayDTO(hd)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateHoliday adds a holiday to the calendar.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err, "invalid holiday")
		return
	}

	loc := h.Clock.Location()
	d, err := civil.Parse(loc, req.Date)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, "invalid date", err), "invalid date")
		return
	}

	holiday := model.Holiday{Date: d, Name: req.Name, Scope: req.Scope}
	if err := h.Store.CreateHoliday(r.Context(), holiday); err != nil {
		writeError(w, err, "failed to store holiday")
		return
	}
	writeJSON(w, http.StatusCreated, holidayDTO(holiday))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRange(loc *time.Location, from, to string) (civil.Date, civil.Date, error) {
	var f, t civil.Date
	var err error
	if from != "" {
		f, err = civil.Parse(loc, from)
		if err != nil {
			return civil.Date{}, civil.Date{}, apperr.Wrap(apperr.InvalidInput, "invalid from", err)
		}
	}
	if to != "" {
		t, err = civil.Parse(loc, to)
		if err != nil {
			return civil.Date{}, civil.Date{}, apperr.Wrap(apperr.InvalidInput, "invalid to", err)
		}
	}
	return f, t, nil
}

func padMonth(m string) string {
	if len(m) == 1 {
		return "0" + m
	}
	return m
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func parseYear(s string) (int, error) {
	y := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, apperr.New(apperr.InvalidInput, "invalid year "+s)
		}
		y = y*10 + int(c-'0')
	}
	if y == 0 {
		return 0, apperr.New(apperr.InvalidInput, "invalid year "+s)
	}
	return y, nil
}
