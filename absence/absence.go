/*
absence.go - Absence State Machine (C6)

PURPOSE:
  Transitions AbsenceRequest between pending/approved/rejected, invoking
  the Recompute Orchestrator on any transition that changes which days are
  "active" for the absence. Every transition is idempotent; the circular
  sequence approve -> reject -> approve must reproduce the same journal
  and VacationBalance as a single approve.

overtime_comp APPROVAL also emits a negative `compensation` journal entry
  spending the account, on top of the day-level credit C4 already applies
  (net zero per day; the entry exists purely for audit legibility — see
  DESIGN.md for the reasoning behind keeping it). Deactivating the absence
  (reject, or admin reset) reverses that entry by reference so the journal
  after approve -> reject -> approve matches a single approve exactly.
*/
package absence

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/apperr"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/orchestrator"
	"github.com/warp/overtime-engine/timestore"
)

type Action string

const (
	Approve  Action = "approve"
	Reject   Action = "reject"
	Reset    Action = "reset" // admin-only transition back to pending
)

type Machine struct {
	Store    timestore.Store
	Calendar *calendar.Calendar
	Orch     *orchestrator.Orchestrator
	Journal  *ledger.Journal
}

func New(store timestore.Store, cal *calendar.Calendar, orch *orchestrator.Orchestrator, journal *ledger.Journal) *Machine {
	return &Machine{Store: store, Calendar: cal, Orch: orch, Journal: journal}
}

// Create stores a new pending absence request; a vacation request's days
// are added to VacationBalance.Pending.
func (m *Machine) Create(ctx context.Context, req model.AbsenceRequest) (model.AbsenceRequest, error) {
	if req.EndDate.Before(req.StartDate) {
		return model.AbsenceRequest{}, apperr.New(apperr.InvalidInput, "endDate before startDate")
	}
	req.ID = uuid.NewString()
	req.Status = model.AbsencePending
	if err := m.Store.CreateAbsence(ctx, req); err != nil {
		return model.AbsenceRequest{}, err
	}
	if req.Type == model.AbsenceVacation {
		vb, err := m.Store.GetVacationBalance(ctx, req.UserID, req.StartDate.Year())
		if err != nil {
			return model.AbsenceRequest{}, err
		}
		vb.Pending += float64(req.StartDate.DaysUntil(req.EndDate) + 1)
		if err := m.Store.PutVacationBalance(ctx, vb); err != nil {
			return model.AbsenceRequest{}, err
		}
	}
	return req, nil
}

// allowedTransitions encodes the legal edges; reset is admin-only and
// always legal from approved/rejected back to pending.
var allowedTransitions = map[model.AbsenceStatus]map[Action]model.AbsenceStatus{
	model.AbsencePending: {
		Approve: model.AbsenceApproved,
		Reject:  model.AbsenceRejected,
	},
	model.AbsenceApproved: {
		Reject: model.AbsenceRejected,
		Reset:  model.AbsencePending,
	},
	model.AbsenceRejected: {
		Approve: model.AbsenceApproved,
		Reset:   model.AbsencePending,
	},
}

// Decide applies action to the absence identified by id, recomputes the
// overtime journal for the affected range when the active/inactive set of
// days changes, and maintains VacationBalance for vacation-type requests.
func (m *Machine) Decide(ctx context.Context, id string, action Action, decidedBy string) (model.AbsenceRequest, error) {
	req, err := m.Store.GetAbsence(ctx, id)
	if err != nil {
		return model.AbsenceRequest{}, err
	}

	nextStatus, ok := allowedTransitions[req.Status][action]
	if !ok {
		return model.AbsenceRequest{}, apperr.Newf(apperr.PreconditionFailed, "illegal transition %s from %s", action, req.Status)
	}

	oldStatus := req.Status
	wasApproved := oldStatus == model.AbsenceApproved
	willBeApproved := nextStatus == model.AbsenceApproved

	if willBeApproved && !wasApproved {
		overlapping, err := m.Store.AbsencesOverlapping(ctx, req.UserID, req.Type, model.AbsenceApproved, req.StartDate, req.EndDate)
		if err != nil {
			return model.AbsenceRequest{}, err
		}
		for _, other := range overlapping {
			if other.ID != req.ID {
				return model.AbsenceRequest{}, apperr.Newf(apperr.PreconditionFailed, "overlapping approved %s absence already exists for user %s", req.Type, req.UserID)
			}
		}
	}

	req.Status = nextStatus
	req.DecidedBy = &decidedBy
	if err := m.Store.UpdateAbsence(ctx, req); err != nil {
		return model.AbsenceRequest{}, err
	}

	if err := m.adjustVacationBalance(ctx, req, oldStatus, nextStatus); err != nil {
		return model.AbsenceRequest{}, err
	}

	// Recompute only when the absence moves into or out of approved, i.e.
	// when the set of active days changes. Recomputing a range again is
	// safe because the orchestrator deletes and re-inserts the day's
	// journal entries rather than patching them in place.
	if wasApproved != willBeApproved {
		dates := orchestrator.ExpandRange(req.StartDate, req.EndDate)
		if err := m.Orch.Recompute(ctx, req.UserID, dates); err != nil {
			return model.AbsenceRequest{}, err
		}
	}

	if req.Type == model.AbsenceOvertimeComp {
		switch {
		case willBeApproved && !wasApproved:
			if err := m.emitCompensation(ctx, req); err != nil {
				return model.AbsenceRequest{}, err
			}
		case wasApproved && !willBeApproved:
			if err := m.Journal.DeleteByReference(ctx, req.UserID, model.RefAbsence, req.ID); err != nil {
				return model.AbsenceRequest{}, err
			}
		}
	}

	return req, nil
}

// emitCompensation appends the negative compensation entry spending the
// overtime account for an overtime_comp approval.
func (m *Machine) emitCompensation(ctx context.Context, req model.AbsenceRequest) error {
	u, err := m.Store.GetUser(ctx, req.UserID)
	if err != nil {
		return err
	}

	total := 0.0
	req.StartDate.Range(req.EndDate, func(d civil.Date) bool {
		target, tErr := m.Calendar.DailyTargetHours(u, d)
		if tErr != nil {
			err = tErr
			return false
		}
		total += target
		return true
	})
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	_, err = m.Journal.Append(ctx, req.UserID, model.OvertimeTransaction{
		Date:          req.StartDate,
		Type:          model.TxCompensation,
		Hours:         decimal.NewFromFloat(-total),
		ReferenceKind: model.RefAbsence,
		ReferenceID:   req.ID,
		Description:   "overtime_comp spend",
		CreatedBy:     derefOr(req.DecidedBy, ""),
	})
	if err != nil {
		return err
	}
	// The entry is dated at the absence start, possibly before later
	// entries, so the chain is re-derived after appending it.
	return m.Journal.Rechain(ctx, req.UserID)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// adjustVacationBalance keeps one field per transition: pending +/- on
// submit/decide, taken +/- on approve/unapprove. Only vacation-type
// requests affect the balance.
func (m *Machine) adjustVacationBalance(ctx context.Context, req model.AbsenceRequest, oldStatus, newStatus model.AbsenceStatus) error {
	if req.Type != model.AbsenceVacation {
		return nil
	}

	days := float64(req.StartDate.DaysUntil(req.EndDate) + 1)
	year := req.StartDate.Year()

	vb, err := m.Store.GetVacationBalance(ctx, req.UserID, year)
	if err != nil {
		return err
	}

	wasApproved := oldStatus == model.AbsenceApproved
	willBeApproved := newStatus == model.AbsenceApproved
	wasPending := oldStatus == model.AbsencePending
	isPending := newStatus == model.AbsencePending

	if wasApproved && !willBeApproved {
		vb.Taken -= days
	}
	if !wasApproved && willBeApproved {
		vb.Taken += days
	}

	// Pending count: decremented the moment a decision (approve or reject)
	// is made from pending; incremented back only by an admin reset to pending.
	switch {
	case !wasPending && isPending:
		vb.Pending += days
	case wasPending && !isPending:
		vb.Pending -= days
	}

	return m.Store.PutVacationBalance(ctx, vb)
}
