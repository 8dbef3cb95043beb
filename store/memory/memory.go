/*
memory.go - In-memory Time Store (for tests and dev)

PURPOSE:
  A deterministic, in-process implementation of timestore.Store, used by
  unit tests that need no SQLite dependency. Each user's entities are kept
  in a per-user slice: time entries are inserted in date order by binary
  search, absences and corrections are appended in arrival order. Reads
  scan the user's slice linearly.
*/
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/apperr"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/timestore"
)

type Store struct {
	mu sync.RWMutex

	users       map[string]model.User
	timeEntries map[string][]model.TimeEntry // userID -> sorted by date
	absences    map[string][]model.AbsenceRequest
	holidays    map[string]model.Holiday // date string -> holiday
	corrections map[string][]model.Correction
	vacBalances map[string]model.VacationBalance // "userID:year"
	monthBalances map[string]model.MonthlyBalance // "userID:YYYY-MM"
}

func New() *Store {
	return &Store{
		users:       make(map[string]model.User),
		timeEntries: make(map[string][]model.TimeEntry),
		absences:    make(map[string][]model.AbsenceRequest),
		holidays:    make(map[string]model.Holiday),
		corrections: make(map[string][]model.Correction),
		vacBalances: make(map[string]model.VacationBalance),
		monthBalances: make(map[string]model.MonthlyBalance),
	}
}

var _ timestore.Store = (*Store)(nil)

// --- Users ---

func (s *Store) CreateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return apperr.Newf(apperr.Conflict, "user %s already exists", u.ID)
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, apperr.Newf(apperr.NotFound, "user %s not found", id)
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return apperr.Newf(apperr.NotFound, "user %s not found", u.ID)
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- TimeEntry ---

func (s *Store) CreateTimeEntry(_ context.Context, e model.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[e.UserID]
	if !ok {
		return apperr.Newf(apperr.NotFound, "user %s not found", e.UserID)
	}
	if !u.IsActiveOn(e.Date) {
		return apperr.Newf(apperr.PreconditionFailed, "time entry %s outside user %s active range", e.Date, e.UserID)
	}
	if e.Hours.IsNegative() || e.Hours.GreaterThan(decimal.NewFromInt(24)) {
		return apperr.Newf(apperr.InvalidInput, "hours %s out of [0,24]", e.Hours)
	}

	entries := s.timeEntries[e.UserID]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Date.After(e.Date) })
	entries = append(entries, model.TimeEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	s.timeEntries[e.UserID] = entries
	return nil
}

func (s *Store) DeleteTimeEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, entries := range s.timeEntries {
		for i, e := range entries {
			if e.ID == id {
				s.timeEntries[userID] = append(entries[:i], entries[i+1:]...)
				return nil
			}
		}
	}
	return apperr.Newf(apperr.NotFound, "time entry %s not found", id)
}

func (s *Store) TimeEntriesForUserDate(_ context.Context, userID string, d civil.Date) ([]model.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TimeEntry
	for _, e := range s.timeEntries[userID] {
		if e.Date.Equal(d) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) TimeEntriesInRange(_ context.Context, userID string, from, to civil.Date) ([]model.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TimeEntry
	for _, e := range s.timeEntries[userID] {
		if e.Date.AfterOrEqual(from) && e.Date.BeforeOrEqual(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- AbsenceRequest ---

func (s *Store) CreateAbsence(_ context.Context, a model.AbsenceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.EndDate.Before(a.StartDate) {
		return apperr.Newf(apperr.InvalidInput, "absence end %s before start %s", a.EndDate, a.StartDate)
	}
	s.absences[a.UserID] = append(s.absences[a.UserID], a)
	return nil
}

func (s *Store) UpdateAbsence(_ context.Context, a model.AbsenceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.absences[a.UserID]
	for i, existing := range list {
		if existing.ID == a.ID {
			list[i] = a
			return nil
		}
	}
	return apperr.Newf(apperr.NotFound, "absence %s not found", a.ID)
}

func (s *Store) GetAbsence(_ context.Context, id string) (model.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range s.absences {
		for _, a := range list {
			if a.ID == id {
				return a, nil
			}
		}
	}
	return model.AbsenceRequest{}, apperr.Newf(apperr.NotFound, "absence %s not found", id)
}

func rangesOverlap(aStart, aEnd, bStart, bEnd civil.Date) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

func (s *Store) AbsencesOverlapping(_ context.Context, userID string, absType model.AbsenceType, status model.AbsenceStatus, start, end civil.Date) ([]model.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AbsenceRequest
	for _, a := range s.absences[userID] {
		if a.Type == absType && a.Status == status && rangesOverlap(a.StartDate, a.EndDate, start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) AbsencesForUserInRange(_ context.Context, userID string, from, to civil.Date) ([]model.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AbsenceRequest
	for _, a := range s.absences[userID] {
		if rangesOverlap(a.StartDate, a.EndDate, from, to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) AbsencesForUserYear(_ context.Context, userID string, year int) ([]model.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AbsenceRequest
	for _, a := range s.absences[userID] {
		if a.StartDate.Year() == year || a.EndDate.Year() == year {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- Holiday ---

func (s *Store) CreateHoliday(_ context.Context, h model.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holidays[h.Date.String()] = h
	return nil
}

func (s *Store) IsHoliday(_ context.Context, d civil.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.holidays[d.String()]
	return ok, nil
}

func (s *Store) ListHolidays(_ context.Context) ([]model.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Holiday, 0, len(s.holidays))
	for _, h := range s.holidays {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// --- Correction ---

func (s *Store) CreateCorrection(_ context.Context, c model.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrections[c.UserID] = append(s.corrections[c.UserID], c)
	return nil
}

func (s *Store) DeleteCorrection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, list := range s.corrections {
		for i, c := range list {
			if c.ID == id {
				s.corrections[userID] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return apperr.Newf(apperr.NotFound, "correction %s not found", id)
}

func (s *Store) GetCorrection(_ context.Context, id string) (model.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range s.corrections {
		for _, c := range list {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return model.Correction{}, apperr.Newf(apperr.NotFound, "correction %s not found", id)
}

func (s *Store) CorrectionsForUserDate(_ context.Context, userID string, d civil.Date) ([]model.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Correction
	for _, c := range s.corrections[userID] {
		if c.Date.Equal(d) {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Aggregation reads ---

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

func (s *Store) ActiveAbsences(_ context.Context, userID string, d civil.Date) ([]timestore.ActiveAbsence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []timestore.ActiveAbsence
	for _, a := range s.absences[userID] {
		if a.Status != model.AbsenceApproved {
			continue
		}
		if d.BeforeOrEqual(a.EndDate) && d.AfterOrEqual(a.StartDate) {
			out = append(out, timestore.ActiveAbsence{Type: a.Type, ID: a.ID})
		}
	}
	return out, nil
}

func (s *Store) Corrections(ctx context.Context, userID string, d civil.Date) ([]model.Correction, error) {
	return s.CorrectionsForUserDate(ctx, userID, d)
}

// --- VacationBalance ---

func vacKey(userID string, year int) string {
	return userID + ":" + strconv.Itoa(year)
}

func (s *Store) GetVacationBalance(_ context.Context, userID string, year int) (model.VacationBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vacBalances[vacKey(userID, year)]
	if !ok {
		return model.VacationBalance{UserID: userID, Year: year}, nil
	}
	return v, nil
}

func (s *Store) PutVacationBalance(_ context.Context, v model.VacationBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vacBalances[vacKey(v.UserID, v.Year)] = v
	return nil
}

// --- MonthlyBalance cache ---

func monthKey(userID, month string) string { return userID + ":" + month }

func (s *Store) GetMonthlyBalance(_ context.Context, userID, month string) (model.MonthlyBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mb, ok := s.monthBalances[monthKey(userID, month)]
	if !ok {
		return model.MonthlyBalance{UserID: userID, Month: month}, nil
	}
	return mb, nil
}

func (s *Store) PutMonthlyBalance(_ context.Context, mb model.MonthlyBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthBalances[monthKey(mb.UserID, mb.Month)] = mb
	return nil
}
