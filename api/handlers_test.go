package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/warp/overtime-engine/absence"
	"github.com/warp/overtime-engine/api"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/config"
	"github.com/warp/overtime-engine/daily"
	"github.com/warp/overtime-engine/eventbus"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/orchestrator"
	"github.com/warp/overtime-engine/rollover"
	"github.com/warp/overtime-engine/store/memory"
	"github.com/warp/overtime-engine/timestore"
)

func newTestServer(t *testing.T, today civil.Date) (*httptest.Server, *memory.Store) {
	t.Helper()
	loc := today.Location()

	store := memory.New()
	cal := calendar.New(timestore.HolidayAdapter{Store: store})
	calc := daily.New(cal, store)
	jbe := memory.NewJournalBackend()
	journal := ledger.New(jbe)
	bus := eventbus.New(zerolog.Nop())
	hub := eventbus.NewHub(bus, zerolog.Nop())
	clock := civil.NewFixed(today, loc)
	orch := orchestrator.New(store, cal, calc, journal, bus, clock, zerolog.Nop())
	machine := absence.New(store, cal, orch, journal)
	lease := memory.NewLease()
	cfg := config.EngineConfig{Location: loc}
	roll := rollover.New(store, journal, lease, cfg, zerolog.Nop())

	h := &api.Handler{
		Store: store, Calendar: cal, Journal: journal, Orch: orch,
		Absence: machine, Rollover: roll, Bus: bus, Hub: hub, Clock: clock,
	}
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestCreateTimeEntryRecomputesBalance(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	today := civil.New(loc, 2026, time.January, 31)
	srv, store := newTestServer(t, today)

	u := model.User{ID: "u1", HireDate: civil.New(loc, 2020, time.January, 1), WeeklyHours: 40}
	require.NoError(t, store.CreateUser(context.Background(), u))

	body, _ := json.Marshal(map[string]any{"userId": "u1", "date": "2026-01-05", "hours": 10})
	resp, err := http.Post(srv.URL+"/api/time-entries", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	reportResp, err := http.Get(srv.URL + "/api/reports/overtime?user=u1")
	require.NoError(t, err)
	defer reportResp.Body.Close()
	require.Equal(t, http.StatusOK, reportResp.StatusCode)

	var report struct {
		Balance float64 `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(reportResp.Body).Decode(&report))
	require.Equal(t, 2.0, report.Balance) // 10 worked - 8 target
}

func TestCreateAbsenceThenDecisionApproves(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	today := civil.New(loc, 2026, time.January, 31)
	srv, store := newTestServer(t, today)

	u := model.User{ID: "u2", HireDate: civil.New(loc, 2020, time.January, 1), WeeklyHours: 40, VacationDaysPerYear: 25}
	require.NoError(t, store.CreateUser(context.Background(), u))

	body, _ := json.Marshal(map[string]any{
		"userId": "u2", "type": "vacation", "startDate": "2026-01-05", "endDate": "2026-01-05",
	})
	resp, err := http.Post(srv.URL+"/api/absences", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	decisionBody, _ := json.Marshal(map[string]any{"action": "approve", "decidedBy": "admin"})
	decisionResp, err := http.Post(srv.URL+"/api/absences/"+created.ID+"/decision", "application/json", bytes.NewReader(decisionBody))
	require.NoError(t, err)
	defer decisionResp.Body.Close()
	require.Equal(t, http.StatusOK, decisionResp.StatusCode)

	var decided struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(decisionResp.Body).Decode(&decided))
	require.Equal(t, "approved", decided.Status)
}

func TestInvalidTimeEntryReturns400(t *testing.T) {
	today := civil.New(time.UTC, 2026, time.January, 31)
	srv, _ := newTestServer(t, today)

	resp, err := http.Post(srv.URL+"/api/time-entries", "application/json", bytes.NewReader([]byte(`{"date":"2026-01-05"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
