package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentor_match/internal/app"
	"mentor_match/internal/domain/matching"
)

type stubSwipes struct {
	recordErr  error
	lastDir    matching.Direction
	lastArgs   []string
	candidates []*matching.Participant
	lastLimit  int
	remaining  int
	readErr    error
}

func (s *stubSwipes) Record(_ context.Context, dir matching.Direction, participantID, counterpartID, cycleID string) (*matching.Swipe, error) {
	s.lastDir = dir
	s.lastArgs = []string{participantID, counterpartID, cycleID}
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return &matching.Swipe{
		ParticipantID: participantID,
		CounterpartID: counterpartID,
		CycleID:       cycleID,
		Round:         1,
		Direction:     dir,
		CreatedAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubSwipes) Candidates(_ context.Context, _ string, limit int) ([]*matching.Participant, error) {
	s.lastLimit = limit
	return s.candidates, s.readErr
}

func (s *stubSwipes) Remaining(_ context.Context, _ string) (int, error) {
	return s.remaining, s.readErr
}

type stubQueries struct {
	match *app.MatchStatus
	cycle *app.CycleStatus
	err   error
}

func (s *stubQueries) MatchStatus(context.Context, string) (*app.MatchStatus, error) {
	return s.match, s.err
}

func (s *stubQueries) CycleStatus(context.Context, string) (*app.CycleStatus, error) {
	return s.cycle, s.err
}

func newTestRouter(swipes *stubSwipes, queries *stubQueries) http.Handler {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewHandlers(swipes, queries, logrus.NewEntry(l), 20).Router()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestPostSwipe_Accepted(t *testing.T) {
	swipes := &stubSwipes{}
	h := newTestRouter(swipes, &stubQueries{})

	w := do(t, h, http.MethodPost, "/participants/a1/swipes", `{"cycle_id":"c1","counterpart_id":"s1","direction":"desire"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, matching.DirectionDesire, swipes.lastDir)
	assert.Equal(t, []string{"a1", "s1", "c1"}, swipes.lastArgs)

	resp := decode[swipeResponse](t, w)
	assert.Equal(t, 1, resp.Round)
	assert.Equal(t, "s1", resp.CounterpartID)
}

func TestPostSwipe_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{matching.ErrDuplicateSwipe, http.StatusConflict, "duplicate_swipe"},
		{matching.ErrCycleClosed, http.StatusConflict, "cycle_closed"},
		{matching.ErrBudgetExceeded, http.StatusUnprocessableEntity, "budget_exceeded"},
		{matching.ErrUnknownCounterpart, http.StatusBadRequest, "unknown_counterpart"},
		{app.ErrInvalidDirection, http.StatusBadRequest, "invalid_direction"},
		{matching.ErrParticipantNotFound, http.StatusNotFound, "participant_not_found"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := newTestRouter(&stubSwipes{recordErr: tc.err}, &stubQueries{})
			w := do(t, h, http.MethodPost, "/participants/a1/swipes", `{"cycle_id":"c1","counterpart_id":"s1","direction":"REJECT"}`)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode[errorResponse](t, w).Error)
		})
	}
}

func TestPostSwipe_InternalErrorHidesDetail(t *testing.T) {
	h := newTestRouter(&stubSwipes{recordErr: errors.New("pq: connection refused")}, &stubQueries{})
	w := do(t, h, http.MethodPost, "/participants/a1/swipes", `{"cycle_id":"c1","counterpart_id":"s1","direction":"REJECT"}`)

	assert.Equal(t, "internal error", decode[errorResponse](t, w).Message)
}

func TestPostSwipe_BadBody(t *testing.T) {
	swipes := &stubSwipes{}
	h := newTestRouter(swipes, &stubQueries{})

	for _, body := range []string{
		`not json`,
		`{"cycle_id":"c1","direction":"DESIRE"}`,
		`{"counterpart_id":"s1","direction":"DESIRE"}`,
		`{"cycle_id":"c1","counterpart_id":"s1"}`,
		`{"cycle_id":"` + strings.Repeat("x", maxSwipeBody) + `"}`,
	} {
		w := do(t, h, http.MethodPost, "/participants/a1/swipes", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Nil(t, swipes.lastArgs)
}

func TestListCandidates(t *testing.T) {
	swipes := &stubSwipes{candidates: []*matching.Participant{
		{ID: "s1", DisplayName: "Dr. Lee", Role: matching.RoleSponsor},
	}}
	h := newTestRouter(swipes, &stubQueries{})

	w := do(t, h, http.MethodGet, "/participants/a1/candidates", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, swipes.lastLimit)

	resp := decode[map[string][]candidateResponse](t, w)
	assert.Equal(t, []candidateResponse{{ID: "s1", DisplayName: "Dr. Lee", Role: matching.RoleSponsor}}, resp["candidates"])

	w = do(t, h, http.MethodGet, "/participants/a1/candidates?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, swipes.lastLimit)

	w = do(t, h, http.MethodGet, "/participants/a1/candidates?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	swipes.readErr = matching.ErrCycleClosed
	w = do(t, h, http.MethodGet, "/participants/a1/candidates", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetRemaining(t *testing.T) {
	h := newTestRouter(&stubSwipes{remaining: 3}, &stubQueries{})

	w := do(t, h, http.MethodGet, "/participants/a1/remaining", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"remaining": 3}, decode[map[string]int](t, w))
}

func TestGetMatchAndCycle(t *testing.T) {
	queries := &stubQueries{
		match: &app.MatchStatus{ParticipantID: "s1", Role: matching.RoleSponsor, Capacity: 2, Matches: []string{"a2"}, Finalized: true, Unmatched: true},
		cycle: &app.CycleStatus{CycleID: "c1", Name: "spring", CurrentRound: 2, Rounds: 3, Finalized: true, Unmatched: []string{"s1"}},
	}
	h := newTestRouter(&stubSwipes{}, queries)

	w := do(t, h, http.MethodGet, "/participants/s1/match", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, *queries.match, decode[app.MatchStatus](t, w))

	w = do(t, h, http.MethodGet, "/cycles/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, *queries.cycle, decode[app.CycleStatus](t, w))

	queries.err = matching.ErrCycleNotFound
	w = do(t, h, http.MethodGet, "/cycles/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "cycle_not_found", decode[errorResponse](t, w).Error)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(&stubSwipes{}, &stubQueries{})

	w := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
