package app

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"sync"
	"time"

	"mentor_match/internal/domain/matching"
)

// fakeStore is an in-memory ParticipantRepository + CycleRepository for unit tests.
// WithClaimedEvent snapshots state and restores it when the callback fails.
type fakeStore struct {
	mu           sync.Mutex
	cycles       map[string]*matching.Cycle
	participants map[string]*matching.Participant
	order        []string // participant enrollment order
	swipes       []matching.Swipe
	events       map[string]*matching.BoundaryEvent

	failSaveFor    string // SaveMatches fails for this participant ID
	failListDue    error
	claimedByOther map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cycles:         make(map[string]*matching.Cycle),
		participants:   make(map[string]*matching.Participant),
		events:         make(map[string]*matching.BoundaryEvent),
		claimedByOther: make(map[string]bool),
	}
}

func (f *fakeStore) addCycle(c *matching.Cycle) *matching.Cycle {
	f.cycles[c.ID] = c
	return c
}

func (f *fakeStore) addParticipant(id, cycleID string, role matching.Role, slots int) *matching.Participant {
	p := &matching.Participant{ID: id, CycleID: cycleID, DisplayName: id, Role: role, MaxSlots: slots}
	f.participants[id] = p
	f.order = append(f.order, id)
	return p
}

func (f *fakeStore) addEvent(id, cycleID string, start, end time.Time) *matching.BoundaryEvent {
	ev := &matching.BoundaryEvent{ID: id, CycleID: cycleID, StartTime: start, EndTime: end}
	f.events[id] = ev
	return ev
}

func (f *fakeStore) desire(participantID string, round int, counterparts ...string) {
	for _, c := range counterparts {
		f.swipes = append(f.swipes, matching.Swipe{
			ParticipantID: participantID,
			CounterpartID: c,
			CycleID:       f.participants[participantID].CycleID,
			Round:         round,
			Direction:     matching.DirectionDesire,
		})
	}
}

func copyParticipant(p *matching.Participant) *matching.Participant {
	cp := *p
	cp.Matches = slices.Clone(p.Matches)
	cp.Rounds = nil
	return &cp
}

// --- ParticipantRepository ---

func (f *fakeStore) Create(ctx context.Context, p *matching.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants {
		if p.TelegramID.Valid && existing.CycleID == p.CycleID && existing.TelegramID == p.TelegramID {
			return matching.ErrDuplicateTelegramID
		}
	}
	f.participants[p.ID] = copyParticipant(p)
	f.order = append(f.order, p.ID)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*matching.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return nil, matching.ErrParticipantNotFound
	}
	return copyParticipant(p), nil
}

func (f *fakeStore) GetByTelegramID(ctx context.Context, telegramID int64) (*matching.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		p := f.participants[f.order[i]]
		if p.TelegramID.Valid && p.TelegramID.Int64 == telegramID {
			return copyParticipant(p), nil
		}
	}
	return nil, matching.ErrParticipantNotFound
}

func (f *fakeStore) ListByCycleAndRole(ctx context.Context, cycleID string, role matching.Role) ([]*matching.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listLocked(cycleID, role), nil
}

func (f *fakeStore) listLocked(cycleID string, role matching.Role) []*matching.Participant {
	var out []*matching.Participant
	for _, id := range f.order {
		p := f.participants[id]
		if p.CycleID == cycleID && p.Role == role {
			out = append(out, copyParticipant(p))
		}
	}
	return out
}

func (f *fakeStore) RoundRecord(ctx context.Context, participantID string, round int) (matching.RoundRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roundRecordLocked(participantID, round), nil
}

func (f *fakeStore) roundRecordLocked(participantID string, round int) matching.RoundRecord {
	rec := matching.RoundRecord{Round: round}
	for _, s := range f.swipes {
		if s.ParticipantID != participantID || s.Round != round {
			continue
		}
		rec.Add(s.Direction, s.CounterpartID)
	}
	return rec
}

func (f *fakeStore) RecordSwipe(ctx context.Context, s *matching.Swipe, budget int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.roundRecordLocked(s.ParticipantID, s.Round)
	if rec.Contains(s.CounterpartID) {
		return matching.ErrDuplicateSwipe
	}
	if rec.Size() >= budget {
		return matching.ErrBudgetExceeded
	}
	s.CreatedAt = time.Now()
	f.swipes = append(f.swipes, *s)
	return nil
}

func (f *fakeStore) SetLastShown(ctx context.Context, participantID string, counterpartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[participantID]
	if !ok {
		return matching.ErrParticipantNotFound
	}
	p.LastShownID = sql.NullString{String: counterpartID, Valid: counterpartID != ""}
	return nil
}

// --- CycleRepository ---

func (f *fakeStore) CreateCycle(ctx context.Context, c *matching.Cycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.cycles[c.ID] = &cp
	return nil
}

func (f *fakeStore) GetCycle(ctx context.Context, id string) (*matching.Cycle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cycles[id]
	if !ok {
		return nil, matching.ErrCycleNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) CreateEvent(ctx context.Context, e *matching.BoundaryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.events[e.ID] = &cp
	return nil
}

func (f *fakeStore) ListDueEvents(ctx context.Context, now time.Time) ([]*matching.BoundaryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListDue != nil {
		return nil, f.failListDue
	}
	var due []*matching.BoundaryEvent
	for _, ev := range f.events {
		if !ev.Processed && !ev.EndTime.After(now) {
			cp := *ev
			due = append(due, &cp)
		}
	}
	slices.SortFunc(due, func(a, b *matching.BoundaryEvent) int { return a.EndTime.Compare(b.EndTime) })
	return due, nil
}

type fakeSnapshot struct {
	cycles       map[string]matching.Cycle
	participants map[string]matching.Participant
	events       map[string]matching.BoundaryEvent
}

func (f *fakeStore) snapshot() fakeSnapshot {
	s := fakeSnapshot{
		cycles:       make(map[string]matching.Cycle),
		participants: make(map[string]matching.Participant),
		events:       make(map[string]matching.BoundaryEvent),
	}
	for id, c := range f.cycles {
		cp := *c
		cp.Unmatched = slices.Clone(c.Unmatched)
		s.cycles[id] = cp
	}
	for id, p := range f.participants {
		s.participants[id] = *copyParticipant(p)
	}
	for id, e := range f.events {
		s.events[id] = *e
	}
	return s
}

func (f *fakeStore) restore(s fakeSnapshot) {
	for id, c := range s.cycles {
		cp := c
		f.cycles[id] = &cp
	}
	for id, p := range s.participants {
		cp := p
		f.participants[id] = &cp
	}
	for id, e := range s.events {
		cp := e
		f.events[id] = &cp
	}
}

func (f *fakeStore) WithClaimedEvent(ctx context.Context, eventID string, fn func(ctx context.Context, ev *matching.BoundaryEvent, tx matching.CycleTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ev, ok := f.events[eventID]
	if !ok || ev.Processed || f.claimedByOther[eventID] {
		return matching.ErrEventAlreadyClaimed
	}

	snap := f.snapshot()
	cp := *ev
	if err := fn(ctx, &cp, &fakeTx{f: f}); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

// fakeTx runs with fakeStore.mu already held.
type fakeTx struct {
	f *fakeStore
}

func (t *fakeTx) GetCycle(ctx context.Context, id string) (*matching.Cycle, error) {
	c, ok := t.f.cycles[id]
	if !ok {
		return nil, matching.ErrCycleNotFound
	}
	cp := *c
	return &cp, nil
}

func (t *fakeTx) SetMatchingActive(ctx context.Context, cycleID string, active bool) error {
	t.f.cycles[cycleID].IsMatching = active
	return nil
}

func (t *fakeTx) AdvanceRound(ctx context.Context, cycleID string) error {
	t.f.cycles[cycleID].CurrentRound++
	for _, p := range t.f.participants {
		if p.CycleID == cycleID {
			p.LastShownID = sql.NullString{}
		}
	}
	return nil
}

func (t *fakeTx) LoadParticipants(ctx context.Context, cycleID string, role matching.Role) ([]*matching.Participant, error) {
	cycle := t.f.cycles[cycleID]
	out := t.f.listLocked(cycleID, role)
	for _, p := range out {
		for r := 0; r < cycle.Rounds(); r++ {
			p.Rounds = append(p.Rounds, t.f.roundRecordLocked(p.ID, r))
		}
	}
	return out, nil
}

func (t *fakeTx) SaveMatches(ctx context.Context, participantID string, matches []string) error {
	if participantID == t.f.failSaveFor {
		return errors.New("write failed")
	}
	t.f.participants[participantID].Matches = slices.Clone(matches)
	return nil
}

func (t *fakeTx) CloseCycle(ctx context.Context, cycleID string, unmatched []string, at time.Time) error {
	c := t.f.cycles[cycleID]
	c.Unmatched = slices.Clone(unmatched)
	c.FinalizedAt = sql.NullTime{Time: at, Valid: true}
	return nil
}

func (t *fakeTx) MarkEventProcessed(ctx context.Context, eventID string, at time.Time) error {
	ev := t.f.events[eventID]
	ev.Processed = true
	ev.ProcessedAt = sql.NullTime{Time: at, Valid: true}
	return nil
}
