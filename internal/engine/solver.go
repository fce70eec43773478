package engine

import (
	"math"
	"slices"
)

// Sponsor is a capacity-bounded participant as seen by the solver.
type Sponsor struct {
	ID          string
	MaxSlots    int
	Preferences []string // applicant IDs, most preferred first
}

// Applicant is a single-slot participant as seen by the solver.
type Applicant struct {
	ID          string
	Preferences []string // sponsor IDs, most preferred first
}

// Result is the outcome of one solver run.
type Result struct {
	Assignments         map[string][]string // sponsor ID -> held applicants, sponsor's order
	Matches             map[string]string   // applicant ID -> sponsor ID
	UnmatchedApplicants []string
	UnmatchedSponsors   []string
	Passes              int // passes that made at least one proposal
	Proposals           int
}

// Proposal describes a single step of the solver. Used for tracing.
type Proposal struct {
	Pass        int
	ApplicantID string
	SponsorID   string
	Cursor      int  // applicant cursor after the proposal
	Dangling    bool // sponsor not among the candidates
	Evicted     []string
}

type applicantStatus int

const (
	statusUnmatched applicantStatus = iota
	statusTentative
	statusEvicted // behaves as unmatched; cursor already past the evicting sponsor
)

type applicantState struct {
	Applicant
	cursor  int
	status  applicantStatus
	sponsor int
}

func (a *applicantState) canPropose() bool {
	return a.status != statusTentative && a.cursor < len(a.Preferences)
}

type sponsorState struct {
	Sponsor
	rank    map[string]int
	holders []int
}

func (s *sponsorState) capacity() int {
	if s.MaxSlots < 1 {
		return 1
	}
	return s.MaxSlots
}

func (s *sponsorState) rankOf(applicantID string) int {
	if r, ok := s.rank[applicantID]; ok {
		return r
	}
	return math.MaxInt
}

// Solver runs applicant-proposing deferred acceptance with capacity-bounded sponsors.
type Solver struct {
	// OnProposal, when set, observes every proposal in order.
	OnProposal func(Proposal)
}

// Solve is a convenience wrapper around a zero Solver.
func Solve(sponsors []Sponsor, applicants []Applicant) Result {
	var s Solver
	return s.Solve(sponsors, applicants)
}

// Solve matches applicants to sponsors. Each pass lets every free applicant with preferences
// left propose to its next sponsor; the sponsor keeps its best holders up to capacity and
// evicts the rest. The run halts after the first pass without proposals.
func (sv *Solver) Solve(sponsors []Sponsor, applicants []Applicant) Result {
	sps := make([]sponsorState, 0, len(sponsors))
	index := make(map[string]int, len(sponsors))
	for _, s := range sponsors {
		if _, dup := index[s.ID]; dup {
			continue
		}
		st := sponsorState{Sponsor: s, rank: make(map[string]int, len(s.Preferences))}
		for i, id := range s.Preferences {
			if _, seen := st.rank[id]; !seen {
				st.rank[id] = i
			}
		}
		index[s.ID] = len(sps)
		sps = append(sps, st)
	}

	apps := make([]applicantState, len(applicants))
	for i, a := range applicants {
		apps[i] = applicantState{Applicant: a, sponsor: -1}
	}

	res := Result{
		Assignments: make(map[string][]string, len(sps)),
		Matches:     make(map[string]string),
	}

	for pass := 1; ; pass++ {
		proposals := 0
		for i := range apps {
			a := &apps[i]
			if !a.canPropose() {
				continue
			}
			sponsorID := a.Preferences[a.cursor]
			a.cursor++
			proposals++

			si, ok := index[sponsorID]
			if !ok {
				sv.trace(Proposal{Pass: pass, ApplicantID: a.ID, SponsorID: sponsorID, Cursor: a.cursor, Dangling: true})
				continue
			}
			s := &sps[si]
			s.holders = append(s.holders, i)
			a.status = statusTentative
			a.sponsor = si
			evicted := settle(s, apps)
			sv.trace(Proposal{Pass: pass, ApplicantID: a.ID, SponsorID: sponsorID, Cursor: a.cursor, Evicted: evicted})
		}
		res.Proposals += proposals
		if proposals == 0 {
			break
		}
		res.Passes = pass
	}

	for _, s := range sps {
		held := make([]string, len(s.holders))
		for j, ai := range s.holders {
			held[j] = apps[ai].ID
			res.Matches[apps[ai].ID] = s.ID
		}
		res.Assignments[s.ID] = held
		if len(s.holders) < s.capacity() {
			res.UnmatchedSponsors = append(res.UnmatchedSponsors, s.ID)
		}
	}
	for _, a := range apps {
		if a.status != statusTentative {
			res.UnmatchedApplicants = append(res.UnmatchedApplicants, a.ID)
		}
	}
	return res
}

// settle orders a sponsor's holders by its own preference and evicts the overflow.
func settle(s *sponsorState, apps []applicantState) []string {
	slices.SortStableFunc(s.holders, func(x, y int) int {
		rx, ry := s.rankOf(apps[x].ID), s.rankOf(apps[y].ID)
		switch {
		case rx < ry:
			return -1
		case rx > ry:
			return 1
		}
		return 0
	})

	var evicted []string
	for len(s.holders) > s.capacity() {
		last := s.holders[len(s.holders)-1]
		s.holders = s.holders[:len(s.holders)-1]
		apps[last].status = statusEvicted
		apps[last].sponsor = -1
		evicted = append(evicted, apps[last].ID)
	}
	return evicted
}

func (sv *Solver) trace(p Proposal) {
	if sv.OnProposal != nil {
		sv.OnProposal(p)
	}
}
