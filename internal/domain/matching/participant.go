// internal/domain/matching/participant.go
package matching

import (
	"database/sql"
	"time"
)

// Role is the side of the market a participant sits on.
type Role string

const (
	RoleSponsor   Role = "SPONSOR"   // capacity-bounded side (mentor)
	RoleApplicant Role = "APPLICANT" // single-slot side (mentee)
)

// Opposite returns the role a participant of this role ranks and swipes on.
func (r Role) Opposite() Role {
	if r == RoleSponsor {
		return RoleApplicant
	}
	return RoleSponsor
}

func (r Role) Valid() bool {
	return r == RoleSponsor || r == RoleApplicant
}

// Direction is the outcome of a single swipe.
type Direction string

const (
	DirectionReject Direction = "REJECT" // left swipe
	DirectionDesire Direction = "DESIRE" // right swipe
)

func (d Direction) Valid() bool {
	return d == DirectionReject || d == DirectionDesire
}

// Participant is a sponsor or applicant enrolled in exactly one matching cycle.
// Corresponds to the 'participants' table.
type Participant struct {
	ID          string
	CycleID     string
	TelegramID  sql.NullInt64 // Set when the participant uses the bot
	DisplayName string
	Role        Role
	MaxSlots    int           // Meaningful for sponsors only
	Rounds      []RoundRecord // Indexed by round; loaded only for finalization
	Matches     []string      // Counterpart IDs written by finalization
	LastShownID sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Capacity is the maximum size of the participant's match set.
func (p *Participant) Capacity() int {
	if p.Role == RoleApplicant || p.MaxSlots < 1 {
		return 1
	}
	return p.MaxSlots
}

// RoundRecord is the swipe history of one participant in one round.
// Entries keep the order in which they were recorded.
type RoundRecord struct {
	Round    int
	Rejected []string
	Desired  []string
}

// Contains reports whether the counterpart was swiped on in either direction.
func (r RoundRecord) Contains(counterpartID string) bool {
	for _, id := range r.Rejected {
		if id == counterpartID {
			return true
		}
	}
	for _, id := range r.Desired {
		if id == counterpartID {
			return true
		}
	}
	return false
}

// Add appends a counterpart to the list for the swipe direction.
func (r *RoundRecord) Add(dir Direction, counterpartID string) {
	if dir == DirectionDesire {
		r.Desired = append(r.Desired, counterpartID)
		return
	}
	r.Rejected = append(r.Rejected, counterpartID)
}

func (r RoundRecord) Size() int {
	return len(r.Rejected) + len(r.Desired)
}

// Swipe is a single accepted write into a round record.
// Corresponds to a row of the 'swipes' table.
type Swipe struct {
	ParticipantID string
	CounterpartID string
	CycleID       string
	Round         int
	Direction     Direction
	CreatedAt     time.Time
}
