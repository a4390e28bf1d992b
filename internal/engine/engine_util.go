package engine

import (
	"fmt"
	"time"
)

const DefaultCourtCount = 4

// NewDefaultState seeds a fresh room with the four default courts.
func NewDefaultState() State {
	s := NewEmptyState()
	for range DefaultCourtCount {
		_, s, _ = Apply(s, AddCourt{}, time.Time{})
	}
	return s
}

func NewEmptyState() State {
	return State{Courts: []Court{}}
}

// NewCourt builds a court in scoring mode with labels derived from id.
func NewCourt(id int) Court {
	return Court{
		ID:          id,
		Name:        fmt.Sprintf("Court %d", id),
		Players:     [2]string{playerLabel(2*id - 1), playerLabel(2 * id)},
		Mode:        ModeScoring,
		RallyPoints: []RallyPoint{},
		ScorePoints: []ScorePoint{},
	}
}

func (s State) Clone() State {
	courts := make([]Court, len(s.Courts))
	for i, c := range s.Courts {
		courts[i] = c.Clone()
	}
	return State{Courts: courts}
}

func (c Court) Clone() Court {
	c.RallyPoints = append([]RallyPoint{}, c.RallyPoints...)
	c.ScorePoints = append([]ScorePoint{}, c.ScorePoints...)
	return c
}

// Court returns the court with the given id.
func (s State) Court(id int) (Court, bool) {
	if i := s.courtIndex(id); i >= 0 {
		return s.Courts[i], true
	}
	return Court{}, false
}

func (s State) courtIndex(id int) int {
	for i := range s.Courts {
		if s.Courts[i].ID == id {
			return i
		}
	}
	return -1
}

func nextCourtID(s State) int {
	maxID := 0
	for _, c := range s.Courts {
		maxID = max(maxID, c.ID)
	}
	return maxID + 1
}

// playerLabel names the n-th default player: A..Z, then AA, AB, ...
func playerLabel(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return "Player " + string(b)
}
