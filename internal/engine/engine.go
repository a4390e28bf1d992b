package engine

import (
	"errors"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var ErrCourtNotFound = errors.New("court not found")
var ErrInvalidName = errors.New("invalid player name")
var ErrInvalidPlayer = errors.New("invalid player")
var ErrInvalidDelta = errors.New("invalid score delta")
var ErrInvalidMode = errors.New("invalid mode")
var ErrInvalidPointType = errors.New("invalid point type")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Mode string

const (
	ModeScoring Mode = "scoring"
	ModeRally   Mode = "rally"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeScoring, ModeRally:
		return Mode(s), nil
	default:
		return "", ErrInvalidMode
	}
}

type PointType string

const (
	PointNormal PointType = "normal"
	PointNet    PointType = "net"
	PointOut    PointType = "out"
)

// ParsePointType maps the empty string to PointNormal.
func ParsePointType(s string) (PointType, error) {
	switch PointType(s) {
	case "":
		return PointNormal, nil
	case PointNormal, PointNet, PointOut:
		return PointType(s), nil
	default:
		return "", ErrInvalidPointType
	}
}

type Score struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

type RallyPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

type ScorePoint struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Player    int       `json:"player"`
	Timestamp int64     `json:"timestamp"`
	Type      PointType `json:"type"`
}

type Court struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Players     [2]string    `json:"players"`
	Score       Score        `json:"score"`
	Mode        Mode         `json:"mode"`
	RallyPoints []RallyPoint `json:"rallyPoints"`
	ScorePoints []ScorePoint `json:"scorePoints"`
}

// State is the court list of one room, in creation order.
// Apply never mutates a State it was given, so values can be shared freely.
type State struct {
	Courts []Court `json:"courts"`
}

type Command interface{ isCommand() }

// ScoreMark says whether a score increment also records where the point ended.
type ScoreMark interface{ isScoreMark() }

type PlainIncrement struct{}

type PositionedIncrement struct {
	X    float64
	Y    float64
	Type PointType
}

func (PlainIncrement) isScoreMark()      {}
func (PositionedIncrement) isScoreMark() {}

type ApplyScore struct {
	CourtID int
	Player  int // 1 or 2
	Delta   int
	Mark    ScoreMark
}

type AddRallyPoint struct {
	CourtID int
	X       float64
	Y       float64
}

type ChangeMode struct {
	CourtID int
	Mode    Mode
}

type ResetCourt struct {
	CourtID int
}

type AddCourt struct{}

type RenamePlayer struct {
	CourtID     int
	PlayerIndex int // 0 or 1
	Name        string
}

func (ApplyScore) isCommand()    {}
func (AddRallyPoint) isCommand() {}
func (ChangeMode) isCommand()    {}
func (ResetCourt) isCommand()    {}
func (AddCourt) isCommand()      {}
func (RenamePlayer) isCommand()  {}

type Event interface{ isEvent() }

type ScoreUpdated struct {
	CourtID int
	Score   Score
	Point   *ScorePoint // nil for a plain increment
}

type RallyPointAdded struct {
	CourtID int
	Point   RallyPoint
}

type ModeChanged struct {
	CourtID int
	Mode    Mode
}

type CourtReset struct {
	CourtID int
}

type CourtAdded struct {
	Court Court
}

type PlayerNameUpdated struct {
	CourtID     int
	PlayerIndex int
	Name        string
}

func (ScoreUpdated) isEvent()      {}
func (RallyPointAdded) isEvent()   {}
func (ModeChanged) isEvent()       {}
func (CourtReset) isEvent()        {}
func (CourtAdded) isEvent()        {}
func (PlayerNameUpdated) isEvent() {}

// Apply runs cmd against s. On error the returned state is s itself.
func Apply(s State, cmd Command, now time.Time) (Event, State, error) {
	if c, ok := cmd.(AddCourt); ok {
		return applyAddCourt(s, c)
	}

	courtID, ok := targetCourt(cmd)
	if !ok {
		return nil, s, ErrUnsupportedCommand
	}
	idx := s.courtIndex(courtID)
	if idx < 0 {
		return nil, s, ErrCourtNotFound
	}

	newState := s.Clone()
	court := &newState.Courts[idx]
	ts := now.UnixMilli()

	switch c := cmd.(type) {
	case ApplyScore:
		if c.Delta < 0 {
			return nil, s, ErrInvalidDelta
		}
		var point *ScorePoint
		switch m := c.Mark.(type) {
		case nil, PlainIncrement:
		case PositionedIncrement:
			pt, err := ParsePointType(string(m.Type))
			if err != nil {
				return nil, s, err
			}
			point = &ScorePoint{X: m.X, Y: m.Y, Player: c.Player, Timestamp: ts, Type: pt}
		default:
			return nil, s, ErrUnsupportedCommand
		}

		var total *int
		switch c.Player {
		case 1:
			total = &court.Score.Player1
		case 2:
			total = &court.Score.Player2
		default:
			return nil, s, ErrInvalidPlayer
		}
		if c.Delta > math.MaxInt-*total {
			return nil, s, ErrInvalidDelta
		}
		*total += c.Delta
		if point != nil {
			court.ScorePoints = append(court.ScorePoints, *point)
		}
		return ScoreUpdated{CourtID: c.CourtID, Score: court.Score, Point: point}, newState, nil

	case AddRallyPoint:
		// Accepted in either mode; gating rally input is up to the client.
		point := RallyPoint{X: c.X, Y: c.Y, Timestamp: ts}
		court.RallyPoints = append(court.RallyPoints, point)
		return RallyPointAdded{CourtID: c.CourtID, Point: point}, newState, nil

	case ChangeMode:
		mode, err := ParseMode(string(c.Mode))
		if err != nil {
			return nil, s, err
		}
		// The opposite collection is cleared even if mode is unchanged.
		court.Mode = mode
		if mode == ModeScoring {
			court.RallyPoints = []RallyPoint{}
		} else {
			court.ScorePoints = []ScorePoint{}
		}
		return ModeChanged{CourtID: c.CourtID, Mode: mode}, newState, nil

	case ResetCourt:
		court.Score = Score{}
		court.RallyPoints = []RallyPoint{}
		court.ScorePoints = []ScorePoint{}
		return CourtReset{CourtID: c.CourtID}, newState, nil

	case RenamePlayer:
		if c.PlayerIndex != 0 && c.PlayerIndex != 1 {
			return nil, s, ErrInvalidPlayer
		}
		name := strings.TrimSpace(norm.NFC.String(c.Name))
		if name == "" {
			return nil, s, ErrInvalidName
		}
		court.Players[c.PlayerIndex] = name
		return PlayerNameUpdated{CourtID: c.CourtID, PlayerIndex: c.PlayerIndex, Name: name}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyAddCourt(s State, _ AddCourt) (Event, State, error) {
	court := NewCourt(nextCourtID(s))
	newState := s.Clone()
	newState.Courts = append(newState.Courts, court)
	return CourtAdded{Court: court.Clone()}, newState, nil
}

func targetCourt(cmd Command) (int, bool) {
	switch c := cmd.(type) {
	case ApplyScore:
		return c.CourtID, true
	case AddRallyPoint:
		return c.CourtID, true
	case ChangeMode:
		return c.CourtID, true
	case ResetCourt:
		return c.CourtID, true
	case RenamePlayer:
		return c.CourtID, true
	default:
		return 0, false
	}
}
