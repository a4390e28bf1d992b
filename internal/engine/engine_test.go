package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func mustApply(t *testing.T, s State, cmd Command) (Event, State) {
	t.Helper()
	evt, next, err := Apply(s, cmd, t0)
	require.NoError(t, err)
	return evt, next
}

func court(t *testing.T, s State, id int) Court {
	t.Helper()
	c, ok := s.Court(id)
	require.True(t, ok, "court %d missing", id)
	return c
}

func TestNewDefaultState(t *testing.T) {
	s := NewDefaultState()
	require.Len(t, s.Courts, DefaultCourtCount)

	for i, c := range s.Courts {
		assert.Equal(t, i+1, c.ID)
		assert.Equal(t, ModeScoring, c.Mode)
		assert.Equal(t, Score{}, c.Score)
		assert.NotNil(t, c.RallyPoints)
		assert.NotNil(t, c.ScorePoints)
	}
	assert.Equal(t, [2]string{"Player A", "Player B"}, s.Courts[0].Players)
	assert.Equal(t, [2]string{"Player G", "Player H"}, s.Courts[3].Players)
	assert.Equal(t, "Court 3", s.Courts[2].Name)
}

func TestApplyScore_SumsDeltasPerPlayer(t *testing.T) {
	s := NewDefaultState()
	deltas := []struct {
		player, delta int
	}{{1, 1}, {2, 1}, {1, 3}, {1, 0}, {2, 2}, {1, 1}}

	want := Score{}
	for _, d := range deltas {
		_, s = mustApply(t, s, ApplyScore{CourtID: 2, Player: d.player, Delta: d.delta})
		if d.player == 1 {
			want.Player1 += d.delta
		} else {
			want.Player2 += d.delta
		}
	}

	assert.Equal(t, want, court(t, s, 2).Score)
	assert.Equal(t, Score{}, court(t, s, 1).Score, "other courts untouched")
}

func TestApplyScore_PositionedIncrementRecordsPoint(t *testing.T) {
	cases := []struct {
		name     string
		mark     ScoreMark
		wantType PointType
		wantErr  error
	}{
		{name: "plain", mark: PlainIncrement{}},
		{name: "nil mark is plain", mark: nil},
		{name: "default type", mark: PositionedIncrement{X: 10, Y: 10}, wantType: PointNormal},
		{name: "net", mark: PositionedIncrement{X: 1, Y: 2, Type: PointNet}, wantType: PointNet},
		{name: "out", mark: PositionedIncrement{X: 1, Y: 2, Type: PointOut}, wantType: PointOut},
		{name: "bogus type", mark: PositionedIncrement{Type: "lucky"}, wantErr: ErrInvalidPointType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewDefaultState()
			evt, next, err := Apply(s, ApplyScore{CourtID: 1, Player: 2, Delta: 1, Mark: tc.mark}, t0)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, s, next)
				return
			}
			require.NoError(t, err)

			upd := evt.(ScoreUpdated)
			assert.Equal(t, Score{Player2: 1}, upd.Score)
			if tc.wantType == "" {
				assert.Nil(t, upd.Point)
				assert.Empty(t, court(t, next, 1).ScorePoints)
				return
			}
			require.NotNil(t, upd.Point)
			assert.Equal(t, 2, upd.Point.Player)
			assert.Equal(t, tc.wantType, upd.Point.Type)
			assert.Equal(t, t0.UnixMilli(), upd.Point.Timestamp)
			assert.Equal(t, []ScorePoint{*upd.Point}, court(t, next, 1).ScorePoints)
		})
	}
}

func TestApplyScore_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		cmd     ApplyScore
		wantErr error
	}{
		{"unknown court", ApplyScore{CourtID: 99, Player: 1, Delta: 1}, ErrCourtNotFound},
		{"player zero", ApplyScore{CourtID: 1, Player: 0, Delta: 1}, ErrInvalidPlayer},
		{"player three", ApplyScore{CourtID: 1, Player: 3, Delta: 1}, ErrInvalidPlayer},
		{"negative delta", ApplyScore{CourtID: 1, Player: 1, Delta: -1}, ErrInvalidDelta},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewDefaultState()
			evt, next, err := Apply(s, tc.cmd, t0)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			assert.Nil(t, evt)
			assert.Equal(t, s, next)
		})
	}
}

func TestApplyScore_RejectsOverflow(t *testing.T) {
	s := NewDefaultState()
	_, s = mustApply(t, s, ApplyScore{CourtID: 1, Player: 1, Delta: math.MaxInt})
	_, s = mustApply(t, s, ApplyScore{CourtID: 1, Player: 2, Delta: 3})

	for _, cmd := range []ApplyScore{
		{CourtID: 1, Player: 1, Delta: 1},
		{CourtID: 1, Player: 2, Delta: math.MaxInt},
		{CourtID: 1, Player: 1, Delta: 1, Mark: PositionedIncrement{X: 1, Y: 1, Type: PointNormal}},
	} {
		evt, next, err := Apply(s, cmd, t0)
		require.ErrorIs(t, err, ErrInvalidDelta)
		assert.Nil(t, evt)
		assert.Equal(t, s, next)
	}

	c := court(t, s, 1)
	assert.Equal(t, Score{Player1: math.MaxInt, Player2: 3}, c.Score)
	assert.Empty(t, c.ScorePoints)

	// Zero is still accepted at the ceiling.
	_, s = mustApply(t, s, ApplyScore{CourtID: 1, Player: 1, Delta: 0})
	assert.Equal(t, math.MaxInt, court(t, s, 1).Score.Player1)
}

func TestAddRallyPoint_AppendsInOrderInAnyMode(t *testing.T) {
	s := NewDefaultState()
	require.Equal(t, ModeScoring, court(t, s, 1).Mode)

	_, s = mustApply(t, s, AddRallyPoint{CourtID: 1, X: 5, Y: 5})
	evt, s := mustApply(t, s, AddRallyPoint{CourtID: 1, X: 6, Y: 7})

	assert.Equal(t, RallyPointAdded{CourtID: 1, Point: RallyPoint{X: 6, Y: 7, Timestamp: t0.UnixMilli()}}, evt)
	pts := court(t, s, 1).RallyPoints
	require.Len(t, pts, 2)
	assert.Equal(t, 5.0, pts[0].X)
	assert.Equal(t, 6.0, pts[1].X)
}

func TestChangeMode_ClearsOppositeCollection(t *testing.T) {
	seeded := func(t *testing.T, mode Mode) State {
		s := NewDefaultState()
		_, s = mustApply(t, s, ChangeMode{CourtID: 1, Mode: mode})
		_, s = mustApply(t, s, ApplyScore{CourtID: 1, Player: 1, Delta: 1, Mark: PositionedIncrement{X: 1, Y: 1}})
		_, s = mustApply(t, s, AddRallyPoint{CourtID: 1, X: 2, Y: 2})
		return s
	}

	cases := []struct {
		name      string
		from, to  Mode
		wantRally int
		wantScore int
	}{
		{"scoring to rally", ModeScoring, ModeRally, 1, 0},
		{"rally to scoring", ModeRally, ModeScoring, 0, 1},
		{"scoring reselected", ModeScoring, ModeScoring, 0, 1},
		{"rally reselected", ModeRally, ModeRally, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := seeded(t, tc.from)
			evt, next := mustApply(t, s, ChangeMode{CourtID: 1, Mode: tc.to})

			assert.Equal(t, ModeChanged{CourtID: 1, Mode: tc.to}, evt)
			c := court(t, next, 1)
			assert.Equal(t, tc.to, c.Mode)
			assert.Len(t, c.RallyPoints, tc.wantRally)
			assert.Len(t, c.ScorePoints, tc.wantScore)
			assert.Equal(t, Score{Player1: 1}, c.Score, "mode switch keeps the score")
		})
	}
}

func TestChangeMode_RejectsUnknownMode(t *testing.T) {
	s := NewDefaultState()
	_, next, err := Apply(s, ChangeMode{CourtID: 1, Mode: "replay"}, t0)
	require.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, s, next)
}

func TestResetCourt_KeepsModeAndPlayers(t *testing.T) {
	s := NewDefaultState()
	_, s = mustApply(t, s, RenamePlayer{CourtID: 3, PlayerIndex: 0, Name: "Lin"})
	_, s = mustApply(t, s, ChangeMode{CourtID: 3, Mode: ModeRally})
	_, s = mustApply(t, s, ApplyScore{CourtID: 3, Player: 1, Delta: 4, Mark: PositionedIncrement{X: 3, Y: 3}})
	_, s = mustApply(t, s, AddRallyPoint{CourtID: 3, X: 1, Y: 1})
	before := court(t, s, 3)

	evt, next := mustApply(t, s, ResetCourt{CourtID: 3})

	assert.Equal(t, CourtReset{CourtID: 3}, evt)
	c := court(t, next, 3)
	assert.Equal(t, Score{}, c.Score)
	assert.Empty(t, c.RallyPoints)
	assert.Empty(t, c.ScorePoints)
	assert.NotNil(t, c.RallyPoints)
	assert.NotNil(t, c.ScorePoints)
	assert.Equal(t, before.Mode, c.Mode)
	assert.Equal(t, before.Players, c.Players)
}

func TestAddCourt_NextID(t *testing.T) {
	cases := []struct {
		name   string
		setup  State
		wantID int
	}{
		{name: "empty room", setup: NewEmptyState(), wantID: 1},
		{name: "default room", setup: NewDefaultState(), wantID: 5},
		{name: "gap uses max", setup: State{Courts: []Court{NewCourt(2), NewCourt(7)}}, wantID: 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt, next := mustApply(t, tc.setup, AddCourt{})
			added := evt.(CourtAdded).Court
			assert.Equal(t, tc.wantID, added.ID)
			assert.Equal(t, ModeScoring, added.Mode)
			require.Len(t, next.Courts, len(tc.setup.Courts)+1)
			assert.Equal(t, tc.wantID, next.Courts[len(next.Courts)-1].ID, "appended in creation order")
		})
	}
}

func TestAddCourt_DefaultLabels(t *testing.T) {
	_, s := mustApply(t, NewDefaultState(), AddCourt{})
	c := court(t, s, 5)
	assert.Equal(t, "Court 5", c.Name)
	assert.Equal(t, [2]string{"Player I", "Player J"}, c.Players)

	assert.Equal(t, "Player Z", playerLabel(26))
	assert.Equal(t, "Player AA", playerLabel(27))
	assert.Equal(t, "Player AB", playerLabel(28))
}

func TestRenamePlayer(t *testing.T) {
	cases := []struct {
		name     string
		cmd      RenamePlayer
		wantName string
		wantErr  error
	}{
		{name: "trims", cmd: RenamePlayer{CourtID: 1, PlayerIndex: 1, Name: "  Momota  "}, wantName: "Momota"},
		{name: "normalizes", cmd: RenamePlayer{CourtID: 1, PlayerIndex: 0, Name: "Le\u0301a"}, wantName: "L\u00e9a"},
		{name: "blank", cmd: RenamePlayer{CourtID: 1, PlayerIndex: 0, Name: " \t "}, wantErr: ErrInvalidName},
		{name: "bad index", cmd: RenamePlayer{CourtID: 1, PlayerIndex: 2, Name: "X"}, wantErr: ErrInvalidPlayer},
		{name: "unknown court", cmd: RenamePlayer{CourtID: 42, PlayerIndex: 0, Name: "X"}, wantErr: ErrCourtNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewDefaultState()
			evt, next, err := Apply(s, tc.cmd, t0)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, s, next)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PlayerNameUpdated{CourtID: 1, PlayerIndex: tc.cmd.PlayerIndex, Name: tc.wantName}, evt)
			assert.Equal(t, tc.wantName, court(t, next, 1).Players[tc.cmd.PlayerIndex])
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	s := NewDefaultState()
	_, s = mustApply(t, s, AddRallyPoint{CourtID: 1, X: 1, Y: 1})
	snapshot := s.Clone()

	_, _ = mustApply(t, s, AddRallyPoint{CourtID: 1, X: 2, Y: 2})
	_, _ = mustApply(t, s, ApplyScore{CourtID: 1, Player: 1, Delta: 1, Mark: PositionedIncrement{}})
	_, _ = mustApply(t, s, ResetCourt{CourtID: 1})
	_, _ = mustApply(t, s, AddCourt{})

	assert.Equal(t, snapshot, s)
}

func TestScenario_ScoreRallyReset(t *testing.T) {
	s := NewDefaultState()
	c := court(t, s, 1)
	require.Equal(t, Score{}, c.Score)
	require.Equal(t, ModeScoring, c.Mode)

	evt, s := mustApply(t, s, ApplyScore{CourtID: 1, Player: 1, Delta: 1,
		Mark: PositionedIncrement{X: 10, Y: 10, Type: PointNormal}})
	upd := evt.(ScoreUpdated)
	assert.Equal(t, Score{Player1: 1}, upd.Score)
	require.NotNil(t, upd.Point)
	assert.Equal(t, 1, upd.Point.Player)
	assert.Equal(t, PointNormal, upd.Point.Type)

	_, s = mustApply(t, s, ChangeMode{CourtID: 1, Mode: ModeRally})
	assert.Empty(t, court(t, s, 1).ScorePoints)

	_, s = mustApply(t, s, AddRallyPoint{CourtID: 1, X: 5, Y: 5})
	_, s = mustApply(t, s, AddRallyPoint{CourtID: 1, X: 5, Y: 5})
	assert.Len(t, court(t, s, 1).RallyPoints, 2)

	_, s = mustApply(t, s, ResetCourt{CourtID: 1})
	c = court(t, s, 1)
	assert.Equal(t, Score{}, c.Score)
	assert.Empty(t, c.RallyPoints)
	assert.Empty(t, c.ScorePoints)
}

type bogusCommand struct{}

func (bogusCommand) isCommand() {}

func TestApply_UnsupportedCommand(t *testing.T) {
	_, _, err := Apply(NewDefaultState(), bogusCommand{}, t0)
	require.ErrorIs(t, err, ErrUnsupportedCommand)
}
