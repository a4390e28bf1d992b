package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/courtside/internal/engine"
	"github.com/DoyleJ11/courtside/internal/room"
)

// Client -> server message types.
const (
	TypeJoinRoom         = "join-room"
	TypeUpdateScore      = "update-score"
	TypeAddRallyPoint    = "add-rally-point"
	TypeChangeMode       = "change-mode"
	TypeResetCourt       = "reset-court"
	TypeAddCourt         = "add-court"
	TypeUpdatePlayerName = "update-player-name"
)

// Server -> client message types.
const (
	TypeRoomJoined        = "room-joined"
	TypeUserJoined        = "user-joined"
	TypeScoreUpdated      = "score-updated"
	TypeRallyPointAdded   = "rally-point-added"
	TypeModeChanged       = "mode-changed"
	TypeCourtReset        = "court-reset"
	TypeCourtAdded        = "court-added"
	TypePlayerNameUpdated = "player-name-updated"
	TypeRoomError         = "room-error"
)

// maxPoints caps a single update-score; clients only ever send 1.
const maxPoints = 100

var errUnknownType = errors.New("unknown message type")
var errBadPayload = errors.New("invalid payload")

// Envelope is the frame format in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ClientMessage struct {
	Type    string
	RoomKey string
	Cmd     engine.Command // nil for join-room
}

type joinRoomPayload struct {
	RoomKey string `json:"roomKey"`
}

type updateScorePayload struct {
	RoomKey string   `json:"roomKey"`
	CourtID int      `json:"courtId"`
	Player  int      `json:"player"`
	Points  *int     `json:"points"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Type    string   `json:"type"`
}

type addRallyPointPayload struct {
	RoomKey string   `json:"roomKey"`
	CourtID int      `json:"courtId"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	// Timestamp is accepted but the server stamps the point itself.
	Timestamp int64 `json:"timestamp"`
}

type changeModePayload struct {
	RoomKey string `json:"roomKey"`
	CourtID int    `json:"courtId"`
	Mode    string `json:"mode"`
}

type courtPayload struct {
	RoomKey string `json:"roomKey"`
	CourtID int    `json:"courtId"`
}

type updatePlayerNamePayload struct {
	RoomKey     string `json:"roomKey"`
	CourtID     int    `json:"courtId"`
	PlayerIndex int    `json:"playerIndex"`
	Name        string `json:"name"`
}

func decodeClientMessage(data []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", errBadPayload, err)
	}

	m := ClientMessage{Type: env.Type}
	switch env.Type {
	case TypeJoinRoom:
		// The key may arrive bare or wrapped in an object.
		if err := json.Unmarshal(env.Data, &m.RoomKey); err != nil {
			var p joinRoomPayload
			if err := unmarshal(env.Data, &p); err != nil {
				return m, err
			}
			m.RoomKey = p.RoomKey
		}
		return m, nil

	case TypeUpdateScore:
		var p updateScorePayload
		if err := unmarshal(env.Data, &p); err != nil {
			return m, err
		}
		if p.Player != 1 && p.Player != 2 {
			return m, fmt.Errorf("%w: player must be 1 or 2", errBadPayload)
		}
		points := 1
		if p.Points != nil {
			points = *p.Points
		}
		if points < 0 || points > maxPoints {
			return m, fmt.Errorf("%w: points must be between 0 and %d", errBadPayload, maxPoints)
		}
		var mark engine.ScoreMark = engine.PlainIncrement{}
		switch {
		case p.X != nil && p.Y != nil:
			pt, err := engine.ParsePointType(p.Type)
			if err != nil {
				return m, fmt.Errorf("%w: %v", errBadPayload, err)
			}
			mark = engine.PositionedIncrement{X: *p.X, Y: *p.Y, Type: pt}
		case p.X != nil || p.Y != nil:
			return m, fmt.Errorf("%w: x and y go together", errBadPayload)
		}
		m.RoomKey = p.RoomKey
		m.Cmd = engine.ApplyScore{CourtID: p.CourtID, Player: p.Player, Delta: points, Mark: mark}
		return m, nil

	case TypeAddRallyPoint:
		var p addRallyPointPayload
		if err := unmarshal(env.Data, &p); err != nil {
			return m, err
		}
		if p.X == nil || p.Y == nil {
			return m, fmt.Errorf("%w: x and y are required", errBadPayload)
		}
		m.RoomKey = p.RoomKey
		m.Cmd = engine.AddRallyPoint{CourtID: p.CourtID, X: *p.X, Y: *p.Y}
		return m, nil

	case TypeChangeMode:
		var p changeModePayload
		if err := unmarshal(env.Data, &p); err != nil {
			return m, err
		}
		mode, err := engine.ParseMode(p.Mode)
		if err != nil {
			return m, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		m.RoomKey = p.RoomKey
		m.Cmd = engine.ChangeMode{CourtID: p.CourtID, Mode: mode}
		return m, nil

	case TypeResetCourt:
		var p courtPayload
		if err := unmarshal(env.Data, &p); err != nil {
			return m, err
		}
		m.RoomKey = p.RoomKey
		m.Cmd = engine.ResetCourt{CourtID: p.CourtID}
		return m, nil

	case TypeAddCourt:
		var p courtPayload
		if len(env.Data) > 0 {
			if err := unmarshal(env.Data, &p); err != nil {
				return m, err
			}
		}
		m.RoomKey = p.RoomKey
		m.Cmd = engine.AddCourt{}
		return m, nil

	case TypeUpdatePlayerName:
		var p updatePlayerNamePayload
		if err := unmarshal(env.Data, &p); err != nil {
			return m, err
		}
		if p.PlayerIndex != 0 && p.PlayerIndex != 1 {
			return m, fmt.Errorf("%w: playerIndex must be 0 or 1", errBadPayload)
		}
		m.RoomKey = p.RoomKey
		m.Cmd = engine.RenamePlayer{CourtID: p.CourtID, PlayerIndex: p.PlayerIndex, Name: p.Name}
		return m, nil

	default:
		return m, fmt.Errorf("%w: %q", errUnknownType, env.Type)
	}
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", errBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

type userJoinedData struct {
	UserID string `json:"userId"`
}

type scoreUpdatedData struct {
	CourtID    int                `json:"courtId"`
	Score      engine.Score       `json:"score"`
	ScorePoint *engine.ScorePoint `json:"scorePoint,omitempty"`
}

type rallyPointAddedData struct {
	CourtID int               `json:"courtId"`
	Point   engine.RallyPoint `json:"point"`
}

type modeChangedData struct {
	CourtID int         `json:"courtId"`
	Mode    engine.Mode `json:"mode"`
}

type courtResetData struct {
	CourtID int `json:"courtId"`
}

type courtAddedData struct {
	Court engine.Court `json:"court"`
}

type playerNameUpdatedData struct {
	CourtID     int    `json:"courtId"`
	PlayerIndex int    `json:"playerIndex"`
	Name        string `json:"name"`
}

type roomErrorData struct {
	Message string `json:"message"`
}

type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func encodeRoomMessage(m room.Message) ([]byte, error) {
	switch msg := m.(type) {
	case room.Joined:
		return json.Marshal(serverMessage{Type: TypeRoomJoined, Data: msg.Snapshot})
	case room.PeerJoined:
		return json.Marshal(serverMessage{Type: TypeUserJoined, Data: userJoinedData{UserID: msg.UserID}})
	case room.Delta:
		return encodeEvent(msg.Event)
	default:
		return nil, fmt.Errorf("encode %T: unsupported room message", m)
	}
}

func encodeEvent(evt engine.Event) ([]byte, error) {
	var out serverMessage
	switch e := evt.(type) {
	case engine.ScoreUpdated:
		out = serverMessage{Type: TypeScoreUpdated, Data: scoreUpdatedData{CourtID: e.CourtID, Score: e.Score, ScorePoint: e.Point}}
	case engine.RallyPointAdded:
		out = serverMessage{Type: TypeRallyPointAdded, Data: rallyPointAddedData{CourtID: e.CourtID, Point: e.Point}}
	case engine.ModeChanged:
		out = serverMessage{Type: TypeModeChanged, Data: modeChangedData{CourtID: e.CourtID, Mode: e.Mode}}
	case engine.CourtReset:
		out = serverMessage{Type: TypeCourtReset, Data: courtResetData{CourtID: e.CourtID}}
	case engine.CourtAdded:
		out = serverMessage{Type: TypeCourtAdded, Data: courtAddedData{Court: e.Court}}
	case engine.PlayerNameUpdated:
		out = serverMessage{Type: TypePlayerNameUpdated, Data: playerNameUpdatedData{CourtID: e.CourtID, PlayerIndex: e.PlayerIndex, Name: e.Name}}
	default:
		return nil, fmt.Errorf("encode %T: unsupported event", evt)
	}
	return json.Marshal(out)
}

func encodeRoomError(message string) []byte {
	b, _ := json.Marshal(serverMessage{Type: TypeRoomError, Data: roomErrorData{Message: message}})
	return b
}
