// internal/protocol/events.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cardhall/cardhall-go/internal/models"
)

// Wire event names. Inbound messages are an Envelope whose Type selects one of
// the structs below; unknown or malformed messages decode to an error so the
// consumer can log and drop them instead of crashing its read loop.
const (
	TypeRoomSync           = "room.sync"
	TypeRoomUserJoined     = "room.user_joined"
	TypeRoomUserLeft       = "room.user_left"
	TypeRoomLeaderPromoted = "room.leader_promoted"
	TypeRoomGameStarted    = "room.game_started"
	TypeRoomUserKicked     = "room.user_kicked"

	TypeGameSync             = "game.sync"
	TypeGamePlayerSync       = "game.player_sync"
	TypeGamePaused           = "game.paused"
	TypeGameResumed          = "game.resumed"
	TypeGameAborted          = "game.aborted"
	TypeGameUserDisconnected = "game.user_disconnected"
	TypeGameUserReconnected  = "game.user_reconnected"
)

// ErrUnknownEvent is returned by DecodeEvent for an unrecognized type tag.
var ErrUnknownEvent = errors.New("protocol: unknown event type")

// Envelope is the outer frame of every wire message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is any inbound protocol event.
type Event interface {
	EventType() string
}

// RoomEvent is the closed family of lobby lifecycle events.
type RoomEvent interface {
	Event
	isRoomEvent()
}

// GameEvent is the closed family of in-game lifecycle events.
type GameEvent interface {
	Event
	isGameEvent()
}

// RoomSync carries a full lobby snapshot; the client replaces lobby state wholesale.
type RoomSync struct {
	Room models.RoomSnapshot `json:"room"`
}

// RoomUserJoined announces a roster addition.
type RoomUserJoined struct {
	UserName string `json:"userName"`
}

// RoomUserLeft announces a roster departure. Voluntary distinguishes a chosen
// leave from a drop.
type RoomUserLeft struct {
	UserName  string `json:"userName"`
	Voluntary bool   `json:"voluntary,omitempty"`
}

// RoomLeaderPromoted announces a leader change.
type RoomLeaderPromoted struct {
	NewLeaderID   uuid.UUID `json:"newLeaderId"`
	NewLeaderName string    `json:"newLeaderName"`
}

// RoomGameStarted tells the client to navigate into a newly started game.
type RoomGameStarted struct {
	GameID   uuid.UUID           `json:"gameId"`
	GameType string              `json:"gameType"`
	Game     models.GameSnapshot `json:"gameState"`
}

// RoomUserKicked announces a removal. When UserID matches the local identity the
// client must clear its identity and navigate away.
type RoomUserKicked struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName,omitempty"`
}

// GameSync carries a full authoritative game snapshot.
type GameSync struct {
	Game models.GameSnapshot `json:"game"`
}

// GamePlayerSync carries the private per-player view.
type GamePlayerSync struct {
	View models.PlayerView `json:"player"`
}

// GamePaused starts the pause lifecycle; TimeoutAt is the absolute auto-abort deadline.
type GamePaused struct {
	Reason    string     `json:"reason"`
	TimeoutAt *time.Time `json:"timeoutAt,omitempty"`
}

// GameResumed ends the pause lifecycle.
type GameResumed struct {
	Reason string `json:"reason,omitempty"`
}

// GameAborted is terminal for the game session.
type GameAborted struct {
	Reason string `json:"reason"`
}

// GameUserDisconnected patches the disconnected-player set between snapshots.
type GameUserDisconnected struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName,omitempty"`
}

// GameUserReconnected patches the disconnected-player set between snapshots.
type GameUserReconnected struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName,omitempty"`
}

func (RoomSync) EventType() string           { return TypeRoomSync }
func (RoomUserJoined) EventType() string     { return TypeRoomUserJoined }
func (RoomUserLeft) EventType() string       { return TypeRoomUserLeft }
func (RoomLeaderPromoted) EventType() string { return TypeRoomLeaderPromoted }
func (RoomGameStarted) EventType() string    { return TypeRoomGameStarted }
func (RoomUserKicked) EventType() string     { return TypeRoomUserKicked }

func (RoomSync) isRoomEvent()           {}
func (RoomUserJoined) isRoomEvent()     {}
func (RoomUserLeft) isRoomEvent()       {}
func (RoomLeaderPromoted) isRoomEvent() {}
func (RoomGameStarted) isRoomEvent()    {}
func (RoomUserKicked) isRoomEvent()     {}

func (GameSync) EventType() string             { return TypeGameSync }
func (GamePlayerSync) EventType() string       { return TypeGamePlayerSync }
func (GamePaused) EventType() string           { return TypeGamePaused }
func (GameResumed) EventType() string          { return TypeGameResumed }
func (GameAborted) EventType() string          { return TypeGameAborted }
func (GameUserDisconnected) EventType() string { return TypeGameUserDisconnected }
func (GameUserReconnected) EventType() string  { return TypeGameUserReconnected }

func (GameSync) isGameEvent()             {}
func (GamePlayerSync) isGameEvent()       {}
func (GamePaused) isGameEvent()           {}
func (GameResumed) isGameEvent()          {}
func (GameAborted) isGameEvent()          {}
func (GameUserDisconnected) isGameEvent() {}
func (GameUserReconnected) isGameEvent()  {}

// DecodeEvent parses a raw wire message into its typed event. It returns
// ErrUnknownEvent for an unrecognized type tag and a wrapped unmarshal error
// for a recognized tag with a malformed payload.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: invalid envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("protocol: envelope missing type tag")
	}

	var ev Event
	switch env.Type {
	case TypeRoomSync:
		ev = &RoomSync{}
	case TypeRoomUserJoined:
		ev = &RoomUserJoined{}
	case TypeRoomUserLeft:
		ev = &RoomUserLeft{}
	case TypeRoomLeaderPromoted:
		ev = &RoomLeaderPromoted{}
	case TypeRoomGameStarted:
		ev = &RoomGameStarted{}
	case TypeRoomUserKicked:
		ev = &RoomUserKicked{}
	case TypeGameSync:
		ev = &GameSync{}
	case TypeGamePlayerSync:
		ev = &GamePlayerSync{}
	case TypeGamePaused:
		ev = &GamePaused{}
	case TypeGameResumed:
		ev = &GameResumed{}
	case TypeGameAborted:
		ev = &GameAborted{}
	case TypeGameUserDisconnected:
		ev = &GameUserDisconnected{}
	case TypeGameUserReconnected:
		ev = &GameUserReconnected{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("protocol: bad %s payload: %w", env.Type, err)
		}
	}
	return ev, nil
}
