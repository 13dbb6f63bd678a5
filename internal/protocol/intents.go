// internal/protocol/intents.go
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cardhall/cardhall-go/internal/models"
)

// Outbound intent names.
const (
	TypeRequestRoomState   = "request-room-state"
	TypeRequestGameState   = "request-game-state"
	TypeRequestPlayerState = "request-player-state"
	TypeSelectGame         = "select-game"
	TypeUpdateSettings     = "update-settings"
	TypeKickUser           = "kick-user"
	TypeSubmitAction       = "submit-action"
)

// Intent is any outbound client-to-server message. Emission is best-effort:
// the transport drops intents while the connection is not open.
type Intent interface {
	IntentType() string
}

// RequestRoomState pulls a full lobby snapshot.
type RequestRoomState struct {
	RoomID uuid.UUID `json:"roomId"`
	UserID uuid.UUID `json:"userId"`
}

// RequestGameState pulls a full authoritative game snapshot.
type RequestGameState struct {
	RoomID uuid.UUID `json:"roomId"`
	UserID uuid.UUID `json:"userId"`
}

// RequestPlayerState pulls the private per-player view.
type RequestPlayerState struct {
	RoomID uuid.UUID `json:"roomId"`
	UserID uuid.UUID `json:"userId"`
}

// SelectGame asks the server to switch the room's game type (leader only).
type SelectGame struct {
	GameType string `json:"gameType"`
}

// UpdateSettings pushes partial game settings (leader only).
type UpdateSettings struct {
	Settings map[string]interface{} `json:"settings"`
}

// KickUser asks the server to remove a participant (leader only).
type KickUser struct {
	UserID uuid.UUID `json:"userId"`
}

// SubmitAction submits a game action for authoritative resolution.
type SubmitAction struct {
	Action models.Action `json:"action"`
}

func (RequestRoomState) IntentType() string   { return TypeRequestRoomState }
func (RequestGameState) IntentType() string   { return TypeRequestGameState }
func (RequestPlayerState) IntentType() string { return TypeRequestPlayerState }
func (SelectGame) IntentType() string         { return TypeSelectGame }
func (UpdateSettings) IntentType() string     { return TypeUpdateSettings }
func (KickUser) IntentType() string           { return TypeKickUser }
func (SubmitAction) IntentType() string       { return TypeSubmitAction }

// EncodeIntent frames an intent for the wire.
func EncodeIntent(in Intent) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", in.IntentType(), err)
	}
	return json.Marshal(Envelope{Type: in.IntentType(), Payload: payload})
}
