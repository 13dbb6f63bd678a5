// internal/models/state.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the server-reported lifecycle phase of a game snapshot.
type Phase string

const (
	PhaseBidding  Phase = "bidding"
	PhasePlaying  Phase = "playing"
	PhaseScoring  Phase = "scoring"
	PhaseFinished Phase = "finished"
)

// PlayerInfo is one roster entry inside an authoritative snapshot.
type PlayerInfo struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	HandSize  int       `json:"handSize"`
	Bid       *int      `json:"bid,omitempty"`
	TricksWon int       `json:"tricksWon"`
	Score     int       `json:"score"`
}

// PlayedCard is one card face-up in the current trick.
type PlayedCard struct {
	PlayerID uuid.UUID `json:"playerId"`
	Card     Card      `json:"card"`
}

// GameSnapshot is the authoritative shared game state. The server replaces it
// wholesale on every game.sync; the client never field-patches it.
type GameSnapshot struct {
	GameID          uuid.UUID    `json:"gameId"`
	GameType        string       `json:"gameType"`
	Phase           Phase        `json:"phase"`
	LeaderID        uuid.UUID    `json:"leaderId"`
	CurrentPlayerID uuid.UUID    `json:"currentPlayerId"`
	Players         []PlayerInfo `json:"players"`
	Trick           []PlayedCard `json:"trick"`
	TrumpBroken     bool         `json:"trumpBroken"`
	Round           int          `json:"round"`
	Paused          bool         `json:"paused"`
	PauseReason     string       `json:"pauseReason,omitempty"`
	TimeoutAt       *time.Time   `json:"timeoutAt,omitempty"`
}

// LedSuit returns the suit of the first card in the current trick, if any.
func (s *GameSnapshot) LedSuit() (Suit, bool) {
	if len(s.Trick) == 0 {
		return "", false
	}
	return s.Trick[0].Card.Suit, true
}

// PlayerByID returns the roster entry for id, or nil.
func (s *GameSnapshot) PlayerByID(id uuid.UUID) *PlayerInfo {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// PlayerView is the private per-player state (own hand). Delivered separately
// from the shared snapshot and replaced wholesale on every game.player_sync.
type PlayerView struct {
	UserID uuid.UUID `json:"userId"`
	Hand   []Card    `json:"hand"`
}

// ActionType identifies a locally initiated game action.
type ActionType string

const (
	ActionPlayCard ActionType = "play_card"
	ActionPlaceBid ActionType = "place_bid"
)

// Action is a user intent submitted to the server via submit-action.
type Action struct {
	Type ActionType `json:"type"`
	Card *Card      `json:"card,omitempty"`
	Bid  *int       `json:"bid,omitempty"`
}

// RoomSnapshot is the authoritative lobby state, replaced wholesale on room.sync.
type RoomSnapshot struct {
	RoomID   uuid.UUID    `json:"roomId"`
	RoomCode string       `json:"roomCode"`
	LeaderID uuid.UUID    `json:"leaderId"`
	GameType string       `json:"gameType,omitempty"`
	InGame   bool         `json:"inGame"`
	GameID   uuid.UUID    `json:"gameId,omitempty"`
	Players  []PlayerInfo `json:"players"`
}
