// internal/predict/predict.go

// Package predict computes the expected local effect of a player's own action
// before the server confirms it. It duplicates, per action type, the same
// transition the authoritative engine applies, purely to remove input lag; the
// next full snapshot always replaces whatever was predicted.
package predict

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cardhall/cardhall-go/internal/models"
	"github.com/cardhall/cardhall-go/internal/rules"
)

// BidOverlay records a single predicted bid.
type BidOverlay struct {
	PlayerID uuid.UUID
	Bid      int
}

// GameOverlay carries only the shared-state fields the action is known to
// affect. Nil/zero fields leave the authoritative value untouched.
type GameOverlay struct {
	Trick           []models.PlayedCard
	TrumpBroken     *bool
	CurrentPlayerID *uuid.UUID
	Bid             *BidOverlay
}

// PlayerOverlay carries only the private-state fields the action affects.
type PlayerOverlay struct {
	Hand []models.Card
}

// Overlay is an ephemeral prediction derived from one unconfirmed local action.
// It is applied on top of the last authoritative state for rendering and is
// discarded unconditionally when the next full snapshot arrives.
type Overlay struct {
	Game   *GameOverlay
	Player *PlayerOverlay
}

// ApplyGame returns a copy of s with the overlay's fields substituted. s is
// never mutated.
func (o *Overlay) ApplyGame(s models.GameSnapshot) models.GameSnapshot {
	if o == nil || o.Game == nil {
		return s
	}
	out := s
	out.Players = make([]models.PlayerInfo, len(s.Players))
	copy(out.Players, s.Players)

	g := o.Game
	if g.Trick != nil {
		out.Trick = g.Trick
	}
	if g.TrumpBroken != nil {
		out.TrumpBroken = *g.TrumpBroken
	}
	if g.CurrentPlayerID != nil {
		out.CurrentPlayerID = *g.CurrentPlayerID
	}
	if g.Bid != nil {
		if p := out.PlayerByID(g.Bid.PlayerID); p != nil {
			bid := g.Bid.Bid
			p.Bid = &bid
		}
	}
	return out
}

// ApplyView returns a copy of v with the overlay's fields substituted.
func (o *Overlay) ApplyView(v models.PlayerView) models.PlayerView {
	if o == nil || o.Player == nil {
		return v
	}
	out := v
	if o.Player.Hand != nil {
		out.Hand = o.Player.Hand
	}
	return out
}

// Engine computes prediction overlays. It holds no game state of its own.
type Engine struct {
	log *logrus.Logger
}

// NewEngine returns an Engine that logs refused predictions through logger.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{log: logger}
}

// Predict returns the overlay for applying action to the last authoritative
// state. It returns (nil, false) when the action is illegal per the validator,
// so the interface never renders an impossible state.
func (e *Engine) Predict(game *models.GameSnapshot, view *models.PlayerView, action models.Action) (*Overlay, bool) {
	if !rules.IsLegal(action, view, game) {
		e.log.WithFields(logrus.Fields{
			"action": action.Type,
			"user":   view.UserID,
		}).Debug("prediction refused: action is not legal")
		return nil, false
	}

	switch action.Type {
	case models.ActionPlayCard:
		return predictPlayCard(game, view, *action.Card), true
	case models.ActionPlaceBid:
		return predictPlaceBid(game, view, *action.Bid), true
	}
	return nil, false
}

func predictPlayCard(game *models.GameSnapshot, view *models.PlayerView, card models.Card) *Overlay {
	hand := make([]models.Card, 0, len(view.Hand)-1)
	for _, c := range view.Hand {
		if c != card {
			hand = append(hand, c)
		}
	}

	trick := make([]models.PlayedCard, 0, len(game.Trick)+1)
	trick = append(trick, game.Trick...)
	trick = append(trick, models.PlayedCard{PlayerID: view.UserID, Card: card})

	g := &GameOverlay{Trick: trick}
	if card.IsTrump() && !game.TrumpBroken {
		broken := true
		g.TrumpBroken = &broken
	}
	// Only predict the turn handoff mid-trick; a completed trick's winner and
	// next lead are the server's call.
	if len(trick) < len(game.Players) {
		if next, ok := nextPlayer(game, view.UserID); ok {
			g.CurrentPlayerID = &next
		}
	}
	return &Overlay{Game: g, Player: &PlayerOverlay{Hand: hand}}
}

func predictPlaceBid(game *models.GameSnapshot, view *models.PlayerView, bid int) *Overlay {
	g := &GameOverlay{Bid: &BidOverlay{PlayerID: view.UserID, Bid: bid}}
	if next, ok := nextPlayer(game, view.UserID); ok {
		g.CurrentPlayerID = &next
	}
	return &Overlay{Game: g}
}

// nextPlayer returns the roster entry after id in seating order.
func nextPlayer(game *models.GameSnapshot, id uuid.UUID) (uuid.UUID, bool) {
	for i := range game.Players {
		if game.Players[i].ID == id {
			return game.Players[(i+1)%len(game.Players)].ID, true
		}
	}
	return uuid.Nil, false
}
