// internal/rules/rules.go

// Package rules implements the move-legality validator for the trick-taking
// game. Every function is pure: legality is re-derived from the arguments on
// each call, nothing is cached and no input is mutated, so the prediction
// engine can call it speculatively and the UI can call it per rendered card.
package rules

import "github.com/cardhall/cardhall-go/internal/models"

// MinBid and MaxBid bound a bidding-phase bid (nil-bid "pass" is not a thing;
// zero is the nil bid).
const (
	MinBid = 0
	MaxBid = 13
)

// IsLegal reports whether the proposed action is legal for the player owning
// view, given the visible shared snapshot.
func IsLegal(action models.Action, view *models.PlayerView, game *models.GameSnapshot) bool {
	if view == nil || game == nil {
		return false
	}
	if game.Paused || game.CurrentPlayerID != view.UserID {
		return false
	}

	switch action.Type {
	case models.ActionPlaceBid:
		if game.Phase != models.PhaseBidding || action.Bid == nil {
			return false
		}
		if p := game.PlayerByID(view.UserID); p != nil && p.Bid != nil {
			return false // already bid this round
		}
		return *action.Bid >= MinBid && *action.Bid <= MaxBid

	case models.ActionPlayCard:
		if game.Phase != models.PhasePlaying || action.Card == nil {
			return false
		}
		if !handContains(view.Hand, *action.Card) {
			return false
		}
		return cardPlayable(*action.Card, view.Hand, game)
	}
	return false
}

// LegalPlays returns the set of hand indices that would be legal to play given
// the shared snapshot, for driving interface affordances. Turn order is not
// considered here; a disabled hand is signalled separately by whose turn it is.
func LegalPlays(hand []models.Card, game *models.GameSnapshot) map[int]struct{} {
	legal := make(map[int]struct{})
	if game == nil {
		return legal
	}
	for i, c := range hand {
		if cardPlayable(c, hand, game) {
			legal[i] = struct{}{}
		}
	}
	return legal
}

// cardPlayable applies the trick-following rules:
//   - leading: trump may not be led until broken, unless the hand is all trump
//   - following: must follow the led suit when able, slough otherwise
func cardPlayable(c models.Card, hand []models.Card, game *models.GameSnapshot) bool {
	led, trickOpen := game.LedSuit()
	if !trickOpen {
		if c.IsTrump() && !game.TrumpBroken && !handAllTrump(hand) {
			return false
		}
		return true
	}
	if c.Suit == led {
		return true
	}
	return !handHasSuit(hand, led)
}

func handContains(hand []models.Card, c models.Card) bool {
	for _, h := range hand {
		if h == c {
			return true
		}
	}
	return false
}

func handHasSuit(hand []models.Card, s models.Suit) bool {
	for _, h := range hand {
		if h.Suit == s {
			return true
		}
	}
	return false
}

func handAllTrump(hand []models.Card) bool {
	for _, h := range hand {
		if !h.IsTrump() {
			return false
		}
	}
	return len(hand) > 0
}
