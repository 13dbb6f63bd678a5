// internal/models/card.go
package models

import "fmt"

// Suit is a single-letter suit code ("S", "H", "D", "C").
type Suit string

const (
	SuitSpades   Suit = "S"
	SuitHearts   Suit = "H"
	SuitDiamonds Suit = "D"
	SuitClubs    Suit = "C"
)

// TrumpSuit is fixed for the trick-taking game: spades are always trump.
const TrumpSuit = SuitSpades

// rankValues orders ranks for trick comparison. Ace is high.
var rankValues = map[string]int{
	"2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8,
	"9": 9, "T": 10, "J": 11, "Q": 12, "K": 13, "A": 14,
}

// Card is one playing card. Rank uses "2".."9", "T", "J", "Q", "K", "A".
type Card struct {
	Rank string `json:"rank"`
	Suit Suit   `json:"suit"`
}

// Value returns the rank's comparison value, or 0 for an unknown rank.
func (c Card) Value() int {
	return rankValues[c.Rank]
}

// IsTrump reports whether the card belongs to the trump suit.
func (c Card) IsTrump() bool {
	return c.Suit == TrumpSuit
}

func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Valid reports whether the card has a recognized rank and suit.
func (c Card) Valid() bool {
	if _, ok := rankValues[c.Rank]; !ok {
		return false
	}
	switch c.Suit {
	case SuitSpades, SuitHearts, SuitDiamonds, SuitClubs:
		return true
	}
	return false
}
