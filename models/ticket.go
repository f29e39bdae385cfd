package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TokenKind is the payment token a tier settles in.
type TokenKind string

const (
	TokenNative  TokenKind = "native"
	TokenStableA TokenKind = "stable-a"
	TokenStableB TokenKind = "stable-b"
)

func ParseTokenKind(s string) (TokenKind, error) {
	switch TokenKind(s) {
	case TokenNative, TokenStableA, TokenStableB:
		return TokenKind(s), nil
	}
	return "", fmt.Errorf("unknown token kind %q", s)
}

// Tier is a purchasable category within an event, referenced by its
// zero-based index. CurrentSupply only ever increases, and only through
// the ledger's atomic reservation.
type Tier struct {
	EventID       int64           `json:"event_id"`
	Index         int             `json:"index"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"` // per attendee, minor units
	MaxSupply     int             `json:"max_supply"`
	CurrentSupply int             `json:"current_supply"`
	Token         TokenKind       `json:"token"`
	Active        bool            `json:"active"`
}

// Remaining reports how many attendees the tier can still admit.
func (t Tier) Remaining() int {
	if t.CurrentSupply >= t.MaxSupply {
		return 0
	}
	return t.MaxSupply - t.CurrentSupply
}

// Ticket is a minted entry right. TotalPaid is fixed at mint and never
// recomputed. Used flips false -> true exactly once.
type Ticket struct {
	ID               int64           `json:"id"`
	EventID          int64           `json:"event_id"`
	TierIndex        int             `json:"tier_index"`
	Owner            string          `json:"owner"`
	AttendeeCount    int             `json:"attendee_count"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	Token            TokenKind       `json:"token"`
	PurchasedAt      time.Time       `json:"purchased_at"`
	Used             bool            `json:"used"`
	StatusAtPurchase EventStatus     `json:"status_at_purchase"`
}

const (
	MinAttendees = 1
	MaxAttendees = 10
)
