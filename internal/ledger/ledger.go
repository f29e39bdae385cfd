// Package ledger is the accessor for the authoritative ledger: the
// external system of record for events, tiers and tickets. All supply
// mutation funnels through ReserveCapacity; no caller may read a
// supply count and write back a derived value.
package ledger

import (
	"context"
	"time"

	"chaintix/models"

	"github.com/shopspring/decimal"
)

// MintRequest carries the facts the ledger stamps onto a ticket at
// reservation time. TotalPaid is computed by the issuance engine and
// fixed at mint.
type MintRequest struct {
	AttendeeCount    int
	Buyer            string
	TotalPaid        decimal.Decimal
	Token            models.TokenKind
	PurchasedAt      time.Time
	StatusAtPurchase models.EventStatus
}

// Ledger is the authoritative ledger contract. Implementations must
// make ReserveCapacity atomic with respect to the supply read: the
// current+count <= max check happens at the moment of commit, even
// under concurrent callers.
type Ledger interface {
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	GetTier(ctx context.Context, eventID int64, tierIndex int) (models.Tier, error)
	GetTicket(ctx context.Context, id int64) (models.Ticket, error)

	// ReserveCapacity atomically re-checks remaining supply, increments
	// it and mints a ticket, returning the new ticket id. Fails with
	// status.ErrSoldOut when the commit-time check would overflow and
	// status.ErrTierNotFound when the tier is absent or inactive.
	ReserveCapacity(ctx context.Context, eventID int64, tierIndex int, req MintRequest) (int64, error)

	// MarkUsed flips a ticket's used flag. Idempotent: marking an
	// already-used ticket succeeds rather than erroring twice.
	MarkUsed(ctx context.Context, ticketID int64) error

	CreateEvent(ctx context.Context, ev models.Event) (int64, error)
	AddTier(ctx context.Context, eventID int64, tier models.Tier) (int, error)
	DeactivateEvent(ctx context.Context, eventID int64) error
}
