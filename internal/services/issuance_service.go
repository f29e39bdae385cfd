package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"chaintix/internal/clock"
	"chaintix/internal/credential"
	"chaintix/internal/ledger"
	"chaintix/internal/signer"
	"chaintix/internal/status"
	"chaintix/models"
	"chaintix/monitoring"

	pubnub "github.com/pubnub/go"
	"github.com/shopspring/decimal"
)

// IssuanceService orchestrates a purchase: authorize the buyer's
// signed intent, price the request, and hand the atomic reservation to
// the ledger. It never computes availability locally; the ledger's
// commit-time check is the only capacity decision.
type IssuanceService struct {
	Ledger  ledger.Ledger
	clock   clock.Clock
	pn      *pubnub.PubNub
	monitor *monitoring.Monitor
}

func NewIssuanceService(l ledger.Ledger, clk clock.Clock, pn *pubnub.PubNub, monitor *monitoring.Monitor) *IssuanceService {
	return &IssuanceService{
		Ledger:  l,
		clock:   clk,
		pn:      pn,
		monitor: monitor,
	}
}

type PurchaseRequest struct {
	EventID       int64
	TierIndex     int
	AttendeeCount int
	Buyer         string
	Message       []byte
	Signature     []byte
}

type PurchaseResult struct {
	TicketID   int64
	TotalPaid  decimal.Decimal
	Token      models.TokenKind
	Credential string
}

// Purchase is NOT idempotent: every call that passes the signature and
// capacity checks mints one new ticket. Callers must not blind-retry
// on transport failure once a mint may have committed.
func (s *IssuanceService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if req.AttendeeCount < models.MinAttendees || req.AttendeeCount > models.MaxAttendees {
		return nil, status.ErrInvalidAttendeeCount
	}

	if !signer.Authorize(req.Buyer, req.Message, req.Signature) {
		return nil, status.ErrUnauthorized
	}

	tier, err := s.Ledger.GetTier(ctx, req.EventID, req.TierIndex)
	if err != nil {
		return nil, err
	}
	if !tier.Active {
		return nil, status.ErrTierNotFound
	}

	event, err := s.Ledger.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	// Exact fixed-point arithmetic. Float rounding here would corrupt
	// settlement amounts.
	totalPaid := tier.Price.Mul(decimal.NewFromInt(int64(req.AttendeeCount)))

	now := s.clock.Now()
	mint := ledger.MintRequest{
		AttendeeCount:    req.AttendeeCount,
		Buyer:            req.Buyer,
		TotalPaid:        totalPaid,
		Token:            tier.Token,
		PurchasedAt:      now,
		StatusAtPurchase: EventStatus(event.StartAt, event.EndAt, now),
	}

	ticketID, err := s.Ledger.ReserveCapacity(ctx, req.EventID, req.TierIndex, mint)
	if err != nil {
		if errors.Is(err, status.ErrSoldOut) {
			s.monitor.TrackReservationConflict(strconv.FormatInt(req.EventID, 10))
		}
		return nil, err
	}

	encoded, err := credential.Encode(credential.Credential{
		TicketID:      ticketID,
		EventID:       req.EventID,
		AttendeeCount: req.AttendeeCount,
		Purchaser:     req.Buyer,
		TotalPaid:     totalPaid,
		Token:         tier.Token,
		PurchasedAt:   now,
		EventStatus:   mint.StatusAtPurchase,
	})
	if err != nil {
		// The mint is already final; a codec failure must not look like
		// a failed purchase.
		return nil, fmt.Errorf("ticket %d minted but credential encoding failed: %w", ticketID, err)
	}

	s.monitor.TrackIssued(strconv.FormatInt(req.EventID, 10), string(tier.Token))

	slog.Info("ticket issued",
		"ticket_id", ticketID,
		"event_id", req.EventID,
		"tier_index", req.TierIndex,
		"buyer", req.Buyer,
		"attendees", req.AttendeeCount,
		"total_paid", totalPaid.String(),
	)

	s.publishIssued(req.Buyer, ticketID, req.EventID)

	return &PurchaseResult{
		TicketID:   ticketID,
		TotalPaid:  totalPaid,
		Token:      tier.Token,
		Credential: encoded,
	}, nil
}

func (s *IssuanceService) publishIssued(buyer string, ticketID, eventID int64) {
	if s.pn == nil {
		return
	}

	channel := fmt.Sprintf("user-%s", buyer)
	s.pn.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":      "ticket_issued",
			"ticket_id": ticketID,
			"event_id":  eventID,
		}).
		Execute()
}
