package services

import (
	"context"
	"log/slog"
	"time"

	"chaintix/internal/ledger"
	"chaintix/internal/signer"
	"chaintix/internal/status"
	"chaintix/models"

	"github.com/shopspring/decimal"
)

// EventService handles organizer-side listing operations. Creation and
// tier additions are authorized by the same signature scheme buyers
// use, just with the organizer's identity and message template.
type EventService struct {
	Ledger     ledger.Ledger
	ListingFee decimal.Decimal
}

func NewEventService(l ledger.Ledger, listingFee decimal.Decimal) *EventService {
	return &EventService{Ledger: l, ListingFee: listingFee}
}

type CreateEventRequest struct {
	Organizer   string
	Message     []byte
	Signature   []byte
	Title       string
	Description string
	Location    string
	StartAt     time.Time
	EndAt       time.Time
	MetadataURI string
	FeePaid     decimal.Decimal
}

func (s *EventService) CreateEvent(ctx context.Context, req CreateEventRequest) (int64, error) {
	if !signer.Authorize(req.Organizer, req.Message, req.Signature) {
		return 0, status.ErrUnauthorized
	}
	if !req.EndAt.After(req.StartAt) {
		return 0, status.ErrInvalidSchedule
	}
	if req.FeePaid.LessThan(s.ListingFee) {
		return 0, status.ErrListingFeeTooLow
	}

	id, err := s.Ledger.CreateEvent(ctx, models.Event{
		Organizer:   req.Organizer,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		MetadataURI: req.MetadataURI,
		Active:      true,
	})
	if err != nil {
		return 0, err
	}

	slog.Info("event created", "event_id", id, "organizer", req.Organizer, "title", req.Title)
	return id, nil
}

type AddTierRequest struct {
	EventID   int64
	Organizer string
	Message   []byte
	Signature []byte
	Name      string
	Price     decimal.Decimal
	MaxSupply int
	Token     models.TokenKind
}

func (s *EventService) AddTier(ctx context.Context, req AddTierRequest) (int, error) {
	event, err := s.Ledger.GetEvent(ctx, req.EventID)
	if err != nil {
		return 0, err
	}
	if !signer.Authorize(event.Organizer, req.Message, req.Signature) {
		return 0, status.ErrUnauthorized
	}
	if req.MaxSupply <= 0 || req.Price.IsNegative() {
		return 0, status.ErrInvalidTier
	}

	idx, err := s.Ledger.AddTier(ctx, req.EventID, models.Tier{
		Name:      req.Name,
		Price:     req.Price,
		MaxSupply: req.MaxSupply,
		Token:     req.Token,
		Active:    true,
	})
	if err != nil {
		return 0, err
	}

	slog.Info("tier added", "event_id", req.EventID, "tier_index", idx, "name", req.Name)
	return idx, nil
}

// DeactivateEvent turns off purchasing and verification for an event.
// Events are never deleted.
func (s *EventService) DeactivateEvent(ctx context.Context, eventID int64, message, sig []byte) error {
	event, err := s.Ledger.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !signer.Authorize(event.Organizer, message, sig) {
		return status.ErrUnauthorized
	}
	return s.Ledger.DeactivateEvent(ctx, eventID)
}
