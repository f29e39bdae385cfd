package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"chaintix/internal/clock"
	"chaintix/internal/credential"
	"chaintix/internal/ledger"
	"chaintix/internal/status"
	"chaintix/models"
	"chaintix/monitoring"

	pubnub "github.com/pubnub/go"
)

// VerificationService resolves a presented credential against live
// ledger facts. Verify is read-only and safe to repeat; consuming the
// ticket is the separate, explicitly authorized MarkEntryUsed.
type VerificationService struct {
	Ledger  ledger.Ledger
	clock   clock.Clock
	pn      *pubnub.PubNub
	monitor *monitoring.Monitor
}

func NewVerificationService(l ledger.Ledger, clk clock.Clock, pn *pubnub.PubNub, monitor *monitoring.Monitor) *VerificationService {
	return &VerificationService{
		Ledger:  l,
		clock:   clk,
		pn:      pn,
		monitor: monitor,
	}
}

type VerifyRequest struct {
	Credential string

	// Staff mode: the per-event shared code plus the event the staff
	// member is working.
	Staff     bool
	StaffCode string
	EventID   int64
}

type VerificationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`

	TicketID      int64              `json:"ticket_id"`
	EventID       int64              `json:"event_id"`
	EventTitle    string             `json:"event_title"`
	TierName      string             `json:"tier_name"`
	Owner         string             `json:"owner"`
	AttendeeCount int                `json:"attendee_count"`
	Used          bool               `json:"used"`
	EventStatus   models.EventStatus `json:"event_status"`

	VerifiedAt        time.Time `json:"verified_at"`
	StaffVerification bool      `json:"staff_verification"`
}

// staffCode returns the shared per-event secret. This is the observed
// convention from the deployed system; it is a weak trust boundary and
// is kept as-is for compatibility.
func staffCode(eventID int64) string {
	return fmt.Sprintf("STAFF-%d", eventID)
}

// Verify decodes the credential and re-derives validity from the
// ledger. An invalid ticket (used, expired) is a normal outcome and
// comes back as {valid:false, reason}; only malformed input, missing
// entities or a dead ledger are errors.
func (s *VerificationService) Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	mode := "self"
	if req.Staff {
		mode = "staff"
	}

	cred, err := credential.Decode(req.Credential)
	if err != nil {
		s.monitor.TrackVerification(mode, "malformed")
		return nil, status.ErrMalformedCredential
	}

	if req.Staff {
		expected := staffCode(req.EventID)
		if subtle.ConstantTimeCompare([]byte(req.StaffCode), []byte(expected)) != 1 {
			s.monitor.TrackVerification(mode, "unauthorized")
			return nil, status.ErrUnauthorized
		}
		// A partial credential carries no event id, so the binding
		// check is deferred to the ticket fetched from the ledger.
		if !cred.Partial && cred.EventID != req.EventID {
			s.monitor.TrackVerification(mode, "event_mismatch")
			return nil, status.ErrEventMismatch
		}
	}

	ticket, err := s.Ledger.GetTicket(ctx, cred.TicketID)
	if err != nil {
		s.monitor.TrackVerification(mode, "not_found")
		return nil, err
	}

	if req.Staff && ticket.EventID != req.EventID {
		s.monitor.TrackVerification(mode, "event_mismatch")
		return nil, status.ErrEventMismatch
	}

	event, err := s.Ledger.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	tier, err := s.Ledger.GetTier(ctx, ticket.EventID, ticket.TierIndex)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	valid, reason := TicketValidity(ticket, event, now)

	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	s.monitor.TrackVerification(mode, outcome)

	slog.Info("ticket verified",
		"ticket_id", ticket.ID,
		"event_id", event.ID,
		"mode", mode,
		"valid", valid,
		"reason", reason,
	)

	s.publishScan(event.ID, ticket.ID, valid, reason, req.Staff)

	return &VerificationResult{
		Valid:             valid,
		Reason:            reason,
		TicketID:          ticket.ID,
		EventID:           event.ID,
		EventTitle:        event.Title,
		TierName:          tier.Name,
		Owner:             ticket.Owner,
		AttendeeCount:     ticket.AttendeeCount,
		Used:              ticket.Used,
		EventStatus:       EventStatus(event.StartAt, event.EndAt, now),
		VerifiedAt:        now,
		StaffVerification: req.Staff,
	}, nil
}

// MarkEntryUsed consumes a ticket for entry. Validity is re-derived
// immediately before the ledger mutation so a stale "valid" screen
// cannot double-admit an attendee.
func (s *VerificationService) MarkEntryUsed(ctx context.Context, ticketID int64, actor string) error {
	ticket, err := s.Ledger.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	event, err := s.Ledger.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return err
	}

	if valid, reason := TicketValidity(ticket, event, s.clock.Now()); !valid {
		return fmt.Errorf("%w: %s", status.ErrNotCurrentlyValid, reason)
	}

	if err := s.Ledger.MarkUsed(ctx, ticketID); err != nil {
		return err
	}

	s.monitor.TrackAdmission(strconv.FormatInt(event.ID, 10))

	slog.Info("entry admitted",
		"ticket_id", ticketID,
		"event_id", event.ID,
		"actor", actor,
	)

	s.publishAdmission(event.ID, ticketID, actor)

	return nil
}

func (s *VerificationService) publishScan(eventID, ticketID int64, valid bool, reason string, staff bool) {
	if s.pn == nil {
		return
	}

	channel := fmt.Sprintf("event-scans-%d", eventID)
	s.pn.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":      "ticket_scanned",
			"ticket_id": ticketID,
			"valid":     valid,
			"reason":    reason,
			"staff":     staff,
		}).
		Execute()
}

func (s *VerificationService) publishAdmission(eventID, ticketID int64, actor string) {
	if s.pn == nil {
		return
	}

	channel := fmt.Sprintf("event-scans-%d", eventID)
	s.pn.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":      "entry_admitted",
			"ticket_id": ticketID,
			"actor":     actor,
		}).
		Execute()
}
