package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chaintix/internal/clock"
	"chaintix/internal/credential"
	"chaintix/internal/ledger"
	"chaintix/internal/status"
	"chaintix/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mintTicket issues one ticket through the full purchase path and
// returns its credential.
func mintTicket(t *testing.T, led *ledger.Memory, eventID int64, clk clock.Clock) (int64, string) {
	t.Helper()

	buyer := newTestIdentity(t)
	message := []byte("purchase intent")

	svc := NewIssuanceService(led, clk, nil, nil)
	result, err := svc.Purchase(context.Background(), PurchaseRequest{
		EventID:       eventID,
		TierIndex:     0,
		AttendeeCount: 2,
		Buyer:         buyer.addr,
		Message:       message,
		Signature:     buyer.sign(message),
	})
	require.NoError(t, err)
	return result.TicketID, result.Credential
}

// Walks a ticket bought before doors through the whole lifecycle:
// upcoming, live, admitted, re-scan.
func TestVerification_Lifecycle(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart.Add(-2 * time.Hour))
	_, cred := mintTicket(t, led, eventID, clk)

	verifier := NewVerificationService(led, clk, nil, nil)
	ctx := context.Background()

	// Before doors: not valid yet.
	result, err := verifier.Verify(ctx, VerifyRequest{Credential: cred})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonEventUpcoming, result.Reason)
	assert.Equal(t, models.EventUpcoming, result.EventStatus)

	// Event opens.
	clk.Advance(3 * time.Hour)

	result, err = verifier.Verify(ctx, VerifyRequest{Credential: cred})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, ReasonValid, result.Reason)
	assert.Equal(t, models.EventLive, result.EventStatus)
	assert.Equal(t, "Summer Festival", result.EventTitle)
	assert.Equal(t, "GA", result.TierName)
	assert.Equal(t, 2, result.AttendeeCount)

	// Verify is read-only: nothing changed on the ledger.
	ticket, err := led.GetTicket(ctx, result.TicketID)
	require.NoError(t, err)
	assert.False(t, ticket.Used)

	// Entry is a separate, explicit step.
	require.NoError(t, verifier.MarkEntryUsed(ctx, result.TicketID, "gate-3"))

	result, err = verifier.Verify(ctx, VerifyRequest{Credential: cred})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonAlreadyUsed, result.Reason)
	assert.True(t, result.Used)
}

func TestVerification_AfterEventEnds(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart)
	_, cred := mintTicket(t, led, eventID, clk)

	verifier := NewVerificationService(led, clk, nil, nil)
	clk.Advance(6 * time.Hour) // past testEnd

	result, err := verifier.Verify(context.Background(), VerifyRequest{Credential: cred})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonEventEnded, result.Reason)
}

func TestVerification_DeactivatedEvent(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart)
	_, cred := mintTicket(t, led, eventID, clk)

	require.NoError(t, led.DeactivateEvent(context.Background(), eventID))

	verifier := NewVerificationService(led, clk, nil, nil)
	result, err := verifier.Verify(context.Background(), VerifyRequest{Credential: cred})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonEventInactive, result.Reason)
}

func TestVerification_MalformedCredential(t *testing.T) {
	led, _ := seedLedger(t, 10)
	verifier := NewVerificationService(led, clock.NewFixed(testStart), nil, nil)

	_, err := verifier.Verify(context.Background(), VerifyRequest{Credential: ""})
	assert.True(t, errors.Is(err, status.ErrMalformedCredential))

	_, err = verifier.Verify(context.Background(), VerifyRequest{Credential: "???"})
	assert.True(t, errors.Is(err, status.ErrMalformedCredential))
}

func TestVerification_UnknownTicket(t *testing.T) {
	led, _ := seedLedger(t, 10)
	verifier := NewVerificationService(led, clock.NewFixed(testStart), nil, nil)

	cred, err := credential.Encode(credential.Credential{TicketID: 999, EventID: 1})
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), VerifyRequest{Credential: cred})
	assert.True(t, errors.Is(err, status.ErrTicketNotFound))
}

func TestVerification_StaffMode(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart)
	_, cred := mintTicket(t, led, eventID, clk)

	verifier := NewVerificationService(led, clk, nil, nil)
	ctx := context.Background()

	// Correct per-event code.
	result, err := verifier.Verify(ctx, VerifyRequest{
		Credential: cred,
		Staff:      true,
		StaffCode:  fmt.Sprintf("STAFF-%d", eventID),
		EventID:    eventID,
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.StaffVerification)

	// Wrong code.
	_, err = verifier.Verify(ctx, VerifyRequest{
		Credential: cred,
		Staff:      true,
		StaffCode:  "STAFF-999",
		EventID:    eventID,
	})
	assert.True(t, errors.Is(err, status.ErrUnauthorized))
}

func TestVerification_StaffEventMismatch(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart)
	_, cred := mintTicket(t, led, eventID, clk)

	// A second event the staff member is actually working.
	otherID, err := led.CreateEvent(context.Background(), models.Event{
		Organizer: "0xorg",
		Title:     "Other Event",
		StartAt:   testStart,
		EndAt:     testEnd,
		Active:    true,
	})
	require.NoError(t, err)

	verifier := NewVerificationService(led, clk, nil, nil)

	// The code for the other event is right, but the ticket belongs to
	// the first event.
	_, err = verifier.Verify(context.Background(), VerifyRequest{
		Credential: cred,
		Staff:      true,
		StaffCode:  fmt.Sprintf("STAFF-%d", otherID),
		EventID:    otherID,
	})
	assert.True(t, errors.Is(err, status.ErrEventMismatch))
}

func TestVerification_StaffPartialCredential(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart)
	ticketID, _ := mintTicket(t, led, eventID, clk)

	verifier := NewVerificationService(led, clk, nil, nil)

	// A damaged QR that only yields the bare id. The event binding is
	// enforced against the ledger-side ticket instead.
	raw := fmt.Sprintf("damaged-%d-payload", ticketID)
	result, err := verifier.Verify(context.Background(), VerifyRequest{
		Credential: raw,
		Staff:      true,
		StaffCode:  fmt.Sprintf("STAFF-%d", eventID),
		EventID:    eventID,
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, ticketID, result.TicketID)
}

func TestMarkEntryUsed(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart)
	ticketID, _ := mintTicket(t, led, eventID, clk)

	verifier := NewVerificationService(led, clk, nil, nil)
	ctx := context.Background()

	require.NoError(t, verifier.MarkEntryUsed(ctx, ticketID, "gate-1"))

	// A second admission attempt fails: the ticket is no longer valid.
	err := verifier.MarkEntryUsed(ctx, ticketID, "gate-1")
	assert.True(t, errors.Is(err, status.ErrNotCurrentlyValid))
	assert.Contains(t, err.Error(), ReasonAlreadyUsed)
}

func TestMarkEntryUsed_OutsideWindow(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart.Add(-time.Hour))
	ticketID, _ := mintTicket(t, led, eventID, clk)

	verifier := NewVerificationService(led, clk, nil, nil)

	// Doors are not open yet; a stale "valid" screen cannot admit.
	err := verifier.MarkEntryUsed(context.Background(), ticketID, "gate-1")
	assert.True(t, errors.Is(err, status.ErrNotCurrentlyValid))
	assert.Contains(t, err.Error(), ReasonEventUpcoming)

	ticket, err := led.GetTicket(context.Background(), ticketID)
	require.NoError(t, err)
	assert.False(t, ticket.Used)
}

func TestMarkEntryUsed_UnknownTicket(t *testing.T) {
	led, _ := seedLedger(t, 10)
	verifier := NewVerificationService(led, clock.NewFixed(testStart), nil, nil)

	err := verifier.MarkEntryUsed(context.Background(), 999, "gate-1")
	assert.True(t, errors.Is(err, status.ErrTicketNotFound))
}
