package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"chaintix/internal/clock"
	"chaintix/internal/credential"
	"chaintix/internal/ledger"
	"chaintix/internal/signer"
	"chaintix/internal/status"
	"chaintix/models"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testStart = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
)

type testIdentity struct {
	key  *secp256k1.PrivateKey
	addr string
}

func newTestIdentity(t *testing.T) testIdentity {
	t.Helper()

	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return testIdentity{key: key, addr: signer.AddressOf(key.PubKey())}
}

func (id testIdentity) sign(message []byte) []byte {
	compact := secpecdsa.SignCompact(id.key, signer.HashMessage(message), false)
	sig := make([]byte, signer.SignatureLength)
	copy(sig, compact[1:])
	sig[signer.SignatureLength-1] = compact[0] - 27
	return sig
}

func seedLedger(t *testing.T, maxSupply int) (*ledger.Memory, int64) {
	t.Helper()

	led := ledger.NewMemory()
	ctx := context.Background()

	eventID, err := led.CreateEvent(ctx, models.Event{
		Organizer: "0xorg",
		Title:     "Summer Festival",
		StartAt:   testStart,
		EndAt:     testEnd,
		Active:    true,
	})
	require.NoError(t, err)

	_, err = led.AddTier(ctx, eventID, models.Tier{
		Name:      "GA",
		Price:     decimal.RequireFromString("25.50"),
		MaxSupply: maxSupply,
		Token:     models.TokenNative,
		Active:    true,
	})
	require.NoError(t, err)

	return led, eventID
}

func TestIssuance_Purchase(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart.Add(-time.Hour))
	svc := NewIssuanceService(led, clk, nil, nil)

	buyer := newTestIdentity(t)
	message := []byte("purchase intent")

	result, err := svc.Purchase(context.Background(), PurchaseRequest{
		EventID:       eventID,
		TierIndex:     0,
		AttendeeCount: 3,
		Buyer:         buyer.addr,
		Message:       message,
		Signature:     buyer.sign(message),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.TicketID)
	assert.True(t, result.TotalPaid.Equal(decimal.RequireFromString("76.50")))
	assert.Equal(t, models.TokenNative, result.Token)

	// The credential round-trips and carries the purchase-time snapshot.
	cred, err := credential.Decode(result.Credential)
	require.NoError(t, err)
	assert.Equal(t, result.TicketID, cred.TicketID)
	assert.Equal(t, eventID, cred.EventID)
	assert.Equal(t, models.EventUpcoming, cred.EventStatus)

	// The minted ticket is on the ledger.
	ticket, err := led.GetTicket(context.Background(), result.TicketID)
	require.NoError(t, err)
	assert.Equal(t, buyer.addr, ticket.Owner)
	assert.Equal(t, 3, ticket.AttendeeCount)
	assert.False(t, ticket.Used)
}

func TestIssuance_Purchase_NotIdempotent(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	clk := clock.NewFixed(testStart)
	svc := NewIssuanceService(led, clk, nil, nil)

	buyer := newTestIdentity(t)
	message := []byte("purchase intent")
	req := PurchaseRequest{
		EventID:       eventID,
		TierIndex:     0,
		AttendeeCount: 1,
		Buyer:         buyer.addr,
		Message:       message,
		Signature:     buyer.sign(message),
	}

	first, err := svc.Purchase(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Purchase(context.Background(), req)
	require.NoError(t, err)

	// Identical requests mint distinct tickets.
	assert.NotEqual(t, first.TicketID, second.TicketID)

	tier, err := led.GetTier(context.Background(), eventID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, tier.CurrentSupply)
}

func TestIssuance_Purchase_BadSignature(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	svc := NewIssuanceService(led, clock.NewFixed(testStart), nil, nil)

	buyer := newTestIdentity(t)
	stranger := newTestIdentity(t)
	message := []byte("purchase intent")

	// Signature by someone else.
	_, err := svc.Purchase(context.Background(), PurchaseRequest{
		EventID:       eventID,
		TierIndex:     0,
		AttendeeCount: 1,
		Buyer:         buyer.addr,
		Message:       message,
		Signature:     stranger.sign(message),
	})
	assert.True(t, errors.Is(err, status.ErrUnauthorized))

	// Tampered message.
	_, err = svc.Purchase(context.Background(), PurchaseRequest{
		EventID:       eventID,
		TierIndex:     0,
		AttendeeCount: 1,
		Buyer:         buyer.addr,
		Message:       []byte("different intent"),
		Signature:     buyer.sign(message),
	})
	assert.True(t, errors.Is(err, status.ErrUnauthorized))

	// Nothing minted in either case.
	tier, err := led.GetTier(context.Background(), eventID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, tier.CurrentSupply)
}

func TestIssuance_Purchase_AttendeeBounds(t *testing.T) {
	led, eventID := seedLedger(t, 100)
	svc := NewIssuanceService(led, clock.NewFixed(testStart), nil, nil)

	buyer := newTestIdentity(t)
	message := []byte("purchase intent")
	sig := buyer.sign(message)

	for _, count := range []int{0, -1, 11} {
		_, err := svc.Purchase(context.Background(), PurchaseRequest{
			EventID:       eventID,
			TierIndex:     0,
			AttendeeCount: count,
			Buyer:         buyer.addr,
			Message:       message,
			Signature:     sig,
		})
		assert.True(t, errors.Is(err, status.ErrInvalidAttendeeCount), "count %d", count)
	}

	// Boundary values are accepted.
	for _, count := range []int{models.MinAttendees, models.MaxAttendees} {
		_, err := svc.Purchase(context.Background(), PurchaseRequest{
			EventID:       eventID,
			TierIndex:     0,
			AttendeeCount: count,
			Buyer:         buyer.addr,
			Message:       message,
			Signature:     sig,
		})
		assert.NoError(t, err, "count %d", count)
	}
}

func TestIssuance_Purchase_SoldOut(t *testing.T) {
	led, eventID := seedLedger(t, 2)
	svc := NewIssuanceService(led, clock.NewFixed(testStart), nil, nil)

	buyer := newTestIdentity(t)
	message := []byte("purchase intent")
	sig := buyer.sign(message)

	_, err := svc.Purchase(context.Background(), PurchaseRequest{
		EventID: eventID, TierIndex: 0, AttendeeCount: 2,
		Buyer: buyer.addr, Message: message, Signature: sig,
	})
	require.NoError(t, err)

	_, err = svc.Purchase(context.Background(), PurchaseRequest{
		EventID: eventID, TierIndex: 0, AttendeeCount: 1,
		Buyer: buyer.addr, Message: message, Signature: sig,
	})
	assert.True(t, errors.Is(err, status.ErrSoldOut))
}

func TestIssuance_Purchase_UnknownTier(t *testing.T) {
	led, eventID := seedLedger(t, 10)
	svc := NewIssuanceService(led, clock.NewFixed(testStart), nil, nil)

	buyer := newTestIdentity(t)
	message := []byte("purchase intent")

	_, err := svc.Purchase(context.Background(), PurchaseRequest{
		EventID: eventID, TierIndex: 5, AttendeeCount: 1,
		Buyer: buyer.addr, Message: message, Signature: buyer.sign(message),
	})
	assert.True(t, errors.Is(err, status.ErrTierNotFound))
}
