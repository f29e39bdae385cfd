package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"chaintix/internal/status"
	"chaintix/models"
	"chaintix/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingLedger always reports a transport failure.
type failingLedger struct {
	Memory
}

func (f *failingLedger) GetTicket(context.Context, int64) (models.Ticket, error) {
	return models.Ticket{}, status.ErrLedgerUnavailable
}

func TestGuarded_PassesThroughDomainResults(t *testing.T) {
	mem := NewMemory()
	eventID := seedEvent(t, mem, 1)

	breaker := newTestBreaker()
	g := NewGuarded(mem, breaker, nil)
	ctx := context.Background()

	_, err := g.ReserveCapacity(ctx, eventID, 0, mintReq(1))
	require.NoError(t, err)

	// Sold out is a domain answer, returned as-is.
	_, err = g.ReserveCapacity(ctx, eventID, 0, mintReq(1))
	assert.True(t, errors.Is(err, status.ErrSoldOut))

	_, err = g.GetTicket(ctx, 999)
	assert.True(t, errors.Is(err, status.ErrTicketNotFound))
}

// Domain rejections never trip the breaker, only transport failures do.
func TestGuarded_DomainErrorsDoNotTrip(t *testing.T) {
	mem := NewMemory()
	seedEvent(t, mem, 0) // zero supply, every reserve is SoldOut

	g := NewGuarded(mem, newTestBreaker(), nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := g.ReserveCapacity(ctx, 1, 0, mintReq(1))
		assert.True(t, errors.Is(err, status.ErrSoldOut))
	}

	// The ledger still answers.
	_, err := g.GetEvent(ctx, 1)
	assert.NoError(t, err)
}

func TestGuarded_TripsOnTransportFailures(t *testing.T) {
	g := NewGuarded(&failingLedger{}, newTestBreaker(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.GetTicket(ctx, 1)
		assert.True(t, errors.Is(err, status.ErrLedgerUnavailable))
	}

	// Breaker is open now; even an op the inner ledger could serve
	// fails fast.
	_, err := g.GetEvent(ctx, 1)
	assert.True(t, errors.Is(err, status.ErrLedgerUnavailable))
}

func newTestBreaker() *utils.CircuitBreaker {
	return utils.NewCircuitBreaker("test",
		utils.WithThresholds(5, 0.6),
		utils.WithTimeout(time.Minute),
	)
}
