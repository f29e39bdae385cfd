package ledger

import (
	"context"
	"errors"
	"time"

	"chaintix/internal/status"
	"chaintix/models"
	"chaintix/monitoring"
	"chaintix/utils"
)

// Guarded decorates a ledger with the circuit breaker and round-trip
// metrics. Domain results (sold out, not found) count as successes for
// the breaker: the ledger answered, the answer was just no.
type Guarded struct {
	inner   Ledger
	breaker *utils.CircuitBreaker
	monitor *monitoring.Monitor
}

var _ Ledger = (*Guarded)(nil)

func NewGuarded(inner Ledger, breaker *utils.CircuitBreaker, monitor *monitoring.Monitor) *Guarded {
	return &Guarded{inner: inner, breaker: breaker, monitor: monitor}
}

func isDomain(err error) bool {
	return errors.Is(err, status.ErrSoldOut) ||
		errors.Is(err, status.ErrEventNotFound) ||
		errors.Is(err, status.ErrTierNotFound) ||
		errors.Is(err, status.ErrTicketNotFound)
}

// run executes one ledger call under the breaker. The returned error
// is what the caller should see: either the inner call's error or the
// breaker's fast-fail.
func (g *Guarded) run(op string, fn func() error) error {
	start := time.Now()

	var innerErr error
	breakerErr := g.breaker.Execute(func() error {
		innerErr = fn()
		if innerErr != nil && !isDomain(innerErr) {
			return innerErr
		}
		return nil
	})

	g.monitor.ObserveLedgerOp(op, time.Since(start))

	if innerErr != nil {
		return innerErr
	}
	return breakerErr
}

func (g *Guarded) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	var ev models.Event
	err := g.run("get_event", func() error {
		var err error
		ev, err = g.inner.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

func (g *Guarded) GetTier(ctx context.Context, eventID int64, tierIndex int) (models.Tier, error) {
	var tier models.Tier
	err := g.run("get_tier", func() error {
		var err error
		tier, err = g.inner.GetTier(ctx, eventID, tierIndex)
		return err
	})
	if err != nil {
		return models.Tier{}, err
	}
	return tier, nil
}

func (g *Guarded) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	var t models.Ticket
	err := g.run("get_ticket", func() error {
		var err error
		t, err = g.inner.GetTicket(ctx, id)
		return err
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return t, nil
}

func (g *Guarded) ReserveCapacity(ctx context.Context, eventID int64, tierIndex int, req MintRequest) (int64, error) {
	var id int64
	err := g.run("reserve", func() error {
		var err error
		id, err = g.inner.ReserveCapacity(ctx, eventID, tierIndex, req)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Guarded) MarkUsed(ctx context.Context, ticketID int64) error {
	return g.run("mark_used", func() error {
		return g.inner.MarkUsed(ctx, ticketID)
	})
}

func (g *Guarded) CreateEvent(ctx context.Context, ev models.Event) (int64, error) {
	var id int64
	err := g.run("create_event", func() error {
		var err error
		id, err = g.inner.CreateEvent(ctx, ev)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Guarded) AddTier(ctx context.Context, eventID int64, tier models.Tier) (int, error) {
	var idx int
	err := g.run("add_tier", func() error {
		var err error
		idx, err = g.inner.AddTier(ctx, eventID, tier)
		return err
	})
	if err != nil {
		return 0, err
	}
	return idx, nil
}

func (g *Guarded) DeactivateEvent(ctx context.Context, eventID int64) error {
	return g.run("deactivate_event", func() error {
		return g.inner.DeactivateEvent(ctx, eventID)
	})
}
