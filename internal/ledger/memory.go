package ledger

import (
	"context"
	"sync"

	"chaintix/internal/status"
	"chaintix/models"
)

// Memory is an in-process ledger. A single mutex stands in for the
// chain's total ordering of transactions, so the reserve check and the
// supply increment commit as one step exactly like the real ledger.
// Used by tests and local development.
type Memory struct {
	mu sync.Mutex

	events  map[int64]models.Event
	tiers   map[int64][]models.Tier
	tickets map[int64]models.Ticket

	nextEventID  int64
	nextTicketID int64
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		events:       make(map[int64]models.Event),
		tiers:        make(map[int64][]models.Tier),
		tickets:      make(map[int64]models.Ticket),
		nextEventID:  1,
		nextTicketID: 1,
	}
}

func (m *Memory) GetEvent(_ context.Context, id int64) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return models.Event{}, status.ErrEventNotFound
	}
	return ev, nil
}

func (m *Memory) GetTier(_ context.Context, eventID int64, tierIndex int) (models.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tiers, ok := m.tiers[eventID]
	if !ok || tierIndex < 0 || tierIndex >= len(tiers) {
		return models.Tier{}, status.ErrTierNotFound
	}
	return tiers[tierIndex], nil
}

func (m *Memory) GetTicket(_ context.Context, id int64) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return models.Ticket{}, status.ErrTicketNotFound
	}
	return t, nil
}

func (m *Memory) ReserveCapacity(_ context.Context, eventID int64, tierIndex int, req MintRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tiers, ok := m.tiers[eventID]
	if !ok || tierIndex < 0 || tierIndex >= len(tiers) {
		return 0, status.ErrTierNotFound
	}
	tier := tiers[tierIndex]
	if !tier.Active {
		return 0, status.ErrTierNotFound
	}

	// The commit-time check. Everything before this line is irrelevant
	// to correctness: this is the only place supply moves.
	if tier.CurrentSupply+req.AttendeeCount > tier.MaxSupply {
		return 0, status.ErrSoldOut
	}
	tier.CurrentSupply += req.AttendeeCount
	m.tiers[eventID][tierIndex] = tier

	id := m.nextTicketID
	m.nextTicketID++
	m.tickets[id] = models.Ticket{
		ID:               id,
		EventID:          eventID,
		TierIndex:        tierIndex,
		Owner:            req.Buyer,
		AttendeeCount:    req.AttendeeCount,
		TotalPaid:        req.TotalPaid,
		Token:            req.Token,
		PurchasedAt:      req.PurchasedAt,
		Used:             false,
		StatusAtPurchase: req.StatusAtPurchase,
	}

	return id, nil
}

func (m *Memory) MarkUsed(_ context.Context, ticketID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[ticketID]
	if !ok {
		return status.ErrTicketNotFound
	}
	if t.Used {
		// Idempotent by contract.
		return nil
	}
	t.Used = true
	m.tickets[ticketID] = t
	return nil
}

func (m *Memory) CreateEvent(_ context.Context, ev models.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = m.nextEventID
	m.nextEventID++
	ev.TierCount = 0
	m.events[ev.ID] = ev
	return ev.ID, nil
}

func (m *Memory) AddTier(_ context.Context, eventID int64, tier models.Tier) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok {
		return 0, status.ErrEventNotFound
	}

	tier.EventID = eventID
	tier.Index = len(m.tiers[eventID])
	tier.CurrentSupply = 0
	m.tiers[eventID] = append(m.tiers[eventID], tier)

	ev.TierCount = len(m.tiers[eventID])
	m.events[eventID] = ev

	return tier.Index, nil
}

func (m *Memory) DeactivateEvent(_ context.Context, eventID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok {
		return status.ErrEventNotFound
	}
	ev.Active = false
	m.events[eventID] = ev
	return nil
}
