package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"chaintix/internal/status"
	"chaintix/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Redis is a ledger backend on a Redis instance. Redis executes Lua
// scripts serially, which gives ReserveCapacity the same
// check-and-commit serialization a chain transaction has: the supply
// re-check and the increment cannot interleave with another caller.
type Redis struct {
	client    *redis.Client
	opTimeout time.Duration
}

const defaultOpTimeout = 5 * time.Second

var _ Ledger = (*Redis)(nil)

func NewRedis(client *redis.Client, opTimeout time.Duration) *Redis {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Redis{client: client, opTimeout: opTimeout}
}

func eventKey(id int64) string              { return fmt.Sprintf("ledger:event:%d", id) }
func tierKey(eventID int64, idx int) string { return fmt.Sprintf("ledger:tier:%d:%d", eventID, idx) }
func ticketKey(id int64) string             { return fmt.Sprintf("ledger:ticket:%d", id) }

const (
	eventSeqKey  = "ledger:seq:event"
	ticketSeqKey = "ledger:seq:ticket"
)

// reserveScript is the single mutation entry point for tier supply.
// It re-checks capacity, bumps current_supply and mints the ticket
// hash in one eval.
const reserveScript = `
local max = tonumber(redis.call('HGET', KEYS[1], 'max_supply'))
local cur = tonumber(redis.call('HGET', KEYS[1], 'current_supply'))
local active = redis.call('HGET', KEYS[1], 'active')
if not max or active ~= '1' then
  return {-1, 'tier_not_found'}
end
local count = tonumber(ARGV[1])
if cur + count > max then
  return {-2, 'sold_out'}
end
redis.call('HSET', KEYS[1], 'current_supply', cur + count)
local id = redis.call('INCR', KEYS[2])
redis.call('HSET', 'ledger:ticket:' .. id,
  'event_id', ARGV[2],
  'tier_index', ARGV[3],
  'owner', ARGV[4],
  'attendee_count', ARGV[1],
  'total_paid', ARGV[5],
  'token', ARGV[6],
  'purchased_at', ARGV[7],
  'used', '0',
  'status_at_purchase', ARGV[8])
return {id, 'ok'}
`

// markUsedScript flips the used flag exactly once. Marking an
// already-used ticket reports 0 and the caller treats that as success.
const markUsedScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
  return 0
end
redis.call('HSET', KEYS[1], 'used', '1')
return 1
`

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

// unavailable wraps transport-level failures so callers can tell a
// dead ledger apart from a domain result.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, err)
}

func (r *Redis) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	data, err := r.client.HGetAll(ctx, eventKey(id)).Result()
	if err != nil {
		return models.Event{}, unavailable(err)
	}
	if len(data) == 0 {
		return models.Event{}, status.ErrEventNotFound
	}
	return eventFromHash(id, data), nil
}

func (r *Redis) GetTier(ctx context.Context, eventID int64, tierIndex int) (models.Tier, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	data, err := r.client.HGetAll(ctx, tierKey(eventID, tierIndex)).Result()
	if err != nil {
		return models.Tier{}, unavailable(err)
	}
	if len(data) == 0 {
		return models.Tier{}, status.ErrTierNotFound
	}
	return tierFromHash(eventID, tierIndex, data), nil
}

func (r *Redis) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	data, err := r.client.HGetAll(ctx, ticketKey(id)).Result()
	if err != nil {
		return models.Ticket{}, unavailable(err)
	}
	if len(data) == 0 {
		return models.Ticket{}, status.ErrTicketNotFound
	}
	return ticketFromHash(id, data), nil
}

func (r *Redis) ReserveCapacity(ctx context.Context, eventID int64, tierIndex int, req MintRequest) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.client.Eval(ctx, reserveScript,
		[]string{tierKey(eventID, tierIndex), ticketSeqKey},
		req.AttendeeCount,
		eventID,
		tierIndex,
		req.Buyer,
		req.TotalPaid.String(),
		string(req.Token),
		req.PurchasedAt.Unix(),
		string(req.StatusAtPurchase),
	).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) < 1 {
		return 0, unavailable(fmt.Errorf("unexpected reserve reply %v", res))
	}
	id, _ := reply[0].(int64)
	switch id {
	case -1:
		return 0, status.ErrTierNotFound
	case -2:
		return 0, status.ErrSoldOut
	}
	if id <= 0 {
		return 0, unavailable(fmt.Errorf("unexpected ticket id %d", id))
	}
	return id, nil
}

func (r *Redis) MarkUsed(ctx context.Context, ticketID int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.client.Eval(ctx, markUsedScript, []string{ticketKey(ticketID)}).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res == -1 {
		return status.ErrTicketNotFound
	}
	return nil
}

func (r *Redis) CreateEvent(ctx context.Context, ev models.Event) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id, err := r.client.Incr(ctx, eventSeqKey).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	active := "0"
	if ev.Active {
		active = "1"
	}
	if err := r.client.HSet(ctx, eventKey(id), map[string]any{
		"organizer":    ev.Organizer,
		"title":        ev.Title,
		"description":  ev.Description,
		"location":     ev.Location,
		"start_at":     ev.StartAt.Unix(),
		"end_at":       ev.EndAt.Unix(),
		"metadata_uri": ev.MetadataURI,
		"active":       active,
		"tier_count":   0,
	}).Err(); err != nil {
		return 0, unavailable(err)
	}
	return id, nil
}

// addTierScript assigns the next zero-based index and writes the tier
// hash in one eval so two concurrent organizers cannot claim the same
// slot.
const addTierScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local idx = tonumber(redis.call('HGET', KEYS[1], 'tier_count'))
redis.call('HSET', KEYS[1], 'tier_count', idx + 1)
redis.call('HSET', 'ledger:tier:' .. ARGV[1] .. ':' .. idx,
  'name', ARGV[2],
  'price', ARGV[3],
  'max_supply', ARGV[4],
  'current_supply', '0',
  'token', ARGV[5],
  'active', ARGV[6])
return idx
`

func (r *Redis) AddTier(ctx context.Context, eventID int64, tier models.Tier) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	active := "0"
	if tier.Active {
		active = "1"
	}
	idx, err := r.client.Eval(ctx, addTierScript,
		[]string{eventKey(eventID)},
		eventID,
		tier.Name,
		tier.Price.String(),
		tier.MaxSupply,
		string(tier.Token),
		active,
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	if idx == -1 {
		return 0, status.ErrEventNotFound
	}
	return int(idx), nil
}

func (r *Redis) DeactivateEvent(ctx context.Context, eventID int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	exists, err := r.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return unavailable(err)
	}
	if exists == 0 {
		return status.ErrEventNotFound
	}
	if err := r.client.HSet(ctx, eventKey(eventID), "active", "0").Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func eventFromHash(id int64, data map[string]string) models.Event {
	startAt, _ := strconv.ParseInt(data["start_at"], 10, 64)
	endAt, _ := strconv.ParseInt(data["end_at"], 10, 64)
	tierCount, _ := strconv.Atoi(data["tier_count"])

	return models.Event{
		ID:          id,
		Organizer:   data["organizer"],
		Title:       data["title"],
		Description: data["description"],
		Location:    data["location"],
		StartAt:     time.Unix(startAt, 0).UTC(),
		EndAt:       time.Unix(endAt, 0).UTC(),
		MetadataURI: data["metadata_uri"],
		Active:      data["active"] == "1",
		TierCount:   tierCount,
	}
}

func tierFromHash(eventID int64, idx int, data map[string]string) models.Tier {
	price, err := decimal.NewFromString(data["price"])
	if err != nil {
		price = decimal.Zero
	}
	maxSupply, _ := strconv.Atoi(data["max_supply"])
	currentSupply, _ := strconv.Atoi(data["current_supply"])

	token, err := models.ParseTokenKind(data["token"])
	if err != nil {
		token = models.TokenNative
	}

	return models.Tier{
		EventID:       eventID,
		Index:         idx,
		Name:          data["name"],
		Price:         price,
		MaxSupply:     maxSupply,
		CurrentSupply: currentSupply,
		Token:         token,
		Active:        data["active"] == "1",
	}
}

func ticketFromHash(id int64, data map[string]string) models.Ticket {
	eventID, _ := strconv.ParseInt(data["event_id"], 10, 64)
	tierIndex, _ := strconv.Atoi(data["tier_index"])
	attendees, _ := strconv.Atoi(data["attendee_count"])
	purchasedAt, _ := strconv.ParseInt(data["purchased_at"], 10, 64)

	paid, err := decimal.NewFromString(data["total_paid"])
	if err != nil {
		paid = decimal.Zero
	}
	token, err := models.ParseTokenKind(data["token"])
	if err != nil {
		token = models.TokenNative
	}
	evStatus, err := models.ParseEventStatus(data["status_at_purchase"])
	if err != nil {
		evStatus = models.EventUpcoming
	}

	return models.Ticket{
		ID:               id,
		EventID:          eventID,
		TierIndex:        tierIndex,
		Owner:            data["owner"],
		AttendeeCount:    attendees,
		TotalPaid:        paid,
		Token:            token,
		PurchasedAt:      time.Unix(purchasedAt, 0).UTC(),
		Used:             data["used"] == "1",
		StatusAtPurchase: evStatus,
	}
}
