// Package gateway talks to a remote ledger gateway: the HTTP facade
// deployments put in front of the chain node. The gateway executes the
// actual chain transactions; this client only relays requests and maps
// replies onto the ledger contract.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chaintix/internal/ledger"
	"chaintix/internal/status"
	"chaintix/models"

	"github.com/shopspring/decimal"
)

type Config struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	PartnerID string `json:"partnerId" mapstructure:"partner_id"`
	ClientID  string `json:"clientId" mapstructure:"client_id"`
	ClientKey string `json:"clientKey" mapstructure:"client_key"`
	HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`

	PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
	PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
}

// Client is an HMAC-signed HTTP client for the ledger gateway. Every
// request body is signed with the shared HMAC key; the access token is
// refreshed in the background when the gateway rejects it.
type Client struct {
	baseURL   string
	partnerID string
	clientID  string
	clientKey string
	hmacKey   string

	accessToken string
	mu          sync.Mutex

	// toggleTokenRefresher wakes the refresher when a 401 comes back.
	toggleTokenRefresher chan struct{}

	hc *http.Client
}

var _ ledger.Ledger = (*Client)(nil)

// New connects to the gateway, obtains an access token and starts the
// background token refresher.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	c := &Client{
		baseURL:   cfg.BaseURL,
		partnerID: cfg.PartnerID,
		clientID:  cfg.ClientID,
		clientKey: cfg.ClientKey,
		hmacKey:   cfg.HMACKey,

		toggleTokenRefresher: make(chan struct{}, 1),

		hc: &http.Client{Timeout: 10 * time.Second},
	}

	token, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.setAccessToken(token)

	go c.notifyAccessTokenExpired(ctx)

	return c, nil
}

// notifyAccessTokenExpired renews the token periodically, and
// immediately after a 401, with exponential backoff on failure.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("gateway: token rejected, refreshing")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)
				break Retry

			default:
				log.Printf("gateway: reconnect: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) connect(ctx context.Context) (string, error) {
	reqID, err := requestID()
	if err != nil {
		return "", fmt.Errorf("gateway connect: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"clientId":%q,"clientSecret":%q}`,
		reqID, c.partnerID, c.clientID, c.clientKey)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/ledger/v1/authenticate", body, false, &reply); err != nil {
		return "", err
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("gateway connect: status %v: %v", reply.Status, reply.Message)
	}

	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

// post signs and sends one request. A non-OK domain status is left for
// the caller to interpret; transport failures come back wrapped.
func (c *Client) post(ctx context.Context, path, body string, authed bool, reply any) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("gateway: bad base url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String()+path, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
	if authed {
		req.Header.Set("Authorization", c.getAccessToken())
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		select {
		case c.toggleTokenRefresher <- struct{}{}:
		default:
		}
		return errors.New("gateway: 401 unauthorized")
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(reply); err != nil {
		return fmt.Errorf("%w: decode: %v", status.ErrLedgerUnavailable, err)
	}
	return nil
}

type eventPayload struct {
	ID          int64  `json:"id"`
	Organizer   string `json:"organizer"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartAt     int64  `json:"startAt"`
	EndAt       int64  `json:"endAt"`
	MetadataURI string `json:"metadataUri"`
	Active      bool   `json:"active"`
	TierCount   int    `json:"tierCount"`
}

type tierPayload struct {
	Name          string `json:"name"`
	Price         string `json:"price"`
	MaxSupply     int    `json:"maxSupply"`
	CurrentSupply int    `json:"currentSupply"`
	Token         string `json:"token"`
	Active        bool   `json:"active"`
}

type ticketPayload struct {
	ID               int64  `json:"id"`
	EventID          int64  `json:"eventId"`
	TierIndex        int    `json:"tierIndex"`
	Owner            string `json:"owner"`
	AttendeeCount    int    `json:"attendeeCount"`
	TotalPaid        string `json:"totalPaid"`
	Token            string `json:"token"`
	PurchasedAt      int64  `json:"purchasedAt"`
	Used             bool   `json:"used"`
	StatusAtPurchase string `json:"statusAtPurchase"`
}

func (c *Client) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	body := fmt.Sprintf(`{"eventId":%d}`, id)

	var reply struct {
		Status  string       `json:"status"`
		Message string       `json:"message"`
		Data    eventPayload `json:"data"`
	}
	if err := c.post(ctx, "/api/ledger/v1/event/get", body, true, &reply); err != nil {
		return models.Event{}, err
	}
	switch reply.Status {
	case "OK":
	case "NOT_FOUND":
		return models.Event{}, status.ErrEventNotFound
	default:
		return models.Event{}, fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, reply.Message)
	}

	return models.Event{
		ID:          reply.Data.ID,
		Organizer:   reply.Data.Organizer,
		Title:       reply.Data.Title,
		Description: reply.Data.Description,
		Location:    reply.Data.Location,
		StartAt:     time.Unix(reply.Data.StartAt, 0).UTC(),
		EndAt:       time.Unix(reply.Data.EndAt, 0).UTC(),
		MetadataURI: reply.Data.MetadataURI,
		Active:      reply.Data.Active,
		TierCount:   reply.Data.TierCount,
	}, nil
}

func (c *Client) GetTier(ctx context.Context, eventID int64, tierIndex int) (models.Tier, error) {
	body := fmt.Sprintf(`{"eventId":%d,"tierIndex":%d}`, eventID, tierIndex)

	var reply struct {
		Status  string      `json:"status"`
		Message string      `json:"message"`
		Data    tierPayload `json:"data"`
	}
	if err := c.post(ctx, "/api/ledger/v1/tier/get", body, true, &reply); err != nil {
		return models.Tier{}, err
	}
	switch reply.Status {
	case "OK":
	case "NOT_FOUND":
		return models.Tier{}, status.ErrTierNotFound
	default:
		return models.Tier{}, fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, reply.Message)
	}

	price, err := decimal.NewFromString(reply.Data.Price)
	if err != nil {
		price = decimal.Zero
	}
	token, err := models.ParseTokenKind(reply.Data.Token)
	if err != nil {
		token = models.TokenNative
	}

	return models.Tier{
		EventID:       eventID,
		Index:         tierIndex,
		Name:          reply.Data.Name,
		Price:         price,
		MaxSupply:     reply.Data.MaxSupply,
		CurrentSupply: reply.Data.CurrentSupply,
		Token:         token,
		Active:        reply.Data.Active,
	}, nil
}

func (c *Client) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	body := fmt.Sprintf(`{"ticketId":%d}`, id)

	var reply struct {
		Status  string        `json:"status"`
		Message string        `json:"message"`
		Data    ticketPayload `json:"data"`
	}
	if err := c.post(ctx, "/api/ledger/v1/ticket/get", body, true, &reply); err != nil {
		return models.Ticket{}, err
	}
	switch reply.Status {
	case "OK":
	case "NOT_FOUND":
		return models.Ticket{}, status.ErrTicketNotFound
	default:
		return models.Ticket{}, fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, reply.Message)
	}

	return ticketFromPayload(reply.Data), nil
}

func (c *Client) ReserveCapacity(ctx context.Context, eventID int64, tierIndex int, req ledger.MintRequest) (int64, error) {
	reqID, err := requestID()
	if err != nil {
		return 0, fmt.Errorf("gateway reserve: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"eventId":%d,"tierIndex":%d,"attendeeCount":%d,"buyer":%q,"totalPaid":%q,"token":%q,"purchasedAt":%d,"statusAtPurchase":%q}`,
		reqID, eventID, tierIndex, req.AttendeeCount, req.Buyer,
		req.TotalPaid.String(), req.Token, req.PurchasedAt.Unix(), req.StatusAtPurchase)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			TicketID int64 `json:"ticketId"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/ledger/v1/reserve", body, true, &reply); err != nil {
		return 0, err
	}
	switch reply.Status {
	case "OK":
		return reply.Data.TicketID, nil
	case "SOLD_OUT":
		return 0, status.ErrSoldOut
	case "NOT_FOUND":
		return 0, status.ErrTierNotFound
	default:
		return 0, fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, reply.Message)
	}
}

func (c *Client) MarkUsed(ctx context.Context, ticketID int64) error {
	body := fmt.Sprintf(`{"ticketId":%d}`, ticketID)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/api/ledger/v1/ticket/mark-used", body, true, &reply); err != nil {
		return err
	}
	switch reply.Status {
	case "OK", "ALREADY_USED":
		return nil
	case "NOT_FOUND":
		return status.ErrTicketNotFound
	default:
		return fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, reply.Message)
	}
}

func (c *Client) CreateEvent(ctx context.Context, ev models.Event) (int64, error) {
	payload, err := json.Marshal(eventPayload{
		Organizer:   ev.Organizer,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		StartAt:     ev.StartAt.Unix(),
		EndAt:       ev.EndAt.Unix(),
		MetadataURI: ev.MetadataURI,
		Active:      ev.Active,
	})
	if err != nil {
		return 0, fmt.Errorf("gateway create event: %w", err)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			EventID int64 `json:"eventId"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/ledger/v1/event/create", string(payload), true, &reply); err != nil {
		return 0, err
	}
	if reply.Status != "OK" {
		return 0, fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, reply.Message)
	}
	return reply.Data.EventID, nil
}

func (c *Client) AddTier(ctx context.Context, eventID int64, tier models.Tier) (int, error) {
	body := fmt.Sprintf(`{"eventId":%d,"name":%q,"price":%q,"maxSupply":%d,"token":%q,"active":%t}`,
		eventID, tier.Name, tier.Price.String(), tier.MaxSupply, tier.Token, tier.Active)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			TierIndex int `json:"tierIndex"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/ledger/v1/tier/add", body, true, &reply); err != nil {
		return 0, err
	}
	switch reply.Status {
	case "OK":
		return reply.Data.TierIndex, nil
	case "NOT_FOUND":
		return 0, status.ErrEventNotFound
	default:
		return 0, fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, reply.Message)
	}
}

func (c *Client) DeactivateEvent(ctx context.Context, eventID int64) error {
	body := fmt.Sprintf(`{"eventId":%d}`, eventID)

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/api/ledger/v1/event/deactivate", body, true, &reply); err != nil {
		return err
	}
	switch reply.Status {
	case "OK":
		return nil
	case "NOT_FOUND":
		return status.ErrEventNotFound
	default:
		return fmt.Errorf("%w: %v", status.ErrLedgerUnavailable, reply.Message)
	}
}

func ticketFromPayload(p ticketPayload) models.Ticket {
	paid, err := decimal.NewFromString(p.TotalPaid)
	if err != nil {
		paid = decimal.Zero
	}
	token, err := models.ParseTokenKind(p.Token)
	if err != nil {
		token = models.TokenNative
	}
	evStatus, err := models.ParseEventStatus(p.StatusAtPurchase)
	if err != nil {
		evStatus = models.EventUpcoming
	}

	return models.Ticket{
		ID:               p.ID,
		EventID:          p.EventID,
		TierIndex:        p.TierIndex,
		Owner:            p.Owner,
		AttendeeCount:    p.AttendeeCount,
		TotalPaid:        paid,
		Token:            token,
		PurchasedAt:      time.Unix(p.PurchasedAt, 0).UTC(),
		Used:             p.Used,
		StatusAtPurchase: evStatus,
	}
}
