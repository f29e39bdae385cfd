// Package credential encodes and decodes the QR payload that binds a
// ticket to its verification metadata. The payload is derived data: it
// is always re-validated against ledger facts and never trusted on its
// own.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"chaintix/internal/status"
	"chaintix/models"

	"github.com/shopspring/decimal"
)

// Version is the current payload protocol version.
const Version = 2

// Credential is the decoded QR payload.
type Credential struct {
	TicketID      int64
	EventID       int64
	AttendeeCount int
	Purchaser     string
	TotalPaid     decimal.Decimal
	Token         models.TokenKind
	PurchasedAt   time.Time
	EventStatus   models.EventStatus
	Version       int

	// Partial is set when structured decoding failed and only the bare
	// ticket identifier could be salvaged. Everything except TicketID
	// is untrustworthy in that case.
	Partial bool
}

// wirePayload is the stable external JSON shape. Decoders elsewhere
// depend on these exact field names.
type wirePayload struct {
	TicketID          int64           `json:"ticketId"`
	EventID           int64           `json:"eventId"`
	AttendeeCount     int             `json:"attendeeCount"`
	Purchaser         string          `json:"purchaser"`
	TotalAmountPaid   decimal.Decimal `json:"totalAmountPaid"`
	TokenType         string          `json:"tokenType"`
	PurchaseTimestamp int64           `json:"purchaseTimestamp"`
	EventStatus       string          `json:"eventStatus"`
	Version           int             `json:"version"`
}

// legacyPayload is the first-generation shape still present on printed
// tickets in the field.
type legacyPayload struct {
	TicketID    string `json:"ticket_id"`
	EventID     string `json:"event_id"`
	Attendees   int    `json:"attendees"`
	Purchaser   string `json:"purchaser"`
	AmountPaid  string `json:"amount_paid"`
	Token       string `json:"token"`
	PurchasedAt int64  `json:"purchased_at"`
}

// Encode serializes a credential into the opaque QR string:
// URL-safe base64 over the versioned JSON payload.
func Encode(c Credential) (string, error) {
	p := wirePayload{
		TicketID:          c.TicketID,
		EventID:           c.EventID,
		AttendeeCount:     c.AttendeeCount,
		Purchaser:         c.Purchaser,
		TotalAmountPaid:   c.TotalPaid,
		TokenType:         string(c.Token),
		PurchaseTimestamp: c.PurchasedAt.Unix(),
		EventStatus:       string(c.EventStatus),
		Version:           Version,
	}

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("credential encode: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// FromTicket builds the credential for a freshly minted ticket.
func FromTicket(t models.Ticket) Credential {
	return Credential{
		TicketID:      t.ID,
		EventID:       t.EventID,
		AttendeeCount: t.AttendeeCount,
		Purchaser:     t.Owner,
		TotalPaid:     t.TotalPaid,
		Token:         t.Token,
		PurchasedAt:   t.PurchasedAt,
		EventStatus:   t.StatusAtPurchase,
		Version:       Version,
	}
}

var bareTicketID = regexp.MustCompile(`[0-9]{1,18}`)

// Decode parses an opaque QR string. It accepts the current payload,
// the legacy shape, and as a last resort salvages a bare ticket id from
// the raw input. It never panics on attacker-controlled input; every
// failure maps to status.ErrMalformedCredential.
func Decode(raw string) (Credential, error) {
	if raw == "" {
		return Credential{}, status.ErrMalformedCredential
	}

	payload := raw
	if decoded, err := base64.URLEncoding.DecodeString(raw); err == nil {
		payload = string(decoded)
	} else if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		payload = string(decoded)
	}

	if c, ok := decodeCurrent(payload); ok {
		return c, nil
	}
	if c, ok := decodeLegacy(payload); ok {
		return c, nil
	}

	// Degraded path: pull the first plausible numeric id out of the
	// payload so a damaged QR can still resolve against the ledger.
	if m := bareTicketID.FindString(payload); m != "" {
		id, err := strconv.ParseInt(m, 10, 64)
		if err == nil && id > 0 {
			return Credential{TicketID: id, Partial: true, Version: 0}, nil
		}
	}

	return Credential{}, status.ErrMalformedCredential
}

func decodeCurrent(payload string) (Credential, bool) {
	var p wirePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Credential{}, false
	}
	if p.TicketID <= 0 || p.Version < 2 {
		return Credential{}, false
	}

	token, err := models.ParseTokenKind(p.TokenType)
	if err != nil {
		token = models.TokenNative
	}
	evStatus, err := models.ParseEventStatus(p.EventStatus)
	if err != nil {
		evStatus = models.EventUpcoming
	}

	return Credential{
		TicketID:      p.TicketID,
		EventID:       p.EventID,
		AttendeeCount: p.AttendeeCount,
		Purchaser:     p.Purchaser,
		TotalPaid:     p.TotalAmountPaid,
		Token:         token,
		PurchasedAt:   time.Unix(p.PurchaseTimestamp, 0).UTC(),
		EventStatus:   evStatus,
		Version:       p.Version,
	}, true
}

func decodeLegacy(payload string) (Credential, bool) {
	var p legacyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Credential{}, false
	}

	ticketID, err := strconv.ParseInt(p.TicketID, 10, 64)
	if err != nil || ticketID <= 0 {
		return Credential{}, false
	}
	eventID, _ := strconv.ParseInt(p.EventID, 10, 64)

	paid, err := decimal.NewFromString(p.AmountPaid)
	if err != nil {
		paid = decimal.Zero
	}
	token, err := models.ParseTokenKind(p.Token)
	if err != nil {
		token = models.TokenNative
	}

	return Credential{
		TicketID:      ticketID,
		EventID:       eventID,
		AttendeeCount: p.Attendees,
		Purchaser:     p.Purchaser,
		TotalPaid:     paid,
		Token:         token,
		PurchasedAt:   time.Unix(p.PurchasedAt, 0).UTC(),
		Version:       1,
	}, true
}
