package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"chaintix/internal/services"
	"chaintix/internal/status"
	"chaintix/models"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type EventHandler struct {
	app    *pocketbase.PocketBase
	events *services.EventService
}

func NewEventHandler(app *pocketbase.PocketBase, events *services.EventService) *EventHandler {
	return &EventHandler{
		app:    app,
		events: events,
	}
}

// CreateEvent - Organizer lists a new event
func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	var req struct {
		Organizer   string `json:"organizer"`
		Message     string `json:"message"`
		Signature   string `json:"signature"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Location    string `json:"location"`
		StartAt     string `json:"start_at"`
		EndAt       string `json:"end_at"`
		MetadataURI string `json:"metadata_uri"`
		FeePaid     string `json:"fee_paid"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	sig, err := decodeSignature(req.Signature)
	if err != nil {
		return apis.NewBadRequestError("Signature must be hex", err)
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		return apis.NewBadRequestError("start_at must be RFC3339", err)
	}
	endAt, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		return apis.NewBadRequestError("end_at must be RFC3339", err)
	}
	feePaid, err := decimal.NewFromString(req.FeePaid)
	if err != nil {
		return apis.NewBadRequestError("fee_paid must be a decimal string", err)
	}

	id, err := h.events.CreateEvent(e.Request.Context(), services.CreateEventRequest{
		Organizer:   req.Organizer,
		Message:     []byte(req.Message),
		Signature:   sig,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartAt:     startAt,
		EndAt:       endAt,
		MetadataURI: req.MetadataURI,
		FeePaid:     feePaid,
	})
	if err != nil {
		return h.eventError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"event_id": id})
}

// AddTier - Organizer adds a ticket tier to their event
func (h *EventHandler) AddTier(e *core.RequestEvent) error {
	var req struct {
		EventID   int64  `json:"event_id"`
		Organizer string `json:"organizer"`
		Message   string `json:"message"`
		Signature string `json:"signature"`
		Name      string `json:"name"`
		Price     string `json:"price"`
		MaxSupply int    `json:"max_supply"`
		Token     string `json:"token"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	sig, err := decodeSignature(req.Signature)
	if err != nil {
		return apis.NewBadRequestError("Signature must be hex", err)
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return apis.NewBadRequestError("price must be a decimal string", err)
	}
	token, err := models.ParseTokenKind(req.Token)
	if err != nil {
		return apis.NewBadRequestError("Unknown token kind", err)
	}

	idx, err := h.events.AddTier(e.Request.Context(), services.AddTierRequest{
		EventID:   req.EventID,
		Organizer: req.Organizer,
		Message:   []byte(req.Message),
		Signature: sig,
		Name:      req.Name,
		Price:     price,
		MaxSupply: req.MaxSupply,
		Token:     token,
	})
	if err != nil {
		return h.eventError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"event_id": req.EventID, "tier_index": idx})
}

// DeactivateEvent - Organizer takes their event off sale
func (h *EventHandler) DeactivateEvent(e *core.RequestEvent) error {
	var req struct {
		EventID   int64  `json:"event_id"`
		Message   string `json:"message"`
		Signature string `json:"signature"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	sig, err := decodeSignature(req.Signature)
	if err != nil {
		return apis.NewBadRequestError("Signature must be hex", err)
	}

	if err := h.events.DeactivateEvent(e.Request.Context(), req.EventID, []byte(req.Message), sig); err != nil {
		return h.eventError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"event_id": req.EventID, "active": false})
}

// GetEvent - Public event lookup
func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	id, err := strconv.ParseInt(e.Request.PathValue("id"), 10, 64)
	if err != nil {
		return apis.NewBadRequestError("Invalid event id", err)
	}

	event, err := h.events.Ledger.GetEvent(e.Request.Context(), id)
	if err != nil {
		return h.eventError(e, err)
	}

	return e.JSON(http.StatusOK, event)
}

func (h *EventHandler) eventError(e *core.RequestEvent, err error) error {
	switch {
	case errors.Is(err, status.ErrUnauthorized):
		return apis.NewUnauthorizedError("Signature does not match organizer", nil)
	case errors.Is(err, status.ErrInvalidSchedule):
		return apis.NewBadRequestError("Event must end after it starts", nil)
	case errors.Is(err, status.ErrListingFeeTooLow):
		return apis.NewBadRequestError("Listing fee below minimum", nil)
	case errors.Is(err, status.ErrInvalidTier):
		return apis.NewBadRequestError("Tier needs a positive supply and non-negative price", nil)
	case errors.Is(err, status.ErrEventNotFound):
		return apis.NewNotFoundError("Event not found", nil)
	case errors.Is(err, status.ErrLedgerUnavailable):
		return e.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Ledger unavailable"})
	default:
		return apis.NewBadRequestError("Request failed", err)
	}
}
