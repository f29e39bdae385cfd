package handlers

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chaintix/internal/services"
	"chaintix/internal/status"
	"chaintix/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PurchaseHandler struct {
	app      *pocketbase.PocketBase
	issuance *services.IssuanceService
}

func NewPurchaseHandler(app *pocketbase.PocketBase, issuance *services.IssuanceService) *PurchaseHandler {
	return &PurchaseHandler{
		app:      app,
		issuance: issuance,
	}
}

// decodeSignature accepts the 0x-prefixed hex form wallets produce.
func decodeSignature(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// Purchase - Buy tickets for a tier
func (h *PurchaseHandler) Purchase(e *core.RequestEvent) error {
	var req struct {
		EventID       int64  `json:"event_id"`
		TierIndex     int    `json:"tier_index"`
		AttendeeCount int    `json:"attendee_count"`
		Buyer         string `json:"buyer"`
		Message       string `json:"message"`
		Signature     string `json:"signature"`
	}

	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Buyer == "" {
		return apis.NewBadRequestError("Buyer identity required", nil)
	}

	sig, err := decodeSignature(req.Signature)
	if err != nil {
		return apis.NewBadRequestError("Signature must be hex", err)
	}

	ctx := e.Request.Context()

	result, err := h.issuance.Purchase(ctx, services.PurchaseRequest{
		EventID:       req.EventID,
		TierIndex:     req.TierIndex,
		AttendeeCount: req.AttendeeCount,
		Buyer:         req.Buyer,
		Message:       []byte(req.Message),
		Signature:     sig,
	})
	if err != nil {
		switch {
		case errors.Is(err, status.ErrUnauthorized):
			return apis.NewUnauthorizedError("Signature does not match buyer", nil)
		case errors.Is(err, status.ErrInvalidAttendeeCount):
			return apis.NewBadRequestError("Attendee count must be between 1 and 10", nil)
		case errors.Is(err, status.ErrTierNotFound):
			return apis.NewNotFoundError("Tier not found", nil)
		case errors.Is(err, status.ErrEventNotFound):
			return apis.NewNotFoundError("Event not found", nil)
		case errors.Is(err, status.ErrSoldOut):
			return e.JSON(http.StatusConflict, map[string]string{"error": "Tier sold out"})
		case errors.Is(err, status.ErrLedgerUnavailable):
			return e.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Ledger unavailable, do not retry blindly"})
		default:
			return apis.NewBadRequestError("Purchase failed", err)
		}
	}

	h.writeReceipt(req.EventID, req.Buyer, result)

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id":  result.TicketID,
		"total_paid": result.TotalPaid.String(),
		"token":      result.Token,
		"credential": result.Credential,
	})
}

// writeReceipt journals the mint off-chain for organizer reporting.
// The journal is observational; a write failure never fails the
// purchase, the mint is already final on the ledger.
func (h *PurchaseHandler) writeReceipt(eventID int64, buyer string, result *services.PurchaseResult) {
	collection, err := h.app.FindCollectionByNameOrId("receipts")
	if err != nil {
		slog.Error("receipts collection missing", "error", err)
		return
	}

	ref, _ := utils.GenerateCode(4)

	record := core.NewRecord(collection)
	record.Set("ticket_id", result.TicketID)
	record.Set("event_id", eventID)
	record.Set("buyer", buyer)
	record.Set("total_paid", result.TotalPaid.String())
	record.Set("token", string(result.Token))
	record.Set("reference", ref)

	if err := h.app.Save(record); err != nil {
		slog.Error("failed to journal receipt", "ticket_id", result.TicketID, "error", err)
	}
}
