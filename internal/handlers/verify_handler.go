package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"chaintix/internal/services"
	"chaintix/internal/status"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type VerifyHandler struct {
	app      *pocketbase.PocketBase
	verifier *services.VerificationService
}

func NewVerifyHandler(app *pocketbase.PocketBase, verifier *services.VerificationService) *VerifyHandler {
	return &VerifyHandler{
		app:      app,
		verifier: verifier,
	}
}

// Verify - Self-service credential check
func (h *VerifyHandler) Verify(e *core.RequestEvent) error {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result, err := h.verifier.Verify(e.Request.Context(), services.VerifyRequest{
		Credential: req.Credential,
	})
	if err != nil {
		return h.verifyError(e, err)
	}

	h.logScan(result)

	return e.JSON(http.StatusOK, result)
}

// StaffVerify - Staff-mode credential check with the per-event code
func (h *VerifyHandler) StaffVerify(e *core.RequestEvent) error {
	var req struct {
		Credential string `json:"credential"`
		StaffCode  string `json:"staff_code"`
		EventID    int64  `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result, err := h.verifier.Verify(e.Request.Context(), services.VerifyRequest{
		Credential: req.Credential,
		Staff:      true,
		StaffCode:  req.StaffCode,
		EventID:    req.EventID,
	})
	if err != nil {
		return h.verifyError(e, err)
	}

	h.logScan(result)

	return e.JSON(http.StatusOK, result)
}

// Admit - Mark a verified ticket used for entry
func (h *VerifyHandler) Admit(e *core.RequestEvent) error {
	var req struct {
		TicketID int64  `json:"ticket_id"`
		Actor    string `json:"actor"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	err := h.verifier.MarkEntryUsed(e.Request.Context(), req.TicketID, req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrNotCurrentlyValid):
			return e.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, status.ErrTicketNotFound):
			return apis.NewNotFoundError("Ticket not found", nil)
		case errors.Is(err, status.ErrLedgerUnavailable):
			return e.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Ledger unavailable"})
		default:
			return apis.NewBadRequestError("Admission failed", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"admitted": true, "ticket_id": req.TicketID})
}

func (h *VerifyHandler) verifyError(e *core.RequestEvent, err error) error {
	switch {
	case errors.Is(err, status.ErrMalformedCredential):
		return apis.NewBadRequestError("Malformed credential", nil)
	case errors.Is(err, status.ErrUnauthorized):
		return apis.NewUnauthorizedError("Invalid staff code", nil)
	case errors.Is(err, status.ErrEventMismatch):
		return apis.NewForbiddenError("Credential belongs to a different event", nil)
	case errors.Is(err, status.ErrTicketNotFound):
		return apis.NewNotFoundError("Ticket not found", nil)
	case errors.Is(err, status.ErrLedgerUnavailable):
		return e.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Ledger unavailable"})
	default:
		return apis.NewBadRequestError("Verification failed", err)
	}
}

// logScan appends to the off-chain scan log. Observational only.
func (h *VerifyHandler) logScan(result *services.VerificationResult) {
	collection, err := h.app.FindCollectionByNameOrId("scan_log")
	if err != nil {
		slog.Error("scan_log collection missing", "error", err)
		return
	}

	record := core.NewRecord(collection)
	record.Set("ticket_id", result.TicketID)
	record.Set("event_id", result.EventID)
	record.Set("valid", result.Valid)
	record.Set("reason", result.Reason)
	record.Set("staff", result.StaffVerification)

	if err := h.app.Save(record); err != nil {
		slog.Error("failed to journal scan", "ticket_id", result.TicketID, "error", err)
	}
}
