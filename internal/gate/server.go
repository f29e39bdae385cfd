// Package gate is the venue-side scan server. Staff devices talk to it
// over the local network; it shares the verification engine with the
// main API but carries only the three entry-control endpoints.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"chaintix/internal/services"
	"chaintix/internal/status"
	"chaintix/security"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	echo     *echo.Echo
	verifier *services.VerificationService
}

func NewServer(verifier *services.VerificationService, redisClient *redis.Client) *Server {
	e := echo.New()
	e.HideBanner = true

	limiter := security.NewRateLimiter(redisClient)
	e.Use(limiter.AntiBotMiddleware())
	e.Use(limiter.ScanRateLimit())

	s := &Server{echo: e, verifier: verifier}

	e.POST("/api/v1/scan", s.Scan)
	e.POST("/api/v1/staff-scan", s.StaffScan)
	e.POST("/api/v1/admit", s.Admit)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	return s
}

// Start blocks serving until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		s.echo.Close()
	}()

	slog.Info("gate server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type scanRequest struct {
	Credential string `json:"credential"`
}

// Scan is self-service verification: credential only, no shared
// secret. Read-only.
func (s *Server) Scan(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	result, err := s.verifier.Verify(c.Request().Context(), services.VerifyRequest{
		Credential: req.Credential,
	})
	if err != nil {
		return s.verifyError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

type staffScanRequest struct {
	Credential string `json:"credential"`
	StaffCode  string `json:"staff_code"`
	EventID    int64  `json:"event_id"`
}

// StaffScan verifies under the per-event staff code and enforces the
// credential/event binding.
func (s *Server) StaffScan(c echo.Context) error {
	var req staffScanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	result, err := s.verifier.Verify(c.Request().Context(), services.VerifyRequest{
		Credential: req.Credential,
		Staff:      true,
		StaffCode:  req.StaffCode,
		EventID:    req.EventID,
	})
	if err != nil {
		return s.verifyError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

type admitRequest struct {
	TicketID int64  `json:"ticket_id"`
	Actor    string `json:"actor"`
}

// Admit consumes the ticket. Kept separate from scanning so re-scans
// never burn the ticket.
func (s *Server) Admit(c echo.Context) error {
	var req admitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	err := s.verifier.MarkEntryUsed(c.Request().Context(), req.TicketID, req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrNotCurrentlyValid):
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, status.ErrTicketNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Ticket not found"})
		case errors.Is(err, status.ErrLedgerUnavailable):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Ledger unavailable"})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"admitted": true, "ticket_id": req.TicketID})
}

func (s *Server) verifyError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, status.ErrMalformedCredential):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Malformed credential"})
	case errors.Is(err, status.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid staff code"})
	case errors.Is(err, status.ErrEventMismatch):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Credential belongs to a different event"})
	case errors.Is(err, status.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Ticket not found"})
	case errors.Is(err, status.ErrLedgerUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Ledger unavailable"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
