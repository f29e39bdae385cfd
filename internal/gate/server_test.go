package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chaintix/internal/clock"
	"chaintix/internal/ledger"
	"chaintix/internal/services"
	"chaintix/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *ledger.Memory, int64, int64) {
	t.Helper()

	led := ledger.NewMemory()
	ctx := context.Background()

	startAt := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	eventID, err := led.CreateEvent(ctx, models.Event{
		Organizer: "0xorg",
		Title:     "Test Event",
		StartAt:   startAt,
		EndAt:     startAt.Add(5 * time.Hour),
		Active:    true,
	})
	require.NoError(t, err)

	_, err = led.AddTier(ctx, eventID, models.Tier{
		Name:      "GA",
		Price:     decimal.RequireFromString("25"),
		MaxSupply: 10,
		Token:     models.TokenNative,
		Active:    true,
	})
	require.NoError(t, err)

	ticketID, err := led.ReserveCapacity(ctx, eventID, 0, ledger.MintRequest{
		AttendeeCount: 1,
		Buyer:         "0xbuyer",
		TotalPaid:     decimal.RequireFromString("25"),
		Token:         models.TokenNative,
		PurchasedAt:   startAt,
	})
	require.NoError(t, err)

	// The mock client makes the rate limiter fail open, which is the
	// limiter's behavior when Redis is unreachable.
	redisClient, _ := redismock.NewClientMock()

	clk := clock.NewFixed(startAt.Add(time.Hour))
	verifier := services.NewVerificationService(led, clk, nil, nil)

	return NewServer(verifier, redisClient), led, eventID, ticketID
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "scanner-app/1.0")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestScan(t *testing.T) {
	s, _, _, ticketID := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/scan", map[string]any{
		"credential": fmt.Sprintf("%d", ticketID),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result services.VerificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, ticketID, result.TicketID)
}

func TestScan_Malformed(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/scan", map[string]any{"credential": "???"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffScan(t *testing.T) {
	s, _, eventID, ticketID := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/staff-scan", map[string]any{
		"credential": fmt.Sprintf("%d", ticketID),
		"staff_code": fmt.Sprintf("STAFF-%d", eventID),
		"event_id":   eventID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result services.VerificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.True(t, result.StaffVerification)
}

func TestStaffScan_WrongCode(t *testing.T) {
	s, _, eventID, ticketID := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/staff-scan", map[string]any{
		"credential": fmt.Sprintf("%d", ticketID),
		"staff_code": "STAFF-999",
		"event_id":   eventID,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmit(t *testing.T) {
	s, led, _, ticketID := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/admit", map[string]any{
		"ticket_id": ticketID,
		"actor":     "gate-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ticket, err := led.GetTicket(context.Background(), ticketID)
	require.NoError(t, err)
	assert.True(t, ticket.Used)

	// A second admission is rejected.
	rec = postJSON(t, s, "/api/v1/admit", map[string]any{
		"ticket_id": ticketID,
		"actor":     "gate-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("User-Agent", "scanner-app/1.0")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
