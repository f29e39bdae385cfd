package services

import (
	"testing"
	"time"

	"chaintix/models"

	"github.com/stretchr/testify/assert"
)

var (
	startAt = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	endAt   = time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
)

func TestEventStatus_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want models.EventStatus
	}{
		{"well before start", startAt.Add(-24 * time.Hour), models.EventUpcoming},
		{"one second before start", startAt.Add(-time.Second), models.EventUpcoming},
		{"exactly at start", startAt, models.EventLive},
		{"mid event", startAt.Add(2 * time.Hour), models.EventLive},
		{"exactly at end", endAt, models.EventLive},
		{"one second after end", endAt.Add(time.Second), models.EventEnded},
		{"well after end", endAt.Add(24 * time.Hour), models.EventEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventStatus(startAt, endAt, tt.now))
		})
	}
}

func TestTicketValidity(t *testing.T) {
	event := models.Event{StartAt: startAt, EndAt: endAt, Active: true}
	live := startAt.Add(time.Hour)

	tests := []struct {
		name       string
		ticket     models.Ticket
		event      models.Event
		now        time.Time
		wantValid  bool
		wantReason string
	}{
		{"valid during event", models.Ticket{}, event, live, true, ReasonValid},
		{"valid at start instant", models.Ticket{}, event, startAt, true, ReasonValid},
		{"valid at end instant", models.Ticket{}, event, endAt, true, ReasonValid},
		{"already used", models.Ticket{Used: true}, event, live, false, ReasonAlreadyUsed},
		{"event not started", models.Ticket{}, event, startAt.Add(-time.Minute), false, ReasonEventUpcoming},
		{"event ended", models.Ticket{}, event, endAt.Add(time.Minute), false, ReasonEventEnded},
		{
			"inactive event",
			models.Ticket{},
			models.Event{StartAt: startAt, EndAt: endAt, Active: false},
			live,
			false,
			ReasonEventInactive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := TicketValidity(tt.ticket, tt.event, tt.now)
			assert.Equal(t, tt.wantValid, valid)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

// Used wins over every schedule reason, and inactive wins over timing.
func TestTicketValidity_ReasonPrecedence(t *testing.T) {
	inactive := models.Event{StartAt: startAt, EndAt: endAt, Active: false}

	_, reason := TicketValidity(models.Ticket{Used: true}, inactive, endAt.Add(time.Hour))
	assert.Equal(t, ReasonAlreadyUsed, reason)

	_, reason = TicketValidity(models.Ticket{}, inactive, endAt.Add(time.Hour))
	assert.Equal(t, ReasonEventInactive, reason)
}
