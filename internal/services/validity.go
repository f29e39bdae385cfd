package services

import (
	"time"

	"chaintix/models"
)

// Validity reason strings are part of the verification wire contract;
// staff apps match on them.
const (
	ReasonValid         = "valid ticket"
	ReasonAlreadyUsed   = "ticket already used"
	ReasonEventInactive = "event is not active"
	ReasonEventUpcoming = "event has not started"
	ReasonEventEnded    = "event has ended"
)

// EventStatus derives where now falls relative to the event schedule.
// The live window is inclusive on both ends.
func EventStatus(startAt, endAt, now time.Time) models.EventStatus {
	switch {
	case now.Before(startAt):
		return models.EventUpcoming
	case now.After(endAt):
		return models.EventEnded
	default:
		return models.EventLive
	}
}

// TicketValidity decides whether a ticket admits entry right now. It is
// a pure function of live ledger facts plus the supplied instant; the
// credential's embedded snapshot never participates.
func TicketValidity(ticket models.Ticket, event models.Event, now time.Time) (bool, string) {
	if ticket.Used {
		return false, ReasonAlreadyUsed
	}
	if !event.Active {
		return false, ReasonEventInactive
	}
	switch EventStatus(event.StartAt, event.EndAt, now) {
	case models.EventUpcoming:
		return false, ReasonEventUpcoming
	case models.EventEnded:
		return false, ReasonEventEnded
	}
	return true, ReasonValid
}
