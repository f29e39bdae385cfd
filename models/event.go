package models

import (
	"fmt"
	"time"
)

// EventStatus is the position of an event relative to a point in time.
type EventStatus string

const (
	EventUpcoming EventStatus = "upcoming"
	EventLive     EventStatus = "live"
	EventEnded    EventStatus = "ended"
)

func ParseEventStatus(s string) (EventStatus, error) {
	switch EventStatus(s) {
	case EventUpcoming, EventLive, EventEnded:
		return EventStatus(s), nil
	}
	return "", fmt.Errorf("unknown event status %q", s)
}

// Event is the ledger's record of a listed event. Identifiers are
// assigned by the ledger and are never reused. Events are deactivated,
// never deleted.
type Event struct {
	ID          int64     `json:"id"`
	Organizer   string    `json:"organizer"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	MetadataURI string    `json:"metadata_uri"`
	Active      bool      `json:"active"`
	TierCount   int       `json:"tier_count"`
}
