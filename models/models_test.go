package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTokenKind(t *testing.T) {
	for _, s := range []string{"native", "stable-a", "stable-b"} {
		kind, err := ParseTokenKind(s)
		assert.NoError(t, err)
		assert.Equal(t, TokenKind(s), kind)
	}

	_, err := ParseTokenKind("doge")
	assert.Error(t, err)

	_, err = ParseTokenKind("")
	assert.Error(t, err)
}

func TestParseEventStatus(t *testing.T) {
	for _, s := range []string{"upcoming", "live", "ended"} {
		st, err := ParseEventStatus(s)
		assert.NoError(t, err)
		assert.Equal(t, EventStatus(s), st)
	}

	_, err := ParseEventStatus("cancelled")
	assert.Error(t, err)
}

func TestTierRemaining(t *testing.T) {
	tier := Tier{MaxSupply: 100, CurrentSupply: 40}
	assert.Equal(t, 60, tier.Remaining())

	tier.CurrentSupply = 100
	assert.Equal(t, 0, tier.Remaining())

	// Supply can never exceed max, but Remaining must not go negative
	// if a backend ever reports inconsistent numbers.
	tier.CurrentSupply = 120
	assert.Equal(t, 0, tier.Remaining())
}
