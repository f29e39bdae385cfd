package status

import "errors"

var (
	// Signature / identity failures. Never retried automatically; the
	// caller has to re-sign.
	ErrInvalidSignature = errors.New("signer: invalid signature")
	ErrUnauthorized     = errors.New("signer: identity mismatch")

	// Inventory failures.
	ErrSoldOut              = errors.New("ticket: tier sold out")
	ErrInvalidAttendeeCount = errors.New("ticket: attendee count must be between 1 and 10")

	// Lookup failures.
	ErrEventNotFound  = errors.New("ledger: event not found")
	ErrTierNotFound   = errors.New("ledger: tier not found")
	ErrTicketNotFound = errors.New("ledger: ticket not found")

	// Verification failures.
	ErrMalformedCredential = errors.New("credential: malformed payload")
	ErrEventMismatch       = errors.New("verify: credential belongs to a different event")
	ErrNotCurrentlyValid   = errors.New("verify: ticket is not currently valid")

	// Event management failures.
	ErrInvalidSchedule  = errors.New("event: end time must be after start time")
	ErrListingFeeTooLow = errors.New("event: listing fee below required minimum")
	ErrInvalidTier      = errors.New("event: tier needs a positive supply and non-negative price")

	// Transient transport failure. Read operations are safe to retry.
	// Purchases must not be blind-retried: a mint may already have
	// committed on the ledger side.
	ErrLedgerUnavailable = errors.New("ledger: unavailable")
)
