package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors surfaced by repositories for domain-level conditions.
// Services translate them into the typed API error taxonomy.
var (
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateAttendee = errors.New("attendee already registered for event")
	ErrCapacityReached   = errors.New("event capacity reached")
	ErrAttendeeAttended  = errors.New("attendee already attended")
	ErrQRCodeMismatch    = errors.New("stored QR code does not match token")
	ErrAlreadyArchived   = errors.New("event already archived")
)

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}
