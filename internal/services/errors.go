// Package services defines the business logic for gift units, their
// continuation chains and the post-payment side effects of a sale. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Gift-related errors.
var (
	// ErrGiftNotFound indicates that the requested gift unit, or the parent
	// referenced by a continuation, does not exist.
	ErrGiftNotFound = errors.New("gift not found")

	// ErrGiftNotAvailable is returned when a claim targets a gift unit that is
	// no longer AVAILABLE (already claimed, expired, or past its expiry time).
	ErrGiftNotAvailable = errors.New("gift not available")

	// ErrInvalidInput is returned when required fields are missing or out of
	// range.
	ErrInvalidInput = errors.New("invalid input")
)

// ClaimFailureMessage is the customer-facing explanation attached to a claim
// that failed during checkout.
const ClaimFailureMessage = "this gift is no longer available, continuing without it"
