package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired is returned when no token accompanies the call
	// or the presented token is not a well-formed bearer value.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrLeaseNotFound hides whether a token was ever issued.
	// The caller only learns that the presented token grants nothing.
	ErrLeaseNotFound = errors.New("lease not found")
	// ErrLeaseExpired is the shared parent for both expiry clocks so callers
	// can match either the generic condition or the specific one.
	ErrLeaseExpired     = errors.New("lease expired")
	ErrLeaseIdleExpired = fmt.Errorf("%w: idle window elapsed", ErrLeaseExpired)
	ErrLeaseHardExpired = fmt.Errorf("%w: hard cap reached", ErrLeaseExpired)
	// ErrLeaseRevoked signals an explicit revocation rather than clock expiry.
	ErrLeaseRevoked = errors.New("lease revoked")
	// ErrPreferenceOutOfRange rejects idle windows outside the allowed band.
	ErrPreferenceOutOfRange = errors.New("idle window out of range")
	ErrRateLimited          = errors.New("rate limited")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrInvalidInput         = errors.New("invalid input")
)
