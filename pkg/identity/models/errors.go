package models

import "errors"

// Common errors for identity store operations.
var (
	// Source errors
	ErrSourceNotFound  = errors.New("realm source not found")
	ErrDuplicateSource = errors.New("realm source already exists")

	// Identity errors
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrDuplicateIdentity = errors.New("identity already exists")

	// Link errors
	ErrLinkNotFound  = errors.New("source link not found")
	ErrDuplicateLink = errors.New("source link already exists")

	// Lease errors
	ErrLeaseBusy    = errors.New("lease is held by another holder")
	ErrLeaseNotHeld = errors.New("lease is not held by this holder")
)
