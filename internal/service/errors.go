package service

import "errors"

// Not-found conditions. Always fatal to the current operation.
var (
	ErrMeterNotFound         = errors.New("water meter not found")
	ErrReadingNotFound       = errors.New("water meter reading not found")
	ErrAccountNotFound       = errors.New("water account not found")
	ErrCommunityZoneNotFound = errors.New("community zone not found")
	ErrCommunityNotFound     = errors.New("community not found")
)

// Business-rule violations. Fatal, never silently corrected.
var (
	// ErrReadingDateNotAllowed rejects readings dated in the future.
	ErrReadingDateNotAllowed = errors.New("reading date not allowed")

	// ErrReadingNotAllowed rejects readings that would break the per-meter
	// ordering: dates must strictly increase and normalized values must
	// never decrease.
	ErrReadingNotAllowed = errors.New("reading not allowed")

	// ErrReadingNotLast rejects edits outside the window of the two most
	// recently dated readings.
	ErrReadingNotLast = errors.New("reading is not one of the two most recent")

	// ErrNotMostRecentReading rejects deletion of anything but the single
	// most recently dated reading.
	ErrNotMostRecentReading = errors.New("can only delete the most recent reading")

	// ErrMeterInactive rejects replacement of an already decommissioned
	// meter.
	ErrMeterInactive = errors.New("water meter is inactive")
)

// Cache invariant violations inside the recalculation engine.
var (
	ErrNoReadingsProvided  = errors.New("no readings provided")
	ErrNonPositiveInterval = errors.New("non-positive interval between readings")
)
