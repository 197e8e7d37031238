package automation

import "errors"

// Error classes for the automation package.
//
// Each operation wraps one of these, so callers branch with errors.Is:
//
//	if errors.Is(err, automation.ErrPersistence) {
//	    // link store unavailable, in-memory state was rolled back
//	}
var (
	// ErrValidation is returned for malformed input such as an unknown
	// device or sensor type or an off threshold below the on threshold.
	ErrValidation = errors.New("automation: validation failed")

	// ErrNotFound is returned when a device or sensor ID does not resolve.
	ErrNotFound = errors.New("automation: not found")

	// ErrNotLinked is returned when an operation needs a linked device.
	ErrNotLinked = errors.New("automation: device not linked")

	// ErrPersistence is returned when the link store cannot be read or written.
	ErrPersistence = errors.New("automation: persistence failed")

	// ErrConsistency marks a divergence between the registries and the link
	// store, such as an enabled device with no durable row.
	ErrConsistency = errors.New("automation: consistency violation")
)
