package domain

import "github.com/cockroachdb/errors"

// Sentinel errors for the ingestion core. Call sites wrap these with context
// via errors.Wrapf and callers match with errors.Is. Every failure aborts only
// the single key being processed; nothing substitutes a default value.
var (
	// ErrSourceNotFound: no (or more than one) source file resolves for a
	// (subject, session time) pair.
	ErrSourceNotFound = errors.New("session source file not found")

	// ErrMalformedTimestamps: a timestamp sequence has fewer than two samples,
	// leaving the sampling rate undefined.
	ErrMalformedTimestamps = errors.New("timestamp sequence has fewer than two samples")

	// ErrObjectNotFound: a composite container holds no object of a required type.
	ErrObjectNotFound = errors.New("no object of requested neurodata type")

	// ErrAmbiguousObject: a composite container holds more than one object of a
	// type that must be unique. Surfaced as a data-integrity error, never
	// resolved to "first match".
	ErrAmbiguousObject = errors.New("multiple objects of requested neurodata type")

	// ErrSerialization: the codec failed while persisting a derived container.
	// Partial output is removed before this propagates.
	ErrSerialization = errors.New("container serialization failed")

	// ErrNotFound: a referenced path or relational row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey: an insert collided with an existing row. Re-ingestion is
	// idempotent by rejection; the stored row is never silently overwritten.
	ErrDuplicateKey = errors.New("duplicate key")
)
