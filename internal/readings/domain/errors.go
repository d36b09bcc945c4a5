package readings

import "errors"

var (
	// ErrUnknownFormat is returned when a format selector is not recognised.
	ErrUnknownFormat = errors.New("readings: unknown format")
	// ErrMalformedDocument is returned when a document cannot be normalised.
	ErrMalformedDocument = errors.New("readings: malformed document")
	// ErrEmptyUsagePoint is returned when a series has no owner.
	ErrEmptyUsagePoint = errors.New("readings: empty usage point")
	// ErrInvalidTimestamp is returned when a timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("readings: invalid timestamp")
)
