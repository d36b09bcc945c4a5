package registry

import "errors"

var (
	// ErrMissingSheet is returned when a category sheet is absent.
	ErrMissingSheet = errors.New("registry: missing sheet")
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("registry: missing column")
	// ErrInvalidDistributor is returned for a distributor outside the fixed set.
	ErrInvalidDistributor = errors.New("registry: invalid distributor")
	// ErrUnknownCategory is returned for an unrecognised category.
	ErrUnknownCategory = errors.New("registry: unknown category")
	// ErrEmptyPointID is returned for a record without metering point id.
	ErrEmptyPointID = errors.New("registry: empty metering point id")
)
