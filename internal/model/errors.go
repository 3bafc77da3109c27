package model

import "errors"

// Validation errors. They are returned before anything is persisted.
var (
	ErrInvalidRegion     = errors.New("invalid region")
	ErrInvalidKind       = errors.New("invalid kind")
	ErrInvalidImpact     = errors.New("invalid impact")
	ErrRegionProject     = errors.New("region/project mismatch")
	ErrInvalidConfidence = errors.New("confidence must be within [0, 1]")
	ErrEmptyContent      = errors.New("content is required")
	ErrMissingAgent      = errors.New("agent id is required")
	ErrMissingID         = errors.New("memory id is required")
)
