package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidCatalog   = errors.New("invalid catalog")
	ErrStoreUnavailable = errors.New("store unavailable")
)
