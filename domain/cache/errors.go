package cache

import "errors"

// Error kinds surfaced by the cache engine. Handlers map these onto the
// numeric error codes of the response envelope.
var (
	// ErrValidation indicates a malformed or incomplete request.
	ErrValidation = errors.New("validation error")

	// ErrConfig indicates an unusable engine configuration.
	ErrConfig = errors.New("config error")

	// ErrEmbed indicates the embedding dispatcher failed to produce a vector.
	ErrEmbed = errors.New("embedding error")

	// ErrStore indicates a vector or scalar backend failure.
	ErrStore = errors.New("store error")

	// ErrCapacity indicates an out-of-range threshold, capacity or dimension.
	ErrCapacity = errors.New("capacity error")

	// ErrNotInit indicates a request arrived before engine init completed.
	ErrNotInit = errors.New("engine not initialized")

	// ErrNotFound indicates the requested entry does not exist or is soft-deleted.
	ErrNotFound = errors.New("entry not found")
)
