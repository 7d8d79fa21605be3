package recipe

import "errors"

var (
	// ErrNotFound means the requested recipe ID has no record.
	ErrNotFound = errors.New("recipe not found")

	// ErrInvalidPayload means a client body was not a well-formed recipe.
	ErrInvalidPayload = errors.New("invalid recipe payload")

	// ErrStoreUnavailable wraps any failure opening or calling the bucket.
	ErrStoreUnavailable = errors.New("recipe store unavailable")

	// ErrDecode means a record written by this service could not be read back.
	ErrDecode = errors.New("stored recipe is not decodable")
)
