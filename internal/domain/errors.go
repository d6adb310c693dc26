package domain

import "errors"

// Store failures shared by the repository and the use cases that consume it.
var (
	ErrNotFound         = errors.New("not found")
	ErrConditionFailed  = errors.New("condition failed")
	ErrMalformedKey     = errors.New("malformed key")
	ErrStoreUnavailable = errors.New("store unavailable")
)
