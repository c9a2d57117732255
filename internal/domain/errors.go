package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrMalformedRecord     = errors.New("malformed record")
	ErrRegistryUnavailable = errors.New("session registry unavailable")
	ErrIndexNotBuilt       = errors.New("memory index not built")
)
