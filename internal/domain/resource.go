package domain

import (
	"errors"

	"chordring/internal/ring"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrNotResponsible   = errors.New("node not responsible for the given key")
)

// Resource is a single backed-up value, keyed by its position on the ring.
type Resource struct {
	Key    ring.ID
	RawKey string
	Value  []byte
}
