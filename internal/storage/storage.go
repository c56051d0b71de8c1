// Package storage holds the values a node is responsible for on the ring:
// a small key/value store indexed by ring.ID, handed to the backup front
// end once routing has resolved which node owns a key.
package storage

import (
	"errors"

	"chordring/internal/domain"
	"chordring/internal/ring"
)

// ErrNotFound is returned by Get and Delete when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Storage is the minimal operation set the backup front end needs from a
// node-local resource store.
type Storage interface {
	// Put inserts or overwrites a resource.
	Put(resource domain.Resource)
	// Get retrieves the resource stored under id.
	Get(id ring.ID) (domain.Resource, error)
	// Delete removes the resource stored under id.
	Delete(id ring.ID) error
	// Between returns every resource whose key lies in (from, to], the arc
	// a newly-inserted successor takes ownership of during a join.
	Between(from, to ring.ID) ([]domain.Resource, error)
	// All returns every resource currently held.
	All() []domain.Resource
}
