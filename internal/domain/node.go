// Package domain holds the DHT's wire-level value types: node identity
// and the resources the backup front end stores through the ring.
package domain

import "chordring/internal/ring"

// NodeInfo identifies a ring participant. It is immutable once created;
// two NodeInfos are equal iff their IDs are equal.
type NodeInfo struct {
	ID   ring.ID
	Addr string // network address, e.g. "127.0.0.1:5000"
}

// Equal reports whether n and o refer to the same ring participant.
func (n NodeInfo) Equal(o NodeInfo) bool {
	return n.ID.Equal(o.ID)
}

// IsZero reports whether n is the unset NodeInfo value.
func (n NodeInfo) IsZero() bool {
	return n.ID == nil && n.Addr == ""
}
