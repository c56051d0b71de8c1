package bootstrap

import (
	"context"

	"chordring/internal/domain"
)

// Bootstrap discovers the peers a new node can contact to join a ring, and
// optionally publishes/retracts this node's own membership in whatever
// directory backs Discover.
type Bootstrap interface {
	// Discover returns a list of known peer addresses.
	Discover(ctx context.Context) ([]string, error)
	// Register publishes node, if the backing directory needs it (e.g.
	// Route53, CoreDNS); static bootstrap is a no-op.
	Register(ctx context.Context, node *domain.NodeInfo) error
	// Deregister retracts a previous Register.
	Deregister(ctx context.Context, node *domain.NodeInfo) error
}
