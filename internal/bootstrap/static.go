package bootstrap

import (
	"context"

	"chordring/internal/domain"
)

// StaticBootstrap hands back a fixed, operator-configured list of peer
// addresses. It never registers or deregisters anything.
type StaticBootstrap struct {
	peers []string
}

func NewStaticBootstrap(peers []string) *StaticBootstrap {
	return &StaticBootstrap{peers: peers}
}

func (s *StaticBootstrap) Discover(ctx context.Context) ([]string, error) {
	return s.peers, nil
}

func (s *StaticBootstrap) Register(ctx context.Context, node *domain.NodeInfo) error {
	return nil
}

func (s *StaticBootstrap) Deregister(ctx context.Context, node *domain.NodeInfo) error {
	return nil
}
